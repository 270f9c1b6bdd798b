package main

import (
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/konveyor/progress-aggregator/config"
	"github.com/konveyor/progress-aggregator/engine"
	"github.com/konveyor/progress-aggregator/progress"
)

type runSummary struct {
	Total       int             `yaml:"total"`
	Completed   int             `yaml:"completed"`
	Failed      int             `yaml:"failed"`
	Transport   string          `yaml:"transport"`
	CounterFile string          `yaml:"counterFile,omitempty"`
	Workers     int             `yaml:"workers"`
	Processes   int             `yaml:"processes,omitempty"`
	StartTime   string          `yaml:"startTime"`
	Elapsed     string          `yaml:"elapsed"`
	Message     string          `yaml:"message,omitempty"`
	Error       string          `yaml:"error,omitempty"`
	Config      progress.Config `yaml:"config"`
	Tasks       []taskSummary   `yaml:"tasks,omitempty"`
}

type taskSummary struct {
	Name     string `yaml:"name"`
	Duration string `yaml:"duration"`
	Error    string `yaml:"error,omitempty"`
}

func newRunSummary(settings config.Settings, p *progress.Progress) *runSummary {
	state := p.State()
	return &runSummary{
		Total:       state.Total,
		Transport:   string(p.TransportKind()),
		CounterFile: p.CounterPath(),
		Workers:     settings.Workers,
		Processes:   settings.Processes,
		StartTime:   state.StartTime.Format(time.RFC3339),
		Config:      p.Config(),
	}
}

func (s *runSummary) addResults(results []engine.Result) {
	for _, r := range results {
		t := taskSummary{
			Name:     r.Task,
			Duration: r.Duration.String(),
		}
		if r.Err != nil {
			t.Error = r.Err.Error()
			s.Failed++
		}
		s.Tasks = append(s.Tasks, t)
	}
	sort.SliceStable(s.Tasks, func(i, j int) bool {
		return s.Tasks[i].Name < s.Tasks[j].Name
	})
}

func (s *runSummary) finish(state progress.State, err error) {
	s.Elapsed = time.Since(state.StartTime).Round(time.Millisecond).String()
	s.Message = state.Message
	if err != nil {
		s.Error = err.Error()
	}
}

func writeSummary(path string, s *runSummary) error {
	// This will globally prevent the yaml library from auto-wrapping lines at 80 characters
	yaml.FutureLineWrap()
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
