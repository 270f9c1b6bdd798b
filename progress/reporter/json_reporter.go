package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/konveyor/progress-aggregator/progress"
)

// JSONReporter writes every state as a JSON object on its own line (NDJSON).
//
// Example output:
//
//	{"timestamp":"2024-01-01T12:00:03Z","stage":"waiting","completed":3,"total":10,"percent":30,"message":"rule-003","elapsedSeconds":3,"remainingSeconds":7}
type JSONReporter struct {
	writer io.Writer
	mu     sync.Mutex
}

type jsonState struct {
	Timestamp        time.Time      `json:"timestamp"`
	Stage            progress.Stage `json:"stage"`
	Completed        int            `json:"completed"`
	Total            int            `json:"total"`
	Percent          int            `json:"percent"`
	Message          string         `json:"message,omitempty"`
	ElapsedSeconds   float64        `json:"elapsedSeconds"`
	RemainingSeconds *float64       `json:"remainingSeconds,omitempty"`
}

// NewJSONReporter creates a new JSON reporter that writes to w.
//
// Each state is written as a single JSON line (NDJSON), ready for jq or a
// log shipper.
//
// Example:
//
//	// Stderr output, leaving stdout to the bar
//	bar := reporter.NewProgressBarReporter(os.Stdout, cfg)
//	events := reporter.NewJSONReporter(os.Stderr)
//	prog, _ := progress.New(cfg, progress.WithReporters(bar, events))
func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer: w,
	}
}

// Report writes state as a JSON line. The remaining time is omitted until the
// first unit completes and after completion.
//
// Marshaling and write errors are ignored so output problems never disturb
// the workers.
func (j *JSONReporter) Report(state progress.State) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := jsonState{
		Timestamp:      state.Timestamp,
		Stage:          state.Stage,
		Completed:      state.Completed,
		Total:          state.Total,
		Percent:        state.Percent(),
		Message:        state.Message,
		ElapsedSeconds: state.Elapsed().Seconds(),
	}
	if remaining, ok := state.Remaining(); ok && !state.IsComplete() {
		secs := remaining.Seconds()
		out.RemainingSeconds = &secs
	}

	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	fmt.Fprintln(j.writer, string(data))
}
