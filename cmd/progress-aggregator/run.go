package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/konveyor/progress-aggregator/config"
	"github.com/konveyor/progress-aggregator/engine"
	"github.com/konveyor/progress-aggregator/progress"
	"github.com/konveyor/progress-aggregator/progress/reporter"
	"github.com/konveyor/progress-aggregator/tracing"
)

func RunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run tasks and render their aggregated progress",
		Long: `Run --tasks simulated tasks, either on --workers goroutines in this
process or split across --processes worker subprocesses that share a durable
counter file, and render a single progress line on stdout.`,
		RunE: func(c *cobra.Command, args []string) error {
			settings, err := loadSettings(c)
			if err != nil {
				return err
			}
			return run(c.Context(), settings, newLogger(settings.Verbose))
		},
	}

	runCmd.Flags().Int("tasks", 0, "number of tasks to run")
	runCmd.Flags().Int("processes", 0, "spawn this many worker processes instead of running tasks in goroutines")
	runCmd.Flags().String("transport", string(progress.TransportAuto), "how reports reach the aggregator: auto, queue or file")
	runCmd.Flags().String("counter-dir", "", "directory for the durable counter file, defaults to the temp dir")
	runCmd.Flags().String("summary-file", "", "write a YAML run summary to this file")
	runCmd.Flags().String("metrics-file", "", "write progress metrics in the Prometheus text format to this file")
	addProgressFlags(runCmd.Flags())
	return runCmd
}

func run(ctx context.Context, settings config.Settings, log logr.Logger) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	tp, err := tracing.InitTracerProvider(log, tracing.Options{
		EnableJaeger:   settings.EnableJaeger,
		JaegerEndpoint: settings.JaegerEndpoint,
	})
	if err != nil {
		log.Error(err, "failed to initialize tracing")
		return err
	}
	defer tracing.Shutdown(ctx, log, tp)

	ctx, span := tracing.StartNewSpan(ctx, "run",
		attribute.Int("total", settings.Progress.Total),
		attribute.Int("processes", settings.Processes),
	)
	defer span.End()

	cfg := settings.Progress
	if settings.Processes > 0 {
		// worker processes only share the durable counter
		cfg.Transport = progress.TransportFile
	}

	renderer, err := createProgressReporter(os.Stdout, settings)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	metrics, err := reporter.NewPrometheusReporter(registry)
	if err != nil {
		return err
	}

	p, err := progress.New(cfg,
		progress.WithContext(ctx),
		progress.WithLogger(log),
		progress.WithReporters(renderer, metrics),
	)
	if err != nil {
		log.Error(err, "unable to start progress")
		return err
	}

	summary := newRunSummary(settings, p)
	if settings.Processes > 0 {
		var shares int
		shares, err = runProcesses(ctx, log, settings, p.CounterPath())
		completed := reportedUnits(log, p, shares)
		summary.Completed = completed
		summary.Failed = cfg.Total - completed
		if err != nil {
			log.Error(err, "worker processes failed")
		}
		// The coordinator never reports itself; its counter is released by
		// the last worker.
		if terr := p.Teardown(); terr != nil && err == nil {
			err = terr
		}
		metrics.Report(processesState(p.State(), completed, time.Now()))
	} else {
		taskEngine := engine.CreateTaskEngine(ctx, settings.Workers, p, log)
		results := taskEngine.RunTasks(ctx, simulatedTasks("task", settings.Tasks, settings.TaskDuration))
		taskEngine.Stop()
		summary.addResults(results)
		err = p.Wait(ctx)
		summary.Completed = p.State().Completed
	}
	summary.finish(p.State(), err)

	if settings.SummaryFile != "" {
		if werr := writeSummary(settings.SummaryFile, summary); werr != nil {
			log.Error(werr, "error writing summary file", "file", settings.SummaryFile)
			if err == nil {
				err = werr
			}
		} else {
			log.V(1).Info("wrote run summary", "file", settings.SummaryFile)
		}
	}
	if settings.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(settings.MetricsFile, registry); werr != nil {
			log.Error(werr, "error writing metrics file", "file", settings.MetricsFile)
			if err == nil {
				err = werr
			}
		}
	}
	return err
}

// reportedUnits reads how many units the worker processes reported through
// the durable counter. fallback is used when the counter cannot be read.
func reportedUnits(log logr.Logger, p *progress.Progress, fallback int) int {
	n, err := p.Reported()
	switch {
	case err == nil:
		return n
	case errors.Is(err, fs.ErrNotExist):
		// the last worker removes the counter once it reaches the total
		return p.Config().Total
	default:
		log.Error(err, "unable to read progress counter", "counter", p.CounterPath())
		return fallback
	}
}

// processesState is the coordinator's view once every worker process exited.
func processesState(s progress.State, completed int, now time.Time) progress.State {
	s.Completed = completed
	s.Timestamp = now
	if completed == s.Total {
		s.Stage = progress.StageComplete
	}
	return s
}

// simulatedTasks returns n tasks sleeping d each.
func simulatedTasks(prefix string, n int, d time.Duration) []engine.Task {
	tasks := make([]engine.Task, 0, n)
	for i := 1; i <= n; i++ {
		tasks = append(tasks, engine.TaskFunc{
			TaskName: fmt.Sprintf("%s-%03d", prefix, i),
			Fn: func(ctx context.Context) error {
				if d == 0 {
					return nil
				}
				timer := time.NewTimer(d)
				defer timer.Stop()
				select {
				case <-timer.C:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}
	return tasks
}
