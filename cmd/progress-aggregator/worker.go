package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/konveyor/progress-aggregator/config"
	"github.com/konveyor/progress-aggregator/engine"
	"github.com/konveyor/progress-aggregator/progress"
	"github.com/konveyor/progress-aggregator/tracing"
)

func WorkerCmd() *cobra.Command {
	var counterFile string

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a share of the tasks of a run and report them to its counter file",
		Long: `Attach to the durable counter file of a coordinator (--counter-file or
` + progress.EnvCounterFile + `), run --tasks tasks and report each completion.
--total is the number of tasks of the whole run.`,
		RunE: func(c *cobra.Command, args []string) error {
			settings, err := loadSettings(c)
			if err != nil {
				return err
			}
			if counterFile != "" {
				settings.Progress.CounterPath = counterFile
			}
			return work(c.Context(), settings, newLogger(settings.Verbose))
		},
	}

	workerCmd.Flags().StringVar(&counterFile, "counter-file", "", "durable counter file to report to, defaults to $"+progress.EnvCounterFile)
	workerCmd.Flags().Int("total", 0, "number of tasks of the whole run")
	workerCmd.Flags().Int("tasks", 0, "number of tasks this worker runs")
	addProgressFlags(workerCmd.Flags())
	return workerCmd
}

func work(ctx context.Context, settings config.Settings, log logr.Logger) error {
	cfg := settings.Progress
	if cfg.CounterPath == "" && os.Getenv(progress.EnvCounterFile) == "" {
		return fmt.Errorf("%w: worker requires --counter-file or %s", progress.ErrInvalidConfig, progress.EnvCounterFile)
	}
	cfg.Transport = progress.TransportFile
	log = log.WithValues("pid", os.Getpid())

	tp, err := tracing.InitTracerProvider(log, tracing.Options{
		EnableJaeger:   settings.EnableJaeger,
		JaegerEndpoint: settings.JaegerEndpoint,
		ServiceName:    "progress-aggregator-worker",
	})
	if err != nil {
		log.Error(err, "failed to initialize tracing")
		return err
	}
	defer tracing.Shutdown(ctx, log, tp)

	ctx, span := tracing.StartNewSpan(ctx, "worker", attribute.Int("tasks", settings.Tasks))
	defer span.End()

	renderer, err := createProgressReporter(os.Stdout, settings)
	if err != nil {
		return err
	}
	p, err := progress.New(cfg,
		progress.WithContext(ctx),
		progress.WithLogger(log),
		progress.WithReporters(renderer),
	)
	if err != nil {
		log.Error(err, "unable to attach to counter file")
		return err
	}

	taskEngine := engine.CreateTaskEngine(ctx, settings.Workers, p, log)
	results := taskEngine.RunTasks(ctx, simulatedTasks(fmt.Sprintf("worker-%d", os.Getpid()), settings.Tasks, settings.TaskDuration))
	taskEngine.Stop()
	log.V(1).Info("worker finished", "tasks", len(results), "completed", p.State().Completed)

	if err := p.Teardown(); err != nil {
		return err
	}
	return p.Err()
}
