package main

import (
	"fmt"
	"io"
	"os"

	logrusr "github.com/bombsimon/logrusr/v3"
	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/konveyor/progress-aggregator/config"
	"github.com/konveyor/progress-aggregator/progress"
	"github.com/konveyor/progress-aggregator/progress/reporter"
)

var configFile string

func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "progress-aggregator",
		Short:         "Aggregate the progress of concurrent tasks into one progress line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().Int("verbose", 0, "level for logging output")
	rootCmd.PersistentFlags().Bool("enable-jaeger", false, "enable tracer exports to jaeger endpoint")
	rootCmd.PersistentFlags().String("jaeger-endpoint", config.DefaultJaegerEndpoint, "jaeger endpoint to collect tracing data")

	rootCmd.AddCommand(RunCmd(), WorkerCmd(), DemoCmd())
	return rootCmd
}

func main() {
	if err := RootCmd().Execute(); err != nil {
		newErrLogger().Error(err, "progress-aggregator failed")
		os.Exit(1)
	}
}

// addProgressFlags registers the flags shared by every command that renders
// progress. Flag names match the config keys.
func addProgressFlags(flags *pflag.FlagSet) {
	d := progress.DefaultConfig(0)
	flags.String("wait-message", d.WaitMessage, "message shown while waiting when a task reports none, may use {{completed}}, {{total}} and {{percent}}")
	flags.String("final-message", d.FinalMessage, "message shown once every task completed")
	flags.String("marker", d.Marker, "character used to fill the bar")
	flags.Int("bar-length", d.BarLength, "number of cells in the bar")
	flags.Bool("display-remaining-time", d.DisplayRemainingTime, "show the remaining time while waiting and the elapsed time on completion")
	flags.Bool("display-date", d.DisplayDate, "prefix each line with the date")
	flags.Bool("overwrite", d.Overwrite, "redraw the progress line in place instead of appending lines")
	flags.String("format", config.DefaultFormat, "format for progress output: bar, text, or json")
	flags.Duration("render-interval", 0, "minimum time between two rendered updates, 0 renders every update")
	flags.Int("workers", config.DefaultWorkers, "number of goroutines running tasks")
	flags.Duration("task-duration", config.DefaultTaskDuration, "simulated duration of one task")
}

func loadSettings(c *cobra.Command) (config.Settings, error) {
	return config.Load(configFile, c.Flags())
}

func newLogger(verbose int) logr.Logger {
	logrusLog := logrus.New()
	// stdout carries the progress line
	logrusLog.SetOutput(os.Stderr)
	logrusLog.SetFormatter(&logrus.TextFormatter{})
	// Adding 5 here to move logs to info level
	// setting verbose 1 -> V(2) logs show up
	// setting verbose 2 -> V(3) logs show up
	logrusLog.SetLevel(logrus.Level(verbose + 5))
	return logrusr.New(logrusLog)
}

func newErrLogger() logr.Logger {
	logrusErrLog := logrus.New()
	logrusErrLog.SetOutput(os.Stderr)
	return logrusr.New(logrusErrLog)
}

// createProgressReporter creates the renderer selected by the settings.
func createProgressReporter(w io.Writer, s config.Settings) (progress.Reporter, error) {
	var r progress.Reporter
	switch s.Format {
	case "json":
		r = reporter.NewJSONReporter(w)
	case "text":
		r = reporter.NewTextReporter(w)
	case "bar":
		r = reporter.NewProgressBarReporter(w, s.Progress)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", progress.ErrInvalidConfig, s.Format)
	}
	if s.RenderInterval > 0 {
		r = reporter.NewThrottledReporter(r, s.RenderInterval)
	}
	return r, nil
}
