package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/konveyor/progress-aggregator/engine"
	"github.com/konveyor/progress-aggregator/progress"
	"github.com/konveyor/progress-aggregator/progress/reporter"
)

// DemoCmd shows how to consume progress programmatically through the
// channel reporter.
func DemoCmd() *cobra.Command {
	var (
		tasks    int
		workers  int
		duration time.Duration
	)
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Show progress updates consumed from a channel reporter",
		RunE: func(c *cobra.Command, args []string) error {
			return demo(c.Context(), os.Stdout, tasks, workers, duration)
		},
	}
	demoCmd.Flags().IntVar(&tasks, "tasks", 45, "number of simulated tasks")
	demoCmd.Flags().IntVar(&workers, "workers", 3, "number of goroutines running tasks")
	demoCmd.Flags().DurationVar(&duration, "task-duration", 100*time.Millisecond, "simulated duration of one task")
	return demoCmd
}

func demo(ctx context.Context, w io.Writer, tasks, workers int, duration time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(w, "=== Progress Reporting Demo ===")

	cfg := progress.DefaultConfig(tasks)
	cfg.Transport = progress.TransportQueue
	cfg.FinalMessage = "All {{total}} tasks complete"

	states := reporter.NewChannelReporter(ctx, reporter.WithBufferSize(tasks))
	p, err := progress.New(cfg,
		progress.WithContext(ctx),
		progress.WithReporters(states),
	)
	if err != nil {
		return err
	}

	taskEngine := engine.CreateTaskEngine(ctx, workers, p, newErrLogger())
	defer taskEngine.Stop()
	go taskEngine.RunTasks(ctx, simulatedTasks("task", tasks, duration))

	displayProgress(w, states.States())
	fmt.Fprintln(w, "=== Demo Complete ===")
	return p.Wait(ctx)
}

// displayProgress shows progress updates until the complete state arrives.
func displayProgress(w io.Writer, states <-chan progress.State) {
	for state := range states {
		if state.IsComplete() {
			fmt.Fprintf(w, "\r%s %3d%% (%d/%d)\n%s\n",
				drawProgressBar(state.Percent(), 40),
				state.Percent(),
				state.Completed,
				state.Total,
				state.Message)
			return
		}
		fmt.Fprintf(w, "\rProcessing: %s %3d%% (%d/%d) - %s",
			drawProgressBar(state.Percent(), 40),
			state.Percent(),
			state.Completed,
			state.Total,
			state.Message)
	}
}

// drawProgressBar creates a visual progress bar
func drawProgressBar(percent int, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s]", bar)
}
