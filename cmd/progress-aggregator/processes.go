package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/konveyor/progress-aggregator/config"
	"github.com/konveyor/progress-aggregator/progress"
)

// splitTasks spreads total tasks over n processes, the first ones taking one
// extra task each when total is not a multiple of n.
func splitTasks(total, n int) []int {
	if n < 1 {
		return nil
	}
	if n > total {
		n = total
	}
	shares := make([]int, n)
	for i := range shares {
		shares[i] = total / n
		if i < total%n {
			shares[i]++
		}
	}
	return shares
}

// workerEnv is the environment handing a worker its share of the run. The
// worker loads it through config.Load like any other PROGRESS_* variable.
func workerEnv(settings config.Settings, counterPath string, share int) []string {
	cfg := settings.Progress
	vars := map[string]string{
		"TOTAL":                  strconv.Itoa(cfg.Total),
		"TASKS":                  strconv.Itoa(share),
		"PROCESSES":              "0",
		"TRANSPORT":              string(progress.TransportFile),
		"WAIT_MESSAGE":           cfg.WaitMessage,
		"FINAL_MESSAGE":          cfg.FinalMessage,
		"MARKER":                 cfg.Marker,
		"BAR_LENGTH":             strconv.Itoa(cfg.BarLength),
		"DISPLAY_REMAINING_TIME": strconv.FormatBool(cfg.DisplayRemainingTime),
		"DISPLAY_DATE":           strconv.FormatBool(cfg.DisplayDate),
		"OVERWRITE":              strconv.FormatBool(cfg.Overwrite),
		"FORMAT":                 settings.Format,
		"RENDER_INTERVAL":        settings.RenderInterval.String(),
		"WORKERS":                strconv.Itoa(settings.Workers),
		"TASK_DURATION":          settings.TaskDuration.String(),
		"VERBOSE":                strconv.Itoa(settings.Verbose),
		"ENABLE_JAEGER":          strconv.FormatBool(settings.EnableJaeger),
		"JAEGER_ENDPOINT":        settings.JaegerEndpoint,
		"SUMMARY_FILE":           "",
		"METRICS_FILE":           "",
	}
	env := []string{fmt.Sprintf("%s=%s", progress.EnvCounterFile, counterPath)}
	for k, v := range vars {
		env = append(env, fmt.Sprintf("%s_%s=%s", config.EnvPrefix, k, v))
	}
	return env
}

// runProcesses runs one worker subprocess per share and returns the number of
// tasks run by the workers that exited successfully.
func runProcesses(ctx context.Context, log logr.Logger, settings config.Settings, counterPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("unable to find own executable: %w", err)
	}

	var completed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for i, share := range splitTasks(settings.Progress.Total, settings.Processes) {
		g.Go(func() error {
			cmd := exec.CommandContext(ctx, exe, "worker")
			cmd.Env = append(os.Environ(), workerEnv(settings, counterPath, share)...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			log.V(1).Info("starting worker process", "worker", i, "tasks", share, "counter", counterPath)
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			completed.Add(int64(share))
			return nil
		})
	}
	err = g.Wait()
	return int(completed.Load()), err
}
