package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konveyor/progress-aggregator/progress"
)

type recordingReporter struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingReporter) ReportProgress(message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

func (r *recordingReporter) sorted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string{}, r.messages...)
	sort.Strings(out)
	return out
}

func sleepTask(name string, d time.Duration, err error) Task {
	return TaskFunc{
		TaskName: name,
		Fn: func(ctx context.Context) error {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
			return err
		},
	}
}

func TestRunTasks(t *testing.T) {
	testCases := []struct {
		Name     string
		Workers  int
		Tasks    []Task
		Messages []string
		Failed   int
	}{
		{
			Name:     "single task",
			Workers:  1,
			Tasks:    []Task{sleepTask("a", 0, nil)},
			Messages: []string{"a"},
		},
		{
			Name:    "more tasks than workers",
			Workers: 2,
			Tasks: []Task{
				sleepTask("a", time.Millisecond, nil),
				sleepTask("b", 2*time.Millisecond, nil),
				sleepTask("c", 0, nil),
				sleepTask("d", time.Millisecond, nil),
			},
			Messages: []string{"a", "b", "c", "d"},
		},
		{
			Name:    "failed task still reported",
			Workers: 3,
			Tasks: []Task{
				sleepTask("a", 0, nil),
				sleepTask("b", 0, errors.New("boom")),
			},
			Messages: []string{"a", "b (failed)"},
			Failed:   1,
		},
		{
			Name:     "zero workers uses one",
			Workers:  0,
			Tasks:    []Task{sleepTask("a", 0, nil), sleepTask("b", 0, nil)},
			Messages: []string{"a", "b"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			reporter := &recordingReporter{}
			e := CreateTaskEngine(ctx, tc.Workers, reporter, testr.New(t))
			defer e.Stop()

			results := e.RunTasks(ctx, tc.Tasks)
			require.Len(t, results, len(tc.Tasks))
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			assert.Equal(t, tc.Failed, failed)
			assert.Equal(t, tc.Messages, reporter.sorted())
		})
	}
}

func TestRunTasksReportErrorDoesNotStopEngine(t *testing.T) {
	ctx := context.Background()
	reporter := &recordingReporter{err: progress.ErrOverrun}
	e := CreateTaskEngine(ctx, 2, reporter, testr.New(t))
	defer e.Stop()

	results := e.RunTasks(ctx, []Task{sleepTask("a", 0, nil), sleepTask("b", 0, nil)})
	assert.Len(t, results, 2)
	assert.Len(t, reporter.sorted(), 2)
}

func TestRunTasksRespectsWorkerLimit(t *testing.T) {
	ctx := context.Background()
	var running, peak atomic.Int32
	tasks := []Task{}
	for i := 0; i < 12; i++ {
		tasks = append(tasks, TaskFunc{
			TaskName: fmt.Sprintf("task-%d", i),
			Fn: func(ctx context.Context) error {
				cur := running.Add(1)
				for {
					p := peak.Load()
					if cur <= p || peak.CompareAndSwap(p, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			},
		})
	}
	e := CreateTaskEngine(ctx, 3, &recordingReporter{}, testr.New(t))
	defer e.Stop()

	results := e.RunTasks(ctx, tasks)
	assert.Len(t, results, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunTasksContextCanceled(t *testing.T) {
	engineCtx := context.Background()
	e := CreateTaskEngine(engineCtx, 1, &recordingReporter{}, testr.New(t))
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	results := e.RunTasks(ctx, []Task{
		sleepTask("slow", 5*time.Second, nil),
		sleepTask("never", 0, nil),
	})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Less(t, len(results), 2)
}

func TestRunTasksWithProgress(t *testing.T) {
	for _, kind := range []progress.TransportKind{progress.TransportQueue, progress.TransportFile} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := progress.DefaultConfig(25)
			cfg.Transport = kind
			cfg.CounterDir = t.TempDir()
			cfg.FinalMessage = "done {{completed}}/{{total}}"
			p, err := progress.New(cfg, progress.WithLogger(testr.New(t)))
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			e := CreateTaskEngine(ctx, 4, p, testr.New(t))
			defer e.Stop()

			tasks := []Task{}
			for i := 0; i < 25; i++ {
				tasks = append(tasks, sleepTask(fmt.Sprintf("task-%d", i), 0, nil))
			}
			e.RunTasks(ctx, tasks)
			require.NoError(t, p.Wait(ctx))

			state := p.State()
			assert.Equal(t, 25, state.Completed)
			assert.True(t, state.IsComplete())
			assert.Equal(t, "done 25/25", state.Message)
		})
	}
}

func TestRunTasksReleasesGoroutines(t *testing.T) {
	testCases := []struct {
		Name     string
		Timeout  time.Duration
		Duration time.Duration
	}{
		{
			Name: "completed runs",
		},
		{
			Name:     "canceled runs",
			Timeout:  time.Millisecond,
			Duration: 50 * time.Millisecond,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			engineCtx, stop := context.WithCancel(context.Background())
			defer stop()
			e := CreateTaskEngine(engineCtx, 2, &recordingReporter{}, testr.New(t))
			defer e.Stop()

			before := runtime.NumGoroutine()
			for i := 0; i < 100; i++ {
				ctx := context.Background()
				cancel := func() {}
				if tc.Timeout > 0 {
					ctx, cancel = context.WithTimeout(ctx, tc.Timeout)
				}
				e.RunTasks(ctx, []Task{
					sleepTask(fmt.Sprintf("a-%d", i), tc.Duration, nil),
					sleepTask(fmt.Sprintf("b-%d", i), tc.Duration, nil),
				})
				cancel()
			}

			assert.Eventually(t, func() bool {
				return runtime.NumGoroutine() <= before+2
			}, 10*time.Second, 10*time.Millisecond, "goroutines before=%d after=%d", before, runtime.NumGoroutine())
		})
	}
}
