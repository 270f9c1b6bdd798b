// Package engine runs tasks on a pool of goroutines and reports each
// completion to a progress aggregator.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

// Task is one unit of work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Name() string {
	return t.TaskName
}

func (t TaskFunc) Run(ctx context.Context) error {
	return t.Fn(ctx)
}

// ProgressReporter receives one report per finished task. *progress.Progress
// implements it.
type ProgressReporter interface {
	ReportProgress(message string) error
}

// Result is the outcome of a single task.
type Result struct {
	Task     string
	Err      error
	Duration time.Duration
}

// TaskEngine runs tasks on a fixed pool of worker goroutines.
//
// Every task handed to RunTasks is reported to the engine's ProgressReporter
// once it finishes, whether it succeeded or failed. Stop the engine when it is
// no longer needed; RunTasks may be called any number of times before that.
//
// Example:
//
//	prog, _ := progress.New(progress.DefaultConfig(len(tasks)))
//	e := engine.CreateTaskEngine(ctx, 4, prog, log)
//	defer e.Stop()
//	results := e.RunTasks(ctx, tasks)
//	err := prog.Wait(ctx)
type TaskEngine interface {
	RunTasks(ctx context.Context, tasks []Task) []Result
	Stop()
}

type taskMessage struct {
	task       Task
	returnChan chan Result
}

type taskEngine struct {
	// Buffered channel the workers are watching
	taskProcessing chan taskMessage
	cancelFunc     context.CancelFunc
	reporter       ProgressReporter
	logger         logr.Logger
}

// CreateTaskEngine starts workers goroutines. Every finished task, failed or
// not, is reported to reporter exactly once.
func CreateTaskEngine(ctx context.Context, workers int, reporter ProgressReporter, log logr.Logger) TaskEngine {
	if workers < 1 {
		workers = 1
	}
	taskProcessor := make(chan taskMessage, workers)

	ctx, cancelFunc := context.WithCancel(ctx)

	e := &taskEngine{
		taskProcessing: taskProcessor,
		cancelFunc:     cancelFunc,
		reporter:       reporter,
		logger:         log.WithName("engine"),
	}
	for i := 0; i < workers; i++ {
		go e.processTaskWorker(ctx, i)
	}
	return e
}

func (e *taskEngine) Stop() {
	e.cancelFunc()
}

func (e *taskEngine) processTaskWorker(ctx context.Context, id int) {
	log := e.logger.WithValues("worker", id)
	for {
		select {
		case m := <-e.taskProcessing:
			start := time.Now()
			err := m.task.Run(ctx)
			res := Result{
				Task:     m.task.Name(),
				Err:      err,
				Duration: time.Since(start),
			}
			message := m.task.Name()
			if err != nil {
				log.V(1).Info("task failed", "task", m.task.Name(), "error", err.Error())
				message = fmt.Sprintf("%s (failed)", m.task.Name())
			}
			if rerr := e.reporter.ReportProgress(message); rerr != nil {
				log.Error(rerr, "unable to report progress", "task", m.task.Name())
			}
			m.returnChan <- res
		case <-ctx.Done():
			return
		}
	}
}

// RunTasks fans the tasks out to the workers and blocks until all of them
// have finished or ctx is cancelled. Results are returned in completion order.
func (e *taskEngine) RunTasks(ctx context.Context, tasks []Task) []Result {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	// Buffered for every task so workers never block on a caller that left.
	ret := make(chan Result, len(tasks))
	go func() {
		for _, task := range tasks {
			select {
			case e.taskProcessing <- taskMessage{task: task, returnChan: ret}:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make([]Result, 0, len(tasks))
	for len(results) < len(tasks) {
		select {
		case r := <-ret:
			results = append(results, r)
		case <-ctx.Done():
			e.logger.Info("context canceled while running tasks", "finished", len(results), "tasks", len(tasks))
			return results
		}
	}
	e.logger.V(1).Info("all tasks processed", "tasks", len(tasks))
	return results
}
