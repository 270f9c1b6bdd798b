// Package progress aggregates completion signals from many concurrent workers
// into a single progress line.
//
// Workers call ReportProgress once per finished unit of work. Every call is
// accounted exactly once by a shared counter and the resulting State is handed,
// one update at a time, to the configured reporters.
//
// Two transports carry reports from workers to the aggregator:
//
//   - TransportQueue: workers share the coordinator's address space. Reports
//     are appended to a buffered channel and a single goroutine consumes them
//     in arrival order.
//   - TransportFile: workers run in separate processes. Each report increments
//     a durable counter file under an exclusive OS lock and the reporting
//     process applies the update itself.
//
// The transport is chosen once, when the Progress is created. With
// TransportAuto a process that was handed a counter file (Config.CounterPath
// or the PROGRESS_COUNTER_FILE environment variable) uses TransportFile and any
// other process uses TransportQueue.
//
// # Basic Usage
//
//	cfg := progress.DefaultConfig(len(tasks))
//	cfg.FinalMessage = "done"
//	prog, err := progress.New(cfg,
//	    progress.WithReporters(reporter.NewProgressBarReporter(os.Stdout, cfg)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer prog.Teardown()
//
//	for _, task := range tasks {
//	    go func() {
//	        task.Run()
//	        prog.ReportProgress(task.Name)
//	    }()
//	}
//	return prog.Wait(ctx)
//
// # Completion
//
// When the counter reaches Config.Total the State moves to StageComplete,
// reporters receive the final message and the transport and counter are
// released. Reporting more units than Total returns ErrOverrun.
package progress
