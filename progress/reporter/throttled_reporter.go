package reporter

import (
	"sync"
	"time"

	"github.com/konveyor/progress-aggregator/progress"
)

// ThrottledReporter limits how often the wrapped reporter is called.
//
// The first state and the complete state are always forwarded; intermediate
// states are forwarded at most once per interval. Use it in front of a bar on
// slow terminals when units complete faster than lines can be redrawn.
//
// Example:
//
//	bar := reporter.NewProgressBarReporter(os.Stdout, cfg)
//	prog, _ := progress.New(cfg,
//	    progress.WithReporters(reporter.NewThrottledReporter(bar, 100*time.Millisecond)),
//	)
type ThrottledReporter struct {
	reporter progress.Reporter

	interval       time.Duration
	lastReportTime time.Time
	reportedAny    bool
	mu             sync.Mutex
	now            func() time.Time
}

// NewThrottledReporter wraps reporter. A non-positive interval defaults to
// 500ms.
//
// Example:
//
//	// At most two JSON lines per second, plus the final one
//	throttled := reporter.NewThrottledReporter(reporter.NewJSONReporter(os.Stderr), 500*time.Millisecond)
func NewThrottledReporter(reporter progress.Reporter, interval time.Duration) *ThrottledReporter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ThrottledReporter{
		reporter: reporter,
		interval: interval,
		now:      time.Now,
	}
}

// Report forwards state when the throttling rules allow it.
func (t *ThrottledReporter) Report(state progress.State) {
	t.mu.Lock()
	now := t.now()
	isFirst := !t.reportedAny
	isLast := state.IsComplete()
	intervalElapsed := now.Sub(t.lastReportTime) >= t.interval

	if !(isFirst || isLast || intervalElapsed) {
		t.mu.Unlock()
		return
	}
	t.lastReportTime = now
	t.reportedAny = true
	t.mu.Unlock()

	t.reporter.Report(state)
}
