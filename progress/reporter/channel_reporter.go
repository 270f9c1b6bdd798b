package reporter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/konveyor/progress-aggregator/progress"
)

// ChannelReporter exposes states on a Go channel for programmatic consumers
// such as dashboards or tests.
//
// Sends are non-blocking: when the consumer falls behind, states are dropped
// and counted (see DroppedStates) so the aggregator is never held up. The
// channel is closed when the context given to NewChannelReporter is cancelled.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	ch := reporter.NewChannelReporter(ctx)
//	prog, _ := progress.New(cfg, progress.WithReporters(ch))
//
//	go func() {
//	    for state := range ch.States() {
//	        fmt.Printf("%d%%\n", state.Percent())
//	    }
//	}()
type ChannelReporter struct {
	states        chan progress.State
	mu            sync.RWMutex
	closed        bool
	droppedStates atomic.Uint64
	log           logr.Logger
}

// ChannelReporterOption is a function that configures a ChannelReporter.
type ChannelReporterOption func(*ChannelReporter)

// WithLogger sets a logger for the ChannelReporter to log dropped states at
// V(1).
func WithLogger(log logr.Logger) ChannelReporterOption {
	return func(r *ChannelReporter) {
		r.log = log
	}
}

// WithBufferSize sets the channel capacity (default 100).
func WithBufferSize(size int) ChannelReporterOption {
	return func(r *ChannelReporter) {
		if size > 0 {
			r.states = make(chan progress.State, size)
		}
	}
}

// NewChannelReporter creates a new channel-based reporter whose channel is
// closed once ctx is cancelled.
//
// Size the buffer to the number of units when no state may be dropped.
//
// Example:
//
//	ch := reporter.NewChannelReporter(ctx,
//	    reporter.WithBufferSize(cfg.Total),
//	    reporter.WithLogger(log),
//	)
func NewChannelReporter(ctx context.Context, opts ...ChannelReporterOption) *ChannelReporter {
	r := &ChannelReporter{
		states: make(chan progress.State, 100),
		log:    logr.Discard(),
	}

	for _, opt := range opts {
		opt(r)
	}

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		close(r.states)
		r.closed = true
		r.mu.Unlock()
	}()

	return r
}

// Report sends state to the channel without blocking.
func (c *ChannelReporter) Report(state progress.State) {
	// Hold the read lock during the send so the channel cannot be closed
	// underneath it.
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.states <- state:
	default:
		dropped := c.droppedStates.Add(1)
		c.log.V(1).Info("progress state dropped due to slow consumer",
			"completed", state.Completed,
			"total", state.Total,
			"total_dropped", dropped,
		)
	}
}

// States returns the channel states are delivered on.
func (c *ChannelReporter) States() <-chan progress.State {
	return c.states
}

// DroppedStates returns how many states were dropped because the channel was
// full.
func (c *ChannelReporter) DroppedStates() uint64 {
	return c.droppedStates.Load()
}
