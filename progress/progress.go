package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/konveyor/progress-aggregator/progress/counter"
	"github.com/konveyor/progress-aggregator/tracing"
)

// Progress aggregates completion reports from any number of workers.
//
// Progress owns the cumulative State and is the single point of
// serialization: whatever the transport, events are applied one at a time and
// every reporter sees a consistent, non-decreasing sequence of states.
//
// Lifecycle:
//  1. Create with New(cfg, opts...). The transport is selected and the counter
//     is created or attached.
//  2. Workers call ReportProgress once per completed unit.
//  3. The report that brings Completed to Total moves the State to
//     StageComplete, renders the final message and tears the Progress down.
//  4. Owners may call Teardown at any time, typically deferred; it is
//     idempotent.
//
// Progress is safe for concurrent use.
type Progress struct {
	ctx       context.Context
	cfg       Config
	log       logr.Logger
	reporters []Reporter
	clock     func() time.Time

	counter   counter.Counter
	transport Transport

	// mu guards state and err and serializes calls to reporters.
	mu    sync.Mutex
	state State
	err   error

	complete     atomic.Bool
	done         chan struct{}
	tornDown     chan struct{}
	closeOnce    sync.Once
	releaseMu    sync.Mutex
	released     bool
	teardownRuns atomic.Int32
}

// Option configures a Progress during creation.
type Option func(p *Progress)

// WithContext sets the context that bounds the consumer goroutine and parents
// tracing spans.
func WithContext(ctx context.Context) Option {
	return func(p *Progress) {
		p.ctx = ctx
	}
}

// WithLogger sets the logger used for lifecycle and error messages.
func WithLogger(log logr.Logger) Option {
	return func(p *Progress) {
		p.log = log
	}
}

// WithReporters adds reporters that receive every state update, in order.
func WithReporters(reporters ...Reporter) Option {
	return func(p *Progress) {
		p.reporters = append(p.reporters, reporters...)
	}
}

// WithCounter replaces the counter New would create for the selected
// transport.
func WithCounter(c counter.Counter) Option {
	return func(p *Progress) {
		p.counter = c
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Progress) {
		p.clock = clock
	}
}

// New validates cfg, selects the transport and returns a ready Progress.
//
// Nothing is created when cfg is invalid. With the file transport a new
// counter file is created in cfg.CounterDir unless a counter path was given,
// in which case the Progress attaches to it.
func New(cfg Config, opts ...Option) (*Progress, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Progress{
		cfg:      cfg,
		log:      logr.Discard(),
		clock:    time.Now,
		done:     make(chan struct{}),
		tornDown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ctx == nil {
		p.ctx = context.Background()
	}
	if len(p.reporters) == 0 {
		p.reporters = append(p.reporters, NewNoopReporter())
	}

	kind := resolveTransport(cfg)
	if p.counter == nil {
		c, err := newCounter(kind, cfg)
		if err != nil {
			return nil, err
		}
		p.counter = c
	}

	now := p.clock()
	p.state = State{
		Total:     cfg.Total,
		StartTime: now,
		Timestamp: now,
		Stage:     StageWaiting,
	}

	switch kind {
	case TransportFile:
		p.transport = newFileTransport(p.consumeFile, p.complete.Load)
	default:
		p.transport = newQueueTransport(p.ctx, cfg.Total, p.consumeQueued, p.complete.Load)
	}

	p.log.V(1).Info("progress started",
		"total", cfg.Total,
		"transport", kind,
		"counter", p.CounterPath(),
	)
	return p, nil
}

func newCounter(kind TransportKind, cfg Config) (counter.Counter, error) {
	if kind != TransportFile {
		return counter.NewMemory(), nil
	}
	if path := counterPath(cfg); path != "" {
		return counter.OpenFile(path)
	}
	return counter.CreateFile(cfg.CounterDir)
}

// ReportProgress records one completed unit of work. message is displayed
// while waiting; an empty message falls back to Config.WaitMessage.
//
// With the queue transport the call only enqueues the event. With the file
// transport the counter update and rendering happen before it returns.
func (p *Progress) ReportProgress(message string) error {
	return p.transport.Send(Event{
		Timestamp: p.clock(),
		Message:   message,
	})
}

// consumeQueued is run by the queue transport's consumer goroutine.
func (p *Progress) consumeQueued(event Event) {
	// The error is recorded by consume and surfaced through Err and Wait.
	_ = p.consume(event)
}

// consumeFile is run in the reporting goroutine by the file transport.
func (p *Progress) consumeFile(event Event) error {
	return p.consume(event)
}

func (p *Progress) consume(event Event) error {
	_, span := tracing.StartNewSpan(p.ctx, "progress.event",
		attribute.Int("total", p.cfg.Total),
		attribute.String("transport", string(p.transport.Kind())),
	)
	defer span.End()

	n, err := p.counter.IncrementAndRead()
	if err != nil {
		err = fmt.Errorf("unable to record progress: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "counter unavailable")
		p.fail(err)
		return err
	}
	span.SetAttributes(attribute.Int("completed", n))

	if n > p.cfg.Total {
		err := fmt.Errorf("%w: unit %d reported for %d tasks", ErrOverrun, n, p.cfg.Total)
		span.RecordError(err)
		span.SetStatus(codes.Error, "overrun")
		p.fail(err)
		return err
	}

	if !p.apply(event, n) {
		return nil
	}
	p.log.V(1).Info("progress complete", "total", p.cfg.Total)
	p.closeTransport()
	err = p.release()
	close(p.done)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// apply moves the state to n completed units and renders it. It reports
// whether this call entered StageComplete.
func (p *Progress) apply(event Event, n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	// With the file transport two in-process senders may apply their counter
	// values out of order; the newer value has already been rendered.
	if n <= p.state.Completed || p.state.Stage == StageComplete {
		p.log.V(2).Info("skipping stale progress value", "value", n, "completed", p.state.Completed)
		return false
	}

	p.state.Completed = n
	p.state.Timestamp = p.clock()
	entered := false
	if n == p.cfg.Total {
		p.state.Stage = StageComplete
		p.state.Message = p.expand(p.cfg.FinalMessage, n)
		entered = p.complete.CompareAndSwap(false, true)
	} else if event.Message != "" {
		p.state.Message = event.Message
	} else {
		p.state.Message = p.expand(p.cfg.WaitMessage, n)
	}

	p.log.V(2).Info("progress update",
		"completed", p.state.Completed,
		"total", p.state.Total,
		"percent", p.state.Percent(),
	)
	for _, reporter := range p.reporters {
		reporter.Report(p.state)
	}
	return entered
}

// expand fills the {{completed}}, {{total}} and {{percent}} placeholders of a
// configured message.
func (p *Progress) expand(tmpl string, completed int) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	out, err := mustache.Render(tmpl, map[string]interface{}{
		"completed": completed,
		"total":     p.cfg.Total,
		"percent":   100 * completed / p.cfg.Total,
	})
	if err != nil {
		p.log.Error(err, "unable to expand message template", "template", tmpl)
		return tmpl
	}
	return out
}

func (p *Progress) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	p.log.Error(err, "progress reporting failed")
}

// Teardown stops accepting reports, waits for queued reports to be applied
// and removes the durable counter if its value equals Config.Total.
//
// Teardown runs automatically on completion. Calling it again, or on a
// Progress that already completed, is a no-op.
func (p *Progress) Teardown() error {
	p.closeTransport()
	p.transport.Drain()
	return p.release()
}

func (p *Progress) closeTransport() {
	p.closeOnce.Do(func() {
		p.transport.Close()
	})
}

// release removes the counter at most once. It never waits on the consumer,
// so the consumer may call it while an owner is blocked in Teardown.
func (p *Progress) release() error {
	p.releaseMu.Lock()
	defer p.releaseMu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.teardownRuns.Add(1)
	defer close(p.tornDown)

	removed, err := p.counter.RemoveIfEqual(p.cfg.Total)
	if err != nil {
		err = fmt.Errorf("unable to release progress counter: %w", err)
		p.fail(err)
		return err
	}
	if err := p.counter.Close(); err != nil {
		p.log.Error(err, "unable to close progress counter")
	}
	p.log.V(1).Info("progress torn down", "counterRemoved", removed)
	return nil
}

// Wait blocks until the Progress completes or is torn down, or ctx is done,
// and returns the first error recorded while aggregating.
func (p *Progress) Wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-p.tornDown:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.Err()
}

// Done returns a channel that is closed when the Progress enters
// StageComplete.
func (p *Progress) Done() <-chan struct{} {
	return p.done
}

// State returns a snapshot of the current state.
func (p *Progress) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the first fatal error recorded, such as ErrOverrun or
// ErrStorageUnavailable.
func (p *Progress) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// TransportKind returns the transport selected at construction.
func (p *Progress) TransportKind() TransportKind {
	return p.transport.Kind()
}

// CounterPath returns the durable counter file shared with worker processes,
// or "" for an in-memory counter.
func (p *Progress) CounterPath() string {
	if f, ok := p.counter.(interface{ Path() string }); ok {
		return f.Path()
	}
	return ""
}

// Reported reads the number of units the counter has accounted, including
// units reported by other processes sharing a durable counter. Once a durable
// counter was removed the error wraps fs.ErrNotExist.
func (p *Progress) Reported() (int, error) {
	n, err := p.counter.Read()
	if err != nil {
		return 0, fmt.Errorf("unable to read progress counter: %w", err)
	}
	return n, nil
}

// Config returns the configuration the Progress was created with.
func (p *Progress) Config() Config {
	return p.cfg
}
