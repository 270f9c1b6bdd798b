package progress

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Transport delivers worker events to the aggregator.
type Transport interface {
	// Kind reports which strategy this transport implements.
	Kind() TransportKind

	// Send hands one event to the aggregator. It never blocks beyond the
	// transport's critical section.
	Send(event Event) error

	// Close stops accepting events. It is idempotent and does not wait for
	// in-flight events.
	Close()

	// Drain blocks until every accepted event was consumed.
	Drain()
}

// resolveTransport makes the one-time strategy decision for a Progress.
func resolveTransport(cfg Config) TransportKind {
	switch cfg.Transport {
	case TransportQueue, TransportFile:
		return cfg.Transport
	}
	if counterPath(cfg) != "" {
		return TransportFile
	}
	return TransportQueue
}

func counterPath(cfg Config) string {
	if cfg.CounterPath != "" {
		return cfg.CounterPath
	}
	return os.Getenv(EnvCounterFile)
}

// queueTransport appends events to a buffered channel drained by a single
// consumer goroutine.
type queueTransport struct {
	events  chan Event
	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}

	consume    func(Event)
	isComplete func() bool
}

// newQueueTransport starts the consumer goroutine. The buffer holds size
// events, so a send that finds it full is necessarily an overrun.
func newQueueTransport(ctx context.Context, size int, consume func(Event), isComplete func() bool) *queueTransport {
	q := &queueTransport{
		events:     make(chan Event, size),
		stopped:    make(chan struct{}),
		consume:    consume,
		isComplete: isComplete,
	}
	go q.run(ctx)
	return q
}

func (q *queueTransport) Kind() TransportKind {
	return TransportQueue
}

func (q *queueTransport) Send(event Event) error {
	// Hold the read lock during the send so Close cannot close the channel
	// underneath it.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		if q.isComplete() {
			return fmt.Errorf("%w: progress already complete", ErrOverrun)
		}
		return ErrClosed
	}

	select {
	case q.events <- event:
		return nil
	default:
		return fmt.Errorf("%w: %d units already pending", ErrOverrun, cap(q.events))
	}
}

func (q *queueTransport) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}

func (q *queueTransport) Drain() {
	<-q.stopped
}

// run is the only consumer of the channel, so events are applied strictly one
// at a time.
func (q *queueTransport) run(ctx context.Context) {
	defer close(q.stopped)
	for {
		select {
		case event, ok := <-q.events:
			if !ok {
				return
			}
			q.consume(event)
		case <-ctx.Done():
			return
		}
	}
}

// fileTransport applies each event in the sending goroutine after the durable
// counter was incremented.
type fileTransport struct {
	mu     sync.RWMutex
	closed bool

	consume    func(Event) error
	isComplete func() bool
}

func newFileTransport(consume func(Event) error, isComplete func() bool) *fileTransport {
	return &fileTransport{
		consume:    consume,
		isComplete: isComplete,
	}
}

func (f *fileTransport) Kind() TransportKind {
	return TransportFile
}

func (f *fileTransport) Send(event Event) error {
	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		if f.isComplete() {
			return fmt.Errorf("%w: progress already complete", ErrOverrun)
		}
		return ErrClosed
	}
	return f.consume(event)
}

func (f *fileTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Drain has nothing to wait for: every event is consumed inside Send.
func (f *fileTransport) Drain() {}
