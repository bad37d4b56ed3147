package observer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
)

const (
	defaultBufferSize = 1024

	// sinkTimeout bounds one Handle call.
	sinkTimeout = 5 * time.Second
)

// Dispatcher queues events and delivers them to sinks in the background.
//
// Thread Safety:
//   - Observe is safe for concurrent use and never blocks.
//   - Sinks are called from a single goroutine, one event at a time.
type Dispatcher struct {
	sinks  []Sink
	logger *logging.Logger
	events chan Event

	mu      sync.RWMutex
	closed  bool
	started bool

	dropped   atomic.Uint64
	delivered atomic.Uint64

	done chan struct{}
}

// NewDispatcher creates a dispatcher with a buffer of bufferSize events.
// A non-positive size selects the default.
func NewDispatcher(logger *logging.Logger, bufferSize int, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With("component", "observer"),
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine. Sink calls carry the values of
// ctx but not its cancellation, so shutdown does not abort queued events;
// each call is bounded by its own timeout instead.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.closed {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go d.run(context.WithoutCancel(ctx))
}

// Observe queues e. When the buffer is full or the dispatcher is closed the
// event is dropped.
func (d *Dispatcher) Observe(e Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.events <- e:
	default:
		if d.dropped.Add(1)%100 == 1 {
			d.logger.Warn("observer buffer full, dropping events", "dropped_total", d.dropped.Load())
		}
	}
}

// Close stops accepting events and waits until queued events are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	close(d.events)
	d.mu.Unlock()

	if !started {
		// Drain synchronously so nothing queued before Start is lost.
		d.run(context.Background())
		return
	}
	<-d.done
}

// Dropped returns the number of events discarded so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Delivered returns the number of events handed to all sinks.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.events)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for e := range d.events {
		for _, s := range d.sinks {
			d.deliver(ctx, s, e)
		}
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer sink panic recovered",
				"sink", s.Name(),
				"operation", e.Operation,
				"panic", r,
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := s.Handle(ctx, e); err != nil {
		d.logger.Warn("observer sink failed",
			"sink", s.Name(),
			"operation", e.Operation,
			"collection", e.Collection,
			"error", err,
		)
	}
}
