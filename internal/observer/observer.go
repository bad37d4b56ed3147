package observer

import "context"

// Observer receives events synchronously. Implementations must not block.
type Observer interface {
	Observe(e Event)
}

// Func adapts a function to Observer.
type Func func(e Event)

// Observe calls f(e).
func (f Func) Observe(e Event) { f(e) }

// Multi fans an event out to several observers in order.
type Multi []Observer

// Observe delivers e to every non-nil observer.
func (m Multi) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// Nop discards events.
type Nop struct{}

// Observe does nothing.
func (Nop) Observe(Event) {}

// Sink handles events delivered by a Dispatcher. Handle may block up to
// the deadline on ctx.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}
