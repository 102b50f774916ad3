package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/soyeahso/sipdash/internal/logging"
	"github.com/soyeahso/sipdash/internal/metrics"
)

// Handler handles one event. Returning an error logs the failure but does
// not stop processing.
type Handler func(ctx context.Context, evt Event) error

// Dispatcher maps event kinds to ordered handler lists.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind][]namedHandler
	log      *logging.Logger
	metrics  *metrics.Metrics
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewDispatcher creates an empty dispatcher. m may be nil.
func NewDispatcher(log *logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Kind][]namedHandler),
		log:      log.Sub("events"),
		metrics:  m,
	}
}

// On appends a handler for kind. Registering the same handler twice makes
// it run twice. The name identifies the handler in logs and in Off.
func (d *Dispatcher) On(kind Kind, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], namedHandler{name: name, handler: handler})
	d.log.Debug().Str("event", string(kind)).Str("handler", name).Msg("handler registered")
}

// Off removes all handlers with the given name from kind.
func (d *Dispatcher) Off(kind Kind, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.handlers[kind]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	d.handlers[kind] = filtered
}

// Dispatch runs every handler registered for evt.Kind() synchronously, in
// registration order. A handler that errors or panics is logged and the
// remaining handlers still run. Returns the number of failed handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) int {
	kind := evt.Kind()

	d.mu.RLock()
	handlers := make([]namedHandler, len(d.handlers[kind]))
	copy(handlers, d.handlers[kind])
	d.mu.RUnlock()

	failed := 0
	for _, h := range handlers {
		if err := d.invoke(ctx, h, evt); err != nil {
			failed++
			d.metrics.DispatchFailure(string(kind))
			d.log.Warn().
				Err(err).
				Str("event", string(kind)).
				Str("handler", h.name).
				Msg("event handler error")
		}
	}
	return failed
}

func (d *Dispatcher) invoke(ctx context.Context, h namedHandler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Debug().Str("stack", string(debug.Stack())).Msg("handler panic stack")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.handler(ctx, evt)
}

// Count returns the number of handlers registered for kind.
func (d *Dispatcher) Count(kind Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

// Kinds returns the kinds that have at least one handler registered.
func (d *Dispatcher) Kinds() []Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]Kind, 0, len(d.handlers))
	for kind, handlers := range d.handlers {
		if len(handlers) > 0 {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Subscribe registers a handler typed to one event payload. The kind is
// taken from E.
func Subscribe[E Event](d *Dispatcher, name string, fn func(ctx context.Context, evt E) error) {
	var zero E
	d.On(zero.Kind(), name, func(ctx context.Context, evt Event) error {
		e, ok := evt.(E)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt, zero.Kind())
		}
		return fn(ctx, e)
	})
}
