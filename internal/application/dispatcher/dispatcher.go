package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/event"
)

// ErrClosed is returned by Dispatch after Close
var ErrClosed = errors.New("dispatcher is closed")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Dispatcher routes lifecycle events to subscribed handlers
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]namedHandler
	logger   Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*Dispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[event.Type][]namedHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers a named handler for one or more event types
func (d *Dispatcher) Subscribe(name string, handler Handler, types ...event.Type) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range types {
		d.handlers[t] = append(d.handlers[t], namedHandler{name: name, handler: handler})
		d.logInfo("Handler registered", "event_type", t, "handler_name", name)
	}
}

// HandlerCount returns the number of handlers subscribed to an event type
func (d *Dispatcher) HandlerCount(t event.Type) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[t])
}

// Dispatch runs every handler for the event in registration order and stops at the first error
func (d *Dispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	for _, h := range d.snapshot(evt.Type) {
		if err := d.safeExecute(ctx, evt, h); err != nil {
			d.logError("Handler error", "event_type", evt.Type, "event_id", evt.ID, "handler_name", h.name, "error", err)
			return fmt.Errorf("handler %s failed: %w", h.name, err)
		}
	}
	return nil
}

// Publish runs the handlers in background goroutines. Errors are logged, not returned.
func (d *Dispatcher) Publish(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logError("Cannot publish event, dispatcher is closed", "event_type", evt.Type, "event_id", evt.ID)
		return
	}

	// handlers outlive the request that raised the event
	ctx = context.WithoutCancel(ctx)

	for _, h := range d.snapshot(evt.Type) {
		d.wg.Add(1)
		go func(h namedHandler) {
			defer d.wg.Done()
			if err := d.safeExecute(ctx, evt, h); err != nil {
				d.logError("Async handler error", "event_type", evt.Type, "event_id", evt.ID, "handler_name", h.name, "error", err)
			}
		}(h)
	}
}

// Close stops accepting events and waits for running handlers
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

func (d *Dispatcher) snapshot(t event.Type) []namedHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]namedHandler(nil), d.handlers[t]...)
}

// safeExecute runs a handler with panic recovery
func (d *Dispatcher) safeExecute(ctx context.Context, evt *event.Event, h namedHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.handler(ctx, evt)
}

func (d *Dispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *Dispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}

var _ port.EventPublisher = (*Dispatcher)(nil)
