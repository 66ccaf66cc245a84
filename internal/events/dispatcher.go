// internal/events/dispatcher.go
//
// In-process domain event dispatcher.
//
// Context
// -------
// Handlers are registered against an event `Kind` at startup.  `Publish`
// looks up the handler set for the event's kind, runs every handler on its
// own goroutine, and waits for all of them before returning.  When any
// handler fails (error or panic) Publish returns an error, even though the
// other handlers may already have completed; handlers are not
// transactional with respect to each other.
//
// No ordering is promised among handlers for one event.  Each handler sees
// the same immutable event value.
//
// Notes
// -----
// • Handler failures are logged and counted per kind.
// • Oxford commas, two spaces after periods.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/ome/internal/logger"
	"github.com/yanizio/ome/internal/metrics"
)

// Kind tags an event type in the registry.
type Kind string

// Event is implemented by every domain event.
type Event interface {
	EventKind() Kind
	EventID() uuid.UUID
	OccurredOn() time.Time
}

// Meta is embedded by concrete events.
type Meta struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurredOn"`
}

// NewMeta stamps a fresh id and the current time.
func NewMeta() Meta { return Meta{ID: uuid.New(), OccurredAt: time.Now().UTC()} }

func (m Meta) EventID() uuid.UUID    { return m.ID }
func (m Meta) OccurredOn() time.Time { return m.OccurredAt }

// Handler processes one event.
type Handler func(ctx context.Context, e Event) error

// Publisher is the consumer-side view of a Dispatcher.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Dispatcher is a typed handler registry.  Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewDispatcher returns an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind][]Handler)}
}

// Subscribe appends h to the handler set for k.
func (d *Dispatcher) Subscribe(k Kind, h Handler) {
	d.mu.Lock()
	d.handlers[k] = append(d.handlers[k], h)
	d.mu.Unlock()
}

// On registers a handler typed to the concrete event E.
func On[E Event](d *Dispatcher, k Kind, fn func(ctx context.Context, e E) error) {
	d.Subscribe(k, func(ctx context.Context, e Event) error {
		typed, ok := e.(E)
		if !ok {
			return fmt.Errorf("event %s: unexpected type %T", k, e)
		}
		return fn(ctx, typed)
	})
}

// Publish invokes every handler registered for e's kind and waits for all
// of them.  The first handler error is returned.
func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	kind := e.EventKind()

	d.mu.RLock()
	hs := append([]Handler(nil), d.handlers[kind]...)
	d.mu.RUnlock()
	if len(hs) == 0 {
		return nil
	}

	log := logger.FromContext(ctx)
	var g errgroup.Group
	for _, h := range hs {
		h := h
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panic: %v", r)
				}
				if err != nil {
					metrics.EventHandlerFailuresTotal.WithLabelValues(string(kind)).Inc()
					log.Errorw("event handler failed", "kind", kind, "event_id", e.EventID(), "err", err)
				}
			}()
			return h(ctx, e)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
