// Package eventbus connects the monitor's producers — the sample decoders,
// the link supervisor, the session recorder — to its consumers: the TUI and
// the export scheduler.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"polarmon/internal/domain"
)

// Bus is an in-process, goroutine-safe event bus. Handlers run on their own
// goroutines so a slow TUI frame never stalls a notification callback.
type Bus struct {
	mu     sync.RWMutex
	byType map[domain.EventType]map[uint64]domain.EventHandler
	all    map[uint64]domain.EventHandler

	nextID   atomic.Uint64
	log      *slog.Logger
	inflight sync.WaitGroup
	closed   atomic.Bool
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(log *slog.Logger) *Bus {
	return &Bus{
		byType: make(map[domain.EventType]map[uint64]domain.EventHandler),
		all:    make(map[uint64]domain.EventHandler),
		log:    log,
	}
}

// Publish fans out an event to its typed subscribers and to all-event
// subscribers. Panicking handlers are recovered and logged.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	handlers := make([]domain.EventHandler, 0, len(b.byType[event.Type])+len(b.all))
	for _, h := range b.byType[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range b.all {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, event, h)
	}
}

func (b *Bus) dispatch(ctx context.Context, event domain.Event, h domain.EventHandler) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("event handler panicked",
					"event", string(event.Type),
					"panic", r,
				)
			}
		}()
		h(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(t domain.EventType, h domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	if b.byType[t] == nil {
		b.byType[t] = make(map[uint64]domain.EventHandler)
	}
	b.byType[t][id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.byType[t], id)
		b.mu.Unlock()
	}
}

// SubscribeAll registers a handler for every event and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(h domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.all[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.all, id)
		b.mu.Unlock()
	}
}

// Close rejects new publishes and waits for in-flight handlers to finish.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.inflight.Wait()
}
