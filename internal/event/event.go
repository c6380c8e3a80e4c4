package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 4096
	defaultTimeout  = 15 * time.Second
)

// Event is anything the engine announces to the outside: room lifecycle,
// question transitions, reveals, sprint progress.
type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is the in-memory event bus between the engine and the transport
// layer. Handlers run on their own goroutines, bounded by a shared
// semaphore, so publishing from inside a request handler never blocks on a
// slow subscriber.
type Bus struct {
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates a bus. Callers should Stop it on shutdown to drain
// in-flight handlers.
func NewBus() *Bus {
	return &Bus{
		sem:      make(chan struct{}, defaultPoolSize),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers h for every published event with the given name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish dispatches e to all subscribers of its name. Dispatch is
// asynchronous; a handler error or panic is logged, never propagated to
// the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.sem <- struct{}{}

	go func() {
		// Handlers outlive the request that published the event.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.sem
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all in-flight handlers to finish.
func (b *Bus) Stop() {
	b.wg.Wait()
}
