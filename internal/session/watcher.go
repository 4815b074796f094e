// internal/session/watcher.go
package session

import (
	"context"
	"sync"

	"clinicsync/internal/logger"
	"clinicsync/internal/model"
)

// Handler receives the session payload of one auth transition.
type Handler func(model.Session)

// Watcher bridges a Source to any number of handlers. All events are
// delivered from a single dispatch goroutine, one handler at a time, in the
// order the source emitted them. Handlers must return quickly; anything slow
// (a fetch cycle) belongs in a goroutine the handler launches itself.
type Watcher struct {
	source Source

	mu       sync.Mutex
	handlers []Handler

	cancel func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewWatcher(source Source) *Watcher {
	return &Watcher{
		source: source,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// OnTransition registers a handler. Registration after Start is allowed; the
// handler sees only events emitted after registration.
func (w *Watcher) OnTransition(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start queries the current session once (so a process started mid-session
// still loads data) and then begins dispatching change events.
func (w *Watcher) Start(ctx context.Context) error {
	events, cancel := w.source.Subscribe()
	w.cancel = cancel

	current, err := w.source.GetSession(ctx)
	if err != nil {
		logger.LogWarn("Initial session check failed, starting signed out: %v", err)
		current = model.Session{}
	}
	if current.Present {
		w.dispatch(current)
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				w.dispatch(ev.Session)
			case <-w.quit:
				return
			}
		}
	}()

	return nil
}

// Stop unsubscribes from the source and waits for the dispatch loop to end.
// The quit channel ends the loop directly; cancelling the subscription only
// detaches it, since the source owns its channels.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		if w.cancel == nil {
			return
		}
		close(w.quit)
		w.cancel()
		<-w.done
	})
}

func (w *Watcher) dispatch(s model.Session) {
	w.mu.Lock()
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}
