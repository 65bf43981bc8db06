package cdp

import (
	"context"
	"encoding/json"
	"sync"
)

// waiterBacklog bounds how many undelivered events a single waiter may
// hold; beyond that the oldest is dropped.
const waiterBacklog = 16

// Event is an unsolicited protocol message, identified by method name.
type Event struct {
	Method string
	Params json.RawMessage
}

// EventWaiter receives events for one method. It behaves like a latch: an
// event arriving after registration but before Wait is retained, so
// "already fired" and "fires during the wait" are indistinguishable to the
// caller.
type EventWaiter struct {
	method string
	ch     chan Event
	hub    *eventHub

	once sync.Once
}

// Wait blocks until a matching event, context cancellation, or hub
// shutdown. Shutdown yields ErrConnectionClosed.
func (w *EventWaiter) Wait(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-w.ch:
		if !ok {
			return Event{}, ErrConnectionClosed
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-w.hub.done:
		// Drain an event that may have been delivered before shutdown.
		select {
		case ev, ok := <-w.ch:
			if ok {
				return ev, nil
			}
		default:
		}
		return Event{}, ErrConnectionClosed
	}
}

// Cancel unregisters the waiter. Safe to call more than once.
func (w *EventWaiter) Cancel() {
	w.once.Do(func() {
		w.hub.remove(w)
	})
}

// eventHub fans inbound events out to interested waiters. Events nobody
// waits for are dropped.
type eventHub struct {
	mu      sync.Mutex
	waiters map[string][]*EventWaiter
	done    chan struct{}
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{
		waiters: make(map[string][]*EventWaiter),
		done:    make(chan struct{}),
	}
}

// waitFor registers interest in a method. Register before issuing the
// command whose side effect fires the event, or the event can be missed.
func (h *eventHub) waitFor(method string) *EventWaiter {
	w := &EventWaiter{
		method: method,
		ch:     make(chan Event, waiterBacklog),
		hub:    h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.waiters[method] = append(h.waiters[method], w)
	}
	return w
}

func (h *eventHub) remove(w *EventWaiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws := h.waiters[w.method]
	for i, cand := range ws {
		if cand == w {
			h.waiters[w.method] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
}

// publish delivers the event to every waiter registered for its method.
// A waiter at backlog capacity loses its oldest undelivered event.
func (h *eventHub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.waiters[ev.Method] {
		for {
			select {
			case w.ch <- ev:
			default:
				select {
				case <-w.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// close releases every current and future waiter.
func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	h.waiters = make(map[string][]*EventWaiter)
}
