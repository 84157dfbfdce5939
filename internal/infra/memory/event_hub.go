package memory

import (
	"context"
	"sync"

	"mcq-chat-service/internal/app"
)

// EventHub is an in-process implementation of app.EventBus.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan app.ThreadEvent]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[string]map[chan app.ThreadEvent]struct{})}
}

func (h *EventHub) Publish(_ context.Context, threadID string, ev app.ThreadEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[threadID] {
		select {
		case ch <- ev:
		default:
			// slow watcher: drop its oldest event rather than block the writer
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return nil
}

func (h *EventHub) Subscribe(_ context.Context, threadID string) (<-chan app.ThreadEvent, func(), error) {
	ch := make(chan app.ThreadEvent, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[threadID]
	if !ok {
		subs = make(map[chan app.ThreadEvent]struct{})
		h.subscribers[threadID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[threadID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, threadID)
		}
	}
	return ch, cancel, nil
}

// Watchers returns the number of live subscriptions on threadID.
func (h *EventHub) Watchers(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[threadID])
}
