package app

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"mcq-chat-service/internal/domain"
)

// ThreadEvent is an accepted action as seen by watchers of the thread.
type ThreadEvent struct {
	OwnerID string       `json:"ownerId"`
	Result  ActionResult `json:"result"`
}

// EventBus fans accepted actions out to watchers of a thread (in-process or Redis pub/sub).
type EventBus interface {
	Publish(ctx context.Context, threadID string, ev ThreadEvent) error
	// Subscribe returns a channel of events for threadID. The caller must
	// invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, threadID string) (<-chan ThreadEvent, func(), error)
}

// WithEvents publishes every accepted action on bus.
func WithEvents(bus EventBus) Option {
	return func(s *ThreadService) { s.events = bus }
}

func (s *ThreadService) publish(ctx context.Context, ownerID string, res ActionResult) {
	if s.events == nil {
		return
	}
	// watchers are best effort; the action is already committed
	if err := s.events.Publish(ctx, res.ThreadID, ThreadEvent{OwnerID: ownerID, Result: res}); err != nil {
		glog.Warningf("thread %s: publish: %v", res.ThreadID, err)
	}
}

// Watch subscribes userID to accepted actions on threadID. A thread that does
// not exist yet may be watched; events for it are delivered only once userID owns it.
func (s *ThreadService) Watch(ctx context.Context, userID, threadID string) (<-chan ActionResult, func(), error) {
	if userID == "" {
		return nil, nil, &domain.Error{Kind: domain.ErrForbidden, ThreadID: threadID, Detail: "missing user identity"}
	}
	if s.events == nil {
		return nil, nil, &domain.Error{Kind: domain.ErrUnsupportedAction, ThreadID: threadID, Detail: "thread events are disabled"}
	}
	if _, err := s.threads.Get(ctx, threadID, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, domain.WithThread(err, threadID)
	}

	events, cancel, err := s.events.Subscribe(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan ActionResult, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.OwnerID != userID {
					continue
				}
				select {
				case out <- ev.Result:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
	return out, stop, nil
}
