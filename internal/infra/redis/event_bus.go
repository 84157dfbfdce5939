package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"mcq-chat-service/internal/app"
)

// EventBus implements app.EventBus over Redis pub/sub so watchers connected
// to any instance see actions accepted on another.
type EventBus struct {
	client *redis.Client
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

func (b *EventBus) Publish(ctx context.Context, threadID string, ev app.ThreadEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode thread event")
	}
	return errors.Wrapf(b.client.Publish(ctx, channel(threadID), raw).Err(), "publish %s", threadID)
}

func (b *EventBus) Subscribe(ctx context.Context, threadID string) (<-chan app.ThreadEvent, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel(threadID))
	// wait for the subscription so events published after return are not missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, errors.Wrapf(err, "subscribe %s", threadID)
	}

	out := make(chan app.ThreadEvent, 8)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev app.ThreadEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				glog.Warningf("thread %s: bad event: %v", threadID, err)
				continue
			}
			out <- ev
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = pubsub.Close()
			// unblock the forwarder if nobody is reading
			for range out {
			}
		})
	}
	return out, cancel, nil
}

func channel(threadID string) string {
	return "thread:" + threadID + ":events"
}
