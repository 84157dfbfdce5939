package memory

import (
	"context"
	"testing"

	"mcq-chat-service/internal/app"
)

func TestEventHubDeliversToThreadWatchers(t *testing.T) {
	hub := NewEventHub()
	ctx := context.Background()

	a, cancelA, _ := hub.Subscribe(ctx, "t1")
	other, cancelOther, _ := hub.Subscribe(ctx, "t2")
	defer cancelOther()

	if err := hub.Publish(ctx, "t1", app.ThreadEvent{OwnerID: "u1", Result: app.ActionResult{ThreadID: "t1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := <-a
	if ev.OwnerID != "u1" || ev.Result.ThreadID != "t1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	select {
	case ev := <-other:
		t.Fatalf("watcher of t2 got %+v", ev)
	default:
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if n := hub.Watchers("t1"); n != 0 {
		t.Fatalf("expected no watchers, got %d", n)
	}
}

func TestEventHubDropsOldestForSlowWatcher(t *testing.T) {
	hub := NewEventHub()
	ctx := context.Background()
	ch, cancel, _ := hub.Subscribe(ctx, "t1")
	defer cancel()

	for i := 0; i < 20; i++ {
		_ = hub.Publish(ctx, "t1", app.ThreadEvent{OwnerID: "u1"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer, got %d", len(ch))
	}
}
