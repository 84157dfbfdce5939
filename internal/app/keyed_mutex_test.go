package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mcq-chat-service/internal/domain"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "t1", 0)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if m.Len() != 0 {
		t.Fatalf("expected keys to be released, got %d", m.Len())
	}
}

func TestKeyedMutexDistinctKeysDoNotContend(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "a", time.Second)
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()
	unlockB, err := m.Lock(context.Background(), "b", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestKeyedMutexBusyAfterTimeout(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "t1", time.Second)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	_, err = m.Lock(context.Background(), "t1", 20*time.Millisecond)
	if !errors.Is(err, domain.ErrBusy) || !domain.Retryable(err) {
		t.Fatalf("expected retryable busy, got %v", err)
	}
	unlock()
	unlock()
	if m.Len() != 0 {
		t.Fatalf("expected no keys, got %d", m.Len())
	}
}

func TestKeyedMutexCanceledContext(t *testing.T) {
	m := NewKeyedMutex()
	unlock, _ := m.Lock(context.Background(), "t1", 0)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := m.Lock(ctx, "t1", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestKeyedMutexParentDeadlineIsNotBusy(t *testing.T) {
	m := NewKeyedMutex()
	unlock, _ := m.Lock(context.Background(), "t1", 0)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Lock(ctx, "t1", time.Second)
	if !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected the caller's deadline, got %v", err)
	}
}

func TestKeyedMutexTryLock(t *testing.T) {
	m := NewKeyedMutex()
	unlock, ok := m.TryLock("t1")
	if !ok {
		t.Fatalf("expected free key to lock")
	}
	if _, ok := m.TryLock("t1"); ok {
		t.Fatalf("expected held key to refuse")
	}
	unlock()
	if m.Len() != 0 {
		t.Fatalf("expected keys released, got %d", m.Len())
	}
	again, ok := m.TryLock("t1")
	if !ok {
		t.Fatalf("expected key free after unlock")
	}
	again()
}
