package app

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mcq-chat-service/internal/domain"
)

// KeyedMutex hands out one exclusive scope per key. Scopes for distinct keys
// never contend; entries are dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires key's scope, waiting at most timeout (zero waits until ctx is
// done). It fails with ctx.Err() when ctx ends first and with ErrBusy on
// timeout. The returned func releases the scope and is safe to call twice.
func (m *KeyedMutex) Lock(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := m.ref(key)
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		m.release(key, l)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.Error{Kind: domain.ErrBusy, ThreadID: key, Detail: "another action for this thread is in flight"}
	}
	return m.unlocker(key, l), nil
}

// TryLock acquires key's scope only if nobody holds it.
func (m *KeyedMutex) TryLock(key string) (func(), bool) {
	l := m.ref(key)
	if !l.sem.TryAcquire(1) {
		m.release(key, l)
		return nil, false
	}
	return m.unlocker(key, l), true
}

func (m *KeyedMutex) ref(key string) *keyedLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{sem: semaphore.NewWeighted(1)}
		m.locks[key] = l
	}
	l.refs++
	return l
}

func (m *KeyedMutex) unlocker(key string, l *keyedLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			m.release(key, l)
		})
	}
}

func (m *KeyedMutex) release(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// Len returns how many keys are currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
