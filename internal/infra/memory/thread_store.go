package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/transcript"
)

// ThreadStore is an in-memory implementation of app.ThreadRepository.
// Records never leave the store by reference.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*domain.ThreadRecord
	now     func() time.Time
	// historyLimit caps each thread's history, oldest entries first out; 0 keeps everything.
	historyLimit int
}

func NewThreadStore() *ThreadStore {
	return NewThreadStoreWithClock(time.Now)
}

// NewThreadStoreWithClock allows deterministic timestamps in tests.
func NewThreadStoreWithClock(now func() time.Time) *ThreadStore {
	return &ThreadStore{
		threads: make(map[string]*domain.ThreadRecord),
		now:     now,
	}
}

// LimitHistory keeps at most n entries per thread (n <= 0 keeps everything).
func (s *ThreadStore) LimitHistory(n int) *ThreadStore {
	s.historyLimit = n
	return s
}

func (s *ThreadStore) GetOrCreate(_ context.Context, threadID, ownerID string) (domain.ThreadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.threads[threadID]; ok {
		if rec.OwnerID != ownerID {
			return domain.ThreadRecord{}, forbidden(threadID)
		}
		return rec.Clone(), nil
	}
	now := s.now().UTC()
	rec := &domain.ThreadRecord{
		ThreadID:  threadID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threads[threadID] = rec
	return rec.Clone(), nil
}

func (s *ThreadStore) Get(_ context.Context, threadID, ownerID string) (domain.ThreadRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookupLocked(threadID, ownerID)
	if err != nil {
		return domain.ThreadRecord{}, err
	}
	return rec.Clone(), nil
}

func (s *ThreadStore) AppendAndSave(_ context.Context, threadID string, entries []domain.TranscriptEntry, state *domain.QuizState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return &domain.Error{Kind: domain.ErrNotFound, ThreadID: threadID}
	}
	// Build the replacement first so the stored record is swapped in one assignment.
	next := rec.Clone()
	next.History = transcript.Merge(rec.History, entries)
	if s.historyLimit > 0 && len(next.History) > s.historyLimit {
		next.History = append([]domain.TranscriptEntry(nil), next.History[len(next.History)-s.historyLimit:]...)
	}
	if next.Title == "" {
		next.Title = transcript.TitleFrom(entries)
	}
	if state != nil {
		q := state.Clone()
		next.Quiz = &q
	} else {
		next.Quiz = nil
	}
	next.UpdatedAt = s.now().UTC()
	s.threads[threadID] = &next
	return nil
}

func (s *ThreadStore) List(_ context.Context, ownerID string, page domain.PageRequest) (domain.Page[domain.ThreadSummary], error) {
	s.mu.RLock()
	summaries := make([]domain.ThreadSummary, 0)
	for _, rec := range s.threads {
		if rec.OwnerID == ownerID {
			summaries = append(summaries, rec.Summary())
		}
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ThreadID < summaries[j].ThreadID
	})
	return domain.Paginate(summaries, page, func(t domain.ThreadSummary) string { return t.ThreadID }), nil
}

func (s *ThreadStore) Delete(_ context.Context, threadID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookupLocked(threadID, ownerID); err != nil {
		return err
	}
	delete(s.threads, threadID)
	return nil
}

// IdleThreads lists threads not updated since before.
func (s *ThreadStore) IdleThreads(before time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, rec := range s.threads {
		if rec.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids
}

// EvictIfIdle drops threadID if it is still not updated since before.
func (s *ThreadStore) EvictIfIdle(threadID string, before time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.threads[threadID]
	if !ok || !rec.UpdatedAt.Before(before) {
		return false
	}
	delete(s.threads, threadID)
	return true
}

// Len reports how many threads are held.
func (s *ThreadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *ThreadStore) lookupLocked(threadID, ownerID string) (*domain.ThreadRecord, error) {
	rec, ok := s.threads[threadID]
	if !ok {
		return nil, &domain.Error{Kind: domain.ErrNotFound, ThreadID: threadID}
	}
	if rec.OwnerID != ownerID {
		return nil, forbidden(threadID)
	}
	return rec, nil
}

func forbidden(threadID string) error {
	return &domain.Error{Kind: domain.ErrForbidden, ThreadID: threadID, Detail: "thread belongs to another user"}
}
