package app

import (
	"context"
	"slices"
	"time"

	"github.com/golang/glog"

	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/quiz"
	"mcq-chat-service/internal/transcript"
	"mcq-chat-service/internal/widget"
)

// ThreadRepository abstracts how thread records are stored (in-memory, Redis, etc).
// Implementations return copies; callers never hold store memory.
type ThreadRepository interface {
	// GetOrCreate returns the thread, creating it for ownerID if absent.
	GetOrCreate(ctx context.Context, threadID, ownerID string) (domain.ThreadRecord, error)
	// Get returns the thread or ErrNotFound.
	Get(ctx context.Context, threadID, ownerID string) (domain.ThreadRecord, error)
	// AppendAndSave appends entries and replaces the quiz state in one step.
	AppendAndSave(ctx context.Context, threadID string, entries []domain.TranscriptEntry, state *domain.QuizState) error
	// List returns ownerID's threads, newest first.
	List(ctx context.Context, ownerID string, page domain.PageRequest) (domain.Page[domain.ThreadSummary], error)
	// Delete evicts the thread and its quiz state.
	Delete(ctx context.Context, threadID, ownerID string) error
}

// DefaultLockTimeout bounds how long an action waits behind another action on the same thread.
const DefaultLockTimeout = 2 * time.Second

// ActionResult is what a caller needs to re-render after an accepted action.
type ActionResult struct {
	ThreadID        string                   `json:"threadId"`
	TranscriptDelta []domain.TranscriptEntry `json:"transcriptDelta"`
	Widget          *widget.Definition       `json:"widget,omitempty"`
	QuizState       *domain.QuizState        `json:"quizState,omitempty"`
}

// ThreadView is the read model of one thread.
type ThreadView struct {
	ThreadID  string                   `json:"threadId"`
	Title     string                   `json:"title,omitempty"`
	History   []domain.TranscriptEntry `json:"history"`
	QuizState *domain.QuizState        `json:"quizState,omitempty"`
	Widget    *widget.Definition       `json:"widget,omitempty"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

// ThreadService dispatches thread actions: it checks ownership, runs the quiz
// transition, records the transcript entry and persists the result while
// holding the thread's lock.
type ThreadService struct {
	threads     ThreadRepository
	bank        domain.QuestionBank
	converter   *transcript.Converter
	locks       *KeyedMutex
	lockTimeout time.Duration
	events      EventBus
}

// Option customises a ThreadService.
type Option func(*ThreadService)

// WithLockTimeout sets the bounded wait for a busy thread.
func WithLockTimeout(d time.Duration) Option {
	return func(s *ThreadService) { s.lockTimeout = d }
}

// WithConverter swaps the transcript converter (tests use a fixed clock).
func WithConverter(c *transcript.Converter) Option {
	return func(s *ThreadService) { s.converter = c }
}

func NewThreadService(threads ThreadRepository, bank domain.QuestionBank, opts ...Option) *ThreadService {
	s := &ThreadService{
		threads:     threads,
		bank:        bank,
		converter:   transcript.NewConverter(),
		locks:       NewKeyedMutex(),
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bank returns the question bank the service renders against.
func (s *ThreadService) Bank() domain.QuestionBank { return s.bank }

// HandleAction applies action to threadID on behalf of userID.
func (s *ThreadService) HandleAction(ctx context.Context, userID, threadID string, action domain.Action) (ActionResult, error) {
	switch action.(type) {
	case domain.Message, domain.QuizAction:
	default:
		return ActionResult{}, &domain.Error{Kind: domain.ErrUnsupportedAction, ThreadID: threadID, Detail: "no action given"}
	}
	if userID == "" {
		return ActionResult{}, &domain.Error{Kind: domain.ErrForbidden, ThreadID: threadID, Detail: "missing user identity"}
	}

	unlock, err := s.locks.Lock(ctx, threadID, s.lockTimeout)
	if err != nil {
		glog.V(2).Infof("thread %s: %s not applied: %v", threadID, action.Name(), err)
		return ActionResult{}, err
	}
	defer unlock()
	// Past this point the transition runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	rec, err := s.threads.GetOrCreate(ctx, threadID, userID)
	if err != nil {
		return ActionResult{}, domain.WithThread(err, threadID)
	}

	switch a := action.(type) {
	case domain.Message:
		return s.appendMessage(ctx, rec, a)
	case domain.QuizAction:
		return s.applyQuizAction(ctx, rec, a)
	}
	return ActionResult{}, &domain.Error{Kind: domain.ErrUnsupportedAction, ThreadID: threadID}
}

func (s *ThreadService) appendMessage(ctx context.Context, rec domain.ThreadRecord, msg domain.Message) (ActionResult, error) {
	entry := s.converter.FromMessage(rec.ThreadID, msg)
	if err := s.threads.AppendAndSave(ctx, rec.ThreadID, []domain.TranscriptEntry{entry}, rec.Quiz); err != nil {
		glog.Errorf("thread %s: save message: %v", rec.ThreadID, err)
		return ActionResult{}, err
	}
	glog.V(2).Infof("thread %s: message appended", rec.ThreadID)
	res := ActionResult{
		ThreadID:        rec.ThreadID,
		TranscriptDelta: []domain.TranscriptEntry{entry},
		QuizState:       rec.Quiz,
	}
	s.publish(ctx, rec.OwnerID, res)
	return res, nil
}

func (s *ThreadService) applyQuizAction(ctx context.Context, rec domain.ThreadRecord, action domain.QuizAction) (ActionResult, error) {
	state := domain.NewQuizState()
	if rec.Quiz != nil {
		state = rec.Quiz.Clone()
	}

	next, outcome, err := quiz.Apply(s.bank, state, action)
	if err != nil {
		glog.V(2).Infof("thread %s: %s rejected: %v", rec.ThreadID, action.Name(), err)
		return ActionResult{}, domain.WithThread(err, rec.ThreadID)
	}

	entry := s.converter.FromOutcome(rec.ThreadID, s.bank, outcome)
	if err := s.threads.AppendAndSave(ctx, rec.ThreadID, []domain.TranscriptEntry{entry}, &next); err != nil {
		glog.Errorf("thread %s: save %s: %v", rec.ThreadID, action.Name(), err)
		return ActionResult{}, err
	}
	glog.V(2).Infof("thread %s: %s", rec.ThreadID, entry.Text)

	def := widget.Render(s.bank, next)
	res := ActionResult{
		ThreadID:        rec.ThreadID,
		TranscriptDelta: []domain.TranscriptEntry{entry},
		Widget:          &def,
		QuizState:       &next,
	}
	s.publish(ctx, rec.OwnerID, res)
	return res, nil
}

// GetThread returns userID's view of threadID.
func (s *ThreadService) GetThread(ctx context.Context, userID, threadID string) (ThreadView, error) {
	rec, err := s.threads.Get(ctx, threadID, userID)
	if err != nil {
		return ThreadView{}, domain.WithThread(err, threadID)
	}
	view := ThreadView{
		ThreadID:  rec.ThreadID,
		Title:     rec.Title,
		History:   rec.History,
		QuizState: rec.Quiz,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if view.History == nil {
		view.History = []domain.TranscriptEntry{}
	}
	if rec.Quiz != nil {
		def := widget.Render(s.bank, *rec.Quiz)
		view.Widget = &def
	}
	return view, nil
}

// ThreadItems pages through threadID's history.
func (s *ThreadService) ThreadItems(ctx context.Context, userID, threadID string, page domain.PageRequest) (domain.Page[domain.TranscriptEntry], error) {
	rec, err := s.threads.Get(ctx, threadID, userID)
	if err != nil {
		return domain.Page[domain.TranscriptEntry]{}, domain.WithThread(err, threadID)
	}
	items := rec.History
	if page.Order == domain.OrderDesc {
		items = slices.Clone(items)
		slices.Reverse(items)
	}
	return domain.Paginate(items, page, func(e domain.TranscriptEntry) string { return e.ID }), nil
}

// ListThreads returns userID's threads, newest first.
func (s *ThreadService) ListThreads(ctx context.Context, userID string, page domain.PageRequest) (domain.Page[domain.ThreadSummary], error) {
	return s.threads.List(ctx, userID, page)
}

// DeleteThread evicts threadID and its quiz state.
func (s *ThreadService) DeleteThread(ctx context.Context, userID, threadID string) error {
	unlock, err := s.locks.Lock(ctx, threadID, s.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.threads.Delete(context.WithoutCancel(ctx), threadID, userID); err != nil {
		return domain.WithThread(err, threadID)
	}
	glog.V(2).Infof("thread %s: deleted by %s", threadID, userID)
	return nil
}

// IdleEvictor is a store that drops idle threads itself (the memory backend).
type IdleEvictor interface {
	IdleThreads(before time.Time) []string
	EvictIfIdle(threadID string, before time.Time) bool
}

// EvictIdle drops threads not updated since before. Threads with an action
// in flight are skipped and reconsidered on the next sweep.
func (s *ThreadService) EvictIdle(store IdleEvictor, before time.Time) int {
	evicted := 0
	for _, id := range store.IdleThreads(before) {
		unlock, ok := s.locks.TryLock(id)
		if !ok {
			continue
		}
		if store.EvictIfIdle(id, before) {
			evicted++
		}
		unlock()
	}
	return evicted
}
