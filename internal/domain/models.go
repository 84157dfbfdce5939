package domain

import (
	"fmt"
	"time"
)

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID                 string   `json:"id" yaml:"id"`
	Prompt             string   `json:"prompt" yaml:"prompt"`
	Options            []string `json:"options" yaml:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex" yaml:"correct_option_index"`
	Hint               string   `json:"hint,omitempty" yaml:"hint,omitempty"`
	Explanation        string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Validate checks the option count and the correct option index.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question has no id")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s: need at least 2 options, got %d", q.ID, len(q.Options))
	}
	if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
		return fmt.Errorf("question %s: correct option %d out of range", q.ID, q.CorrectOptionIndex)
	}
	return nil
}

// QuestionBank is the ordered, read-only set of questions shared by every thread.
type QuestionBank struct {
	questions []Question
}

// NewQuestionBank validates and copies questions into a bank.
func NewQuestionBank(questions []Question) (QuestionBank, error) {
	if len(questions) == 0 {
		return QuestionBank{}, ErrEmptyBank
	}
	seen := make(map[string]struct{}, len(questions))
	copied := make([]Question, 0, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return QuestionBank{}, err
		}
		if _, dup := seen[q.ID]; dup {
			return QuestionBank{}, fmt.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}
		q.Options = append([]string(nil), q.Options...)
		copied = append(copied, q)
	}
	return QuestionBank{questions: copied}, nil
}

// MustQuestionBank is NewQuestionBank for static data known to be valid.
func MustQuestionBank(questions []Question) QuestionBank {
	bank, err := NewQuestionBank(questions)
	if err != nil {
		panic(err)
	}
	return bank
}

// Len returns N, the number of questions.
func (b QuestionBank) Len() int { return len(b.questions) }

// At returns the question at index i.
func (b QuestionBank) At(i int) (Question, bool) {
	if i < 0 || i >= len(b.questions) {
		return Question{}, false
	}
	return b.questions[i], true
}

// Questions returns a copy of the bank contents in order.
func (b QuestionBank) Questions() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// QuizStatus is the lifecycle phase of a quiz.
type QuizStatus string

const (
	StatusInProgress QuizStatus = "in_progress"
	StatusFinished   QuizStatus = "finished"
)

// QuizState tracks one thread's progress through the bank. It is a value:
// transitions return a new QuizState and never modify the receiver.
type QuizState struct {
	CurrentIndex        int        `json:"currentIndex"`
	SelectedOptionIndex *int       `json:"selectedOptionIndex,omitempty"`
	AnsweredCorrectly   *bool      `json:"answeredCorrectly,omitempty"`
	Score               int        `json:"score"`
	Status              QuizStatus `json:"status"`
	// Scored is set once the current question has contributed its point.
	Scored bool `json:"scored,omitempty"`
}

// NewQuizState returns the state of a quiz nobody has touched yet.
func NewQuizState() QuizState {
	return QuizState{Status: StatusInProgress}
}

// Finished reports whether the quiz accepts no further actions.
func (s QuizState) Finished() bool { return s.Status == StatusFinished }

// HasSelection reports whether an answer is submitted for the current question.
func (s QuizState) HasSelection() bool { return s.SelectedOptionIndex != nil }

// Attempted is the number of questions that may have contributed to the score.
func (s QuizState) Attempted() int {
	if s.Scored && !s.Finished() {
		return s.CurrentIndex + 1
	}
	return s.CurrentIndex
}

// Clone returns a copy that shares no pointers with s.
func (s QuizState) Clone() QuizState {
	out := s
	if s.SelectedOptionIndex != nil {
		v := *s.SelectedOptionIndex
		out.SelectedOptionIndex = &v
	}
	if s.AnsweredCorrectly != nil {
		v := *s.AnsweredCorrectly
		out.AnsweredCorrectly = &v
	}
	return out
}

// EntryKind classifies transcript entries.
type EntryKind string

const (
	EntryUserMessage      EntryKind = "user_message"
	EntryAssistantMessage EntryKind = "assistant_message"
	EntryQuizAction       EntryKind = "quiz_action"
	EntryWidgetSnapshot   EntryKind = "widget_snapshot"
)

// TranscriptEntry is one immutable record in a thread's history.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Kind      EntryKind `json:"kind"`
	Action    string    `json:"action,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadRecord is everything the store keeps about one thread.
type ThreadRecord struct {
	ThreadID  string            `json:"threadId"`
	OwnerID   string            `json:"ownerId"`
	Title     string            `json:"title,omitempty"`
	History   []TranscriptEntry `json:"history"`
	Quiz      *QuizState        `json:"quiz,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Clone deep-copies the record so callers never alias store memory.
func (r ThreadRecord) Clone() ThreadRecord {
	out := r
	out.History = append([]TranscriptEntry(nil), r.History...)
	if r.Quiz != nil {
		q := r.Quiz.Clone()
		out.Quiz = &q
	}
	return out
}

// Summary drops history and quiz state for listings.
func (r ThreadRecord) Summary() ThreadSummary {
	return ThreadSummary{
		ThreadID:  r.ThreadID,
		Title:     r.Title,
		Items:     len(r.History),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ThreadSummary is the listing view of a thread.
type ThreadSummary struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title,omitempty"`
	Items     int       `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Order is the sort direction for paginated history reads.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// PageRequest selects a window of a listing. After is the id of the last
// element of the previous page.
type PageRequest struct {
	After string
	Limit int
	Order Order
}

// Page is one window of a listing.
type Page[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"hasMore"`
	After   string `json:"after,omitempty"`
}

// Paginate slices items (already in the requested order) after the element
// whose id matches req.After. Unknown cursors start from the beginning.
func Paginate[T any](items []T, req PageRequest, id func(T) string) Page[T] {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	start := 0
	if req.After != "" {
		for i, item := range items {
			if id(item) == req.After {
				start = i + 1
				break
			}
		}
	}
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	hasMore := end < len(items)
	if end > len(items) {
		end = len(items)
	}
	data := append([]T(nil), items[start:end]...)
	page := Page[T]{Data: data, HasMore: hasMore}
	if hasMore && len(data) > 0 {
		page.After = id(data[len(data)-1])
	}
	return page
}

// DefaultPageLimit is used when a page request has no limit.
const DefaultPageLimit = 20
