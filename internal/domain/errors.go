package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when a thread belongs to a different user.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when a thread does not exist and creation was not requested.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAction is returned when a quiz transition does not fit the current state.
	ErrInvalidAction = errors.New("invalid action")
	// ErrQuizAlreadyFinished is returned for quiz actions after the quiz finished.
	ErrQuizAlreadyFinished = errors.New("quiz already finished")
	// ErrUnsupportedAction is returned for payloads that are not a known action.
	ErrUnsupportedAction = errors.New("unsupported action")
	// ErrBusy is returned when another action for the same thread holds the lock too long.
	ErrBusy = errors.New("thread busy")
	// ErrEmptyBank is returned when a question bank has no questions.
	ErrEmptyBank = errors.New("question bank is empty")
)

// Error carries the context a client needs to explain a failure.
type Error struct {
	Kind       error
	ThreadID   string
	QuestionID string
	Detail     string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.ThreadID != "" {
		msg = fmt.Sprintf("thread %s: %s", e.ThreadID, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WithThread returns err annotated with the thread id when it is an *Error.
func WithThread(err error, threadID string) error {
	var de *Error
	if errors.As(err, &de) {
		cp := *de
		cp.ThreadID = threadID
		return &cp
	}
	return err
}

// KindName returns the stable name of err's kind, or "internal".
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, ErrQuizAlreadyFinished):
		return "quiz_already_finished"
	case errors.Is(err, ErrUnsupportedAction):
		return "unsupported_action"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// Retryable reports whether a caller may retry err without intervention.
func Retryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
