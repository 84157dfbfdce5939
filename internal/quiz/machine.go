// Package quiz holds the pure transition function of the MCQ quiz.
package quiz

import (
	"fmt"

	"mcq-chat-service/internal/domain"
)

// Outcome describes an accepted transition.
type Outcome struct {
	Action string
	// QuestionIndex is the index the action applied to (before advancing).
	QuestionIndex int
	QuestionID    string
	OptionIndex   int
	Correct       bool
	// Awarded is true when this transition added a point.
	Awarded  bool
	Score    int
	Total    int
	Finished bool
	// NextIndex is the index after the transition.
	NextIndex int
}

// Apply runs action against state. On error the returned state is the input
// state, unchanged.
func Apply(bank domain.QuestionBank, state domain.QuizState, action domain.QuizAction) (domain.QuizState, Outcome, error) {
	if state.Finished() {
		return state, Outcome{}, &domain.Error{Kind: domain.ErrQuizAlreadyFinished, Detail: fmt.Sprintf("%s rejected", action.Name())}
	}
	question, ok := bank.At(state.CurrentIndex)
	if !ok {
		return state, Outcome{}, domain.Errorf(domain.ErrInvalidAction, "question index %d out of range", state.CurrentIndex)
	}
	if target := action.Target(); target != "" && target != question.ID {
		return state, Outcome{}, &domain.Error{
			Kind:       domain.ErrInvalidAction,
			QuestionID: question.ID,
			Detail:     fmt.Sprintf("widget shows question %s, current question is %s", target, question.ID),
		}
	}

	var (
		next domain.QuizState
		out  Outcome
		err  error
	)
	switch a := action.(type) {
	case domain.Submit:
		next, out, err = submit(question, state, a.OptionIndex)
	case domain.Clear:
		next, out, err = clearSelection(question, state)
	case domain.Next:
		next, out, err = advance(bank, question, state)
	case domain.Finish:
		next, out = finish(bank, question, state)
	default:
		return state, Outcome{}, domain.Errorf(domain.ErrUnsupportedAction, "%s is not a quiz action", action.Name())
	}
	if err != nil {
		return state, Outcome{}, err
	}
	out.Action = action.Name()
	out.QuestionIndex = state.CurrentIndex
	out.QuestionID = question.ID
	out.Score = next.Score
	out.Total = bank.Len()
	out.Finished = next.Finished()
	out.NextIndex = next.CurrentIndex
	return next, out, nil
}

func submit(q domain.Question, state domain.QuizState, option int) (domain.QuizState, Outcome, error) {
	if state.HasSelection() {
		return state, Outcome{}, &domain.Error{Kind: domain.ErrInvalidAction, QuestionID: q.ID, Detail: "question already answered"}
	}
	if option < 0 || option >= len(q.Options) {
		return state, Outcome{}, &domain.Error{
			Kind:       domain.ErrInvalidAction,
			QuestionID: q.ID,
			Detail:     fmt.Sprintf("option %d out of range [0,%d)", option, len(q.Options)),
		}
	}
	next := state.Clone()
	correct := option == q.CorrectOptionIndex
	next.SelectedOptionIndex = &option
	next.AnsweredCorrectly = &correct
	awarded := false
	// A question contributes at most one point, even across clear/resubmit.
	if correct && !next.Scored {
		next.Score++
		next.Scored = true
		awarded = true
	}
	return next, Outcome{OptionIndex: option, Correct: correct, Awarded: awarded}, nil
}

func clearSelection(q domain.Question, state domain.QuizState) (domain.QuizState, Outcome, error) {
	if !state.HasSelection() {
		return state, Outcome{}, &domain.Error{Kind: domain.ErrInvalidAction, QuestionID: q.ID, Detail: "nothing to clear"}
	}
	next := state.Clone()
	out := Outcome{OptionIndex: *state.SelectedOptionIndex}
	next.SelectedOptionIndex = nil
	next.AnsweredCorrectly = nil
	return next, out, nil
}

func advance(bank domain.QuestionBank, q domain.Question, state domain.QuizState) (domain.QuizState, Outcome, error) {
	if !state.HasSelection() {
		return state, Outcome{}, &domain.Error{Kind: domain.ErrInvalidAction, QuestionID: q.ID, Detail: "answer the question before moving on"}
	}
	out := Outcome{OptionIndex: *state.SelectedOptionIndex, Correct: *state.AnsweredCorrectly}
	next := domain.QuizState{
		CurrentIndex: state.CurrentIndex + 1,
		Score:        state.Score,
		Status:       domain.StatusInProgress,
	}
	if next.CurrentIndex >= bank.Len() {
		next.CurrentIndex = bank.Len()
		next.Status = domain.StatusFinished
	}
	return next, out, nil
}

func finish(bank domain.QuestionBank, _ domain.Question, state domain.QuizState) (domain.QuizState, Outcome) {
	return domain.QuizState{
		CurrentIndex: bank.Len(),
		Score:        state.Score,
		Status:       domain.StatusFinished,
	}, Outcome{}
}

// CheckInvariants reports the first invariant state violates against bank.
func CheckInvariants(bank domain.QuestionBank, state domain.QuizState) error {
	n := bank.Len()
	switch {
	case state.CurrentIndex < 0 || state.CurrentIndex > n:
		return fmt.Errorf("current index %d outside [0,%d]", state.CurrentIndex, n)
	case state.Score < 0:
		return fmt.Errorf("negative score %d", state.Score)
	case state.Score > state.Attempted():
		return fmt.Errorf("score %d exceeds attempted %d", state.Score, state.Attempted())
	case state.Status != domain.StatusInProgress && state.Status != domain.StatusFinished:
		return fmt.Errorf("unknown status %q", state.Status)
	case state.CurrentIndex == n && !state.Finished():
		return fmt.Errorf("index at end but status %s", state.Status)
	case state.Finished() && state.CurrentIndex != n:
		return fmt.Errorf("finished at index %d, want %d", state.CurrentIndex, n)
	case state.Finished() && state.HasSelection():
		return fmt.Errorf("finished quiz has a selection")
	case (state.SelectedOptionIndex == nil) != (state.AnsweredCorrectly == nil):
		return fmt.Errorf("selection and correctness out of sync")
	}
	if state.SelectedOptionIndex != nil {
		q, _ := bank.At(state.CurrentIndex)
		if sel := *state.SelectedOptionIndex; sel < 0 || sel >= len(q.Options) {
			return fmt.Errorf("selected option %d invalid for question %s", sel, q.ID)
		}
	}
	return nil
}
