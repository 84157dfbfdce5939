package quiz_test

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/quiz"
)

func TestScenarioThreeQuestions(t *testing.T) {
	bank := threeQuestionBank()
	state := domain.NewQuizState()

	steps := []struct {
		action   domain.QuizAction
		correct  bool
		score    int
		index    int
		finished bool
	}{
		{domain.Submit{OptionIndex: 1}, true, 1, 0, false},
		{domain.Next{}, true, 1, 1, false},
		{domain.Submit{OptionIndex: 2}, false, 1, 1, false},
		{domain.Next{}, false, 1, 2, false},
		{domain.Submit{OptionIndex: 2}, true, 2, 2, false},
		{domain.Next{}, true, 2, 3, true},
	}
	for i, step := range steps {
		next, out, err := quiz.Apply(bank, state, step.action)
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, step.action.Name(), err)
		}
		if out.Correct != step.correct || next.Score != step.score || next.CurrentIndex != step.index || next.Finished() != step.finished {
			t.Fatalf("step %d: got correct=%v score=%d index=%d finished=%v", i, out.Correct, next.Score, next.CurrentIndex, next.Finished())
		}
		if err := quiz.CheckInvariants(bank, next); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		state = next
	}
}

func TestDoubleSubmitRejected(t *testing.T) {
	bank := threeQuestionBank()
	state, _, err := quiz.Apply(bank, domain.NewQuizState(), domain.Submit{OptionIndex: 0})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	before := state.Clone()

	got, _, err := quiz.Apply(bank, state, domain.Submit{OptionIndex: 1})
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
	if !reflect.DeepEqual(got, before) || !reflect.DeepEqual(state, before) {
		t.Fatalf("state changed after rejected submit: %+v", got)
	}
}

func TestSubmitOptionOutOfRange(t *testing.T) {
	bank := threeQuestionBank()
	for _, option := range []int{-1, 3, 99} {
		_, _, err := quiz.Apply(bank, domain.NewQuizState(), domain.Submit{OptionIndex: option})
		var de *domain.Error
		if !errors.As(err, &de) || !errors.Is(err, domain.ErrInvalidAction) {
			t.Fatalf("option %d: expected invalid action, got %v", option, err)
		}
		if de.QuestionID != "q1" {
			t.Fatalf("expected question context q1, got %q", de.QuestionID)
		}
	}
}

func TestNextWithoutSubmit(t *testing.T) {
	bank := threeQuestionBank()
	state := domain.NewQuizState()
	got, _, err := quiz.Apply(bank, state, domain.Next{})
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
	if got.CurrentIndex != 0 {
		t.Fatalf("index moved to %d", got.CurrentIndex)
	}
}

func TestClearKeepsCountedPoint(t *testing.T) {
	bank := threeQuestionBank()
	state := apply(t, bank, domain.NewQuizState(), domain.Submit{OptionIndex: 1})
	state = apply(t, bank, state, domain.Clear{})
	if state.HasSelection() || state.AnsweredCorrectly != nil {
		t.Fatalf("selection not cleared: %+v", state)
	}
	if state.Score != 1 {
		t.Fatalf("clear must not revoke the point, score=%d", state.Score)
	}

	// Resubmitting the correct answer does not award the question twice.
	state = apply(t, bank, state, domain.Submit{OptionIndex: 1})
	if state.Score != 1 {
		t.Fatalf("expected score to stay 1, got %d", state.Score)
	}
	if err := quiz.CheckInvariants(bank, state); err != nil {
		t.Fatal(err)
	}
}

func TestClearThenRetryAfterWrongAnswer(t *testing.T) {
	bank := threeQuestionBank()
	state := apply(t, bank, domain.NewQuizState(), domain.Submit{OptionIndex: 0})
	if state.Score != 0 {
		t.Fatalf("wrong answer scored")
	}
	state = apply(t, bank, state, domain.Clear{})
	state = apply(t, bank, state, domain.Submit{OptionIndex: 1})
	if state.Score != 1 || !*state.AnsweredCorrectly {
		t.Fatalf("retry not scored: %+v", state)
	}
}

func TestClearWithoutSelection(t *testing.T) {
	_, _, err := quiz.Apply(threeQuestionBank(), domain.NewQuizState(), domain.Clear{})
	if !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestFinishFromAnyState(t *testing.T) {
	bank := threeQuestionBank()
	states := []domain.QuizState{
		domain.NewQuizState(),
		apply(t, bank, domain.NewQuizState(), domain.Submit{OptionIndex: 1}),
		apply(t, bank, apply(t, bank, domain.NewQuizState(), domain.Submit{OptionIndex: 1}), domain.Next{}),
	}
	for i, s := range states {
		got := apply(t, bank, s, domain.Finish{})
		if !got.Finished() || got.CurrentIndex != bank.Len() {
			t.Fatalf("state %d: finish gave %+v", i, got)
		}
		if got.Score != s.Score {
			t.Fatalf("state %d: score changed %d -> %d", i, s.Score, got.Score)
		}
		if err := quiz.CheckInvariants(bank, got); err != nil {
			t.Fatalf("state %d: %v", i, err)
		}
	}
}

func TestActionsAfterFinish(t *testing.T) {
	bank := threeQuestionBank()
	done := apply(t, bank, domain.NewQuizState(), domain.Finish{})
	for _, a := range []domain.QuizAction{domain.Submit{}, domain.Clear{}, domain.Next{}, domain.Finish{}} {
		if _, _, err := quiz.Apply(bank, done, a); !errors.Is(err, domain.ErrQuizAlreadyFinished) {
			t.Fatalf("%s: expected already finished, got %v", a.Name(), err)
		}
	}
}

func TestStaleWidgetRejected(t *testing.T) {
	bank := threeQuestionBank()
	state := apply(t, bank, domain.NewQuizState(), domain.Submit{QuestionID: "q1", OptionIndex: 1})
	state = apply(t, bank, state, domain.Next{QuestionID: "q1"})

	// A second click on the old widget's Next must not skip q2.
	if _, _, err := quiz.Apply(bank, state, domain.Next{QuestionID: "q1"}); !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected stale action rejection, got %v", err)
	}
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	bank := threeQuestionBank()
	rnd := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		state := domain.NewQuizState()
		for step := 0; step < 30; step++ {
			var a domain.QuizAction
			switch rnd.Intn(5) {
			case 0, 1:
				a = domain.Submit{OptionIndex: rnd.Intn(5) - 1}
			case 2:
				a = domain.Clear{}
			case 3:
				a = domain.Next{}
			default:
				if rnd.Intn(4) == 0 {
					a = domain.Finish{}
				} else {
					a = domain.Next{}
				}
			}
			next, _, err := quiz.Apply(bank, state, a)
			if err != nil && !reflect.DeepEqual(next, state) {
				t.Fatalf("run %d step %d: rejected %s changed state", run, step, a.Name())
			}
			if err := quiz.CheckInvariants(bank, next); err != nil {
				t.Fatalf("run %d step %d after %s: %v", run, step, a.Name(), err)
			}
			if next.Score > next.CurrentIndex+1 || next.Score > bank.Len() {
				t.Fatalf("run %d step %d: score %d over index %d", run, step, next.Score, next.CurrentIndex)
			}
			state = next
		}
	}
}

func apply(t *testing.T, bank domain.QuestionBank, state domain.QuizState, a domain.QuizAction) domain.QuizState {
	t.Helper()
	next, _, err := quiz.Apply(bank, state, a)
	if err != nil {
		t.Fatalf("%s: %v", a.Name(), err)
	}
	return next
}

func threeQuestionBank() domain.QuestionBank {
	return domain.MustQuestionBank([]domain.Question{
		{ID: "q1", Prompt: "One?", Options: []string{"a", "b", "c"}, CorrectOptionIndex: 1},
		{ID: "q2", Prompt: "Two?", Options: []string{"a", "b", "c"}, CorrectOptionIndex: 0},
		{ID: "q3", Prompt: "Three?", Options: []string{"a", "b", "c"}, CorrectOptionIndex: 2},
	})
}
