// Package widget derives the declarative quiz card from quiz state.
package widget

import (
	"fmt"
	"strconv"

	"mcq-chat-service/internal/domain"
)

// Views of the card.
const (
	ViewQuestion = "question"
	ViewSummary  = "summary"
)

// Results shown next to the options.
const (
	ResultIdle      = "idle"
	ResultCorrect   = "correct"
	ResultIncorrect = "incorrect"
)

// Definition is the serializable widget plus the facts it was derived from.
type Definition struct {
	View           string            `json:"view"`
	QuestionID     string            `json:"questionId,omitempty"`
	Index          int               `json:"index"` // 1-based position of the current question
	Total          int               `json:"total"`
	Score          int               `json:"score"`
	Status         domain.QuizStatus `json:"status"`
	Selected       *int              `json:"selected,omitempty"`
	Result         string            `json:"result,omitempty"`
	Feedback       *Feedback         `json:"feedback,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	EnabledActions []string          `json:"enabledActions"`
	Root           Node              `json:"root"`
}

// Feedback is the hint or explanation shown after a submit.
type Feedback struct {
	Hint        string `json:"hint,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// Node is one element of the widget tree.
type Node struct {
	Type           string        `json:"type"`
	Value          string        `json:"value,omitempty"`
	Label          string        `json:"label,omitempty"`
	Size           string        `json:"size,omitempty"`
	Color          string        `json:"color,omitempty"`
	Name           string        `json:"name,omitempty"`
	Style          string        `json:"style,omitempty"`
	Variant        string        `json:"variant,omitempty"`
	IconEnd        string        `json:"iconEnd,omitempty"`
	Direction      string        `json:"direction,omitempty"`
	Gap            int           `json:"gap,omitempty"`
	Submit         bool          `json:"submit,omitempty"`
	Required       bool          `json:"required,omitempty"`
	Disabled       bool          `json:"disabled,omitempty"`
	DefaultValue   string        `json:"defaultValue,omitempty"`
	Options        []RadioOption `json:"options,omitempty"`
	OnClickAction  *ActionRef    `json:"onClickAction,omitempty"`
	OnSubmitAction *ActionRef    `json:"onSubmitAction,omitempty"`
	Children       []Node        `json:"children,omitempty"`
}

// RadioOption is one selectable answer.
type RadioOption struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ActionRef is the action a control dispatches back to the server.
type ActionRef struct {
	Type    string        `json:"type"`
	Payload ActionPayload `json:"payload"`
}

// ActionPayload pins an action to the question the card was showing.
type ActionPayload struct {
	QuestionID string `json:"questionId"`
	Index      int    `json:"index"`
}

// Render builds the card for state. It has no side effects and equal inputs
// produce equal output.
func Render(bank domain.QuestionBank, state domain.QuizState) Definition {
	if state.Finished() {
		return renderSummary(bank, state)
	}
	q, ok := bank.At(state.CurrentIndex)
	if !ok {
		return renderSummary(bank, state)
	}
	return renderQuestion(bank, state, q)
}

// EnabledActions lists the actions state accepts, in display order.
func EnabledActions(state domain.QuizState) []string {
	switch {
	case state.Finished():
		return []string{}
	case state.HasSelection():
		return []string{domain.ActionClear, domain.ActionNext, domain.ActionFinish}
	default:
		return []string{domain.ActionSubmit, domain.ActionFinish}
	}
}

func renderQuestion(bank domain.QuestionBank, state domain.QuizState, q domain.Question) Definition {
	total := bank.Len()
	position := state.CurrentIndex + 1
	answered := state.HasSelection()
	payload := ActionPayload{QuestionID: q.ID, Index: position}

	def := Definition{
		View:           ViewQuestion,
		QuestionID:     q.ID,
		Index:          position,
		Total:          total,
		Score:          state.Score,
		Status:         state.Status,
		Result:         ResultIdle,
		EnabledActions: EnabledActions(state),
	}

	selected := ""
	if answered {
		sel := *state.SelectedOptionIndex
		def.Selected = &sel
		selected = strconv.Itoa(sel)
		if *state.AnsweredCorrectly {
			def.Result = ResultCorrect
			if q.Explanation != "" {
				def.Feedback = &Feedback{Explanation: q.Explanation}
			}
		} else {
			def.Result = ResultIncorrect
			if q.Hint != "" {
				def.Feedback = &Feedback{Hint: q.Hint}
			}
		}
	}

	options := make([]RadioOption, len(q.Options))
	for i, text := range q.Options {
		options[i] = RadioOption{Label: text, Value: strconv.Itoa(i)}
	}

	advanceLabel := "Next"
	if position == total {
		advanceLabel = "Finish"
	}

	form := []Node{
		{
			Type:         "RadioGroup",
			Name:         "answer",
			Options:      options,
			DefaultValue: selected,
			Direction:    "col",
			Required:     true,
			Disabled:     answered,
		},
	}
	if fb := feedbackNode(def.Result, def.Feedback); fb != nil {
		form = append(form, *fb)
	}
	form = append(form, Node{
		Type: "Row",
		Children: []Node{
			{Type: "Button", Submit: true, Label: "Submit answer", Style: "primary", Disabled: answered},
			{
				Type:          "Button",
				Label:         "Clear",
				Variant:       "outline",
				Disabled:      !answered,
				OnClickAction: &ActionRef{Type: domain.ActionClear, Payload: payload},
			},
			{Type: "Spacer"},
			{
				Type:          "Button",
				Label:         "End quiz",
				Variant:       "ghost",
				OnClickAction: &ActionRef{Type: domain.ActionFinish, Payload: payload},
			},
			{
				Type:          "Button",
				Label:         advanceLabel,
				IconEnd:       "chevron-right",
				Disabled:      !answered,
				OnClickAction: &ActionRef{Type: domain.ActionNext, Payload: payload},
			},
		},
	})

	def.Root = Node{
		Type: "Card",
		Size: "md",
		Children: []Node{
			{
				Type: "Row",
				Children: []Node{
					{Type: "Caption", Value: fmt.Sprintf("Question %d of %d", position, total)},
					{Type: "Spacer"},
					{Type: "Caption", Value: fmt.Sprintf("Score %d", state.Score)},
					{Type: "Badge", Label: "MCQ", Color: "info"},
				},
			},
			{Type: "Title", Value: q.Prompt, Size: "sm"},
			{
				Type:           "Form",
				OnSubmitAction: &ActionRef{Type: domain.ActionSubmit, Payload: payload},
				Children:       []Node{{Type: "Col", Gap: 3, Children: form}},
			},
		},
	}
	return def
}

func feedbackNode(result string, fb *Feedback) *Node {
	switch result {
	case ResultCorrect:
		text := "Correct!"
		if fb != nil {
			text += " " + fb.Explanation
		}
		return &Node{Type: "Text", Value: text, Color: "success"}
	case ResultIncorrect:
		text := "Not quite."
		if fb != nil {
			text += " Hint: " + fb.Hint
		}
		return &Node{Type: "Text", Value: text, Color: "danger"}
	}
	return nil
}

// SummaryText is the final score line, e.g. "2/3 correct".
func SummaryText(score, total int) string {
	return fmt.Sprintf("%d/%d correct", score, total)
}

func renderSummary(bank domain.QuestionBank, state domain.QuizState) Definition {
	total := bank.Len()
	summary := SummaryText(state.Score, total)
	color := "warning"
	if total > 0 && state.Score*2 >= total {
		color = "success"
	}
	return Definition{
		View:           ViewSummary,
		Index:          total,
		Total:          total,
		Score:          state.Score,
		Status:         domain.StatusFinished,
		Summary:        summary,
		EnabledActions: []string{},
		Root: Node{
			Type: "Card",
			Size: "md",
			Children: []Node{
				{
					Type: "Row",
					Children: []Node{
						{Type: "Caption", Value: "Quiz complete"},
						{Type: "Spacer"},
						{Type: "Badge", Label: "MCQ", Color: "info"},
					},
				},
				{Type: "Title", Value: summary, Size: "sm"},
				{Type: "Text", Value: "Great job completing the quiz! Ask for another one any time.", Color: color},
			},
		},
	}
}
