package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Wire names of the supported actions.
const (
	ActionSubmit  = "mcq.submit"
	ActionClear   = "mcq.clear"
	ActionNext    = "mcq.next"
	ActionFinish  = "mcq.finish"
	ActionMessage = "message"
)

// Action is the closed set of inbound thread actions. Only types in this
// package implement it.
type Action interface {
	Name() string
	action()
}

// QuizAction is an Action that targets the quiz widget.
type QuizAction interface {
	Action
	// Target is the question id the client's widget displayed, if known.
	Target() string
}

// Submit answers the current question.
type Submit struct {
	QuestionID  string
	OptionIndex int
}

// Clear removes the current selection.
type Clear struct {
	QuestionID string
}

// Next advances past an answered question.
type Next struct {
	QuestionID string
}

// Finish ends the quiz early.
type Finish struct {
	QuestionID string
}

// Message is a plain chat message that bypasses the quiz.
type Message struct {
	Text string
}

func (Submit) Name() string  { return ActionSubmit }
func (Clear) Name() string   { return ActionClear }
func (Next) Name() string    { return ActionNext }
func (Finish) Name() string  { return ActionFinish }
func (Message) Name() string { return ActionMessage }

func (Submit) action()  {}
func (Clear) action()   {}
func (Next) action()    {}
func (Finish) action()  {}
func (Message) action() {}

func (a Submit) Target() string { return a.QuestionID }
func (a Clear) Target() string  { return a.QuestionID }
func (a Next) Target() string   { return a.QuestionID }
func (a Finish) Target() string { return a.QuestionID }

// Envelope is the wire form of an action.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type actionPayload struct {
	QuestionID  string `json:"questionId"`
	OptionIndex *int   `json:"optionIndex"`
	// Answer is the radio group value posted by the widget form.
	Answer string `json:"answer"`
	Text   string `json:"text"`
}

// ParseAction decodes an envelope into an Action. Unknown types and
// malformed payloads yield ErrUnsupportedAction.
func ParseAction(env Envelope) (Action, error) {
	var p actionPayload
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, Errorf(ErrUnsupportedAction, "malformed %q payload", env.Type)
		}
	}
	switch env.Type {
	case ActionSubmit:
		if p.OptionIndex == nil && p.Answer != "" {
			n, err := strconv.Atoi(p.Answer)
			if err != nil {
				return nil, Errorf(ErrUnsupportedAction, "answer %q is not an option index", p.Answer)
			}
			p.OptionIndex = &n
		}
		if p.OptionIndex == nil {
			return nil, Errorf(ErrUnsupportedAction, "submit requires optionIndex")
		}
		return Submit{QuestionID: p.QuestionID, OptionIndex: *p.OptionIndex}, nil
	case ActionClear:
		return Clear{QuestionID: p.QuestionID}, nil
	case ActionNext:
		return Next{QuestionID: p.QuestionID}, nil
	case ActionFinish:
		return Finish{QuestionID: p.QuestionID}, nil
	case ActionMessage:
		if strings.TrimSpace(p.Text) == "" {
			return nil, Errorf(ErrUnsupportedAction, "message requires text")
		}
		return Message{Text: p.Text}, nil
	default:
		return nil, Errorf(ErrUnsupportedAction, "unknown action type %q", env.Type)
	}
}
