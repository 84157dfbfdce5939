// Package transcript turns accepted thread actions into history entries.
package transcript

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/quiz"
	"mcq-chat-service/internal/widget"
)

const titleMaxRunes = 48

// Converter stamps entries with ids and creation times.
type Converter struct {
	newID func() string
	now   func() time.Time
}

func NewConverter() *Converter {
	return NewConverterWithClock(uuid.NewString, time.Now)
}

// NewConverterWithClock is test-only for deterministic ids and timestamps.
func NewConverterWithClock(newID func() string, now func() time.Time) *Converter {
	return &Converter{newID: newID, now: now}
}

// FromOutcome returns the single entry summarising an accepted quiz transition.
func (c *Converter) FromOutcome(threadID string, bank domain.QuestionBank, out quiz.Outcome) domain.TranscriptEntry {
	return domain.TranscriptEntry{
		ID:        c.newID(),
		ThreadID:  threadID,
		Kind:      domain.EntryQuizAction,
		Action:    out.Action,
		Text:      Describe(bank, out),
		CreatedAt: c.now().UTC(),
	}
}

// FromMessage records a plain user message verbatim.
func (c *Converter) FromMessage(threadID string, msg domain.Message) domain.TranscriptEntry {
	return domain.TranscriptEntry{
		ID:        c.newID(),
		ThreadID:  threadID,
		Kind:      domain.EntryUserMessage,
		Action:    msg.Name(),
		Text:      msg.Text,
		CreatedAt: c.now().UTC(),
	}
}

// Describe renders an outcome as a sentence. Option and question numbers are 1-based.
func Describe(bank domain.QuestionBank, out quiz.Outcome) string {
	position := out.QuestionIndex + 1
	switch out.Action {
	case domain.ActionSubmit:
		verdict := "incorrect"
		if out.Correct {
			verdict = "correct"
		}
		label := ""
		if q, ok := bank.At(out.QuestionIndex); ok && out.OptionIndex < len(q.Options) {
			label = fmt.Sprintf(" (%s)", q.Options[out.OptionIndex])
		}
		return fmt.Sprintf("answered option %d%s on question %d of %d: %s", out.OptionIndex+1, label, position, out.Total, verdict)
	case domain.ActionClear:
		return fmt.Sprintf("cleared the answer to question %d of %d", position, out.Total)
	case domain.ActionNext:
		if out.Finished {
			return "quiz finished: " + widget.SummaryText(out.Score, out.Total)
		}
		return fmt.Sprintf("advanced to question %d of %d", out.NextIndex+1, out.Total)
	case domain.ActionFinish:
		return fmt.Sprintf("quiz finished early at question %d of %d: %s", position, out.Total, widget.SummaryText(out.Score, out.Total))
	}
	return out.Action
}

// Merge appends entries to history without touching history's backing array.
func Merge(history, entries []domain.TranscriptEntry) []domain.TranscriptEntry {
	merged := make([]domain.TranscriptEntry, 0, len(history)+len(entries))
	merged = append(merged, history...)
	return append(merged, entries...)
}

// Title derives a thread title from its first message.
func Title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= titleMaxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:titleMaxRunes])) + "…"
}

// TitleFrom derives a title from the first user message in entries, if any.
func TitleFrom(entries []domain.TranscriptEntry) string {
	for _, e := range entries {
		if e.Kind == domain.EntryUserMessage {
			return Title(e.Text)
		}
	}
	return ""
}

// Format renders history as plain conversational text, one line per entry.
func Format(history []domain.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range history {
		role := "user"
		switch e.Kind {
		case domain.EntryAssistantMessage, domain.EntryWidgetSnapshot:
			role = "assistant"
		case domain.EntryQuizAction:
			role = "quiz"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", e.CreatedAt.Format(time.RFC3339), role, e.Text)
	}
	return b.String()
}
