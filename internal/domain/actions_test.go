package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		raw  string
		want Action
	}{
		{`{"type":"mcq.submit","payload":{"questionId":"q1","optionIndex":2}}`, Submit{QuestionID: "q1", OptionIndex: 2}},
		{`{"type":"mcq.submit","payload":{"answer":"1"}}`, Submit{OptionIndex: 1}},
		{`{"type":"mcq.clear","payload":{"questionId":"q2"}}`, Clear{QuestionID: "q2"}},
		{`{"type":"mcq.next"}`, Next{}},
		{`{"type":"mcq.finish","payload":null}`, Finish{}},
		{`{"type":"message","payload":{"text":"hello"}}`, Message{Text: "hello"}},
	}
	for _, tc := range cases {
		var env Envelope
		if err := json.Unmarshal([]byte(tc.raw), &env); err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		got, err := ParseAction(env)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %#v want %#v", tc.raw, got, tc.want)
		}
	}
}

func TestParseActionRejects(t *testing.T) {
	for _, raw := range []string{
		`{"type":"mcq.skip"}`,
		`{"type":"mcq.submit","payload":{}}`,
		`{"type":"mcq.submit","payload":{"answer":"b"}}`,
		`{"type":"mcq.submit","payload":"oops"}`,
		`{"type":"message","payload":{"text":"   "}}`,
	} {
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if _, err := ParseAction(env); !errors.Is(err, ErrUnsupportedAction) {
			t.Fatalf("%s: expected unsupported action, got %v", raw, err)
		}
	}
}

func TestPaginate(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	id := func(s string) string { return s }

	page := Paginate(items, PageRequest{Limit: 2}, id)
	if len(page.Data) != 2 || !page.HasMore || page.After != "b" {
		t.Fatalf("first page: %+v", page)
	}
	page = Paginate(items, PageRequest{After: page.After, Limit: 2}, id)
	if page.Data[0] != "c" || page.After != "d" {
		t.Fatalf("second page: %+v", page)
	}
	page = Paginate(items, PageRequest{After: "d", Limit: 2}, id)
	if len(page.Data) != 1 || page.HasMore || page.After != "" {
		t.Fatalf("last page: %+v", page)
	}
	if page := Paginate(items, PageRequest{}, id); len(page.Data) != 5 || page.HasMore {
		t.Fatalf("default limit: %+v", page)
	}
}

func TestErrorKinds(t *testing.T) {
	err := WithThread(Errorf(ErrInvalidAction, "bad"), "t1")
	var de *Error
	if !errors.As(err, &de) || de.ThreadID != "t1" {
		t.Fatalf("expected thread id on %v", err)
	}
	if KindName(err) != "invalid_action" || Retryable(err) {
		t.Fatalf("unexpected kind %q", KindName(err))
	}
	if !Retryable(&Error{Kind: ErrBusy}) || KindName(errors.New("x")) != "internal" {
		t.Fatalf("unexpected busy/internal classification")
	}
}
