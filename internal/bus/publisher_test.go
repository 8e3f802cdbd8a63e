package bus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/obiente/translate/liveassist/internal/session"
)

type sent struct {
	subject string
	data    []byte
}

func newTestPublisher(err error) (*Publisher, *[]sent) {
	var out []sent
	p := NewPublisher(func(subject string, data []byte) error {
		out = append(out, sent{subject: subject, data: data})
		return err
	}, "", "s-1")
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p, &out
}

func TestPublisherRoutesEntriesByKind(t *testing.T) {
	p, out := newTestPublisher(nil)

	p.EntryAppended(session.Entry{ID: "a", Kind: session.KindTranscription, Text: "hello", Seq: 1})
	p.EntryAppended(session.Entry{ID: "b", Kind: session.KindAnswer, Text: "hi", Seq: 1})

	if len(*out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(*out))
	}
	if (*out)[0].subject != "liveassist.entry.transcription" || (*out)[1].subject != "liveassist.entry.answer" {
		t.Fatalf("unexpected subjects: %q %q", (*out)[0].subject, (*out)[1].subject)
	}
	var msg EntryMessage
	if err := json.Unmarshal((*out)[1].data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.SessionID != "s-1" || msg.Kind != "answer" || msg.Text != "hi" || msg.Seq != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !msg.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", msg.Timestamp)
	}
}

func TestPublisherTranslationAndState(t *testing.T) {
	p, out := newTestPublisher(nil)

	p.TranslationAppended(3, "hola")
	p.StateChanged(session.Snapshot{State: session.StateProcessing, Generation: 2, Entries: []session.Entry{{}, {}}})

	if (*out)[0].subject != "liveassist.translation" || (*out)[1].subject != "liveassist.session.state" {
		t.Fatalf("unexpected subjects: %+v", *out)
	}
	var state StateMessage
	if err := json.Unmarshal((*out)[1].data, &state); err != nil {
		t.Fatal(err)
	}
	if state.State != session.StateProcessing || state.Generation != 2 || state.Entries != 2 {
		t.Fatalf("unexpected state message: %+v", state)
	}
}

func TestPublisherSwallowsErrors(t *testing.T) {
	p, out := newTestPublisher(errors.New("no responders"))

	p.TranslationAppended(1, "hola")

	if len(*out) != 1 {
		t.Fatalf("expected publish attempt, got %d", len(*out))
	}
}

func TestPublisherCustomPrefix(t *testing.T) {
	var subject string
	p := NewPublisher(func(s string, _ []byte) error { subject = s; return nil }, "room.42", "s")
	p.TranslationAppended(1, "x")
	if subject != "room.42.translation" {
		t.Fatalf("unexpected subject %q", subject)
	}
}
