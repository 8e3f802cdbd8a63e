package reconcile

import (
	"strings"
	"testing"
)

func TestReconcileEmitsOnlyNewSuffix(t *testing.T) {
	var r Reconciler
	var got []Utterance
	emit := func(u Utterance) { got = append(got, u) }

	if !r.Reconcile("Hello there. ", emit) {
		t.Fatalf("expected first pass to emit")
	}
	if !r.Reconcile("Hello there. What is your name? ", emit) {
		t.Fatalf("expected second pass to emit")
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(got))
	}
	if got[0].Text != "Hello there." || got[0].Seq != 1 {
		t.Fatalf("unexpected first utterance: %+v", got[0])
	}
	if got[1].Text != "What is your name?" || got[1].Seq != 2 {
		t.Fatalf("unexpected second utterance: %+v", got[1])
	}
	if r.Watermark() != len("Hello there. What is your name? ") {
		t.Fatalf("unexpected watermark %d", r.Watermark())
	}
}

func TestReconcileIgnoresWhitespaceGrowth(t *testing.T) {
	var r Reconciler
	calls := 0
	emit := func(Utterance) { calls++ }

	r.Reconcile("Hi. ", emit)
	mark := r.Watermark()

	if r.Reconcile("Hi.  ", emit) {
		t.Fatalf("whitespace growth must not emit")
	}
	if calls != 1 {
		t.Fatalf("expected 1 emission, got %d", calls)
	}
	if r.Watermark() != mark {
		t.Fatalf("watermark moved over whitespace: %d -> %d", mark, r.Watermark())
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	var r Reconciler
	calls := 0
	emit := func(Utterance) { calls++ }

	r.Reconcile("one two ", emit)
	for i := 0; i < 3; i++ {
		if r.Reconcile("one two ", emit) {
			t.Fatalf("unchanged transcript emitted again")
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 emission, got %d", calls)
	}
}

func TestReconcileIgnoresShrink(t *testing.T) {
	var r Reconciler
	r.Reconcile("abc def ", func(Utterance) {})
	if r.Reconcile("abc", func(Utterance) { t.Fatalf("unexpected emission") }) {
		t.Fatalf("shrink must be a no-op")
	}
}

func TestReconcileCoversWholeTranscript(t *testing.T) {
	steps := []string{
		"good ",
		"good morning ",
		"good morning  ",
		"good morning everyone. ",
		"good morning everyone. How are you? ",
		"good morning everyone. How are you? I am fine ",
	}

	var r Reconciler
	var parts []string
	for _, s := range steps {
		r.Reconcile(s, func(u Utterance) { parts = append(parts, u.Text) })
	}

	final := steps[len(steps)-1]
	if got, want := strings.Join(strings.Fields(strings.Join(parts, " ")), " "), strings.Join(strings.Fields(final), " "); got != want {
		t.Fatalf("coverage mismatch:\n got %q\nwant %q", got, want)
	}
	if r.Watermark() != len(final) {
		t.Fatalf("watermark %d, want %d", r.Watermark(), len(final))
	}
}

func TestResetStartsOver(t *testing.T) {
	var r Reconciler
	r.Reconcile("first ", func(Utterance) {})
	r.Reset()

	var got Utterance
	r.Reconcile("again ", func(u Utterance) { got = u })
	if got.Seq != 1 || got.Text != "again" {
		t.Fatalf("unexpected utterance after reset: %+v", got)
	}
}

func TestDelta(t *testing.T) {
	cases := []struct {
		name      string
		finalized string
		watermark int
		want      string
		ok        bool
	}{
		{"empty", "", 0, "", false},
		{"fresh", "hello ", 0, "hello", true},
		{"consumed", "hello ", 6, "", false},
		{"whitespace", "hello   ", 6, "", false},
		{"suffix", "hello world ", 6, "world", true},
		{"negative watermark", "hi", -3, "hi", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Delta(tc.finalized, tc.watermark)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("Delta(%q, %d) = %q, %v; want %q, %v", tc.finalized, tc.watermark, got, ok, tc.want, tc.ok)
			}
		})
	}
}
