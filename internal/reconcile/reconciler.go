// Package reconcile turns an append-only finalized transcript into a sequence
// of non-overlapping utterances, each produced exactly once.
package reconcile

import "strings"

// Utterance is one trimmed, non-empty chunk of newly finalized speech.
type Utterance struct {
	// Seq is the emission order within a session, starting at 1.
	Seq  uint64
	Text string
}

// Delta returns the trimmed text finalized past watermark. ok is false when
// nothing new is available or the new range is whitespace only.
func Delta(finalized string, watermark int) (string, bool) {
	if watermark < 0 {
		watermark = 0
	}
	if len(finalized) <= watermark {
		return "", false
	}
	text := strings.TrimSpace(finalized[watermark:])
	if text == "" {
		return "", false
	}
	return text, true
}

// Reconciler tracks how much of the finalized transcript has been consumed.
// It is not safe for concurrent use; callers serialize passes.
type Reconciler struct {
	watermark int
	seq       uint64
}

// Watermark reports the length of the transcript already consumed.
func (r *Reconciler) Watermark() int { return r.watermark }

// Reset returns the reconciler to the start of a new session.
func (r *Reconciler) Reset() {
	r.watermark = 0
	r.seq = 0
}

// Reconcile emits at most one utterance for the text finalized since the last
// pass. The watermark advances only after emit returns. A whitespace-only
// delta leaves the watermark where it was.
func (r *Reconciler) Reconcile(finalized string, emit func(Utterance)) bool {
	text, ok := Delta(finalized, r.watermark)
	if !ok {
		return false
	}
	r.seq++
	emit(Utterance{Seq: r.seq, Text: text})
	r.watermark = len(finalized)
	return true
}
