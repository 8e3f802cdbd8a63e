// Package session runs one live assistant session: it feeds finalized speech
// through the reconciler, fans each utterance out to the language service and
// keeps the conversation state the presentation layer renders.
package session

import (
	"context"
	"errors"
)

var (
	ErrContextLocked = errors.New("context cannot be changed while listening")
	ErrClosed        = errors.New("session is closed")
)

// ProcessingErrorText is the user-visible message for a failed utterance.
const ProcessingErrorText = "An error occurred while communicating with the AI. Please try again."

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StatePaused     State = "paused"
)

type EntryKind string

const (
	KindTranscription EntryKind = "transcription"
	KindAnswer        EntryKind = "answer"
)

// Entry is one item of the conversation log, in display order.
type Entry struct {
	ID   string    `json:"id"`
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
	// Seq links an entry to the utterance it came from.
	Seq uint64 `json:"seq"`
}

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	Supported     bool    `json:"supported"`
	Engine        string  `json:"engine"`
	State         State   `json:"state"`
	Listening     bool    `json:"listening"`
	Paused        bool    `json:"paused"`
	Active        bool    `json:"active"`
	Processing    bool    `json:"processing"`
	Interim       string  `json:"interim"`
	Entries       []Entry `json:"entries"`
	Translation   string  `json:"translation"`
	Context       string  `json:"context"`
	ContextLocked bool    `json:"context_locked"`
	Error         string  `json:"error"`
	Generation    uint64  `json:"generation"`
}

// Language is the subset of the language client the session needs.
type Language interface {
	Translate(ctx context.Context, text string) (string, error)
	ClassifyQuestion(ctx context.Context, text string) (bool, error)
	Answer(ctx context.Context, question, sessionContext string) (string, error)
}

// Sink receives a fresh snapshot after every state change. Update is called
// from the session loop and must not block.
type Sink interface {
	Update(Snapshot)
}

type SinkFunc func(Snapshot)

func (f SinkFunc) Update(s Snapshot) { f(s) }

// EventPublisher is notified of conversation changes as they happen.
type EventPublisher interface {
	EntryAppended(Entry)
	TranslationAppended(seq uint64, line string)
	StateChanged(Snapshot)
}
