// Package capture wraps a continuous, interim-capable speech recognizer and
// maintains the finalized and interim transcript it produces.
package capture

import "context"

// EventKind discriminates recognizer events.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventEnded   EventKind = "ended"
	EventError   EventKind = "error"
	EventResult  EventKind = "result"
)

// Event is a single recognizer notification. Run identifies the engine run
// that produced it so events from a superseded run can be dropped.
type Event struct {
	Kind    EventKind `json:"event"`
	Run     uint64    `json:"run"`
	Final   []string  `json:"final,omitempty"`
	Interim []string  `json:"interim,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Engine is a speech recognition backend. Start begins a continuous,
// interim-enabled run; every event the run produces is passed to emit with
// Run set. Stop requests termination, after which the engine reports Ended.
type Engine interface {
	Supported() bool
	Start(ctx context.Context, run uint64, emit func(Event)) error
	Stop() error
}

// Transcript is the adapter's view of recognized speech.
type Transcript struct {
	// Finalized only ever grows by appending.
	Finalized string `json:"finalized"`
	// Interim is replaced on every result batch.
	Interim   string `json:"interim"`
	Listening bool   `json:"listening"`
}
