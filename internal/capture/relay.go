package capture

import (
	"context"
	"sync"
)

// Command is sent to a remote recognizer to control it.
type Command struct {
	Type string `json:"type"`
	Run  uint64 `json:"run"`
	Lang string `json:"lang,omitempty"`
}

const (
	CommandStart = "recognizer_start"
	CommandStop  = "recognizer_stop"
)

// RelayEngine drives a recognizer that runs on the client, such as the
// browser speech API. Commands go out through send and the client's events
// come back through Deliver.
type RelayEngine struct {
	supported bool
	lang      string
	send      func(Command) error

	mu   sync.Mutex
	run  uint64
	emit func(Event)
}

func NewRelayEngine(supported bool, lang string, send func(Command) error) *RelayEngine {
	return &RelayEngine{supported: supported, lang: lang, send: send}
}

func (e *RelayEngine) Supported() bool { return e.supported }

func (e *RelayEngine) Start(_ context.Context, run uint64, emit func(Event)) error {
	e.mu.Lock()
	e.run = run
	e.emit = emit
	e.mu.Unlock()
	return e.send(Command{Type: CommandStart, Run: run, Lang: e.lang})
}

func (e *RelayEngine) Stop() error {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()
	return e.send(Command{Type: CommandStop, Run: run})
}

// Deliver forwards a client-side recognizer event. Events that arrive before
// the first Start are dropped.
func (e *RelayEngine) Deliver(ev Event) {
	e.mu.Lock()
	emit := e.emit
	e.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}
