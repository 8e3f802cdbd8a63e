package bus

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/liveassist/internal/session"
)

const (
	SubjectTranscription = "entry.transcription"
	SubjectAnswer        = "entry.answer"
	SubjectTranslation   = "translation"
	SubjectState         = "session.state"
)

type EntryMessage struct {
	SessionID string    `json:"session_id"`
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type TranslationMessage struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type StateMessage struct {
	SessionID  string        `json:"session_id"`
	State      session.State `json:"state"`
	Generation uint64        `json:"generation"`
	Entries    int           `json:"entries"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// PublishFunc delivers one encoded message.
type PublishFunc func(subject string, data []byte) error

// Publisher mirrors session events onto the bus. Failures are logged and
// never reach the session.
type Publisher struct {
	publish   PublishFunc
	prefix    string
	sessionID string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewPublisher(publish PublishFunc, prefix, sessionID string) *Publisher {
	if prefix == "" {
		prefix = "liveassist"
	}
	return &Publisher{
		publish:   publish,
		prefix:    prefix,
		sessionID: sessionID,
		logger:    log.With().Str("component", "bus").Str("session", sessionID).Logger(),
		now:       time.Now,
	}
}

func (p *Publisher) EntryAppended(e session.Entry) {
	subject := SubjectTranscription
	if e.Kind == session.KindAnswer {
		subject = SubjectAnswer
	}
	p.send(subject, EntryMessage{
		SessionID: p.sessionID,
		ID:        e.ID,
		Kind:      string(e.Kind),
		Seq:       e.Seq,
		Text:      e.Text,
		Timestamp: p.now().UTC(),
	})
}

func (p *Publisher) TranslationAppended(seq uint64, line string) {
	p.send(SubjectTranslation, TranslationMessage{
		SessionID: p.sessionID,
		Seq:       seq,
		Text:      line,
		Timestamp: p.now().UTC(),
	})
}

func (p *Publisher) StateChanged(s session.Snapshot) {
	p.send(SubjectState, StateMessage{
		SessionID:  p.sessionID,
		State:      s.State,
		Generation: s.Generation,
		Entries:    len(s.Entries),
		Error:      s.Error,
		Timestamp:  p.now().UTC(),
	})
}

func (p *Publisher) send(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("encode bus message")
		return
	}
	full := p.prefix + "." + subject
	if err := p.publish(full, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", full).Msg("publish failed")
	}
}
