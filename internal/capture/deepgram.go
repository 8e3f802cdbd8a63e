package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotStreaming = errors.New("no recognition stream is active")
	// ErrAudioBacklog means the provider is not keeping up; the chunk was dropped.
	ErrAudioBacklog = errors.New("audio buffer full")
)

// DeepgramConfig controls the streaming recognition connection.
type DeepgramConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Language    string
	SampleRate  int
	SmartFormat bool
	// StopGrace bounds how long Stop waits for the provider to flush.
	StopGrace time.Duration
}

// DeepgramEngine runs recognition server side against Deepgram's streaming
// API. Audio is pushed with SendAudio as 16-bit little-endian PCM.
type DeepgramEngine struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer

	mu     sync.Mutex
	stream *dgStream
}

func NewDeepgramEngine(cfg DeepgramConfig) *DeepgramEngine {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 3 * time.Second
	}
	return &DeepgramEngine{cfg: cfg, dialer: websocket.DefaultDialer}
}

// Supported is true when an API key is configured.
func (e *DeepgramEngine) Supported() bool {
	return strings.TrimSpace(e.cfg.APIKey) != ""
}

// SampleRate is the PCM rate SendAudio expects.
func (e *DeepgramEngine) SampleRate() int { return e.cfg.SampleRate }

// Start registers a new stream and returns; the connection is dialed in the
// background. Started is reported once the provider accepts it, and a failed
// dial is reported as Error followed by Ended.
func (e *DeepgramEngine) Start(ctx context.Context, run uint64, emit func(Event)) error {
	wsURL, err := buildListenURL(e.cfg)
	if err != nil {
		return err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)

	dialCtx, cancel := context.WithCancel(ctx)
	s := &dgStream{
		run:    run,
		emit:   emit,
		cancel: cancel,
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	previous := e.stream
	e.stream = s
	e.mu.Unlock()
	if previous != nil {
		previous.close()
	}

	go s.connect(dialCtx, e.dialer, wsURL, headers)
	return nil
}

// Stop asks the provider to flush and close. If it does not within the
// configured grace period the connection is dropped. A stream that is still
// dialing is abandoned at once.
func (e *DeepgramEngine) Stop() error {
	e.mu.Lock()
	s := e.stream
	e.stream = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	if !s.connected() {
		s.close()
		return nil
	}
	s.closeSend()
	go func() {
		select {
		case <-s.done:
		case <-time.After(e.cfg.StopGrace):
			s.close()
		}
	}()
	return nil
}

// SendAudio forwards one PCM16 chunk to the active stream.
func (e *DeepgramEngine) SendAudio(pcm []byte) error {
	e.mu.Lock()
	s := e.stream
	e.mu.Unlock()
	if s == nil {
		return ErrNotStreaming
	}
	return s.send(pcm)
}

type dgStream struct {
	run    uint64
	emit   func(Event)
	cancel context.CancelFunc

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	audio chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	sendMu     sync.Mutex
	sendClosed bool
	closeOnce  sync.Once

	errMu sync.Mutex
	err   error
}

func (s *dgStream) connect(ctx context.Context, dialer *websocket.Dialer, wsURL string, headers http.Header) {
	defer close(s.done)
	defer s.cancel()

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		s.closeSend()
		if ctx.Err() == nil {
			s.emit(Event{Kind: EventError, Run: s.run, Message: fmt.Sprintf("connect to deepgram: %v", err)})
		}
		s.emit(Event{Kind: EventEnded, Run: s.run})
		return
	}
	if !s.attach(conn) {
		_ = conn.Close()
		s.emit(Event{Kind: EventEnded, Run: s.run})
		return
	}

	s.emit(Event{Kind: EventStarted, Run: s.run})

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	s.wg.Wait()
	_ = conn.Close()

	if err := s.failure(); err != nil {
		s.emit(Event{Kind: EventError, Run: s.run, Message: err.Error()})
	}
	s.emit(Event{Kind: EventEnded, Run: s.run})
}

func (s *dgStream) connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// attach stores the dialed connection unless the stream was closed while
// dialing.
func (s *dgStream) attach(conn *websocket.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *dgStream) send(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.sendClosed {
		return ErrNotStreaming
	}
	select {
	case s.audio <- append([]byte(nil), pcm...):
		return nil
	case <-s.done:
		return ErrNotStreaming
	default:
		return ErrAudioBacklog
	}
}

func (s *dgStream) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.sendClosed {
		s.sendClosed = true
		close(s.audio)
	}
}

func (s *dgStream) close() {
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		s.closed = true
		conn := s.conn
		s.connMu.Unlock()

		s.closeSend()
		if s.cancel != nil {
			s.cancel()
		}
		if conn != nil {
			_ = conn.Close()
		}
	})
}

func (s *dgStream) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *dgStream) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *dgStream) writeLoop() {
	defer s.wg.Done()
	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			log.Debug().Err(err).Uint64("run", s.run).Msg("deepgram: audio write failed")
			return
		}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		log.Debug().Err(err).Uint64("run", s.run).Msg("deepgram: close stream failed")
	}
}

func (s *dgStream) readLoop() {
	defer s.wg.Done()
	defer s.closeSend()
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, net.ErrClosed) {
				s.setErr(fmt.Errorf("read deepgram event: %w", err))
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		if strings.EqualFold(resp.Type, "Error") {
			msg := strings.TrimSpace(resp.Message)
			if msg == "" {
				msg = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(msg))
			return
		}
		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		text := resp.Channel.Alternatives[0].Transcript
		ev := Event{Kind: EventResult, Run: s.run}
		if resp.IsFinal {
			if strings.TrimSpace(text) == "" {
				continue
			}
			ev.Final = []string{text}
		} else {
			ev.Interim = []string{text}
		}
		s.emit(ev)
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func buildListenURL(cfg DeepgramConfig) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base url: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
