package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/liveassist/internal/audio"
	"github.com/obiente/translate/liveassist/internal/capture"
	"github.com/obiente/translate/liveassist/internal/session"
)

// ErrSessionBusy is reported to a client that connects while another client
// owns the session.
var ErrSessionBusy = errors.New("another client is already connected")

const (
	EngineBrowser  = "browser"
	EngineDeepgram = "deepgram"

	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
)

type Options struct {
	// Engine selects where recognition runs: "browser" or "deepgram".
	Engine         string
	Locale         string
	Deepgram       capture.DeepgramConfig
	Context        string
	AllowedOrigins []string
	SourceLanguage string
	TargetLanguage string
	Language       session.Language
	// Publisher, when set, returns the event publisher for a new session.
	Publisher func(sessionID string) session.EventPublisher
}

// Server hosts a single live session over a websocket. The first client to
// connect owns it until it disconnects.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	mu       sync.Mutex
	busy     bool
}

func NewServer(opts Options) *Server {
	if opts.Engine == "" {
		opts.Engine = EngineBrowser
	}
	s := &Server{opts: opts}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024 * 16,
		WriteBufferSize: 1024 * 16,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.opts.AllowedOrigins, r.Header.Get("Origin"))
}

// Active reports whether a client currently owns the session.
func (s *Server) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// inbound is every message a client may send; Type selects the fields used.
type inbound struct {
	Type       string            `json:"type"`
	Supported  *bool             `json:"supported,omitempty"`
	Text       string            `json:"text,omitempty"`
	Event      capture.EventKind `json:"event,omitempty"`
	Run        uint64            `json:"run,omitempty"`
	Final      []string          `json:"final,omitempty"`
	Interim    []string          `json:"interim,omitempty"`
	Message    string            `json:"message,omitempty"`
	Data       string            `json:"data,omitempty"`
	Mime       string            `json:"mime_type,omitempty"`
	SampleRate int               `json:"sample_rate,omitempty"`
	TS         any               `json:"ts,omitempty"`
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if !s.acquire() {
		log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting connection: session busy")
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteJSON(map[string]any{"type": "error", "detail": ErrSessionBusy.Error()})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session busy"))
		return
	}
	defer s.release()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{
		srv:    s,
		conn:   conn,
		id:     uuid.NewString(),
		out:    make(chan any, 64),
		dirty:  make(chan struct{}, 1),
		closed: ctx.Done(),
	}
	c.logger = log.With().Str("component", "ws").Str("session", c.id).Logger()
	c.logger.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)

	cancel()
	if c.runDone != nil {
		<-c.runDone
	}
	<-writerDone
	c.logger.Info().Msg("client disconnected")
}

type client struct {
	srv    *Server
	conn   *websocket.Conn
	id     string
	logger zerolog.Logger

	out    chan any
	dirty  chan struct{}
	latest atomic.Pointer[session.Snapshot]
	closed <-chan struct{}

	orch     *session.Orchestrator
	relay    *capture.RelayEngine
	deepgram *capture.DeepgramEngine
	runDone  chan struct{}
}

// send queues a message for the writer without blocking the caller.
func (c *client) send(msg any) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return context.Canceled
	default:
		return errors.New("outbound queue full")
	}
}

// Update implements session.Sink. Only the newest snapshot is kept.
func (c *client) Update(snap session.Snapshot) {
	c.latest.Store(&snap)
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			if !c.write(msg) {
				return
			}
		case <-c.dirty:
			if snap := c.latest.Load(); snap != nil {
				if !c.write(map[string]any{"type": "state", "state": snap}) {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *client) write(msg any) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Msg("ws write failed")
		_ = c.conn.Close()
		return false
	}
	return true
}

func (c *client) readLoop(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(readTimeout)) })

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("ws read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.replyError("invalid json")
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *client) dispatch(ctx context.Context, msg inbound) {
	if msg.Type == "ping" {
		_ = c.send(map[string]any{"type": "pong", "ts": msg.TS})
		return
	}
	if msg.Type == "hello" {
		c.hello(ctx, msg)
		return
	}
	if c.orch == nil {
		c.replyError("hello required")
		return
	}

	var err error
	switch msg.Type {
	case "start":
		err = c.orch.Start()
	case "stop":
		err = c.orch.Stop()
	case "pause":
		err = c.orch.Pause()
	case "resume":
		err = c.orch.Resume()
	case "context":
		err = c.orch.SetContext(msg.Text)
	case "recognizer":
		if c.relay == nil {
			c.replyError("recognizer events are not accepted by this engine")
			return
		}
		c.relay.Deliver(capture.Event{Kind: msg.Event, Run: msg.Run, Final: msg.Final, Interim: msg.Interim, Message: msg.Message})
	case "chunk":
		c.chunk(msg)
	default:
		c.replyError("unknown message type")
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("type", msg.Type).Msg("command rejected")
		c.replyError(err.Error())
	}
}

// hello builds the session for this connection. A repeated hello only
// re-sends the configuration.
func (c *client) hello(ctx context.Context, msg inbound) {
	if c.orch == nil {
		opts := c.srv.opts
		var engine capture.Engine
		switch opts.Engine {
		case EngineDeepgram:
			c.deepgram = capture.NewDeepgramEngine(opts.Deepgram)
			engine = c.deepgram
		default:
			supported := msg.Supported != nil && *msg.Supported
			c.relay = capture.NewRelayEngine(supported, opts.Locale, func(cmd capture.Command) error { return c.send(cmd) })
			engine = c.relay
		}

		var pub session.EventPublisher
		if opts.Publisher != nil {
			pub = opts.Publisher(c.id)
		}
		c.orch = session.New(capture.NewAdapter(engine), opts.Language, session.Options{
			Engine:    opts.Engine,
			Context:   opts.Context,
			Sink:      c,
			Publisher: pub,
		})
		c.runDone = make(chan struct{})
		go func() {
			defer close(c.runDone)
			if err := c.orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("session loop exited")
			}
		}()
		c.logger.Info().Str("engine", opts.Engine).Msg("session created")
	}

	cfg := map[string]any{
		"type":            "config",
		"session_id":      c.id,
		"engine":          c.srv.opts.Engine,
		"locale":          c.srv.opts.Locale,
		"source_language": c.srv.opts.SourceLanguage,
		"target_language": c.srv.opts.TargetLanguage,
	}
	if c.deepgram != nil {
		cfg["sample_rate"] = c.deepgram.SampleRate()
	}
	_ = c.send(cfg)
	c.Update(c.orch.Snapshot())
}

func (c *client) chunk(msg inbound) {
	if c.deepgram == nil {
		c.replyError("audio is not accepted by this engine")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		c.replyError("invalid base64 audio")
		return
	}
	pcm, err := audio.ToLinear16(audio.Chunk{Data: raw, MimeType: msg.Mime, SampleRate: msg.SampleRate}, c.deepgram.SampleRate())
	if err != nil {
		c.logger.Warn().Err(err).Str("mime", msg.Mime).Msg("decode audio failed")
		c.replyError("decode audio failed")
		return
	}
	if err := c.deepgram.SendAudio(pcm); err != nil {
		if errors.Is(err, capture.ErrNotStreaming) {
			return
		}
		if errors.Is(err, capture.ErrAudioBacklog) {
			c.logger.Debug().Msg("audio chunk dropped")
			return
		}
		c.logger.Warn().Err(err).Msg("forward audio failed")
	}
}

func (c *client) replyError(detail string) {
	_ = c.send(map[string]any{"type": "error", "detail": detail})
}
