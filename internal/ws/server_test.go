package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obiente/translate/liveassist/internal/session"
)

type stubLanguage struct{}

func (stubLanguage) Translate(_ context.Context, text string) (string, error) {
	return "es:" + text, nil
}

func (stubLanguage) ClassifyQuestion(_ context.Context, text string) (bool, error) {
	return strings.HasSuffix(text, "?"), nil
}

func (stubLanguage) Answer(_ context.Context, q, _ string) (string, error) {
	return "answer to " + q, nil
}

type frame struct {
	Type   string           `json:"type"`
	Detail string           `json:"detail"`
	Run    uint64           `json:"run"`
	Engine string           `json:"engine"`
	State  session.Snapshot `json:"state"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitFrame reads until a frame satisfies match or the deadline passes.
func waitFrame(t *testing.T, conn *websocket.Conn, what string, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Language == nil {
		opts.Language = stubLanguage{}
	}
	s := NewServer(opts)
	hs := httptest.NewServer(http.HandlerFunc(s.Handle))
	t.Cleanup(hs.Close)
	return s, hs
}

func TestBrowserSessionAnswersQuestion(t *testing.T) {
	_, hs := newTestServer(t, Options{Locale: "en-US"})
	conn := dial(t, hs)

	sendJSON(t, conn, map[string]any{"type": "hello", "supported": true})
	cfg := waitFrame(t, conn, "config", func(f frame) bool { return f.Type == "config" })
	if cfg.Engine != EngineBrowser {
		t.Fatalf("unexpected engine %q", cfg.Engine)
	}

	sendJSON(t, conn, map[string]any{"type": "start"})
	cmd := waitFrame(t, conn, "recognizer_start", func(f frame) bool { return f.Type == "recognizer_start" })

	sendJSON(t, conn, map[string]any{"type": "recognizer", "event": "started", "run": cmd.Run})
	sendJSON(t, conn, map[string]any{"type": "recognizer", "event": "result", "run": cmd.Run, "final": []string{"What time is it?"}})

	f := waitFrame(t, conn, "answer", func(f frame) bool {
		for _, e := range f.State.Entries {
			if e.Kind == session.KindAnswer {
				return true
			}
		}
		return false
	})
	if f.State.Translation != "es:What time is it?" {
		t.Fatalf("unexpected translation %q", f.State.Translation)
	}
	if f.State.Entries[0].Text != "What time is it?" {
		t.Fatalf("unexpected transcription entry %+v", f.State.Entries[0])
	}

	sendJSON(t, conn, map[string]any{"type": "context", "text": "nope"})
	waitFrame(t, conn, "context locked error", func(f frame) bool {
		return f.Type == "error" && f.Detail == session.ErrContextLocked.Error()
	})

	sendJSON(t, conn, map[string]any{"type": "stop"})
	waitFrame(t, conn, "recognizer_stop", func(f frame) bool { return f.Type == "recognizer_stop" && f.Run == cmd.Run })
}

func TestContextSentJustBeforeStartIsApplied(t *testing.T) {
	_, hs := newTestServer(t, Options{})
	conn := dial(t, hs)

	sendJSON(t, conn, map[string]any{"type": "hello", "supported": true})
	sendJSON(t, conn, map[string]any{"type": "context", "text": "My name is Jane."})
	sendJSON(t, conn, map[string]any{"type": "start"})

	waitFrame(t, conn, "recognizer_start", func(f frame) bool {
		if f.Type == "error" {
			t.Fatalf("unexpected error %q", f.Detail)
		}
		return f.Type == "recognizer_start"
	})
	f := waitFrame(t, conn, "locked state", func(f frame) bool {
		if f.Type == "error" {
			t.Fatalf("unexpected error %q", f.Detail)
		}
		return f.Type == "state" && f.State.ContextLocked
	})
	if f.State.Context != "My name is Jane." {
		t.Fatalf("context edit lost: %q", f.State.Context)
	}
}

func TestUnsupportedBrowserStaysIdle(t *testing.T) {
	_, hs := newTestServer(t, Options{})
	conn := dial(t, hs)

	sendJSON(t, conn, map[string]any{"type": "hello", "supported": false})
	f := waitFrame(t, conn, "state", func(f frame) bool { return f.Type == "state" })
	if f.State.Supported {
		t.Fatalf("expected unsupported snapshot")
	}

	sendJSON(t, conn, map[string]any{"type": "start"})
	sendJSON(t, conn, map[string]any{"type": "ping", "ts": 1})
	waitFrame(t, conn, "pong", func(f frame) bool {
		if f.Type == "recognizer_start" {
			t.Fatalf("unsupported session must not start the recognizer")
		}
		return f.Type == "pong"
	})
}

func TestCommandsRequireHello(t *testing.T) {
	_, hs := newTestServer(t, Options{})
	conn := dial(t, hs)

	sendJSON(t, conn, map[string]any{"type": "start"})
	waitFrame(t, conn, "error", func(f frame) bool { return f.Type == "error" && f.Detail == "hello required" })
}

func TestSecondClientIsRejected(t *testing.T) {
	s, hs := newTestServer(t, Options{})
	first := dial(t, hs)
	sendJSON(t, first, map[string]any{"type": "hello", "supported": true})
	waitFrame(t, first, "config", func(f frame) bool { return f.Type == "config" })
	if !s.Active() {
		t.Fatalf("expected server to be active")
	}

	second := dial(t, hs)
	waitFrame(t, second, "busy error", func(f frame) bool {
		return f.Type == "error" && f.Detail == ErrSessionBusy.Error()
	})
}

func TestAudioRejectedForBrowserEngine(t *testing.T) {
	_, hs := newTestServer(t, Options{})
	conn := dial(t, hs)
	sendJSON(t, conn, map[string]any{"type": "hello", "supported": true})
	sendJSON(t, conn, map[string]any{"type": "chunk", "data": "AAAA"})
	waitFrame(t, conn, "error", func(f frame) bool { return f.Type == "error" && strings.Contains(f.Detail, "audio") })
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(Options{AllowedOrigins: []string{"https://app.example"}})
	r := httptest.NewRequest("GET", "/ws/session", nil)
	r.Header.Set("Origin", "https://evil.example")
	if s.checkOrigin(r) {
		t.Fatalf("unexpected origin accepted")
	}
	r.Header.Set("Origin", "https://app.example")
	if !s.checkOrigin(r) {
		t.Fatalf("allowed origin rejected")
	}
}
