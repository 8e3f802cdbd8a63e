package language

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
)

func TestOpenAIBackendRequiresKey(t *testing.T) {
	if _, err := NewOpenAIBackend(OpenAIConfig{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestOpenAIBackendSendsSchemaAndLimits(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"is_question\": true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	c := New(b, Options{})
	ok, _ := c.ClassifyQuestion(context.Background(), "Is it raining?")
	if !ok {
		t.Fatalf("expected question verdict from server")
	}
	if got["model"] != "test-model" {
		t.Fatalf("model = %v", got["model"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf == nil || rf["type"] != "json_schema" {
		t.Fatalf("missing json schema response format: %v", got["response_format"])
	}

	_, _ = c.Answer(context.Background(), "Why?", "")
	if got["max_tokens"] != float64(150) {
		t.Fatalf("max_tokens = %v", got["max_tokens"])
	}
}

func TestOpenAIBackendFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	got, _ := New(b, Options{}).Translate(context.Background(), "hello")
	if got != TranslationErrorText {
		t.Fatalf("got %q", got)
	}
}

func TestExecBackend(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	b, err := NewExecBackend(`sh -c 'cat >/dev/null; echo "{\"content\":\"hola\"}"'`)
	if err != nil {
		t.Fatalf("new exec backend: %v", err)
	}
	got, err := b.Generate(context.Background(), Request{Task: TaskTranslate, Prompt: "hello"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "hola" {
		t.Fatalf("got %q", got)
	}
}

func TestExecBackendRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecBackend("   "); err == nil {
		t.Fatalf("expected empty command error")
	}
}
