package translation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTranslatePostsLibreTranslatePayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"translatedText":" Hola. "}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "en", "es", "secret", time.Second)
	out, err := c.Translate(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "Hola." {
		t.Fatalf("got %q", out)
	}
	if got["q"] != "Hello." || got["source"] != "en" || got["target"] != "es" || got["api_key"] != "secret" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestTranslateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["q"] == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"translatedText":"  "}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "es", "", time.Second)
	if _, err := c.Translate(context.Background(), "fail"); err == nil {
		t.Fatalf("expected http error")
	}
	if _, err := c.Translate(context.Background(), "Hello."); !errors.Is(err, ErrEmptyTranslation) {
		t.Fatalf("expected ErrEmptyTranslation, got %v", err)
	}
	if out, err := c.Translate(context.Background(), "   "); err != nil || out != "" {
		t.Fatalf("blank input should short-circuit, got %q %v", out, err)
	}
}
