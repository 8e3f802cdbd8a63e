package http

import (
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed static
var static embed.FS

// Deps are the handlers and probes the router mounts.
type Deps struct {
	Session http.HandlerFunc
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Ready reports whether optional dependencies are usable.
	Ready func() map[string]bool
}

func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]bool{}
		if deps.Ready != nil {
			checks = deps.Ready()
		}
		status := http.StatusOK
		for _, ok := range checks {
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": checks})
	})
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	if deps.Session != nil {
		mux.HandleFunc("/ws/session", deps.Session)
	}

	sub, err := fs.Sub(static, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("embedded assets missing")
	}
	mux.Handle("/", http.FileServerFS(sub))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}
