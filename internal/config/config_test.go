package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "LIVEASSIST_LANGUAGE_API_KEY", "DEEPGRAM_API_KEY", "LIVEASSIST_DEEPGRAM_API_KEY", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresAPIKeyForOpenAI(t *testing.T) {
	clearKeys(t)

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestLoadDefaultsWithKey(t *testing.T) {
	clearKeys(t)
	t.Setenv("API_KEY", "k")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Language.APIKey != "k" {
		t.Fatalf("expected API_KEY fallback, got %q", cfg.Language.APIKey)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Capture.Engine != "browser" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Language.Model != "gemini-2.5-flash" || cfg.Language.AnswerMaxTokens != 150 {
		t.Fatalf("unexpected language defaults: %+v", cfg.Language)
	}
}

func TestAPIKeyFallbackOrder(t *testing.T) {
	clearKeys(t)
	t.Setenv("OPENAI_API_KEY", "openai")
	t.Setenv("GEMINI_API_KEY", "gemini")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Language.APIKey != "gemini" {
		t.Fatalf("expected gemini key to win, got %q", cfg.Language.APIKey)
	}

	t.Setenv("LIVEASSIST_LANGUAGE_API_KEY", "explicit")
	cfg, _ = Load("")
	if cfg.Language.APIKey != "explicit" {
		t.Fatalf("explicit key should override fallbacks, got %q", cfg.Language.APIKey)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearKeys(t)
	t.Setenv("LIVEASSIST_LANGUAGE_BACKEND", "mock")
	t.Setenv("LIVEASSIST_ADDR", ":9999")
	t.Setenv("LIVEASSIST_CAPTURE_ENGINE", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	t.Setenv("LIVEASSIST_TARGET_LANGUAGE", "French")
	t.Setenv("LIVEASSIST_ANSWER_MAX_TOKENS", "64")
	t.Setenv("LIVEASSIST_TRANSLATE_TEMPERATURE", "0.5")
	t.Setenv("LIVEASSIST_BUS_ENABLED", "true")
	t.Setenv("LIVEASSIST_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":9999" || cfg.Capture.Engine != "deepgram" || cfg.Capture.Deepgram.APIKey != "dg" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.Language.TargetLanguageName != "French" || cfg.Language.AnswerMaxTokens != 64 || cfg.Language.TranslateTemperature != 0.5 {
		t.Fatalf("unexpected language overrides: %+v", cfg.Language)
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("unexpected bus overrides: %+v", cfg.Bus)
	}
	if cfg.Telemetry.LogLevel != "debug" {
		t.Fatalf("expected LOG_LEVEL override, got %q", cfg.Telemetry.LogLevel)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearKeys(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "liveassist.yaml")
	contextPath := filepath.Join(dir, "context.txt")
	if err := os.WriteFile(contextPath, []byte("  My name is Jane.\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	yaml := `
language:
  backend: exec
  command: "python3 ./llm.py --fast"
  persona: "Jane, a marine biologist"
  translator: libretranslate
translation:
  base_url: http://localhost:5000
  target: fr
session:
  context_file: ` + contextPath + `
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Language.Backend != "exec" || cfg.Language.Command != "python3 ./llm.py --fast" {
		t.Fatalf("unexpected language config: %+v", cfg.Language)
	}
	if cfg.Translation.Target != "fr" || cfg.Translation.Source != "en" {
		t.Fatalf("unexpected translation config: %+v", cfg.Translation)
	}
	if cfg.Session.Context != "My name is Jane." {
		t.Fatalf("context file not loaded: %q", cfg.Session.Context)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"engine", func(c *Config) { c.Capture.Engine = "whisper" }, "capture.engine"},
		{"backend", func(c *Config) { c.Language.Backend = "ollama" }, "language.backend"},
		{"exec command", func(c *Config) { c.Language.Backend = "exec" }, "language.command"},
		{"translator", func(c *Config) { c.Language.Translator = "deepl" }, "language.translator"},
		{"otlp endpoint", func(c *Config) { c.Telemetry.TraceExporter = "otlp" }, "otlp_endpoint"},
		{"bus servers", func(c *Config) { c.Bus.Enabled = true; c.Bus.Servers = nil }, "bus.servers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Language.Backend = "mock"
			tc.mutate(&cfg)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
