package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Capture     CaptureConfig     `yaml:"capture"`
	Language    LanguageConfig    `yaml:"language"`
	Translation TranslationConfig `yaml:"translation"`
	Session     SessionConfig     `yaml:"session"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type CaptureConfig struct {
	// Engine is "browser" (client side speech API) or "deepgram".
	Engine   string         `yaml:"engine"`
	Locale   string         `yaml:"locale"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	SampleRate  int    `yaml:"sample_rate"`
	SmartFormat bool   `yaml:"smart_format"`
	StopGraceMS int    `yaml:"stop_grace_ms"`
}

type LanguageConfig struct {
	Backend string `yaml:"backend"` // openai, exec, mock
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Command string `yaml:"command"`
	// Translator is "backend" or "libretranslate".
	Translator               string  `yaml:"translator"`
	SourceLanguageName       string  `yaml:"source_language_name"`
	TargetLanguageName       string  `yaml:"target_language_name"`
	Persona                  string  `yaml:"persona"`
	TimeoutSec               int     `yaml:"timeout_sec"`
	TranslateTemperature     float64 `yaml:"translate_temperature"`
	TranslateReasoningEffort string  `yaml:"translate_reasoning_effort"`
	AnswerTemperature        float64 `yaml:"answer_temperature"`
	AnswerMaxTokens          int     `yaml:"answer_max_tokens"`
	AnswerReasoningEffort    string  `yaml:"answer_reasoning_effort"`
	MockDelayMS              int     `yaml:"mock_delay_ms"`
}

type TranslationConfig struct {
	BaseURL    string `yaml:"base_url"`
	Source     string `yaml:"source"`
	Target     string `yaml:"target"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type SessionConfig struct {
	// Context seeds the answer context of every new connection.
	Context     string `yaml:"context"`
	ContextFile string `yaml:"context_file"`
}

type TelemetryConfig struct {
	LogLevel string `yaml:"log_level"`
	// TraceExporter is "stdout", "otlp" or "none".
	TraceExporter  string `yaml:"trace_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

func Default() Config {
	return Config{
		ServiceName: "liveassist",
		Environment: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 60,
		},
		Capture: CaptureConfig{
			Engine: "browser",
			Locale: "en-US",
			Deepgram: DeepgramConfig{
				BaseURL:     "https://api.deepgram.com/v1",
				Model:       "nova-2",
				SampleRate:  16000,
				SmartFormat: true,
				StopGraceMS: 3000,
			},
		},
		Language: LanguageConfig{
			Backend:                  "openai",
			BaseURL:                  "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:                    "gemini-2.5-flash",
			Translator:               "backend",
			SourceLanguageName:       "English",
			TargetLanguageName:       "Spanish",
			TimeoutSec:               20,
			TranslateTemperature:     0.2,
			TranslateReasoningEffort: "none",
			AnswerTemperature:        0.7,
			AnswerMaxTokens:          150,
			AnswerReasoningEffort:    "low",
		},
		Translation: TranslationConfig{
			BaseURL:    "https://libretranslate.obiente.cloud",
			Source:     "en",
			Target:     "es",
			TimeoutSec: 8,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			TraceExporter:  "none",
			OTLPInsecure:   true,
			MetricsEnabled: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "liveassist",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := loadContextFile(&cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "LIVEASSIST_SERVICE_NAME")
	overrideString(&cfg.Environment, "LIVEASSIST_ENVIRONMENT")
	overrideString(&cfg.HTTP.Addr, "LIVEASSIST_ADDR")
	overrideInt(&cfg.HTTP.ReadTimeoutSec, "LIVEASSIST_HTTP_READ_TIMEOUT_SEC")
	overrideInt(&cfg.HTTP.WriteTimeoutSec, "LIVEASSIST_HTTP_WRITE_TIMEOUT_SEC")
	overrideStringSlice(&cfg.HTTP.AllowedOrigins, "LIVEASSIST_HTTP_ALLOWED_ORIGINS")

	overrideString(&cfg.Capture.Engine, "LIVEASSIST_CAPTURE_ENGINE")
	overrideString(&cfg.Capture.Locale, "LIVEASSIST_CAPTURE_LOCALE")
	if cfg.Capture.Deepgram.APIKey == "" {
		cfg.Capture.Deepgram.APIKey = getenv("DEEPGRAM_API_KEY", "")
	}
	overrideString(&cfg.Capture.Deepgram.APIKey, "LIVEASSIST_DEEPGRAM_API_KEY")
	overrideString(&cfg.Capture.Deepgram.BaseURL, "LIVEASSIST_DEEPGRAM_BASE_URL")
	overrideString(&cfg.Capture.Deepgram.Model, "LIVEASSIST_DEEPGRAM_MODEL")
	overrideInt(&cfg.Capture.Deepgram.SampleRate, "LIVEASSIST_DEEPGRAM_SAMPLE_RATE")
	overrideBool(&cfg.Capture.Deepgram.SmartFormat, "LIVEASSIST_DEEPGRAM_SMART_FORMAT")
	overrideInt(&cfg.Capture.Deepgram.StopGraceMS, "LIVEASSIST_DEEPGRAM_STOP_GRACE_MS")

	overrideString(&cfg.Language.Backend, "LIVEASSIST_LANGUAGE_BACKEND")
	if cfg.Language.APIKey == "" {
		cfg.Language.APIKey = getenv("API_KEY", getenv("GEMINI_API_KEY", getenv("OPENAI_API_KEY", "")))
	}
	overrideString(&cfg.Language.APIKey, "LIVEASSIST_LANGUAGE_API_KEY")
	overrideString(&cfg.Language.BaseURL, "LIVEASSIST_LANGUAGE_BASE_URL")
	overrideString(&cfg.Language.Model, "LIVEASSIST_LANGUAGE_MODEL")
	overrideString(&cfg.Language.Command, "LIVEASSIST_LANGUAGE_COMMAND")
	overrideString(&cfg.Language.Translator, "LIVEASSIST_LANGUAGE_TRANSLATOR")
	overrideString(&cfg.Language.SourceLanguageName, "LIVEASSIST_SOURCE_LANGUAGE")
	overrideString(&cfg.Language.TargetLanguageName, "LIVEASSIST_TARGET_LANGUAGE")
	overrideString(&cfg.Language.Persona, "LIVEASSIST_PERSONA")
	overrideInt(&cfg.Language.TimeoutSec, "LIVEASSIST_LANGUAGE_TIMEOUT_SEC")
	overrideFloat(&cfg.Language.TranslateTemperature, "LIVEASSIST_TRANSLATE_TEMPERATURE")
	overrideString(&cfg.Language.TranslateReasoningEffort, "LIVEASSIST_TRANSLATE_REASONING_EFFORT")
	overrideFloat(&cfg.Language.AnswerTemperature, "LIVEASSIST_ANSWER_TEMPERATURE")
	overrideInt(&cfg.Language.AnswerMaxTokens, "LIVEASSIST_ANSWER_MAX_TOKENS")
	overrideString(&cfg.Language.AnswerReasoningEffort, "LIVEASSIST_ANSWER_REASONING_EFFORT")
	overrideInt(&cfg.Language.MockDelayMS, "LIVEASSIST_MOCK_DELAY_MS")

	overrideString(&cfg.Translation.BaseURL, "TRANSLATION_BASE_URL")
	overrideString(&cfg.Translation.BaseURL, "LIVEASSIST_TRANSLATION_BASE_URL")
	overrideString(&cfg.Translation.Source, "LIVEASSIST_TRANSLATION_SOURCE")
	overrideString(&cfg.Translation.Target, "LIVEASSIST_TRANSLATION_TARGET")
	overrideString(&cfg.Translation.APIKey, "LIVEASSIST_TRANSLATION_API_KEY")
	overrideInt(&cfg.Translation.TimeoutSec, "TRANSLATION_TIMEOUT")
	overrideInt(&cfg.Translation.TimeoutSec, "LIVEASSIST_TRANSLATION_TIMEOUT_SEC")

	overrideString(&cfg.Session.Context, "LIVEASSIST_SESSION_CONTEXT")
	overrideString(&cfg.Session.ContextFile, "LIVEASSIST_SESSION_CONTEXT_FILE")

	overrideString(&cfg.Telemetry.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogLevel, "LIVEASSIST_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LIVEASSIST_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LIVEASSIST_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LIVEASSIST_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.MetricsEnabled, "LIVEASSIST_METRICS_ENABLED")

	overrideBool(&cfg.Bus.Enabled, "LIVEASSIST_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "LIVEASSIST_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LIVEASSIST_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LIVEASSIST_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LIVEASSIST_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LIVEASSIST_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LIVEASSIST_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "LIVEASSIST_BUS_SUBJECT_PREFIX")
}

func loadContextFile(cfg *Config) error {
	if cfg.Session.ContextFile == "" || cfg.Session.Context != "" {
		return nil
	}
	data, err := os.ReadFile(cfg.Session.ContextFile)
	if err != nil {
		return fmt.Errorf("read session context file: %w", err)
	}
	cfg.Session.Context = strings.TrimSpace(string(data))
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return errors.New("http.addr must not be empty")
	}
	switch cfg.Capture.Engine {
	case "browser", "deepgram":
	default:
		return errors.New("capture.engine must be one of browser|deepgram")
	}
	if cfg.Capture.Engine == "deepgram" && cfg.Capture.Deepgram.SampleRate <= 0 {
		return errors.New("capture.deepgram.sample_rate must be positive")
	}
	switch cfg.Language.Backend {
	case "openai":
		if strings.TrimSpace(cfg.Language.APIKey) == "" {
			return errors.New("language.api_key is required for the openai backend (set API_KEY)")
		}
	case "exec":
		if strings.TrimSpace(cfg.Language.Command) == "" {
			return errors.New("language.command must be set when backend=exec")
		}
	case "mock":
	default:
		return errors.New("language.backend must be one of openai|exec|mock")
	}
	switch cfg.Language.Translator {
	case "backend":
	case "libretranslate":
		if cfg.Translation.BaseURL == "" {
			return errors.New("translation.base_url must be set when language.translator=libretranslate")
		}
		if cfg.Translation.Target == "" {
			return errors.New("translation.target must not be empty")
		}
	default:
		return errors.New("language.translator must be one of backend|libretranslate")
	}
	if cfg.Language.SourceLanguageName == "" || cfg.Language.TargetLanguageName == "" {
		return errors.New("language source and target names must not be empty")
	}
	if cfg.Language.TimeoutSec <= 0 {
		return errors.New("language.timeout_sec must be positive")
	}
	if cfg.Language.AnswerMaxTokens <= 0 {
		return errors.New("language.answer_max_tokens must be positive")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Bus.Enabled && len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when the bus is enabled")
	}
	return nil
}
