package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/liveassist/internal/bus"
	"github.com/obiente/translate/liveassist/internal/capture"
	"github.com/obiente/translate/liveassist/internal/config"
	serverhttp "github.com/obiente/translate/liveassist/internal/http"
	"github.com/obiente/translate/liveassist/internal/language"
	"github.com/obiente/translate/liveassist/internal/session"
	"github.com/obiente/translate/liveassist/internal/telemetry"
	"github.com/obiente/translate/liveassist/internal/translation"
	"github.com/obiente/translate/liveassist/internal/ws"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("LIVEASSIST_CONFIG"), "path to a YAML config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(cfg.Telemetry.LogLevel); err == nil && cfg.Telemetry.LogLevel != "" {
		lvl = l
	}
	log.Logger = log.Level(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, metrics, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry setup failed")
	}

	lang, err := buildLanguage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("language backend setup failed")
	}

	var busClient *bus.Client
	if cfg.Bus.Enabled {
		busClient, err = bus.Connect(ctx, cfg.Bus)
		if err != nil {
			log.Warn().Err(err).Msg("event bus unavailable, continuing without it")
		}
	}

	wsOpts := ws.Options{
		Engine:         cfg.Capture.Engine,
		Locale:         cfg.Capture.Locale,
		Context:        cfg.Session.Context,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		SourceLanguage: cfg.Language.SourceLanguageName,
		TargetLanguage: cfg.Language.TargetLanguageName,
		Language:       lang,
		Deepgram: capture.DeepgramConfig{
			APIKey:      cfg.Capture.Deepgram.APIKey,
			BaseURL:     cfg.Capture.Deepgram.BaseURL,
			Model:       cfg.Capture.Deepgram.Model,
			Language:    cfg.Capture.Locale,
			SampleRate:  cfg.Capture.Deepgram.SampleRate,
			SmartFormat: cfg.Capture.Deepgram.SmartFormat,
			StopGrace:   time.Duration(cfg.Capture.Deepgram.StopGraceMS) * time.Millisecond,
		},
	}
	if busClient != nil {
		wsOpts.Publisher = func(id string) session.EventPublisher {
			return bus.NewPublisher(busClient.Publish, cfg.Bus.SubjectPrefix, id)
		}
	}
	sessions := ws.NewServer(wsOpts)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: serverhttp.NewRouter(serverhttp.Deps{
			Session: sessions.Handle,
			Metrics: metrics,
			Ready: func() map[string]bool {
				checks := map[string]bool{}
				if cfg.Bus.Enabled {
					checks["bus"] = busClient.Healthy()
				}
				return checks
			},
		}),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.HTTP.Addr).
			Str("engine", cfg.Capture.Engine).
			Str("backend", cfg.Language.Backend).
			Msg("liveassist server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	busClient.Close()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

func buildLanguage(cfg config.Config) (*language.Client, error) {
	lc := cfg.Language

	var (
		backend language.Backend
		err     error
	)
	switch lc.Backend {
	case "exec":
		backend, err = language.NewExecBackend(lc.Command)
	case "mock":
		backend = language.NewMockBackend(time.Duration(lc.MockDelayMS) * time.Millisecond)
	default:
		backend, err = language.NewOpenAIBackend(language.OpenAIConfig{
			APIKey:  lc.APIKey,
			BaseURL: lc.BaseURL,
			Model:   lc.Model,
		})
	}
	if err != nil {
		return nil, err
	}

	opts := language.Options{
		SourceLanguage:           lc.SourceLanguageName,
		TargetLanguage:           lc.TargetLanguageName,
		Persona:                  lc.Persona,
		Timeout:                  time.Duration(lc.TimeoutSec) * time.Second,
		TranslateTemperature:     float32(lc.TranslateTemperature),
		TranslateReasoningEffort: lc.TranslateReasoningEffort,
		AnswerTemperature:        float32(lc.AnswerTemperature),
		AnswerMaxTokens:          lc.AnswerMaxTokens,
		AnswerReasoningEffort:    lc.AnswerReasoningEffort,
	}
	if lc.Translator == "libretranslate" {
		tc := cfg.Translation
		opts.Translator = translation.New(tc.BaseURL, tc.Source, tc.Target, tc.APIKey, time.Duration(tc.TimeoutSec)*time.Second)
	}
	return language.New(backend, opts), nil
}
