package language

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TranslationErrorText = "[Translation Error]"
	AnswerErrorText      = "[Could not generate an answer]"
)

const instrumentationName = "github.com/obiente/translate/liveassist/language"

// Options tune prompts and per-call limits.
type Options struct {
	SourceLanguage string
	TargetLanguage string
	// Persona is prepended to the answer prompt when set.
	Persona string
	Timeout time.Duration

	TranslateTemperature     float32
	TranslateReasoningEffort string
	AnswerTemperature        float32
	AnswerMaxTokens          int
	AnswerReasoningEffort    string

	// Translator replaces the backend for translation when set.
	Translator Translator
}

func (o Options) withDefaults() Options {
	if o.SourceLanguage == "" {
		o.SourceLanguage = "English"
	}
	if o.TargetLanguage == "" {
		o.TargetLanguage = "Spanish"
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.AnswerMaxTokens <= 0 {
		o.AnswerMaxTokens = 150
	}
	return o
}

// Client wraps a Backend with the three session operations. Backend failures
// never surface as errors; they degrade to sentinel values instead. It holds
// no per-call state and is safe for concurrent use.
type Client struct {
	backend Backend
	opts    Options
	logger  zerolog.Logger
	tracer  trace.Tracer

	requests metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

func New(backend Backend, opts Options) *Client {
	meter := otel.Meter(instrumentationName)
	c := &Client{
		backend: backend,
		opts:    opts.withDefaults(),
		logger:  log.With().Str("component", "language").Logger(),
		tracer:  otel.Tracer(instrumentationName),
	}
	var err error
	if c.requests, err = meter.Int64Counter("liveassist.language.requests", metric.WithDescription("Language backend requests")); err != nil {
		c.logger.Warn().Err(err).Msg("failed to create request counter")
	}
	if c.failures, err = meter.Int64Counter("liveassist.language.failures", metric.WithDescription("Language backend requests that fell back to a default")); err != nil {
		c.logger.Warn().Err(err).Msg("failed to create failure counter")
	}
	if c.latency, err = meter.Float64Histogram("liveassist.language.latency", metric.WithUnit("ms"), metric.WithDescription("Language backend latency")); err != nil {
		c.logger.Warn().Err(err).Msg("failed to create latency histogram")
	}
	return c
}

// Translate returns text in the target language, or TranslationErrorText.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	var out string
	err := c.call(ctx, TaskTranslate, func(ctx context.Context) error {
		if c.opts.Translator != nil {
			res, err := c.opts.Translator.Translate(ctx, text)
			out = res
			return err
		}
		res, err := c.backend.Generate(ctx, Request{
			Task:            TaskTranslate,
			Prompt:          translatePrompt(c.opts.SourceLanguage, c.opts.TargetLanguage, text),
			Temperature:     c.opts.TranslateTemperature,
			ReasoningEffort: c.opts.TranslateReasoningEffort,
		})
		out = res
		return err
	})
	if err != nil {
		return TranslationErrorText, nil
	}
	return strings.TrimSpace(out), nil
}

// ClassifyQuestion reports whether text is a question. Failures and
// unreadable payloads count as not a question.
func (c *Client) ClassifyQuestion(ctx context.Context, text string) (bool, error) {
	var verdict bool
	err := c.call(ctx, TaskClassify, func(ctx context.Context) error {
		schema := questionSchema
		res, err := c.backend.Generate(ctx, Request{
			Task:       TaskClassify,
			Prompt:     classifyPrompt(c.opts.SourceLanguage, text),
			Schema:     &schema,
			SchemaName: "question_classification",
		})
		if err != nil {
			return err
		}
		verdict, err = parseClassification(res)
		return err
	})
	if err != nil {
		return false, nil
	}
	return verdict, nil
}

// Answer replies to question using the optional context. Blank context is
// left out of the request entirely.
func (c *Client) Answer(ctx context.Context, question, sessionContext string) (string, error) {
	var out string
	err := c.call(ctx, TaskAnswer, func(ctx context.Context) error {
		res, err := c.backend.Generate(ctx, Request{
			Task:            TaskAnswer,
			Prompt:          answerPrompt(c.opts.Persona, c.opts.SourceLanguage, question, sessionContext),
			Temperature:     c.opts.AnswerTemperature,
			MaxTokens:       c.opts.AnswerMaxTokens,
			ReasoningEffort: c.opts.AnswerReasoningEffort,
		})
		out = res
		return err
	})
	if err != nil {
		return AnswerErrorText, nil
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) call(ctx context.Context, task Task, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "language."+string(task))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("task", string(task)))
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if c.requests != nil {
		c.requests.Add(ctx, 1, attrs)
	}
	if c.latency != nil {
		c.latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.failures != nil {
			c.failures.Add(ctx, 1, attrs)
		}
		c.logger.Warn().Err(err).Str("task", string(task)).Dur("latency", elapsed).Msg("language request failed")
		return err
	}
	c.logger.Debug().Str("task", string(task)).Dur("latency", elapsed).Msg("language request complete")
	return nil
}

var errNoVerdict = errors.New("classification payload has no is_question field")

func parseClassification(payload string) (bool, error) {
	payload = strings.TrimSpace(payload)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")

	var out struct {
		IsQuestion *bool `json:"is_question"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &out); err != nil {
		return false, err
	}
	if out.IsQuestion == nil {
		return false, errNoVerdict
	}
	return *out.IsQuestion, nil
}
