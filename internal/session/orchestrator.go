package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/obiente/translate/liveassist/internal/capture"
	"github.com/obiente/translate/liveassist/internal/reconcile"
)

const instrumentationName = "github.com/obiente/translate/liveassist/session"

// Options configure an Orchestrator.
type Options struct {
	// Engine names the capture engine in snapshots.
	Engine string
	// Context seeds the session context.
	Context   string
	Sink      Sink
	Publisher EventPublisher
}

type job struct {
	gen     uint64
	seq     uint64
	text    string
	context string
}

// Orchestrator owns all state of one session. A single goroutine, started
// with Run, applies capture events, user commands and language completions
// in the order they arrive.
type Orchestrator struct {
	adapter *capture.Adapter
	lang    Language
	opts    Options
	logger  zerolog.Logger
	tracer  trace.Tracer

	cmds    chan func()
	results chan func()
	closed  chan struct{}
	last    atomic.Pointer[Snapshot]

	// Everything below is owned by the Run goroutine.
	ctx        context.Context
	gen        uint64
	genCtx     context.Context
	genCancel  context.CancelFunc
	active     bool
	paused     bool
	busy       bool
	reconciler reconcile.Reconciler
	pending    queue[job]
	entries    []Entry
	translated string
	notes      string
	errText    string
	lastState  State

	emitted   metric.Int64Counter
	completed metric.Int64Counter
	answered  metric.Int64Counter
}

func New(adapter *capture.Adapter, lang Language, opts Options) *Orchestrator {
	o := &Orchestrator{
		adapter: adapter,
		lang:    lang,
		opts:    opts,
		logger:  log.With().Str("component", "session").Logger(),
		tracer:  otel.Tracer(instrumentationName),
		cmds:    make(chan func()),
		results: make(chan func(), 16),
		closed:  make(chan struct{}),
		notes:   opts.Context,
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if o.emitted, err = meter.Int64Counter("liveassist.session.utterances", metric.WithDescription("Utterances emitted by the reconciler")); err != nil {
		o.logger.Warn().Err(err).Msg("failed to create utterance counter")
	}
	if o.completed, err = meter.Int64Counter("liveassist.session.utterances_completed", metric.WithDescription("Utterances fully processed")); err != nil {
		o.logger.Warn().Err(err).Msg("failed to create completion counter")
	}
	if o.answered, err = meter.Int64Counter("liveassist.session.answers", metric.WithDescription("Questions answered")); err != nil {
		o.logger.Warn().Err(err).Msg("failed to create answer counter")
	}
	snap := o.snapshot()
	o.last.Store(&snap)
	return o
}

// Run processes session work until ctx is done. Capture is stopped on exit.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	o.genCtx = ctx
	defer func() {
		o.adapter.Stop()
		if o.genCancel != nil {
			o.genCancel()
		}
		close(o.closed)
		o.adapter.Close()
	}()

	o.publish()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-o.cmds:
			fn()
		case fn := <-o.results:
			fn()
		case ev := <-o.adapter.Events():
			o.handleCapture(ev)
		}
	}
}

// Start begins a new session generation with empty conversation state.
func (o *Orchestrator) Start() error { return o.exec(o.start) }

// Stop ends capture. Visible state is kept and work already emitted still
// completes.
func (o *Orchestrator) Stop() error { return o.exec(o.stop) }

// Pause suspends capture while keeping the session active.
func (o *Orchestrator) Pause() error { return o.exec(o.pause) }

// Resume restarts capture after Pause without losing the transcript.
func (o *Orchestrator) Resume() error { return o.exec(o.resume) }

// SetContext replaces the session context. It fails with ErrContextLocked
// while capture is running.
func (o *Orchestrator) SetContext(text string) error {
	return o.exec(func() error {
		if o.adapter.Running() || o.adapter.Listening() {
			return ErrContextLocked
		}
		o.notes = text
		o.publish()
		return nil
	})
}

// Snapshot returns the most recently published state.
func (o *Orchestrator) Snapshot() Snapshot {
	return *o.last.Load()
}

func (o *Orchestrator) exec(fn func() error) error {
	done := make(chan error, 1)
	select {
	case o.cmds <- func() { done <- fn() }:
	case <-o.closed:
		return ErrClosed
	}
	return <-done
}

func (o *Orchestrator) post(fn func()) {
	select {
	case o.results <- fn:
	case <-o.closed:
	}
}

func (o *Orchestrator) start() error {
	if !o.adapter.Supported() {
		o.logger.Warn().Msg("start ignored: speech recognition unsupported")
		return nil
	}
	if o.active && !o.paused && o.adapter.Running() {
		o.logger.Debug().Uint64("generation", o.gen).Msg("start ignored: session already listening")
		return nil
	}
	if o.adapter.Running() {
		o.adapter.Stop()
	}

	o.gen++
	if o.genCancel != nil {
		o.genCancel()
	}
	o.genCtx, o.genCancel = context.WithCancel(o.ctx)

	o.reconciler.Reset()
	o.pending.reset()
	o.entries = nil
	o.translated = ""
	o.errText = ""
	o.busy = false
	o.active = true
	o.paused = false

	o.adapter.Start(o.ctx)
	o.logger.Info().Uint64("generation", o.gen).Msg("session started")
	o.publish()
	return nil
}

func (o *Orchestrator) stop() error {
	if !o.active {
		return nil
	}
	o.adapter.Stop()
	o.active = false
	o.paused = false
	o.logger.Info().Uint64("generation", o.gen).Int("pending", o.pending.len()).Msg("session stopped")
	o.publish()
	return nil
}

func (o *Orchestrator) pause() error {
	if !o.active || o.paused {
		return nil
	}
	o.adapter.Stop()
	o.paused = true
	o.publish()
	return nil
}

func (o *Orchestrator) resume() error {
	if !o.active || !o.paused {
		return nil
	}
	o.paused = false
	o.adapter.Resume(o.ctx)
	o.publish()
	return nil
}

func (o *Orchestrator) handleCapture(ev capture.Event) {
	if o.adapter.Handle(ev) {
		o.reconciler.Reconcile(o.adapter.Transcript().Finalized, o.emit)
	}
	o.publish()
}

// emit records a newly reconciled utterance and queues it for processing.
// The context is captured now, not when the utterance is processed.
func (o *Orchestrator) emit(u reconcile.Utterance) {
	o.appendEntry(Entry{ID: uuid.NewString(), Kind: KindTranscription, Text: u.Text, Seq: u.Seq})
	o.pending.push(job{gen: o.gen, seq: u.Seq, text: u.Text, context: o.notes})
	if o.emitted != nil {
		o.emitted.Add(o.ctx, 1)
	}
	o.pump()
}

func (o *Orchestrator) pump() {
	for !o.busy {
		j, ok := o.pending.pop()
		if !ok {
			return
		}
		if j.gen != o.gen {
			o.logger.Debug().Uint64("seq", j.seq).Uint64("generation", j.gen).Msg("dropping queued utterance from previous session")
			continue
		}
		o.busy = true
		o.errText = ""
		go o.process(o.genCtx, j)
	}
}

func (o *Orchestrator) process(ctx context.Context, j job) {
	ctx, span := o.tracer.Start(ctx, "session.utterance", trace.WithAttributes(
		attribute.Int64("utterance.seq", int64(j.seq)),
		attribute.Int64("session.generation", int64(j.gen)),
	))
	defer span.End()
	defer o.post(func() { o.finish(j) })
	defer func() {
		if r := recover(); r != nil {
			o.fail(j, fmt.Errorf("panic: %v", r))
		}
	}()

	var (
		wg          sync.WaitGroup
		translation string
		isQuestion  bool
		tErr, cErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tErr = guard(func() (err error) {
			translation, err = o.lang.Translate(ctx, j.text)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		cErr = guard(func() (err error) {
			isQuestion, err = o.lang.ClassifyQuestion(ctx, j.text)
			return err
		})
	}()
	wg.Wait()

	if tErr != nil {
		o.fail(j, fmt.Errorf("translate: %w", tErr))
		return
	}
	o.complete(j, func() { o.appendTranslation(j.seq, translation) })

	if cErr != nil {
		o.fail(j, fmt.Errorf("classify: %w", cErr))
		return
	}
	if !isQuestion {
		return
	}

	span.SetAttributes(attribute.Bool("utterance.question", true))
	answer, err := o.lang.Answer(ctx, j.text, j.context)
	if err != nil {
		o.fail(j, fmt.Errorf("answer: %w", err))
		return
	}
	o.complete(j, func() {
		o.appendEntry(Entry{ID: uuid.NewString(), Kind: KindAnswer, Text: answer, Seq: j.seq})
		if o.answered != nil {
			o.answered.Add(o.ctx, 1)
		}
	})
}

// complete applies fn on the loop unless a newer generation has started.
func (o *Orchestrator) complete(j job, fn func()) {
	o.post(func() {
		if j.gen != o.gen {
			o.logger.Debug().Uint64("seq", j.seq).Uint64("generation", j.gen).Msg("discarding stale completion")
			return
		}
		fn()
		o.publish()
	})
}

func (o *Orchestrator) fail(j job, err error) {
	o.logger.Error().Err(err).Uint64("seq", j.seq).Uint64("generation", j.gen).Msg("utterance processing failed")
	o.complete(j, func() { o.errText = ProcessingErrorText })
}

func (o *Orchestrator) finish(j job) {
	if j.gen != o.gen {
		return
	}
	o.busy = false
	if o.completed != nil {
		o.completed.Add(o.ctx, 1)
	}
	o.pump()
	o.publish()
}

func (o *Orchestrator) appendEntry(e Entry) {
	o.entries = append(o.entries, e)
	if o.opts.Publisher != nil {
		o.opts.Publisher.EntryAppended(e)
	}
}

func (o *Orchestrator) appendTranslation(seq uint64, line string) {
	if o.translated == "" {
		o.translated = line
	} else {
		o.translated += "\n" + line
	}
	if o.opts.Publisher != nil {
		o.opts.Publisher.TranslationAppended(seq, line)
	}
}

func (o *Orchestrator) state() State {
	switch {
	case !o.active:
		return StateIdle
	case o.paused:
		return StatePaused
	case o.busy:
		return StateProcessing
	default:
		return StateListening
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	tr := o.adapter.Transcript()
	snap := Snapshot{
		Supported:     o.adapter.Supported(),
		Engine:        o.opts.Engine,
		State:         o.state(),
		Listening:     tr.Listening,
		Paused:        o.paused,
		Active:        o.active,
		Processing:    o.busy,
		Entries:       slices.Clone(o.entries),
		Translation:   o.translated,
		Context:       o.notes,
		ContextLocked: o.adapter.Running() || tr.Listening,
		Error:         o.errText,
		Generation:    o.gen,
	}
	if tr.Listening {
		snap.Interim = tr.Interim
	}
	if snap.Entries == nil {
		snap.Entries = []Entry{}
	}
	return snap
}

func (o *Orchestrator) publish() {
	snap := o.snapshot()
	o.last.Store(&snap)
	if o.opts.Sink != nil {
		o.opts.Sink.Update(snap)
	}
	if snap.State != o.lastState {
		o.lastState = snap.State
		if o.opts.Publisher != nil {
			o.opts.Publisher.StateChanged(snap)
		}
	}
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
