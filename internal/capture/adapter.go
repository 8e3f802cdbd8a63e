package capture

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Adapter drives an Engine and owns the transcript it produces. Apart from
// Events and Close, its methods must be called from a single goroutine.
type Adapter struct {
	engine    Engine
	supported bool
	logger    zerolog.Logger

	ctx        context.Context
	run        uint64
	running    bool
	manualStop bool
	halted     bool
	// draining is a run stopped by Stop whose Ended has not arrived yet. Its
	// final results still count after a Resume has started a newer run.
	draining uint64

	finalized string
	interim   string
	listening bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewAdapter wraps engine. The engine's capability is queried once here and
// cached for the adapter's lifetime.
func NewAdapter(engine Engine) *Adapter {
	a := &Adapter{
		engine: engine,
		logger: log.With().Str("component", "capture").Logger(),
		ctx:    context.Background(),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	a.supported = engine != nil && engine.Supported()
	if !a.supported {
		a.logger.Warn().Msg("speech recognition is not supported in this environment")
	}
	return a
}

// Supported reports the cached capability check.
func (a *Adapter) Supported() bool { return a.supported }

// Listening reports whether the engine is currently delivering speech.
func (a *Adapter) Listening() bool { return a.listening }

// Running reports whether an engine run has been requested and not yet ended.
func (a *Adapter) Running() bool { return a.running }

// Transcript returns the current transcript values.
func (a *Adapter) Transcript() Transcript {
	return Transcript{Finalized: a.finalized, Interim: a.interim, Listening: a.listening}
}

// Events delivers engine events in the order the engine produced them.
func (a *Adapter) Events() <-chan Event { return a.events }

// Start begins a new capture session with an empty transcript. It logs and
// returns without effect when capture is unsupported or already running.
func (a *Adapter) Start(ctx context.Context) {
	if !a.supported {
		a.logger.Warn().Msg("start ignored: speech recognition unsupported")
		return
	}
	if a.running {
		a.logger.Warn().Uint64("run", a.run).Msg("start ignored: recognizer already running")
		return
	}
	a.finalized = ""
	a.interim = ""
	a.draining = 0
	a.ctx = ctx
	a.manualStop = false
	a.halted = false
	a.launch()
}

// Resume restarts the engine keeping the finalized transcript.
func (a *Adapter) Resume(ctx context.Context) {
	if !a.supported || a.running {
		return
	}
	a.ctx = ctx
	a.manualStop = false
	a.halted = false
	a.launch()
}

// Stop requests termination and suppresses automatic restart.
func (a *Adapter) Stop() {
	a.manualStop = true
	if !a.running {
		return
	}
	a.running = false
	a.listening = false
	a.interim = ""
	a.draining = a.run
	if err := a.engine.Stop(); err != nil {
		a.logger.Warn().Err(err).Uint64("run", a.run).Msg("recognizer stop failed")
	}
}

// Handle applies one engine event and reports whether the finalized
// transcript grew. Events from a superseded run are ignored, except the final
// results a stopped run flushes before its Ended.
func (a *Adapter) Handle(ev Event) bool {
	if ev.Run != a.run && ev.Run == a.draining && a.draining != 0 {
		return a.drain(ev)
	}
	if ev.Run != a.run {
		a.logger.Debug().Uint64("run", ev.Run).Uint64("current", a.run).Str("event", string(ev.Kind)).Msg("dropping stale recognizer event")
		return false
	}

	switch ev.Kind {
	case EventStarted:
		a.listening = true
		a.interim = ""
		a.logger.Debug().Uint64("run", ev.Run).Msg("recognizer started")
	case EventResult:
		final := strings.Join(ev.Final, "")
		a.interim = strings.Join(ev.Interim, "")
		if final != "" {
			a.finalized += final + " "
			return true
		}
	case EventEnded:
		if ev.Run == a.draining {
			a.draining = 0
		}
		a.listening = false
		a.interim = ""
		if a.manualStop || a.halted {
			a.running = false
			return false
		}
		a.running = false
		a.logger.Info().Uint64("run", ev.Run).Msg("recognizer ended on its own, restarting")
		a.launch()
	case EventError:
		a.listening = false
		a.interim = ""
		a.halted = true
		a.logger.Error().Str("error", ev.Message).Uint64("run", ev.Run).Msg("speech recognition error")
		if a.running {
			a.running = false
			if err := a.engine.Stop(); err != nil {
				a.logger.Debug().Err(err).Msg("recognizer stop after error failed")
			}
		}
	default:
		a.logger.Warn().Str("event", string(ev.Kind)).Msg("unknown recognizer event")
	}
	return false
}

// drain applies an event from a stopped run that was superseded by Resume.
// Only its final text is kept; the run no longer owns listening or interim.
func (a *Adapter) drain(ev Event) bool {
	switch ev.Kind {
	case EventResult:
		if final := strings.Join(ev.Final, ""); final != "" {
			a.finalized += final + " "
			return true
		}
	case EventEnded, EventError:
		a.draining = 0
	}
	return false
}

// Close stops any running engine and releases blocked emitters.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
	})
}

func (a *Adapter) launch() {
	a.run++
	run := a.run
	if err := a.engine.Start(a.ctx, run, a.emit); err != nil {
		a.running = false
		a.logger.Error().Err(err).Uint64("run", run).Msg("failed to start speech recognition")
		return
	}
	a.running = true
}

func (a *Adapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}
