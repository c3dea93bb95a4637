package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lk16/kibitz/internal/engine"
	"github.com/lk16/kibitz/internal/events"
	"github.com/lk16/kibitz/internal/metrics"
	"github.com/lk16/kibitz/internal/models"
	"github.com/lk16/kibitz/internal/uci"
)

// EngineName is reported in the Ready event of the builtin engine.
const EngineName = "kibitz material"

// Engine runs iterative searches in-process. It offers the same commands and events as
// engine.Session, but always reports a single line.
type Engine struct {
	searcher Searcher
	fixedCap time.Duration
	metrics  *metrics.Metrics
	bus      *events.Bus[models.Event]
	lines    *models.LineSet

	// wg tracks running searches
	wg sync.WaitGroup

	// mutex protects everything below
	mutex      sync.Mutex
	state      engine.State
	cfg        models.SessionConfig
	position   string
	findBest   bool
	timeLimit  time.Duration
	epoch      uint64
	cancel     context.CancelFunc
	engineName string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFixedCap changes the time limit of a single depth.
func WithFixedCap(fixedCap time.Duration) EngineOption {
	return func(e *Engine) {
		e.fixedCap = fixedCap
	}
}

// WithEngineMetrics replaces the metrics an Engine reports to.
func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an uninitialized Engine using searcher.
func NewEngine(searcher Searcher, cfg models.SessionConfig, options ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		searcher:   searcher,
		fixedCap:   DefaultFixedCap,
		metrics:    metrics.Default,
		bus:        events.NewBus[models.Event](),
		lines:      models.NewLineSet(),
		cfg:        cfg,
		engineName: EngineName,
	}

	for _, option := range options {
		option(e)
	}

	e.metrics.SessionsActive.WithLabelValues(models.EngineBuiltin).Inc()
	return e, nil
}

// Subscribe registers handler for all events of this engine.
func (e *Engine) Subscribe(handler events.Handler[models.Event]) func() {
	return e.bus.Subscribe(handler)
}

// Initialize makes the engine ready. There is no handshake, so it completes immediately.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mutex.Lock()

	switch e.state {
	case engine.Disposed:
		e.mutex.Unlock()
		return engine.ErrDisposed
	case engine.Ready, engine.Busy:
		e.mutex.Unlock()
		return nil
	}

	e.state = engine.Ready
	e.mutex.Unlock()

	e.emit(models.Ready{EngineName: e.engineName})
	return nil
}

// AnalyzePosition searches position within the configured time limit and depth.
func (e *Engine) AnalyzePosition(position string) uint64 {
	return e.start(position, false, 0)
}

// FindBestMove searches position within timeLimit. A non-positive timeLimit uses the
// configured time limit.
func (e *Engine) FindBestMove(position string, timeLimit time.Duration) uint64 {
	return e.start(position, true, timeLimit)
}

func (e *Engine) start(position string, findBest bool, timeLimit time.Duration) uint64 {
	position = uci.AdaptPosition(position)

	if _, err := ParsePosition(position); err != nil {
		if e.accepting() {
			e.emit(models.Error{Message: err.Error()})
		}
		return 0
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != engine.Ready && e.state != engine.Busy {
		slog.Debug("Ignoring command", "state", e.state.String())
		e.metrics.CommandsIgnored.Inc()
		return 0
	}

	e.position = position
	e.findBest = findBest
	e.timeLimit = timeLimit

	return e.startLocked()
}

func (e *Engine) accepting() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.state == engine.Ready || e.state == engine.Busy
}

// startLocked cancels the running search and starts a new one. Assumes mutex is held.
func (e *Engine) startLocked() uint64 {
	if e.cancel != nil {
		e.cancel()
	}

	budget := e.cfg.TimeLimit()
	maxDepth := e.cfg.Depth

	if e.findBest {
		if e.timeLimit > 0 {
			budget = e.timeLimit
		}
		maxDepth = max(maxDepth, maxFindBestDepth)
	}

	orchestrator := Orchestrator{
		Searcher: e.searcher,
		MaxDepth: maxDepth,
		Budget:   budget,
		FixedCap: e.fixedCap,
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.epoch++
	e.state = engine.Busy
	e.lines.Reset()

	epoch := e.epoch
	position := e.position

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.run(ctx, orchestrator, position, epoch)
	}()

	slog.Debug("Builtin search started", "epoch", epoch, "position", position, "max_depth", maxDepth, "budget", budget)
	return epoch
}

// maxFindBestDepth bounds time-limited searches, which are not limited by the configured depth.
const maxFindBestDepth = 64

func (e *Engine) run(ctx context.Context, orchestrator Orchestrator, position string, epoch uint64) {
	result := orchestrator.Run(ctx, position, func(evaluation uci.Evaluation) {
		e.metrics.DepthsCompleted.Inc()

		e.mutex.Lock()
		current := e.epoch == epoch && e.state != engine.Disposed
		if current {
			e.lines.Upsert(1, evaluation)
		}
		e.mutex.Unlock()

		if !current {
			e.metrics.EventsDiscarded.Inc()
			return
		}

		e.emit(models.Analysis{Evaluation: evaluation, Rank: 1, Epoch: epoch})
	})

	e.mutex.Lock()
	current := e.epoch == epoch && e.state != engine.Disposed
	if current {
		e.state = engine.Ready
	}
	e.mutex.Unlock()

	if !current {
		e.metrics.EventsDiscarded.Inc()
		return
	}

	e.emit(models.BestMove{Move: result.Evaluation.BestMove(), Epoch: epoch})
}

// UpdateConfig merges update into the configuration and restarts a loaded search if the
// configuration changed.
func (e *Engine) UpdateConfig(update models.ConfigUpdate) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	merged := e.cfg.Merge(update)
	if err := merged.Validate(); err != nil {
		return err
	}

	if merged == e.cfg {
		return nil
	}

	e.cfg = merged

	if e.state != engine.Ready && e.state != engine.Busy {
		return nil
	}

	if e.position != "" {
		if e.findBest && update.TimeLimitMs != nil {
			e.timeLimit = merged.TimeLimit()
		}
		e.startLocked()
	}

	return nil
}

// Stop cancels the running search. Its best move so far is still reported.
func (e *Engine) Stop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
}

// Dispose cancels the running search and removes all subscribers. Calling it again does
// nothing.
func (e *Engine) Dispose() {
	e.mutex.Lock()
	if e.state == engine.Disposed {
		e.mutex.Unlock()
		return
	}

	e.state = engine.Disposed
	if e.cancel != nil {
		e.cancel()
	}
	e.mutex.Unlock()

	e.bus.Close()
	e.metrics.SessionsActive.WithLabelValues(models.EngineBuiltin).Dec()
}

// Wait blocks until all started searches returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// State returns the current lifecycle state.
func (e *Engine) State() engine.State {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.state
}

// Config returns the current configuration.
func (e *Engine) Config() models.SessionConfig {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.cfg
}

// Epoch returns the epoch of the most recently started search.
func (e *Engine) Epoch() uint64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.epoch
}

// EngineName returns the name reported in the Ready event.
func (e *Engine) EngineName() string {
	return e.engineName
}

// Lines returns the line of the current search.
func (e *Engine) Lines() []models.Line {
	return e.lines.Lines()
}

func (e *Engine) emit(event models.Event) {
	e.metrics.EventsEmitted.WithLabelValues(event.EventName()).Inc()
	e.bus.Emit(event)
}
