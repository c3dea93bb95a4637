package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lk16/kibitz/internal/events"
	"github.com/lk16/kibitz/internal/metrics"
	"github.com/lk16/kibitz/internal/models"
	"github.com/lk16/kibitz/internal/uci"
)

const (
	// DefaultInitTimeout bounds the handshake.
	DefaultInitTimeout = 10 * time.Second

	// DefaultHashMB is the engine hash table size.
	DefaultHashMB = 128

	// DefaultThreads is the number of engine search threads.
	DefaultThreads = 1
)

var (
	// ErrInitializationTimeout is returned when the handshake does not complete in time.
	ErrInitializationTimeout = errors.New("engine initialization timed out")

	// ErrProcessFailure is reported when the engine becomes unusable.
	ErrProcessFailure = errors.New("engine process failure")

	// ErrDisposed is returned when using a disposed session.
	ErrDisposed = errors.New("session is disposed")
)

// State is the lifecycle state of a Session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Busy
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Busy:
		return "busy"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type searchKind int

const (
	searchDepth searchKind = iota
	searchMovetime
)

// searchRequest remembers how the loaded position was last searched.
type searchRequest struct {
	kind       searchKind
	movetimeMs int
}

// Option configures a Session.
type Option func(*Session)

// WithInitTimeout changes how long Initialize waits for the handshake.
func WithInitTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.initTimeout = timeout
	}
}

// WithHashMB sets the Hash option sent during the handshake.
func WithHashMB(hashMB int) Option {
	return func(s *Session) {
		s.hashMB = hashMB
	}
}

// WithThreads sets the Threads option sent during the handshake.
func WithThreads(threads int) Option {
	return func(s *Session) {
		s.threads = threads
	}
}

// WithMetrics replaces the metrics a Session reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session owns one engine channel. It drives the handshake, issues commands and turns
// engine output into events for its subscribers.
//
// Every search gets a new epoch. Searches that were issued but have not announced their
// best move yet are kept in order, so output of a superseded search is recognized and
// dropped instead of being attributed to the current one.
type Session struct {
	open        Opener
	initTimeout time.Duration
	hashMB      int
	threads     int
	metrics     *metrics.Metrics

	bus   *events.Bus[models.Event]
	lines *models.LineSet

	// ready is closed when the handshake completes
	ready chan struct{}

	// disposed is closed by Dispose
	disposed chan struct{}

	// loopDone is closed when the engine output ends
	loopDone chan struct{}

	// initFailed is closed when the engine could not be configured during the handshake
	initFailed chan struct{}

	// mutex protects everything below
	mutex      sync.Mutex
	state      State
	cfg        models.SessionConfig
	channel    Channel
	position   string
	lastSearch searchRequest
	epoch      uint64
	inFlight   []uint64
	newGame    bool
	failed     bool
	engineName string
}

// NewSession creates an uninitialized Session. The engine is opened by Initialize.
func NewSession(open Opener, cfg models.SessionConfig, options ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		open:        open,
		initTimeout: DefaultInitTimeout,
		hashMB:      DefaultHashMB,
		threads:     DefaultThreads,
		metrics:     metrics.Default,
		bus:         events.NewBus[models.Event](),
		lines:       models.NewLineSet(),
		ready:       make(chan struct{}),
		disposed:    make(chan struct{}),
		loopDone:    make(chan struct{}),
		initFailed:  make(chan struct{}),
		cfg:         cfg,
	}

	for _, option := range options {
		option(s)
	}

	s.metrics.SessionsActive.WithLabelValues(models.EngineUCI).Inc()
	return s, nil
}

// Subscribe registers handler for all events of this session.
func (s *Session) Subscribe(handler events.Handler[models.Event]) func() {
	return s.bus.Subscribe(handler)
}

// Initialize opens the engine and performs the handshake. It returns once the engine is
// ready, or ErrInitializationTimeout if that takes too long. After a timeout the session
// stays in Initializing and Initialize may be called again.
func (s *Session) Initialize(ctx context.Context) error {
	s.mutex.Lock()

	switch s.state {
	case Disposed:
		s.mutex.Unlock()
		return ErrDisposed
	case Ready, Busy:
		s.mutex.Unlock()
		return nil
	case Uninitialized:
		channel, err := s.open(ctx)
		if err != nil {
			s.mutex.Unlock()
			return fmt.Errorf("failed to open engine: %w", err)
		}

		s.channel = channel
		s.state = Initializing
		go s.readLoop(channel)
	case Initializing:
		if s.failed {
			s.mutex.Unlock()
			return fmt.Errorf("%w: engine failed during handshake", ErrProcessFailure)
		}
		slog.Debug("Retrying engine handshake")
	}

	err := s.channel.Send(uci.CmdUCI)
	s.mutex.Unlock()

	if err != nil {
		return fmt.Errorf("%w: failed to send handshake: %w", ErrProcessFailure, err)
	}

	timer := time.NewTimer(s.initTimeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-timer.C:
		slog.Warn("Engine handshake timed out", "timeout", s.initTimeout)
		return ErrInitializationTimeout
	case <-s.disposed:
		return ErrDisposed
	case <-s.loopDone:
		return fmt.Errorf("%w: engine exited during handshake", ErrProcessFailure)
	case <-s.initFailed:
		return fmt.Errorf("%w: failed to configure engine", ErrProcessFailure)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AnalyzePosition starts a depth-bounded analysis of position and returns its epoch.
// It returns zero when the session is not ready, in which case nothing is sent.
func (s *Session) AnalyzePosition(position string) uint64 {
	var epoch uint64

	s.locked(func() []models.Event {
		if !s.acceptsCommands(models.CommandAnalyzePosition) {
			return nil
		}

		s.position = uci.AdaptPosition(position)
		s.lastSearch = searchRequest{kind: searchDepth}

		var err error
		if epoch, err = s.startSearch(); err != nil {
			return s.fail(err)
		}

		return nil
	})

	return epoch
}

// FindBestMove starts a search of position limited to timeLimit and returns its epoch.
// A non-positive timeLimit uses the configured time limit.
func (s *Session) FindBestMove(position string, timeLimit time.Duration) uint64 {
	var epoch uint64

	s.locked(func() []models.Event {
		if !s.acceptsCommands(models.CommandFindBestMove) {
			return nil
		}

		movetimeMs := int(timeLimit.Milliseconds())
		if movetimeMs <= 0 {
			movetimeMs = s.cfg.TimeLimitMs
		}

		s.position = uci.AdaptPosition(position)
		s.lastSearch = searchRequest{kind: searchMovetime, movetimeMs: movetimeMs}

		var err error
		if epoch, err = s.startSearch(); err != nil {
			return s.fail(err)
		}

		return nil
	})

	return epoch
}

// UpdateConfig merges update into the configuration. When the line count changes the
// engine option is sent again, and a loaded position is searched again with the new
// configuration. An update that changes nothing has no effect.
func (s *Session) UpdateConfig(update models.ConfigUpdate) error {
	var err error

	s.locked(func() []models.Event {
		merged := s.cfg.Merge(update)
		if err = merged.Validate(); err != nil {
			return nil
		}

		if merged == s.cfg {
			return nil
		}

		lineCountChanged := merged.LineCount != s.cfg.LineCount
		s.cfg = merged

		// Before the handshake the new values are sent as part of it.
		if !s.acceptsCommands(models.CommandUpdateConfig) {
			return nil
		}

		if lineCountChanged {
			commands := []string{uci.SetOption(uci.OptionMultiPV, merged.LineCount)}
			if s.state == Busy {
				commands = append([]string{uci.CmdStop}, commands...)
			}

			if sendErr := s.send(commands...); sendErr != nil {
				return s.fail(sendErr)
			}
		}

		if s.position == "" {
			return nil
		}

		if s.lastSearch.kind == searchMovetime && update.TimeLimitMs != nil {
			s.lastSearch.movetimeMs = merged.TimeLimitMs
		}

		if _, sendErr := s.startSearch(); sendErr != nil {
			return s.fail(sendErr)
		}

		return nil
	})

	return err
}

// Stop asks the engine to stop the current search.
func (s *Session) Stop() {
	s.locked(func() []models.Event {
		if !s.acceptsCommands(models.CommandStop) {
			return nil
		}

		if err := s.send(uci.CmdStop); err != nil {
			return s.fail(err)
		}

		return nil
	})
}

// Dispose releases the engine and removes all subscribers. Calling it again does nothing.
// Once Dispose returns, neither commands nor engine output produce events. A handler
// already running when Dispose is called is not waited for.
func (s *Session) Dispose() {
	s.mutex.Lock()
	if s.state == Disposed {
		s.mutex.Unlock()
		return
	}

	s.state = Disposed
	channel := s.channel
	close(s.disposed)
	s.mutex.Unlock()

	s.bus.Close()
	s.metrics.SessionsActive.WithLabelValues(models.EngineUCI).Dec()

	if channel == nil {
		return
	}

	if err := channel.Close(); err != nil {
		slog.Error("Failed to close engine", "error", err)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.state
}

// Config returns the current configuration.
func (s *Session) Config() models.SessionConfig {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.cfg
}

// Epoch returns the epoch of the most recently issued search.
func (s *Session) Epoch() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.epoch
}

// EngineName returns the name the engine reported during the handshake.
func (s *Session) EngineName() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.engineName
}

// Lines returns the lines of the current search.
func (s *Session) Lines() []models.Line {
	return s.lines.Lines()
}

// locked runs fn with the mutex held and emits the events it returns afterwards, so
// handlers can call back into the session.
func (s *Session) locked(fn func() []models.Event) {
	s.mutex.Lock()
	pending := fn()
	s.mutex.Unlock()

	for _, event := range pending {
		s.emit(event)
	}
}

func (s *Session) emit(event models.Event) {
	s.metrics.EventsEmitted.WithLabelValues(event.EventName()).Inc()
	s.bus.Emit(event)
}

// acceptsCommands reports whether commands can be sent. Assumes mutex is held.
func (s *Session) acceptsCommands(command string) bool {
	if (s.state == Ready || s.state == Busy) && !s.failed {
		return true
	}

	slog.Debug("Ignoring command", "command", command, "state", s.state.String(), "failed", s.failed)
	s.metrics.CommandsIgnored.Inc()
	return false
}

// send writes commands in order. Assumes mutex is held.
func (s *Session) send(commands ...string) error {
	for _, command := range commands {
		if err := s.channel.Send(command); err != nil {
			return fmt.Errorf("failed to send %q: %w", command, err)
		}
		s.metrics.CommandsSent.Inc()
	}

	return nil
}

// startSearch stops whatever runs and searches the loaded position. Assumes mutex is held.
func (s *Session) startSearch() (uint64, error) {
	commands := []string{uci.CmdStop}

	if !s.newGame {
		commands = append(commands, uci.CmdUCINewGame)
		s.newGame = true
	}

	commands = append(commands, uci.PositionFEN(s.position))

	switch s.lastSearch.kind {
	case searchMovetime:
		commands = append(commands, uci.GoMovetime(s.lastSearch.movetimeMs))
	default:
		commands = append(commands, uci.GoDepth(s.cfg.Depth))
	}

	if err := s.send(commands...); err != nil {
		return 0, err
	}

	s.epoch++
	s.inFlight = append(s.inFlight, s.epoch)
	s.lines.Reset()
	s.state = Busy

	slog.Debug("Search started", "epoch", s.epoch, "position", s.position, "in_flight", len(s.inFlight))
	return s.epoch, nil
}

// fail marks the session unusable and returns the Error event, once. Assumes mutex is held.
func (s *Session) fail(err error) []models.Event {
	if s.failed {
		return nil
	}

	s.failed = true
	s.metrics.EngineFailures.Inc()

	if !errors.Is(err, ErrProcessFailure) {
		err = fmt.Errorf("%w: %w", ErrProcessFailure, err)
	}

	slog.Error("Engine failed", "error", err)
	return []models.Event{models.Error{Message: err.Error()}}
}

func (s *Session) readLoop(channel Channel) {
	defer close(s.loopDone)

	for line := range channel.Lines() {
		s.handleLine(line)
	}

	s.locked(func() []models.Event {
		switch s.state {
		case Disposed:
			return nil
		case Ready, Busy:
			err := channel.Err()
			if err == nil {
				err = errOutputClosed
			}
			return s.fail(err)
		default:
			s.failed = true
			return nil
		}
	})
}

func (s *Session) handleLine(line string) {
	event, err := uci.ParseLine(line)
	if err != nil {
		slog.Warn("Failed to parse engine output", "line", line, "error", err)
		s.metrics.ParseWarnings.Inc()
		return
	}

	if event == nil {
		return
	}

	s.locked(func() []models.Event {
		if s.state == Disposed {
			return nil
		}

		return s.handleEvent(event)
	})
}

// handleEvent applies one parsed engine event. Assumes mutex is held.
func (s *Session) handleEvent(event uci.Event) []models.Event {
	switch e := event.(type) {
	case uci.ID:
		if e.Key == "name" {
			s.engineName = e.Value
		}
		return nil

	case uci.UCIOK:
		if s.state != Initializing || s.failed {
			return nil
		}

		err := s.send(
			uci.SetOption(uci.OptionMultiPV, s.cfg.LineCount),
			uci.SetOption(uci.OptionHash, s.hashMB),
			uci.SetOption(uci.OptionThreads, s.threads),
			uci.SetOption(uci.OptionPonder, false),
			uci.CmdIsReady,
		)
		if err != nil {
			slog.Error("Failed to configure engine", "error", err)
			s.failed = true
			s.metrics.EngineFailures.Inc()
			close(s.initFailed)
		}
		return nil

	case uci.ReadyOK:
		if s.state != Initializing {
			return nil
		}

		s.state = Ready
		close(s.ready)
		slog.Info("Engine ready", "engine", s.engineName)
		return []models.Event{models.Ready{EngineName: s.engineName}}

	case uci.Info:
		if len(s.inFlight) == 0 || s.inFlight[0] != s.epoch {
			s.metrics.EventsDiscarded.Inc()
			return nil
		}

		s.lines.Upsert(e.Rank, e.Evaluation)
		return []models.Event{models.Analysis{Evaluation: e.Evaluation, Rank: e.Rank, Epoch: s.epoch}}

	case uci.BestMove:
		epoch := s.epoch
		if len(s.inFlight) > 0 {
			epoch = s.inFlight[0]
			s.inFlight = s.inFlight[1:]
		}

		if epoch != s.epoch {
			slog.Debug("Discarding best move of superseded search", "epoch", epoch, "current", s.epoch)
			s.metrics.EventsDiscarded.Inc()
			return nil
		}

		if s.state == Busy {
			s.state = Ready
		}

		return []models.Event{models.BestMove{Move: e.Move, Ponder: e.Ponder, Epoch: epoch}}
	}

	return nil
}
