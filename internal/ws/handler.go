package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/lk16/kibitz/internal/config"
	"github.com/lk16/kibitz/internal/engine"
	"github.com/lk16/kibitz/internal/events"
	"github.com/lk16/kibitz/internal/models"
	"github.com/lk16/kibitz/internal/repository"
	"github.com/lk16/kibitz/internal/search"
	"github.com/lk16/kibitz/internal/services"
	"github.com/lk16/kibitz/internal/uci"
)

const (
	saveTimeout = 2 * time.Second
)

var errNotInitialized = errors.New("session is not initialized, send init first")

// Conn is the part of a websocket connection the handler uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// Analyzer is an engine driven by a websocket client.
type Analyzer interface {
	Initialize(ctx context.Context) error
	AnalyzePosition(position string) uint64
	FindBestMove(position string, timeLimit time.Duration) uint64
	UpdateConfig(update models.ConfigUpdate) error
	Epoch() uint64
	Stop()
	Dispose()
	Subscribe(handler events.Handler[models.Event]) func()
}

// AnalyzerFactory creates an uninitialized Analyzer for an init command.
type AnalyzerFactory func(init models.Init) (Analyzer, error)

// NewAnalyzerFactory returns a factory creating UCI sessions or builtin engines.
func NewAnalyzerFactory(cfg *config.EngineConfig) AnalyzerFactory {
	return func(init models.Init) (Analyzer, error) {
		switch init.Engine {
		case "", models.EngineUCI:
			return engine.NewSession(
				engine.ProcessOpener(cfg.EnginePath),
				init.Config(),
				engine.WithInitTimeout(cfg.InitTimeout),
				engine.WithHashMB(cfg.HashMB),
				engine.WithThreads(cfg.Threads),
			)
		case models.EngineBuiltin:
			return search.NewEngine(search.MaterialSearcher{}, init.Config())
		default:
			return nil, fmt.Errorf("unknown engine: %s", init.Engine)
		}
	}
}

// request is a search started by the client.
type request struct {
	id       int
	position string
	best     *uci.Evaluation
}

// Handler serves one websocket client. Each client owns at most one Analyzer.
type Handler struct {
	services    *services.Services
	ws          Conn
	newAnalyzer AnalyzerFactory
	clientID    string

	// writeMutex serializes writes from the read loop and the analyzer
	writeMutex sync.Mutex

	// mutex protects everything below
	mutex       sync.Mutex
	analyzer    Analyzer
	unsubscribe func()
	initID      int
	requests    map[uint64]*request

	// latest is the most recently started request
	latest *request

	// pending is the request being started
	pending *request
}

// NewHandler creates a new Handler.
func NewHandler(ws Conn, services *services.Services, newAnalyzer AnalyzerFactory) *Handler {
	return &Handler{
		services:    services,
		ws:          ws,
		newAnalyzer: newAnalyzer,
		clientID:    uuid.New().String(),
		requests:    make(map[uint64]*request),
	}
}

func (h *Handler) readMessage() (*models.Incoming, error) {
	var req models.Incoming

	msgType, msg, err := h.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("ws read error: %w", err)
	}

	slog.Debug("read ws message", "client", h.clientID, "msgType", msgType, "msg", string(msg))

	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected message type: %d", msgType)
	}

	if err = json.Unmarshal(msg, &req); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	return &req, nil
}

func (h *Handler) writeMessage(outgoing *models.Outgoing) error {
	msg, err := json.Marshal(outgoing)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	slog.Debug("write ws message", "client", h.clientID, "msg", string(msg))

	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()

	if err = h.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write error: %w", err)
	}

	return nil
}

func (h *Handler) writeError(id int, err error) error {
	return h.writeMessage(models.NewOutgoing(id, models.Error{Message: err.Error()}))
}

// Handle serves the websocket connection until the client disconnects.
func (h *Handler) Handle(ctx context.Context) error {
	slog.Info("Client connected", "client", h.clientID)
	defer h.close()

	for {
		req, err := h.readMessage()
		if err != nil {
			return err
		}

		command, err := models.DecodeCommand(req)
		if err != nil {
			if err = h.writeError(req.ID, err); err != nil {
				return fmt.Errorf("ws write error: %w", err)
			}
			continue
		}

		if err = h.handleCommand(ctx, req.ID, command); err != nil {
			if err = h.writeError(req.ID, err); err != nil {
				return fmt.Errorf("ws write error: %w", err)
			}
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, id int, command models.Command) error {
	switch c := command.(type) {
	case models.Init:
		return h.handleInit(ctx, id, c)
	case models.AnalyzePosition:
		return h.startSearch(id, c.Position, func(analyzer Analyzer, position string) uint64 {
			return analyzer.AnalyzePosition(position)
		})
	case models.FindBestMove:
		timeLimit := time.Duration(c.TimeLimitMs) * time.Millisecond
		return h.startSearch(id, c.Position, func(analyzer Analyzer, position string) uint64 {
			return analyzer.FindBestMove(position, timeLimit)
		})
	case models.UpdateConfig:
		return h.updateConfig(c.Partial)
	case models.Stop:
		analyzer, err := h.currentAnalyzer()
		if err != nil {
			return err
		}
		analyzer.Stop()
		return nil
	default:
		return fmt.Errorf("unhandled command: %s", command.CommandName())
	}
}

func (h *Handler) handleInit(ctx context.Context, id int, init models.Init) error {
	if err := init.Config().Validate(); err != nil {
		return err
	}

	analyzer, err := h.newAnalyzer(init)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	h.mutex.Lock()
	previous, previousUnsubscribe := h.analyzer, h.unsubscribe
	h.analyzer = analyzer
	h.unsubscribe = analyzer.Subscribe(h.onEvent)
	h.initID = id
	h.requests = make(map[uint64]*request)
	h.latest = nil
	h.mutex.Unlock()

	if previous != nil {
		previousUnsubscribe()
		previous.Dispose()
	}

	// The Ready event is written by onEvent.
	if err = analyzer.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	return nil
}

func (h *Handler) currentAnalyzer() (Analyzer, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.analyzer == nil {
		return nil, errNotInitialized
	}

	return h.analyzer, nil
}

func (h *Handler) startSearch(id int, position string, start func(Analyzer, string) uint64) error {
	if _, err := search.ParsePosition(position); err != nil {
		return err
	}

	h.mutex.Lock()
	analyzer := h.analyzer
	if analyzer == nil {
		h.mutex.Unlock()
		return errNotInitialized
	}

	pending := &request{id: id, position: uci.AdaptPosition(position)}
	h.pending = pending
	h.mutex.Unlock()

	// Analyzers may emit before start returns, so correlate also knows the pending request.
	epoch := start(analyzer, position)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.pending = nil

	if epoch == 0 {
		slog.Debug("Search was not started", "client", h.clientID, "id", id)
		return nil
	}

	if _, ok := h.requests[epoch]; !ok {
		h.requests[epoch] = pending
	}
	h.latest = pending

	return nil
}

// updateConfig applies update. A search restarted by the analyzer answers to the request
// that started the previous one.
func (h *Handler) updateConfig(update models.ConfigUpdate) error {
	h.mutex.Lock()
	analyzer := h.analyzer
	if analyzer == nil {
		h.mutex.Unlock()
		return errNotInitialized
	}

	var restarted *request
	if h.latest != nil {
		restarted = &request{id: h.latest.id, position: h.latest.position}
	}
	h.pending = restarted
	h.mutex.Unlock()

	before := analyzer.Epoch()
	err := analyzer.UpdateConfig(update)
	after := analyzer.Epoch()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.pending = nil

	if err != nil || restarted == nil || after == before {
		return err
	}

	if _, ok := h.requests[after]; !ok {
		h.requests[after] = restarted
	}
	h.latest = restarted

	return nil
}

// lookup returns the request of epoch. Assumes mutex is held.
func (h *Handler) lookup(epoch uint64) (*request, bool) {
	if req, ok := h.requests[epoch]; ok {
		return req, true
	}

	if h.pending != nil {
		h.requests[epoch] = h.pending
		return h.pending, true
	}

	return nil, false
}

// onEvent forwards an analyzer event to the client.
func (h *Handler) onEvent(event models.Event) {
	id, save := h.correlate(event)

	if err := h.writeMessage(models.NewOutgoing(id, event)); err != nil {
		slog.Warn("Failed to forward event", "client", h.clientID, "event", event.EventName(), "error", err)
	}

	if save != nil {
		h.save(*save)
	}
}

// correlate returns the request ID of event and the analysis to store, if any.
func (h *Handler) correlate(event models.Event) (int, *models.StoredAnalysis) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	switch e := event.(type) {
	case models.Ready:
		return h.initID, nil

	case models.Analysis:
		req, ok := h.lookup(e.Epoch)
		if !ok {
			return 0, nil
		}

		if e.Rank == 1 {
			evaluation := e.Evaluation
			req.best = &evaluation
		}
		return req.id, nil

	case models.BestMove:
		req, ok := h.lookup(e.Epoch)
		if !ok {
			return 0, nil
		}

		// Searches finish in order, older ones will not report anymore.
		for epoch := range h.requests {
			if epoch <= e.Epoch {
				delete(h.requests, epoch)
			}
		}

		if req.best == nil || !uci.IsMove(e.Move) {
			return req.id, nil
		}

		stored := models.NewStoredAnalysis(req.position, e.Move, *req.best)
		return req.id, &stored
	}

	return 0, nil
}

func (h *Handler) save(analysis models.StoredAnalysis) {
	if !h.services.StorageEnabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	repo := repository.NewAnalysisRepositoryFromServices(h.services)

	stored, err := repo.SaveAnalysis(ctx, analysis)
	if err != nil {
		slog.Error("Failed to store analysis", "client", h.clientID, "position", analysis.Position, "error", err)
		return
	}

	slog.Debug("Analysis saved", "client", h.clientID, "position", analysis.Position, "depth", analysis.Depth, "stored", stored)
}

func (h *Handler) close() {
	h.mutex.Lock()
	analyzer, unsubscribe := h.analyzer, h.unsubscribe
	h.analyzer, h.unsubscribe = nil, nil
	h.mutex.Unlock()

	if analyzer != nil {
		unsubscribe()
		analyzer.Dispose()
	}

	slog.Info("Client disconnected", "client", h.clientID)
}
