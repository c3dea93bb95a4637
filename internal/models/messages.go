package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lk16/kibitz/internal/uci"
)

// Inbound command names.
const (
	CommandInit            = "init"
	CommandAnalyzePosition = "analyze_position"
	CommandFindBestMove    = "find_best_move"
	CommandUpdateConfig    = "update_config"
	CommandStop            = "stop"
)

// Outbound event names.
const (
	EventReady    = "ready"
	EventAnalysis = "analysis"
	EventBestMove = "best_move"
	EventError    = "error"
)

// Engine kinds a client can ask for in Init.
const (
	EngineUCI     = "uci"
	EngineBuiltin = "builtin"
)

// Command is a message from the surrounding application to a session.
type Command interface {
	CommandName() string
}

// Init creates and initializes a session.
type Init struct {
	LineCount   int    `json:"line_count"`
	Depth       int    `json:"depth"`
	TimeLimitMs int    `json:"time_limit_ms"`
	Engine      string `json:"engine,omitempty"`
}

// Config returns the session configuration, using defaults for zero fields.
func (i Init) Config() SessionConfig {
	cfg := DefaultSessionConfig()

	if i.LineCount != 0 {
		cfg.LineCount = i.LineCount
	}

	if i.Depth != 0 {
		cfg.Depth = i.Depth
	}

	if i.TimeLimitMs != 0 {
		cfg.TimeLimitMs = i.TimeLimitMs
	}

	return cfg
}

// AnalyzePosition starts a depth-bounded analysis.
type AnalyzePosition struct {
	Position string `json:"position"`
}

// FindBestMove starts a time-bounded search.
type FindBestMove struct {
	Position    string `json:"position"`
	TimeLimitMs int    `json:"time_limit_ms"`
}

// UpdateConfig changes part of the session configuration.
type UpdateConfig struct {
	Partial ConfigUpdate `json:"partial"`
}

// Stop asks the engine to stop searching.
type Stop struct{}

func (Init) CommandName() string            { return CommandInit }
func (AnalyzePosition) CommandName() string { return CommandAnalyzePosition }
func (FindBestMove) CommandName() string    { return CommandFindBestMove }
func (UpdateConfig) CommandName() string    { return CommandUpdateConfig }
func (Stop) CommandName() string            { return CommandStop }

// Event is a message from a session to the surrounding application.
type Event interface {
	EventName() string
}

// Ready is emitted once the engine handshake completed.
type Ready struct {
	EngineName string `json:"engine_name,omitempty"`
}

// Analysis carries a new evaluation for one line. Epoch identifies the search it belongs to.
type Analysis struct {
	Evaluation uci.Evaluation `json:"evaluation"`
	Rank       uint           `json:"rank"`
	Epoch      uint64         `json:"epoch"`
}

// BestMove is emitted when a search finished.
type BestMove struct {
	Move   string `json:"move"`
	Ponder string `json:"ponder,omitempty"`
	Epoch  uint64 `json:"epoch"`
}

// Error reports a failure that happened after the session became ready.
type Error struct {
	Message string `json:"message"`
}

func (Ready) EventName() string    { return EventReady }
func (Analysis) EventName() string { return EventAnalysis }
func (BestMove) EventName() string { return EventBestMove }
func (Error) EventName() string    { return EventError }

// Incoming is the envelope of a message sent by a websocket client.
type Incoming struct {
	Event string          `json:"event"`
	ID    int             `json:"id"`
	Data  json.RawMessage `json:"data"`
}

// Outgoing is the envelope of a message sent to a websocket client.
type Outgoing struct {
	Event string `json:"event"`
	ID    int    `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// NewOutgoing wraps an event in an envelope.
func NewOutgoing(id int, event Event) *Outgoing {
	return &Outgoing{Event: event.EventName(), ID: id, Data: event}
}

var errUnknownCommand = errors.New("unknown command")

// DecodeCommand decodes the payload of an incoming message.
func DecodeCommand(incoming *Incoming) (Command, error) {
	if incoming.Event == "" {
		return nil, errors.New("event field is either empty or missing")
	}

	var command Command

	switch incoming.Event {
	case CommandInit:
		command = &Init{}
	case CommandAnalyzePosition:
		command = &AnalyzePosition{}
	case CommandFindBestMove:
		command = &FindBestMove{}
	case CommandUpdateConfig:
		command = &UpdateConfig{}
	case CommandStop:
		return Stop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, incoming.Event)
	}

	if len(incoming.Data) > 0 {
		if err := json.Unmarshal(incoming.Data, command); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", incoming.Event, err)
		}
	}

	return derefCommand(command), nil
}

func derefCommand(command Command) Command {
	switch c := command.(type) {
	case *Init:
		return *c
	case *AnalyzePosition:
		return *c
	case *FindBestMove:
		return *c
	case *UpdateConfig:
		return *c
	default:
		return command
	}
}
