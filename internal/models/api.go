package models

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/lk16/kibitz/internal/uci"
)

// StoredAnalysis is the deepest known analysis of a position.
type StoredAnalysis struct {
	Position  string         `json:"position"   db:"position"`
	Depth     int            `json:"depth"      db:"depth"`
	Score     int            `json:"score"      db:"score"`
	Mate      *int           `json:"mate"       db:"mate"`
	BestMove  string         `json:"best_move"  db:"best_move"`
	PV        pq.StringArray `json:"pv"         db:"pv"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// NewStoredAnalysis converts the best line of a finished search.
func NewStoredAnalysis(position string, bestMove string, evaluation uci.Evaluation) StoredAnalysis {
	return StoredAnalysis{
		Position:  uci.AdaptPosition(position),
		Depth:     int(evaluation.Depth),
		Score:     evaluation.Score,
		Mate:      evaluation.MateDistance,
		BestMove:  bestMove,
		PV:        evaluation.PrincipalVariation,
		UpdatedAt: time.Now(),
	}
}

// Validate checks that a stored analysis can be saved.
func (a *StoredAnalysis) Validate() error {
	if a.Position == "" {
		return errors.New("position is empty")
	}

	if a.Depth <= 0 {
		return errors.New("depth must be positive")
	}

	if !uci.IsMove(a.BestMove) {
		return errors.New("best move is not a valid move")
	}

	return nil
}

// LookupPositionsPayload represents a request to look up positions.
type LookupPositionsPayload struct {
	Positions []string `json:"positions"`
}

// DepthStats counts stored analyses per depth.
type DepthStats struct {
	Depth int `json:"depth" db:"depth"`
	Count int `json:"count" db:"count"`
}

// VersionResponse describes the running build.
type VersionResponse struct {
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}
