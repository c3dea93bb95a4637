package models

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinLineCount = 1
	MaxLineCount = 5

	defaultLineCount   = 3
	defaultDepth       = 18
	defaultTimeLimitMs = 3000
)

// ErrInvalidConfig is returned when a session configuration is out of range.
var ErrInvalidConfig = errors.New("invalid session config")

// SessionConfig controls how a session searches.
type SessionConfig struct {
	LineCount   int `json:"line_count"`
	Depth       int `json:"depth"`
	TimeLimitMs int `json:"time_limit_ms"`
}

// DefaultSessionConfig returns the configuration used when a client sends none.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		LineCount:   defaultLineCount,
		Depth:       defaultDepth,
		TimeLimitMs: defaultTimeLimitMs,
	}
}

// Validate checks that all fields are in range.
func (c SessionConfig) Validate() error {
	if c.LineCount < MinLineCount || c.LineCount > MaxLineCount {
		return fmt.Errorf("%w: line count must be between %d and %d, got %d",
			ErrInvalidConfig, MinLineCount, MaxLineCount, c.LineCount)
	}

	if c.Depth <= 0 {
		return fmt.Errorf("%w: depth must be positive, got %d", ErrInvalidConfig, c.Depth)
	}

	if c.TimeLimitMs <= 0 {
		return fmt.Errorf("%w: time limit must be positive, got %d", ErrInvalidConfig, c.TimeLimitMs)
	}

	return nil
}

// TimeLimit returns the time limit as a duration.
func (c SessionConfig) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitMs) * time.Millisecond
}

// ConfigUpdate is a partial SessionConfig. Nil fields are left unchanged.
type ConfigUpdate struct {
	LineCount   *int `json:"line_count,omitempty"`
	Depth       *int `json:"depth,omitempty"`
	TimeLimitMs *int `json:"time_limit_ms,omitempty"`
}

// Merge returns a copy of c with the non-nil fields of update applied.
func (c SessionConfig) Merge(update ConfigUpdate) SessionConfig {
	merged := c

	if update.LineCount != nil {
		merged.LineCount = *update.LineCount
	}

	if update.Depth != nil {
		merged.Depth = *update.Depth
	}

	if update.TimeLimitMs != nil {
		merged.TimeLimitMs = *update.TimeLimitMs
	}

	return merged
}
