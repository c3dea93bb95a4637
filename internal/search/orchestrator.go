// Package search runs ascending-depth searches for engines without a progress protocol.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/lk16/kibitz/internal/uci"
)

// DefaultFixedCap limits the time spent on a single depth.
const DefaultFixedCap = 2 * time.Second

// DepthResult is the outcome of searching one position to one fixed depth.
type DepthResult struct {
	Score              int
	Nodes              uint64
	PrincipalVariation []string
	MateDistance       *int
}

// Searcher searches a position to a fixed depth. It must return promptly with an error
// when ctx is done.
type Searcher interface {
	SearchDepth(ctx context.Context, position string, depth int) (DepthResult, error)
}

// Result is the outcome of a complete iterative search.
type Result struct {
	// Evaluation of the deepest completed depth, empty if no depth completed
	Evaluation uci.Evaluation

	// Depth is the deepest completed depth, zero if none
	Depth int
}

// Orchestrator searches depth 1, 2, ... up to MaxDepth within Budget.
type Orchestrator struct {
	Searcher Searcher
	MaxDepth int
	Budget   time.Duration
	FixedCap time.Duration
}

// DepthLimit returns the time each depth may take.
func (o Orchestrator) DepthLimit() time.Duration {
	fixedCap := o.FixedCap
	if fixedCap <= 0 {
		fixedCap = DefaultFixedCap
	}

	if o.MaxDepth <= 0 {
		return fixedCap
	}

	return min(fixedCap, o.Budget/time.Duration(o.MaxDepth))
}

// Run searches position with increasing depth and calls progress after every completed
// depth. It stops when ctx is done, when the budget is spent, or when a depth does not
// complete within its limit. The result is that of the last completed depth.
func (o Orchestrator) Run(ctx context.Context, position string, progress func(uci.Evaluation)) Result {
	var result Result

	limit := o.DepthLimit()
	start := time.Now()
	var totalNodes uint64

	for depth := 1; depth <= o.MaxDepth; depth++ {
		if ctx.Err() != nil {
			slog.Debug("Iterative search cancelled", "depth", depth)
			break
		}

		if time.Since(start) > o.Budget {
			slog.Debug("Iterative search budget spent", "depth", depth, "budget", o.Budget)
			break
		}

		depthCtx, cancel := context.WithTimeout(ctx, limit)
		depthResult, err := o.Searcher.SearchDepth(depthCtx, position, depth)
		cancel()

		if err != nil {
			slog.Debug("Depth did not complete", "depth", depth, "limit", limit, "error", err)
			break
		}

		totalNodes += depthResult.Nodes
		elapsed := time.Since(start)

		evaluation := uci.Evaluation{
			Score:              depthResult.Score,
			Depth:              uint(depth),
			Nodes:              totalNodes,
			ElapsedMs:          uint64(elapsed.Milliseconds()),
			NodesPerSecond:     nodesPerSecond(totalNodes, elapsed),
			PrincipalVariation: clipPV(depthResult.PrincipalVariation),
			MateDistance:       depthResult.MateDistance,
		}

		result = Result{Evaluation: evaluation, Depth: depth}

		if progress != nil {
			progress(evaluation)
		}
	}

	return result
}

func nodesPerSecond(nodes uint64, elapsed time.Duration) uint64 {
	if elapsed <= 0 {
		return 0
	}

	return uint64(float64(nodes) / elapsed.Seconds())
}

// clipPV returns at most uci.MaxPVLength leading moves of pv.
func clipPV(pv []string) []string {
	if len(pv) <= uci.MaxPVLength {
		return pv
	}

	return append([]string(nil), pv[:uci.MaxPVLength]...)
}
