package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/lk16/kibitz/internal/uci"
	"github.com/notnil/chess"
)

const (
	// checkmateScore is the score of being mated at the root, before ply adjustment.
	checkmateScore = 1_000_000

	// mateThreshold separates mate scores from material scores.
	mateThreshold = checkmateScore - 1000

	// cancelCheckInterval is how many nodes are searched between context checks.
	cancelCheckInterval = 1024
)

// ErrInvalidPosition is returned for positions that cannot be parsed.
var ErrInvalidPosition = errors.New("invalid position")

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   100,
	chess.Knight: 320,
	chess.Bishop: 330,
	chess.Rook:   500,
	chess.Queen:  900,
}

// ParsePosition parses a six-field FEN position.
func ParsePosition(position string) (*chess.Position, error) {
	fen, err := chess.FEN(uci.AdaptPosition(position))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPosition, err)
	}

	return chess.NewGame(fen).Position(), nil
}

// MaterialSearcher is a plain alpha-beta searcher that only counts material.
type MaterialSearcher struct{}

// SearchDepth searches position to depth plies. Scores are from the side to move.
func (MaterialSearcher) SearchDepth(ctx context.Context, position string, depth int) (DepthResult, error) {
	pos, err := ParsePosition(position)
	if err != nil {
		return DepthResult{}, err
	}

	if err = ctx.Err(); err != nil {
		return DepthResult{}, err
	}

	s := &materialSearch{ctx: ctx}

	score, pv, err := s.negamax(pos, depth, 0, -checkmateScore-1, checkmateScore+1)
	if err != nil {
		return DepthResult{}, err
	}

	result := DepthResult{
		Score:              score,
		Nodes:              s.nodes,
		PrincipalVariation: pv,
	}

	if mate, ok := mateDistance(score); ok {
		result.MateDistance = &mate
		result.Score = uci.MateScore(mate)
	}

	return result, nil
}

// mateDistance converts a search score into signed plies to mate.
func mateDistance(score int) (int, bool) {
	switch {
	case score > mateThreshold:
		return checkmateScore - score, true
	case score < -mateThreshold:
		return -(checkmateScore + score), true
	default:
		return 0, false
	}
}

type materialSearch struct {
	ctx   context.Context
	nodes uint64
}

func (s *materialSearch) negamax(pos *chess.Position, depth, ply, alpha, beta int) (int, []string, error) {
	s.nodes++

	if s.nodes%cancelCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			return 0, nil, err
		}
	}

	moves := pos.ValidMoves()

	if len(moves) == 0 {
		if pos.Status() == chess.Checkmate {
			return -(checkmateScore - ply), nil, nil
		}

		return 0, nil, nil
	}

	if depth == 0 {
		return material(pos), nil, nil
	}

	board := pos.Board()
	sort.SliceStable(moves, func(i, j int) bool {
		return captureValue(board, moves[i]) > captureValue(board, moves[j])
	})

	var bestPV []string
	bestScore := -checkmateScore - 1

	for _, move := range moves {
		score, childPV, err := s.negamax(pos.Update(move), depth-1, ply+1, -beta, -alpha)
		if err != nil {
			return 0, nil, err
		}

		score = -score

		if score > bestScore {
			bestScore = score
			bestPV = append([]string{chess.UCINotation{}.Encode(pos, move)}, childPV...)
		}

		alpha = max(alpha, score)
		if alpha >= beta {
			break
		}
	}

	return bestScore, bestPV, nil
}

// material returns the material balance from the side to move.
func material(pos *chess.Position) int {
	board := pos.Board()
	turn := pos.Turn()

	score := 0
	for sq := chess.A1; sq <= chess.H8; sq++ {
		piece := board.Piece(sq)
		if piece == chess.NoPiece {
			continue
		}

		value := pieceValues[piece.Type()]
		if piece.Color() == turn {
			score += value
		} else {
			score -= value
		}
	}

	return score
}

// captureValue orders captures of valuable pieces first.
func captureValue(board *chess.Board, move *chess.Move) int {
	victim := board.Piece(move.S2())
	if victim == chess.NoPiece {
		return 0
	}

	attacker := board.Piece(move.S1())
	return pieceValues[victim.Type()]*10 - pieceValues[attacker.Type()]
}
