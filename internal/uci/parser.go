package uci

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxPVLength is the number of principal variation moves that are retained.
	MaxPVLength = 10

	// mateBase is the magnitude around which mate scores are synthesized.
	mateBase = 20000
)

var (
	// ErrMalformedLine is returned when a recognized line has an unparsable field.
	ErrMalformedLine = errors.New("malformed engine output line")

	moveRegex = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

	// pvTerminators start fields that may follow the principal variation.
	pvTerminators = map[string]bool{
		"wdl":      true,
		"string":   true,
		"currline": true,
	}
)

// ParseLine turns one line of engine output into at most one Event.
// Unrecognized lines yield (nil, nil). Recognized lines with broken numeric fields
// yield an error wrapping ErrMalformedLine.
func ParseLine(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch fields[0] {
	case "uciok":
		return UCIOK{}, nil
	case "readyok":
		return ReadyOK{}, nil
	case "id":
		return parseID(fields), nil
	case "bestmove":
		return parseBestMove(fields)
	case "info":
		return parseInfo(fields)
	default:
		return nil, nil
	}
}

// MateScore returns the synthetic score for a signed distance to mate.
func MateScore(mate int) int {
	if mate > 0 {
		return mateBase - 2*mate
	}
	return -mateBase - 2*mate
}

// IsMove returns whether token is a move in long algebraic notation.
func IsMove(token string) bool {
	return moveRegex.MatchString(token)
}

func parseID(fields []string) Event {
	if len(fields) < 3 {
		return nil
	}

	if fields[1] != "name" && fields[1] != "author" {
		return nil
	}

	return ID{Key: fields[1], Value: strings.Join(fields[2:], " ")}
}

func parseBestMove(fields []string) (Event, error) {
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: bestmove without move", ErrMalformedLine)
	}

	bestMove := BestMove{Move: fields[1]}
	if len(fields) >= 4 && fields[2] == "ponder" {
		bestMove.Ponder = fields[3]
	}

	return bestMove, nil
}

// infoLine gives keyword access to the fields of an info line. Keywords are only
// searched before the principal variation or a free-form string starts.
type infoLine struct {
	fields []string
	end    int
}

func newInfoLine(fields []string) infoLine {
	end := len(fields)
	for i := 1; i < len(fields); i++ {
		if fields[i] == "pv" || fields[i] == "string" {
			end = i
			break
		}
	}
	return infoLine{fields: fields, end: end}
}

func (l infoLine) find(keyword string) int {
	for i := 1; i < l.end; i++ {
		if l.fields[i] == keyword {
			return i
		}
	}
	return -1
}

func (l infoLine) has(keyword string) bool {
	return l.find(keyword) != -1
}

// uint reads the token after keyword, returning fallback if keyword is absent.
func (l infoLine) uint(keyword string, fallback uint64) (uint64, error) {
	index := l.find(keyword)
	if index == -1 {
		return fallback, nil
	}

	if index+1 >= len(l.fields) {
		return 0, fmt.Errorf("%w: %s without value", ErrMalformedLine, keyword)
	}

	value, err := strconv.ParseUint(l.fields[index+1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to parse %s: %w", ErrMalformedLine, keyword, err)
	}

	return value, nil
}

func (l infoLine) score() (int, *int, error) {
	index := l.find("score")
	if index+2 >= len(l.fields) {
		return 0, nil, fmt.Errorf("%w: incomplete score", ErrMalformedLine)
	}

	value, err := strconv.Atoi(l.fields[index+2])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to parse score: %w", ErrMalformedLine, err)
	}

	switch l.fields[index+1] {
	case "cp":
		return value, nil, nil
	case "mate":
		return MateScore(value), &value, nil
	default:
		return 0, nil, fmt.Errorf("%w: unknown score type %q", ErrMalformedLine, l.fields[index+1])
	}
}

func (l infoLine) pv() []string {
	moves := []string{}

	if l.end >= len(l.fields) || l.fields[l.end] != "pv" {
		return moves
	}

	for _, token := range l.fields[l.end+1:] {
		if pvTerminators[token] || !IsMove(token) {
			break
		}

		if len(moves) < MaxPVLength {
			moves = append(moves, token)
		}
	}

	return moves
}

func parseInfo(fields []string) (Event, error) {
	line := newInfoLine(fields)

	// Engines print plenty of info lines without an evaluation.
	if !line.has("depth") || !line.has("score") {
		return nil, nil
	}

	depth, err := line.uint("depth", 0)
	if err != nil {
		return nil, err
	}

	nodes, err := line.uint("nodes", 0)
	if err != nil {
		return nil, err
	}

	elapsed, err := line.uint("time", 0)
	if err != nil {
		return nil, err
	}

	nps, err := line.uint("nps", 0)
	if err != nil {
		return nil, err
	}

	rank, err := line.uint("multipv", 1)
	if err != nil {
		return nil, err
	}

	score, mate, err := line.score()
	if err != nil {
		return nil, err
	}

	info := Info{
		Evaluation: Evaluation{
			Score:              score,
			Depth:              uint(depth),
			Nodes:              nodes,
			ElapsedMs:          elapsed,
			NodesPerSecond:     nps,
			PrincipalVariation: line.pv(),
			MateDistance:       mate,
		},
		Rank: uint(rank),
	}

	return info, nil
}
