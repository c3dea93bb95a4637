package uci

// Event is a typed event parsed from one line of engine output.
type Event interface {
	uciEvent()
}

// UCIOK acknowledges the capability query.
type UCIOK struct{}

// ReadyOK answers isready.
type ReadyOK struct{}

// ID carries an "id name ..." or "id author ..." line.
type ID struct {
	Key   string
	Value string
}

// Info is a progress report for one multi-line search slot.
type Info struct {
	Evaluation Evaluation
	Rank       uint
}

// BestMove announces the end of a search.
type BestMove struct {
	Move   string
	Ponder string
}

func (UCIOK) uciEvent()    {}
func (ReadyOK) uciEvent()  {}
func (ID) uciEvent()       {}
func (Info) uciEvent()     {}
func (BestMove) uciEvent() {}

// Evaluation is the engine's current judgement of a position along one line.
//
// When MateDistance is set, Score is synthesized from it (see MateScore) so that mate
// evaluations sort together with centipawn evaluations. Such a Score is not a centipawn
// count and must not be displayed as one.
type Evaluation struct {
	Score              int      `json:"score"`
	Depth              uint     `json:"depth"`
	Nodes              uint64   `json:"nodes"`
	ElapsedMs          uint64   `json:"elapsed_ms"`
	NodesPerSecond     uint64   `json:"nps,omitempty"` // zero when not reported
	PrincipalVariation []string `json:"pv"`
	MateDistance       *int     `json:"mate,omitempty"`
}

// IsMate returns whether the evaluation is a forced mate.
func (e Evaluation) IsMate() bool {
	return e.MateDistance != nil
}

// BestMove returns the first move of the principal variation, if any.
func (e Evaluation) BestMove() string {
	if len(e.PrincipalVariation) == 0 {
		return ""
	}
	return e.PrincipalVariation[0]
}
