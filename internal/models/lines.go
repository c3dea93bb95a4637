package models

import (
	"sort"
	"strconv"
	"sync"

	"github.com/lk16/kibitz/internal/uci"
)

// Line is the latest evaluation for one multi-line search slot.
type Line struct {
	ID         string         `json:"id"`
	Evaluation uci.Evaluation `json:"evaluation"`
	Rank       uint           `json:"rank"`
	IsSelected bool           `json:"is_selected"`
}

// LineID returns the identity of the line at rank.
func LineID(rank uint) string {
	return "line-" + strconv.FormatUint(uint64(rank), 10)
}

// LineSet holds at most one Line per rank.
type LineSet struct {
	// data maps rank to the latest evaluation
	data map[uint]uci.Evaluation

	// selected is the rank of the selected line, zero if none
	selected uint

	// dataMutex protects data and selected
	dataMutex sync.Mutex
}

// NewLineSet creates an empty LineSet.
func NewLineSet() *LineSet {
	return &LineSet{
		data: make(map[uint]uci.Evaluation),
	}
}

// Upsert stores evaluation for rank, replacing what was there.
func (s *LineSet) Upsert(rank uint, evaluation uci.Evaluation) {
	s.dataMutex.Lock()
	defer s.dataMutex.Unlock()

	s.data[rank] = evaluation
}

// Select marks the line at rank as selected.
func (s *LineSet) Select(rank uint) {
	s.dataMutex.Lock()
	defer s.dataMutex.Unlock()

	s.selected = rank
}

// Lines returns a snapshot of all lines ordered by rank.
func (s *LineSet) Lines() []Line {
	s.dataMutex.Lock()
	defer s.dataMutex.Unlock()

	lines := make([]Line, 0, len(s.data))
	for rank, evaluation := range s.data {
		lines = append(lines, Line{
			ID:         LineID(rank),
			Evaluation: evaluation,
			Rank:       rank,
			IsSelected: rank == s.selected,
		})
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Rank < lines[j].Rank
	})

	return lines
}

// Best returns the line with rank 1, if present.
func (s *LineSet) Best() (Line, bool) {
	s.dataMutex.Lock()
	defer s.dataMutex.Unlock()

	evaluation, ok := s.data[1]
	if !ok {
		return Line{}, false
	}

	return Line{ID: LineID(1), Evaluation: evaluation, Rank: 1, IsSelected: s.selected == 1}, true
}

// Reset removes all lines. The selection is kept.
func (s *LineSet) Reset() {
	s.dataMutex.Lock()
	defer s.dataMutex.Unlock()

	s.data = make(map[uint]uci.Evaluation)
}

// Len returns the number of lines.
func (s *LineSet) Len() int {
	s.dataMutex.Lock()
	defer s.dataMutex.Unlock()

	return len(s.data)
}
