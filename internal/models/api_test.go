package models

import (
	"testing"

	"github.com/lib/pq"
	"github.com/lk16/kibitz/internal/uci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoredAnalysis(t *testing.T) {
	mate := 2
	evaluation := uci.Evaluation{
		Score:              uci.MateScore(mate),
		Depth:              9,
		PrincipalVariation: []string{"a1a8", "e8e7", "a8a7"},
		MateDistance:       &mate,
	}

	got := NewStoredAnalysis("6k1/8/8/8/8/8/8/R5K1 w - - 0 1 pending", "a1a8", evaluation)

	assert.Equal(t, "6k1/8/8/8/8/8/8/R5K1 w - - 0 1", got.Position)
	assert.Equal(t, 9, got.Depth)
	assert.Equal(t, uci.MateScore(mate), got.Score)
	assert.Equal(t, &mate, got.Mate)
	assert.Equal(t, "a1a8", got.BestMove)
	assert.Equal(t, pq.StringArray{"a1a8", "e8e7", "a8a7"}, got.PV)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestStoredAnalysisValidate(t *testing.T) {
	valid := StoredAnalysis{Position: "8/8/8/8/8/8/8/8 w - - 0 1", Depth: 4, BestMove: "e2e4"}

	tests := []struct {
		name       string
		modify     func(a *StoredAnalysis)
		wantErrMsg string
	}{
		{name: "OK", modify: func(*StoredAnalysis) {}},
		{name: "EmptyPosition", modify: func(a *StoredAnalysis) { a.Position = "" }, wantErrMsg: "position is empty"},
		{name: "ZeroDepth", modify: func(a *StoredAnalysis) { a.Depth = 0 }, wantErrMsg: "depth must be positive"},
		{name: "NullMove", modify: func(a *StoredAnalysis) { a.BestMove = "(none)" }, wantErrMsg: "best move is not a valid move"},
		{name: "Promotion", modify: func(a *StoredAnalysis) { a.BestMove = "e7e8q" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := valid
			tt.modify(&analysis)

			err := analysis.Validate()
			if tt.wantErrMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrMsg, err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
