package uci

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(value int) *int {
	return &value
}

func TestParseLine(t *testing.T) {
	// Lines are taken from Stockfish 16 output, with a few hand-made broken ones.

	tests := []struct {
		line    string
		want    Event
		wantErr error
	}{
		{
			line: "Stockfish 16 by the Stockfish developers (see AUTHORS file)\n",
			want: nil,
		},
		{
			line: "\n",
			want: nil,
		},
		{
			line: "id name Stockfish 16\n",
			want: ID{Key: "name", Value: "Stockfish 16"},
		},
		{
			line: "id author the Stockfish developers (see AUTHORS file)",
			want: ID{Key: "author", Value: "the Stockfish developers (see AUTHORS file)"},
		},
		{
			line: "option name Threads type spin default 1 min 1 max 1024",
			want: nil,
		},
		{
			line: "uciok\n",
			want: UCIOK{},
		},
		{
			line: "readyok",
			want: ReadyOK{},
		},
		{
			line: "info string NNUE evaluation using nn-5af11540bbfe.nnue enabled",
			want: nil,
		},
		{
			line: "info depth 20 currmove e2e4 currmovenumber 1",
			want: nil,
		},
		{
			line: "info score cp 13 nodes 20 pv e2e4",
			want: nil,
		},
		{
			line: "info depth 15 score cp 25 nodes 1000000 time 1000 nps 1000000 multipv 1 pv e2e4 e7e5 g1f3",
			want: Info{
				Evaluation: Evaluation{
					Score:              25,
					Depth:              15,
					Nodes:              1000000,
					ElapsedMs:          1000,
					NodesPerSecond:     1000000,
					PrincipalVariation: []string{"e2e4", "e7e5", "g1f3"},
				},
				Rank: 1,
			},
		},
		{
			line: "info depth 1 seldepth 1 multipv 2 score cp -41 nodes 20 nps 20000 tbhits 0 time 1 pv d2d4\n",
			want: Info{
				Evaluation: Evaluation{
					Score:              -41,
					Depth:              1,
					Nodes:              20,
					ElapsedMs:          1,
					NodesPerSecond:     20000,
					PrincipalVariation: []string{"d2d4"},
				},
				Rank: 2,
			},
		},
		{
			line: "info depth 7 score cp 30",
			want: Info{
				Evaluation: Evaluation{Score: 30, Depth: 7, PrincipalVariation: []string{}},
				Rank:       1,
			},
		},
		{
			line: "info depth 24 seldepth 8 multipv 1 score mate 4 nodes 37521 nps 3751100 time 10 pv d8h4 g2g3 h4g3",
			want: Info{
				Evaluation: Evaluation{
					Score:              19992,
					Depth:              24,
					Nodes:              37521,
					ElapsedMs:          10,
					NodesPerSecond:     3751100,
					PrincipalVariation: []string{"d8h4", "g2g3", "h4g3"},
					MateDistance:       intPtr(4),
				},
				Rank: 1,
			},
		},
		{
			line: "info depth 30 score mate -3 pv f2f3 e7e5",
			want: Info{
				Evaluation: Evaluation{
					Score:              -19994,
					Depth:              30,
					PrincipalVariation: []string{"f2f3", "e7e5"},
					MateDistance:       intPtr(-3),
				},
				Rank: 1,
			},
		},
		{
			line: "info depth 12 score cp 50 wdl 500 400 100 pv e2e4 e7e5",
			want: Info{
				Evaluation: Evaluation{Score: 50, Depth: 12, PrincipalVariation: []string{"e2e4", "e7e5"}},
				Rank:       1,
			},
		},
		{
			line: "info depth 12 score cp 50 pv e2e4 e7e5 wdl 500 400 100",
			want: Info{
				Evaluation: Evaluation{Score: 50, Depth: 12, PrincipalVariation: []string{"e2e4", "e7e5"}},
				Rank:       1,
			},
		},
		{
			line: "info depth 12 score cp 50 pv e7e8q a1a2 bogus b2b3",
			want: Info{
				Evaluation: Evaluation{Score: 50, Depth: 12, PrincipalVariation: []string{"e7e8q", "a1a2"}},
				Rank:       1,
			},
		},
		{
			line: "info depth 12 score cp 50 pv a2a3 a3a4 a4a5 a5a6 b2b3 b3b4 b4b5 b5b6 c2c3 c3c4 c4c5 c5c6",
			want: Info{
				Evaluation: Evaluation{
					Score:              50,
					Depth:              12,
					PrincipalVariation: []string{"a2a3", "a3a4", "a4a5", "a5a6", "b2b3", "b3b4", "b4b5", "b5b6", "c2c3", "c3c4"},
				},
				Rank: 1,
			},
		},
		{
			line:    "info depth x score cp 50",
			want:    nil,
			wantErr: ErrMalformedLine,
		},
		{
			line:    "info depth 10 score cp fifty",
			want:    nil,
			wantErr: ErrMalformedLine,
		},
		{
			line:    "info depth 10 score cp",
			want:    nil,
			wantErr: ErrMalformedLine,
		},
		{
			line:    "info depth 10 score lowerbound 3",
			want:    nil,
			wantErr: ErrMalformedLine,
		},
		{
			line:    "info depth 10 score cp 3 nodes -1",
			want:    nil,
			wantErr: ErrMalformedLine,
		},
		{
			line: "bestmove e2e4 ponder e7e5\n",
			want: BestMove{Move: "e2e4", Ponder: "e7e5"},
		},
		{
			line: "bestmove g1f3",
			want: BestMove{Move: "g1f3"},
		},
		{
			line: "bestmove (none)",
			want: BestMove{Move: "(none)"},
		},
		{
			line:    "bestmove",
			want:    nil,
			wantErr: ErrMalformedLine,
		},
	}

	for testIndex, test := range tests {
		testName := fmt.Sprintf("Line-%d", testIndex+1)
		t.Run(testName, func(t *testing.T) {
			got, err := ParseLine(test.line)
			assert.Equal(t, test.want, got)

			if test.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, test.wantErr)
			}
		})
	}
}

func TestParseLineCentipawnScore(t *testing.T) {
	for _, cp := range []int{-3000, -1, 0, 1, 25, 999} {
		event, err := ParseLine(fmt.Sprintf("info depth 10 score cp %d pv e2e4", cp))
		require.NoError(t, err)

		info, ok := event.(Info)
		require.True(t, ok)
		assert.Equal(t, cp, info.Evaluation.Score)
		assert.Nil(t, info.Evaluation.MateDistance)
		assert.False(t, info.Evaluation.IsMate())
	}
}

func TestParseLineMateScore(t *testing.T) {
	for _, mate := range []int{-12, -1, 1, 2, 12} {
		event, err := ParseLine(fmt.Sprintf("info depth 10 score mate %d pv e2e4", mate))
		require.NoError(t, err)

		info, ok := event.(Info)
		require.True(t, ok)

		want := -20000 - 2*mate
		if mate > 0 {
			want = 20000 - 2*mate
		}

		assert.Equal(t, want, info.Evaluation.Score)
		require.NotNil(t, info.Evaluation.MateDistance)
		assert.Equal(t, mate, *info.Evaluation.MateDistance)
	}
}

func TestMateScoreOrdering(t *testing.T) {
	// Faster mates must sort above slower ones, and every mate above any centipawn score.
	assert.Greater(t, MateScore(1), MateScore(2))
	assert.Greater(t, MateScore(12), 3000)
	assert.Less(t, MateScore(-1), MateScore(-2))
	assert.Less(t, MateScore(-12), -3000)
	assert.Equal(t, -20000, MateScore(0))
}

func TestIsMove(t *testing.T) {
	for _, move := range []string{"e2e4", "a7a8q", "h2h1n", "b7b8r", "c2c1b"} {
		assert.True(t, IsMove(move), move)
	}

	for _, token := range []string{"e2", "e2e9", "i2i4", "e7e8k", "E2E4", "0000", "e2e4qq"} {
		assert.False(t, IsMove(token), token)
	}
}
