package search

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lk16/kibitz/internal/engine"
	"github.com/lk16/kibitz/internal/metrics"
	"github.com/lk16/kibitz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	startFEN    = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	hangingFEN  = "4k3/8/8/3q4/8/8/3R4/4K3 w - - 0 1"
	waitForTest = 2 * time.Second
	tick        = 5 * time.Millisecond
)

type recorder struct {
	mutex  sync.Mutex
	events []models.Event
}

func (r *recorder) handle(event models.Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) named(name string) []models.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var found []models.Event
	for _, event := range r.events {
		if event.EventName() == name {
			found = append(found, event)
		}
	}
	return found
}

func (r *recorder) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.events)
}

func newTestEngine(t *testing.T, searcher Searcher, depth int) (*Engine, *recorder) {
	t.Helper()

	cfg := models.DefaultSessionConfig()
	cfg.Depth = depth

	e, err := NewEngine(searcher, cfg, WithEngineMetrics(metrics.NewMetrics()))
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Dispose()
		e.Wait()
	})

	rec := &recorder{}
	e.Subscribe(rec.handle)

	return e, rec
}

func newReadyEngine(t *testing.T, searcher Searcher, depth int) (*Engine, *recorder) {
	t.Helper()

	e, rec := newTestEngine(t, searcher, depth)
	require.NoError(t, e.Initialize(context.Background()))

	return e, rec
}

func TestEngineInitialize(t *testing.T) {
	e, rec := newTestEngine(t, &fakeSearcher{}, 3)

	assert.Equal(t, engine.Uninitialized, e.State())
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Initialize(context.Background()))

	assert.Equal(t, engine.Ready, e.State())
	assert.Equal(t, []models.Event{models.Ready{EngineName: EngineName}}, rec.named(models.EventReady))
}

func TestEngineCommandsBeforeReadyAreIgnored(t *testing.T) {
	searcher := &fakeSearcher{}
	e, rec := newTestEngine(t, searcher, 3)

	assert.Zero(t, e.AnalyzePosition(startFEN))
	assert.Zero(t, e.FindBestMove(startFEN, time.Second))
	e.Stop()
	e.Wait()

	assert.Empty(t, searcher.Depths())
	assert.Zero(t, rec.Len())
}

func TestEngineAnalyzePosition(t *testing.T) {
	e, rec := newReadyEngine(t, &fakeSearcher{}, 3)

	epoch := e.AnalyzePosition(startFEN)
	assert.Equal(t, uint64(1), epoch)

	e.Wait()

	analyses := rec.named(models.EventAnalysis)
	require.Len(t, analyses, 3)
	for i, event := range analyses {
		analysis := event.(models.Analysis)
		assert.Equal(t, uint(i+1), analysis.Evaluation.Depth)
		assert.Equal(t, uint(1), analysis.Rank)
		assert.Equal(t, epoch, analysis.Epoch)
	}

	assert.Equal(t, []models.Event{models.BestMove{Move: "e2e4", Epoch: epoch}}, rec.named(models.EventBestMove))
	assert.Equal(t, engine.Ready, e.State())

	lines := e.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, uint(3), lines[0].Evaluation.Depth)
}

func TestEngineMaterialSearcher(t *testing.T) {
	e, rec := newReadyEngine(t, MaterialSearcher{}, 2)

	epoch := e.FindBestMove(hangingFEN+" pending", time.Second)
	e.Wait()

	assert.Equal(t, []models.Event{models.BestMove{Move: "d2d5", Epoch: epoch}}, rec.named(models.EventBestMove))
}

func TestEngineDiscardsSupersededSearch(t *testing.T) {
	searcher := &fakeSearcher{delays: map[int]time.Duration{1: 100 * time.Millisecond}}
	e, rec := newReadyEngine(t, searcher, 2)

	first := e.AnalyzePosition(startFEN)
	second := e.AnalyzePosition(hangingFEN)
	require.Equal(t, first+1, second)

	e.Wait()

	for _, event := range rec.named(models.EventAnalysis) {
		assert.Equal(t, second, event.(models.Analysis).Epoch)
	}

	assert.Equal(t, []models.Event{models.BestMove{Move: "e2e4", Epoch: second}}, rec.named(models.EventBestMove))
}

func TestEngineStop(t *testing.T) {
	searcher := &fakeSearcher{delays: map[int]time.Duration{2: 10 * time.Second}}
	e, rec := newReadyEngine(t, searcher, 5)

	epoch := e.AnalyzePosition(startFEN)
	require.Eventually(t, func() bool { return len(rec.named(models.EventAnalysis)) == 1 }, waitForTest, tick)

	e.Stop()
	e.Wait()

	// The result of the last completed depth is reported.
	assert.Equal(t, []models.Event{models.BestMove{Move: "e2e4", Epoch: epoch}}, rec.named(models.EventBestMove))
	assert.Equal(t, engine.Ready, e.State())
}

func TestEngineInvalidPosition(t *testing.T) {
	e, rec := newReadyEngine(t, &fakeSearcher{}, 3)

	assert.Zero(t, e.AnalyzePosition("not a position"))
	require.Len(t, rec.named(models.EventError), 1)
	assert.Equal(t, engine.Ready, e.State())
}

func TestEngineUpdateConfig(t *testing.T) {
	searcher := &fakeSearcher{}
	e, rec := newReadyEngine(t, searcher, 3)

	e.AnalyzePosition(startFEN)
	e.Wait()

	require.NoError(t, e.UpdateConfig(models.ConfigUpdate{Depth: intPtr(2)}))
	e.Wait()

	assert.Equal(t, uint64(2), e.Epoch())
	bestMoves := rec.named(models.EventBestMove)
	require.Len(t, bestMoves, 2)
	assert.Equal(t, uint64(2), bestMoves[1].(models.BestMove).Epoch)

	// Unchanged configuration does not restart the search.
	require.NoError(t, e.UpdateConfig(models.ConfigUpdate{Depth: intPtr(2)}))
	e.Wait()
	assert.Equal(t, uint64(2), e.Epoch())

	err := e.UpdateConfig(models.ConfigUpdate{TimeLimitMs: intPtr(-1)})
	require.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestEngineDispose(t *testing.T) {
	searcher := &fakeSearcher{delays: map[int]time.Duration{1: 50 * time.Millisecond}}
	e, rec := newReadyEngine(t, searcher, 3)

	e.AnalyzePosition(startFEN)
	before := rec.Len()

	e.Dispose()
	e.Dispose()
	e.Wait()

	assert.Equal(t, engine.Disposed, e.State())
	assert.Equal(t, before, rec.Len())

	require.NotPanics(t, func() {
		assert.Zero(t, e.AnalyzePosition(startFEN))
		e.Stop()
	})
	require.ErrorIs(t, e.Initialize(context.Background()), engine.ErrDisposed)
}
