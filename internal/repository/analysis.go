package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lib/pq"
	"github.com/lk16/kibitz/internal/models"
	"github.com/lk16/kibitz/internal/services"
)

const (
	analysisKeyPrefix = "analysis:"
	analysisTTL       = 10 * time.Minute
	depthStatsKey     = "analysis_depth_stats"
)

// ErrStorageDisabled is returned when no storage services are configured.
var ErrStorageDisabled = errors.New("storage is disabled")

// AnalysisRepository stores the deepest analysis per position.
// Postgres is the source of truth, Redis caches lookups and per-depth counts.
type AnalysisRepository struct {
	services *services.Services
}

// NewAnalysisRepository creates a new AnalysisRepository.
func NewAnalysisRepository(c *fiber.Ctx) *AnalysisRepository {
	services := c.Locals("services").(*services.Services) //nolint: errcheck

	return &AnalysisRepository{
		services: services,
	}
}

// NewAnalysisRepositoryFromServices creates an AnalysisRepository outside of a request.
func NewAnalysisRepositoryFromServices(services *services.Services) *AnalysisRepository {
	return &AnalysisRepository{
		services: services,
	}
}

func analysisKey(position string) string {
	return analysisKeyPrefix + position
}

// SaveAnalysis stores analysis unless a deeper one is already stored.
// It returns whether the analysis was stored.
func (repo *AnalysisRepository) SaveAnalysis(ctx context.Context, analysis models.StoredAnalysis) (bool, error) {
	if !repo.services.StorageEnabled() {
		return false, ErrStorageDisabled
	}

	if err := analysis.Validate(); err != nil {
		return false, fmt.Errorf("invalid analysis: %w", err)
	}

	pgConn := repo.services.Postgres

	query := `
		WITH current AS (
			SELECT depth FROM analysis WHERE position = $1
		)
		INSERT INTO analysis (position, depth, score, mate, best_move, pv, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (position)
		DO UPDATE SET
			depth = EXCLUDED.depth,
			score = EXCLUDED.score,
			mate = EXCLUDED.mate,
			best_move = EXCLUDED.best_move,
			pv = EXCLUDED.pv,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.depth > analysis.depth
		RETURNING (SELECT depth FROM current) AS old_depth;
	`

	var oldDepth sql.NullInt64
	err := pgConn.QueryRowxContext(ctx, query,
		analysis.Position,
		analysis.Depth,
		analysis.Score,
		analysis.Mate,
		analysis.BestMove,
		pq.Array([]string(analysis.PV)),
		analysis.UpdatedAt,
	).Scan(&oldDepth)

	if errors.Is(err, sql.ErrNoRows) {
		// A deeper analysis is stored already.
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("error saving analysis: %w", err)
	}

	redisConn := repo.services.Redis

	pipe := redisConn.Pipeline()
	pipe.Del(ctx, analysisKey(analysis.Position))
	if oldDepth.Valid {
		pipe.HIncrBy(ctx, depthStatsKey, strconv.FormatInt(oldDepth.Int64, 10), -1)
	}
	pipe.HIncrBy(ctx, depthStatsKey, strconv.Itoa(analysis.Depth), 1)

	if _, err = pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("error updating Redis: %w", err)
	}

	return true, nil
}

// LookupPositions returns the stored analyses of positions. Positions without analysis are
// left out.
func (repo *AnalysisRepository) LookupPositions(ctx context.Context, positions []string) ([]models.StoredAnalysis, error) {
	if !repo.services.StorageEnabled() {
		return nil, ErrStorageDisabled
	}

	found := make([]models.StoredAnalysis, 0, len(positions))
	if len(positions) == 0 {
		return found, nil
	}

	cached, missing, err := repo.lookupCache(ctx, positions)
	if err != nil {
		// The cache is optional, fall back to Postgres for everything.
		slog.Warn("Failed to read analysis cache", "error", err)
		cached, missing = nil, positions
	}

	found = append(found, cached...)

	if len(missing) > 0 {
		loaded, err := repo.lookupPostgres(ctx, missing)
		if err != nil {
			return nil, err
		}

		repo.fillCache(ctx, loaded)
		found = append(found, loaded...)
	}

	return found, nil
}

func (repo *AnalysisRepository) lookupCache(ctx context.Context, positions []string) ([]models.StoredAnalysis, []string, error) {
	keys := make([]string, len(positions))
	for i, position := range positions {
		keys[i] = analysisKey(position)
	}

	values, err := repo.services.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("error reading cache: %w", err)
	}

	var cached []models.StoredAnalysis
	var missing []string

	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			missing = append(missing, positions[i])
			continue
		}

		var analysis models.StoredAnalysis
		if err = json.Unmarshal([]byte(data), &analysis); err != nil {
			missing = append(missing, positions[i])
			continue
		}

		cached = append(cached, analysis)
	}

	return cached, missing, nil
}

func (repo *AnalysisRepository) lookupPostgres(ctx context.Context, positions []string) ([]models.StoredAnalysis, error) {
	pgConn := repo.services.Postgres

	query := `
		SELECT position, depth, score, mate, best_move, pv, updated_at
		FROM analysis
		WHERE position = ANY($1)
	`

	rows, err := pgConn.QueryxContext(ctx, query, pq.Array(positions))
	if err != nil {
		return nil, fmt.Errorf("error looking up positions: %w", err)
	}
	defer rows.Close()

	analyses := make([]models.StoredAnalysis, 0)

	for rows.Next() {
		var analysis models.StoredAnalysis
		if err = rows.StructScan(&analysis); err != nil {
			return nil, fmt.Errorf("error scanning analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading analyses: %w", err)
	}

	return analyses, nil
}

func (repo *AnalysisRepository) fillCache(ctx context.Context, analyses []models.StoredAnalysis) {
	if len(analyses) == 0 {
		return
	}

	pipe := repo.services.Redis.Pipeline()

	for _, analysis := range analyses {
		data, err := json.Marshal(analysis)
		if err != nil {
			slog.Warn("Failed to marshal analysis", "position", analysis.Position, "error", err)
			continue
		}
		pipe.Set(ctx, analysisKey(analysis.Position), data, analysisTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("Failed to fill analysis cache", "error", err)
	}
}

func (repo *AnalysisRepository) buildDepthStats(ctx context.Context) error {
	pgConn := repo.services.Postgres
	redisConn := repo.services.Redis

	query := `
		SELECT depth, count(*)
		FROM analysis
		GROUP BY depth
	`

	var stats []models.DepthStats
	if err := pgConn.SelectContext(ctx, &stats, query); err != nil {
		return fmt.Errorf("error loading depth stats: %w", err)
	}

	if len(stats) == 0 {
		return nil
	}

	statsMap := make(map[string]interface{}, len(stats))
	for _, stat := range stats {
		statsMap[strconv.Itoa(stat.Depth)] = stat.Count
	}

	if err := redisConn.HSet(ctx, depthStatsKey, statsMap).Err(); err != nil {
		return fmt.Errorf("error storing depth stats in Redis: %w", err)
	}

	return nil
}

// GetDepthStats returns how many analyses are stored per depth, ordered by depth.
func (repo *AnalysisRepository) GetDepthStats(ctx context.Context) ([]models.DepthStats, error) {
	if !repo.services.StorageEnabled() {
		return nil, ErrStorageDisabled
	}

	redisConn := repo.services.Redis

	stats, err := redisConn.HGetAll(ctx, depthStatsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error getting depth stats from Redis: %w", err)
	}

	if len(stats) == 0 {
		if err = repo.buildDepthStats(ctx); err != nil {
			return nil, fmt.Errorf("error building depth stats: %w", err)
		}

		stats, err = redisConn.HGetAll(ctx, depthStatsKey).Result()
		if err != nil {
			return nil, fmt.Errorf("error getting depth stats from Redis after build: %w", err)
		}
	}

	return parseDepthStats(stats)
}

// parseDepthStats converts the Redis hash into sorted stats, skipping empty depths.
func parseDepthStats(hash map[string]string) ([]models.DepthStats, error) {
	depthStats := make([]models.DepthStats, 0, len(hash))

	for key, value := range hash {
		depth, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("error parsing depth stats key: %w", err)
		}

		count, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("error parsing depth stats value: %w", err)
		}

		if count <= 0 {
			continue
		}

		depthStats = append(depthStats, models.DepthStats{Depth: depth, Count: count})
	}

	sort.Slice(depthStats, func(i, j int) bool {
		return depthStats[i].Depth < depthStats[j].Depth
	})

	return depthStats, nil
}
