package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lk16/kibitz/internal/config"
	"github.com/redis/go-redis/v9"
)

// Services contains the connections to the external services.
// Both are nil when storage is disabled.
type Services struct {
	Postgres *sqlx.DB
	Redis    *redis.Client
}

// InitServices connects to all external services configured in cfg.
func InitServices(ctx context.Context, cfg *config.ServerConfig) (*Services, error) {
	if !cfg.StorageEnabled() {
		slog.Info("Storage is disabled, analyses will not be stored")
		return &Services{}, nil
	}

	// Initialize database
	postgres, err := InitPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}

	// Initialize Redis
	redis, err := InitRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, errors.Join(err, postgres.Close())
	}

	return &Services{
		Postgres: postgres,
		Redis:    redis,
	}, nil
}

// StorageEnabled returns whether both connections are available.
func (s *Services) StorageEnabled() bool {
	return s != nil && s.Postgres != nil && s.Redis != nil
}

// Close closes all connections.
func (s *Services) Close() error {
	var errs []error

	if s.Postgres != nil {
		errs = append(errs, s.Postgres.Close())
	}

	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}

	return errors.Join(errs...)
}
