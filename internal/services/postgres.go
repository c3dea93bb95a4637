package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

// InitPostgres connects to Postgres and creates the schema if needed.
func InitPostgres(ctx context.Context, url string) (*sqlx.DB, error) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	// ConnectContext also pings.
	db, err := sqlx.ConnectContext(pingCtx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("error creating schema: %w", err)
	}

	return db, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS analysis (
		position   TEXT PRIMARY KEY,
		depth      INTEGER NOT NULL,
		score      INTEGER NOT NULL,
		mate       INTEGER,
		best_move  TEXT NOT NULL,
		pv         TEXT[] NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS analysis_depth_idx ON analysis (depth);
`
