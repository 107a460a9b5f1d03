package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id BIGSERIAL PRIMARY KEY,
	agent_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_exchanges_key ON exchanges(agent_id, user_id, id DESC);
`

// PostgresBackend stores exchanges in Postgres.
type PostgresBackend struct {
	DB *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{DB: pool}
}

// CreateSchema creates the exchanges table if missing.
func (ps *PostgresBackend) CreateSchema(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return errors.New("nil postgres history backend")
	}
	if _, err := ps.DB.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create exchanges schema: %w", err)
	}
	return nil
}

func (ps *PostgresBackend) Append(ctx context.Context, key model.Key, text string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	_, err := ps.DB.Exec(ctx,
		`INSERT INTO exchanges (agent_id, user_id, content) VALUES ($1, $2, $3)`,
		key.AgentID, key.UserID, text)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

func (ps *PostgresBackend) Recent(ctx context.Context, key model.Key, limit int) ([]string, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	rows, err := ps.DB.Query(ctx,
		`SELECT content FROM exchanges WHERE agent_id = $1 AND user_id = $2 ORDER BY id DESC LIMIT $3`,
		key.AgentID, key.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan exchanges: %w", err)
	}
	return out, nil
}

func (ps *PostgresBackend) Exists(ctx context.Context, key model.Key) (bool, error) {
	if ps == nil || ps.DB == nil {
		return false, nil
	}
	var exists bool
	err := ps.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exchanges WHERE agent_id = $1 AND user_id = $2)`,
		key.AgentID, key.UserID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check exchanges: %w", err)
	}
	return exists, nil
}

// SeedIfEmpty takes a transaction-scoped advisory lock on the key so that
// concurrent seeds for the same pair cannot both write.
func (ps *PostgresBackend) SeedIfEmpty(ctx context.Context, key model.Key, entries []string) (bool, error) {
	if ps == nil || ps.DB == nil {
		return false, nil
	}
	seeded := false
	err := pgx.BeginFunc(ctx, ps.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
			return fmt.Errorf("lock key: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM exchanges WHERE agent_id = $1 AND user_id = $2)`,
			key.AgentID, key.UserID).Scan(&exists); err != nil {
			return fmt.Errorf("check exchanges: %w", err)
		}
		if exists {
			return nil
		}
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`INSERT INTO exchanges (agent_id, user_id, content) VALUES ($1, $2, $3)`,
				key.AgentID, key.UserID, e)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seed exchanges: %w", err)
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return seeded, nil
}
