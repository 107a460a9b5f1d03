package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// PGVectorBackend stores vectors in Postgres with the pgvector extension.
type PGVectorBackend struct {
	DB *pgxpool.Pool
}

func NewPGVectorBackend(pool *pgxpool.Pool) *PGVectorBackend {
	return &PGVectorBackend{DB: pool}
}

func (ps *PGVectorBackend) EnsureCollection(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS exchange_vectors (
			id UUID PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_exchange_vectors_agent ON exchange_vectors(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exchange_vectors_user ON exchange_vectors(user_id)`,
	}
	for _, s := range stmts {
		if _, err := ps.DB.Exec(ctx, s); err != nil {
			return classifyPG(fmt.Errorf("pgvector schema: %w", err))
		}
	}
	return nil
}

func (ps *PGVectorBackend) Upsert(ctx context.Context, key model.Key, text string, vector []float32) error {
	_, err := ps.DB.Exec(ctx,
		`INSERT INTO exchange_vectors (id, agent_id, user_id, content, embedding) VALUES ($1, $2, $3, $4, $5::vector)`,
		uuid.New(), key.AgentID, key.UserID, text, pgvector.NewVector(vector))
	if err != nil {
		return classifyPG(fmt.Errorf("insert vector: %w", err))
	}
	return nil
}

func (ps *PGVectorBackend) Query(ctx context.Context, key model.Key, vector []float32, topK int) ([]Match, error) {
	rows, err := ps.DB.Query(ctx, `
		SELECT content, 1 - (embedding <=> $1::vector) AS score
		FROM exchange_vectors
		WHERE agent_id = $2 AND user_id = $3
		ORDER BY embedding <=> $1::vector
		LIMIT $4`,
		pgvector.NewVector(vector), key.AgentID, key.UserID, topK)
	if err != nil {
		return nil, classifyPG(fmt.Errorf("query vectors: %w", err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		err := row.Scan(&m.Text, &m.Score)
		return m, err
	})
	if err != nil {
		return nil, classifyPG(fmt.Errorf("scan vectors: %w", err))
	}
	return out, nil
}

// classifyPG marks connection and authentication failures as unavailable.
func classifyPG(err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "28") {
		return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}
	return err
}
