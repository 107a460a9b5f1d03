package personality

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// Both SQL stores rely on ON CONFLICT ... DO UPDATE ... WHERE so the merge
// is one statement. revision is bumped on every raise; a returned 0 means
// the row was just inserted and no returned row means it was kept.

const sqliteTraitSchema = `
CREATE TABLE IF NOT EXISTS personality_traits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	content_prefix TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence REAL NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	revision INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (agent_id, user_id, type, content_prefix)
);
CREATE INDEX IF NOT EXISTS idx_traits_rank ON personality_traits(agent_id, user_id, confidence DESC);
`

const sqliteUpsert = `
INSERT INTO personality_traits
	(agent_id, user_id, type, content_prefix, content, confidence, source, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (agent_id, user_id, type, content_prefix) DO UPDATE SET
	confidence = excluded.confidence,
	source = excluded.source,
	updated_at = excluded.updated_at,
	revision = personality_traits.revision + 1
WHERE personality_traits.confidence < excluded.confidence
RETURNING revision`

// SQLiteStore keeps traits in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// CreateSchema creates the traits table if missing.
func (s *SQLiteStore) CreateSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil sqlite trait store")
	}
	if _, err := s.db.ExecContext(ctx, sqliteTraitSchema); err != nil {
		return fmt.Errorf("create traits schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, t Trait) (Outcome, error) {
	if err := t.Validate(); err != nil {
		return Kept, err
	}
	now := time.Now().UTC().UnixNano()
	var revision int
	err := s.db.QueryRowContext(ctx, sqliteUpsert,
		t.AgentID, t.UserID, string(t.Type), t.Prefix(), t.Content, t.Confidence, t.Source, now, now,
	).Scan(&revision)
	return outcomeOf(revision, err, sql.ErrNoRows)
}

func (s *SQLiteStore) Top(ctx context.Context, key model.Key, limit int) ([]Trait, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultProfileTraits
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT type, content, confidence, source, created_at, updated_at
FROM personality_traits
WHERE agent_id = ? AND user_id = ?
ORDER BY confidence DESC, id ASC
LIMIT ?`, key.AgentID, key.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query traits: %w", err)
	}
	defer rows.Close()

	var out []Trait
	for rows.Next() {
		var (
			t                Trait
			typ              string
			created, updated int64
		)
		if err := rows.Scan(&typ, &t.Content, &t.Confidence, &t.Source, &created, &updated); err != nil {
			return nil, err
		}
		t.AgentID, t.UserID, t.Type = key.AgentID, key.UserID, TraitType(typ)
		t.CreatedAt, t.UpdatedAt = time.Unix(0, created).UTC(), time.Unix(0, updated).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

const postgresTraitSchema = `
CREATE TABLE IF NOT EXISTS personality_traits (
	id BIGSERIAL PRIMARY KEY,
	agent_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	content_prefix TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL CHECK (confidence > 0 AND confidence <= 1),
	source TEXT NOT NULL DEFAULT '',
	revision INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (agent_id, user_id, type, content_prefix)
);
CREATE INDEX IF NOT EXISTS idx_traits_rank ON personality_traits (agent_id, user_id, confidence DESC);
`

const postgresUpsert = `
INSERT INTO personality_traits (agent_id, user_id, type, content_prefix, content, confidence, source)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (agent_id, user_id, type, content_prefix) DO UPDATE SET
	confidence = EXCLUDED.confidence,
	source = EXCLUDED.source,
	updated_at = now(),
	revision = personality_traits.revision + 1
WHERE personality_traits.confidence < EXCLUDED.confidence
RETURNING revision`

// PostgresStore keeps traits in Postgres.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: pool}
}

// CreateSchema creates the traits table if missing.
func (p *PostgresStore) CreateSchema(ctx context.Context) error {
	if p == nil || p.DB == nil {
		return errors.New("nil postgres trait store")
	}
	if _, err := p.DB.Exec(ctx, postgresTraitSchema); err != nil {
		return fmt.Errorf("create traits schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Upsert(ctx context.Context, t Trait) (Outcome, error) {
	if err := t.Validate(); err != nil {
		return Kept, err
	}
	var revision int
	err := p.DB.QueryRow(ctx, postgresUpsert,
		t.AgentID, t.UserID, string(t.Type), t.Prefix(), t.Content, t.Confidence, t.Source,
	).Scan(&revision)
	return outcomeOf(revision, err, pgx.ErrNoRows)
}

func (p *PostgresStore) Top(ctx context.Context, key model.Key, limit int) ([]Trait, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultProfileTraits
	}
	rows, err := p.DB.Query(ctx, `
SELECT agent_id, user_id, type, content, confidence, source, created_at, updated_at
FROM personality_traits
WHERE agent_id = $1 AND user_id = $2
ORDER BY confidence DESC, id ASC
LIMIT $3`, key.AgentID, key.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query traits: %w", err)
	}
	traits, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Trait])
	if err != nil {
		return nil, fmt.Errorf("scan traits: %w", err)
	}
	return traits, nil
}

func outcomeOf(revision int, err, noRows error) (Outcome, error) {
	switch {
	case errors.Is(err, noRows):
		return Kept, nil
	case err != nil:
		return Kept, fmt.Errorf("upsert trait: %w", err)
	case revision == 0:
		return Inserted, nil
	default:
		return Raised, nil
	}
}
