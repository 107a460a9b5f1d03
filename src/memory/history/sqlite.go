package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exchanges_key ON exchanges(agent_id, user_id, id);
`

// SQLiteBackend stores exchanges in SQLite. Ordering uses the autoincrement id.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// CreateSchema creates the exchanges table if missing.
func (s *SQLiteBackend) CreateSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil sqlite history backend")
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create exchanges schema: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Append(ctx context.Context, key model.Key, text string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (agent_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
		key.AgentID, key.UserID, text, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Recent(ctx context.Context, key model.Key, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM exchanges WHERE agent_id = ? AND user_id = ? ORDER BY id DESC LIMIT ?`,
		key.AgentID, key.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

func (s *SQLiteBackend) Exists(ctx context.Context, key model.Key) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM exchanges WHERE agent_id = ? AND user_id = ? LIMIT 1`,
		key.AgentID, key.UserID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check exchanges: %w", err)
	}
	return true, nil
}

func (s *SQLiteBackend) SeedIfEmpty(ctx context.Context, key model.Key, entries []string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM exchanges WHERE agent_id = ? AND user_id = ?`,
		key.AgentID, key.UserID).Scan(&n); err != nil {
		return false, fmt.Errorf("count exchanges: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exchanges (agent_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()
	base := time.Now().UTC().UnixNano()
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, key.AgentID, key.UserID, e, base+int64(i)); err != nil {
			return false, fmt.Errorf("seed exchange: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed: %w", err)
	}
	return true, nil
}
