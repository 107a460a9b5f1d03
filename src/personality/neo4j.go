package personality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// Neo4jRunner is the slice of the Neo4j driver the trait store needs. Tests
// provide lightweight fakes.
type Neo4jRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// OpenNeo4j connects to uri and verifies connectivity.
func OpenNeo4j(ctx context.Context, uri, username, password, database string) (Neo4jRunner, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return WrapNeo4jDriver(driver, database), nil
}

// WrapNeo4jDriver adapts the official driver to Neo4jRunner.
func WrapNeo4jDriver(driver neo4j.DriverWithContext, database string) Neo4jRunner {
	if driver == nil {
		return nil
	}
	return &driverRunner{driver: driver, database: database}
}

func (d *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for result.Next(ctx) {
		rows = append(rows, result.Record().AsMap())
	}
	return rows, result.Err()
}

func (d *driverRunner) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

const neo4jUpsert = `
MERGE (t:PersonalityTrait {agent_id: $agent_id, user_id: $user_id, type: $type, content_prefix: $prefix})
ON CREATE SET t.content = $content, t.confidence = $confidence, t.source = $source,
	t.created_at = $now, t.updated_at = $now, t.revision = 0, t.op = $op
ON MATCH SET
	t.revision = CASE WHEN t.confidence < $confidence THEN t.revision + 1 ELSE t.revision END,
	t.source = CASE WHEN t.confidence < $confidence THEN $source ELSE t.source END,
	t.updated_at = CASE WHEN t.confidence < $confidence THEN $now ELSE t.updated_at END,
	t.op = CASE WHEN t.confidence < $confidence THEN $op ELSE t.op END,
	t.confidence = CASE WHEN t.confidence < $confidence THEN $confidence ELSE t.confidence END
RETURN t.op = $op AS touched, t.revision AS revision`

const neo4jTop = `
MATCH (t:PersonalityTrait {agent_id: $agent_id, user_id: $user_id})
RETURN t.type AS type, t.content AS content, t.confidence AS confidence, t.source AS source,
	t.created_at AS created_at, t.updated_at AS updated_at
ORDER BY t.confidence DESC, t.created_at ASC
LIMIT $limit`

// Neo4jStore keeps traits as PersonalityTrait nodes. MERGE under the
// identity constraint makes the merge atomic.
type Neo4jStore struct {
	runner Neo4jRunner
	nowFn  func() time.Time
}

// ErrNeo4jUnavailable is returned when the store has no runner.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

func NewNeo4jStore(runner Neo4jRunner) (*Neo4jStore, error) {
	if runner == nil {
		return nil, ErrNeo4jUnavailable
	}
	return &Neo4jStore{runner: runner, nowFn: time.Now}, nil
}

// CreateSchema ensures the identity constraint and ranking index exist.
func (s *Neo4jStore) CreateSchema(ctx context.Context) error {
	queries := []string{
		"CREATE CONSTRAINT trait_identity IF NOT EXISTS FOR (t:PersonalityTrait) REQUIRE (t.agent_id, t.user_id, t.type, t.content_prefix) IS UNIQUE",
		"CREATE INDEX trait_rank IF NOT EXISTS FOR (t:PersonalityTrait) ON (t.agent_id, t.user_id, t.confidence)",
	}
	for _, q := range queries {
		if _, err := s.runner.Run(ctx, q, nil); err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) Upsert(ctx context.Context, t Trait) (Outcome, error) {
	if err := t.Validate(); err != nil {
		return Kept, err
	}
	rows, err := s.runner.Run(ctx, neo4jUpsert, map[string]any{
		"agent_id":   t.AgentID,
		"user_id":    t.UserID,
		"type":       string(t.Type),
		"prefix":     t.Prefix(),
		"content":    t.Content,
		"confidence": t.Confidence,
		"source":     t.Source,
		"now":        s.nowFn().UTC().UnixMilli(),
		"op":         uuid.NewString(),
	})
	if err != nil {
		return Kept, fmt.Errorf("upsert trait: %w", err)
	}
	if len(rows) == 0 {
		return Kept, fmt.Errorf("upsert trait: no result")
	}
	touched, _ := rows[0]["touched"].(bool)
	revision, _ := rows[0]["revision"].(int64)
	switch {
	case !touched:
		return Kept, nil
	case revision == 0:
		return Inserted, nil
	default:
		return Raised, nil
	}
}

func (s *Neo4jStore) Top(ctx context.Context, key model.Key, limit int) ([]Trait, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultProfileTraits
	}
	rows, err := s.runner.Run(ctx, neo4jTop, map[string]any{
		"agent_id": key.AgentID,
		"user_id":  key.UserID,
		"limit":    int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("query traits: %w", err)
	}
	out := make([]Trait, 0, len(rows))
	for _, row := range rows {
		t := Trait{AgentID: key.AgentID, UserID: key.UserID}
		if v, ok := row["type"].(string); ok {
			t.Type = TraitType(v)
		}
		t.Content, _ = row["content"].(string)
		t.Confidence, _ = row["confidence"].(float64)
		t.Source, _ = row["source"].(string)
		if ms, ok := row["created_at"].(int64); ok {
			t.CreatedAt = time.UnixMilli(ms).UTC()
		}
		if ms, ok := row["updated_at"].(int64); ok {
			t.UpdatedAt = time.UnixMilli(ms).UTC()
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.runner.Close(ctx)
}
