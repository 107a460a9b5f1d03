package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// ChromemBackend is an embedded, pure Go vector store. Optionally persisted
// to a directory.
type ChromemBackend struct {
	db         *chromem.DB
	name       string
	mu         sync.RWMutex
	collection *chromem.Collection
}

// NewChromemBackend opens an in-memory store, or a persistent one when dir is
// non-empty.
func NewChromemBackend(dir, collection string) (*ChromemBackend, error) {
	if collection == "" {
		collection = "companion_memories"
	}
	db := chromem.NewDB()
	if dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return &ChromemBackend{db: db, name: collection}, nil
}

// EnsureCollection creates the collection. Chromem filters by metadata
// directly, so no secondary indexes are needed.
func (c *ChromemBackend) EnsureCollection(_ context.Context, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collection != nil {
		return nil
	}
	col, err := c.db.GetOrCreateCollection(c.name, nil, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	c.collection = col
	return nil
}

func (c *ChromemBackend) col() (*chromem.Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.collection == nil {
		return nil, errors.New("chromem collection not initialised")
	}
	return c.collection, nil
}

func (c *ChromemBackend) Upsert(ctx context.Context, key model.Key, text string, vector []float32) error {
	col, err := c.col()
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        uuid.NewString(),
		Content:   text,
		Embedding: append([]float32(nil), vector...),
		Metadata: map[string]string{
			"agent_id":   key.AgentID,
			"user_id":    key.UserID,
			"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (c *ChromemBackend) Query(ctx context.Context, key model.Key, vector []float32, topK int) ([]Match, error) {
	col, err := c.col()
	if err != nil {
		return nil, err
	}
	// chromem rejects nResults above the collection size.
	n := min(topK, col.Count())
	if n <= 0 {
		return nil, nil
	}
	where := map[string]string{"agent_id": key.AgentID, "user_id": key.UserID}
	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		if r.Metadata["agent_id"] != key.AgentID || r.Metadata["user_id"] != key.UserID {
			continue
		}
		out = append(out, Match{Text: r.Content, Score: float64(r.Similarity)})
	}
	return out, nil
}
