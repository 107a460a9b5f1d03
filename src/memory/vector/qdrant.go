package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantPointResult struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// qdrantHTTPError carries a non-2xx reply.
type qdrantHTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *qdrantHTTPError) Error() string {
	return fmt.Sprintf("qdrant %s %s -> http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// QdrantBackend talks to Qdrant's REST API.
type QdrantBackend struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewQdrantBackend creates a Qdrant-backed Backend.
func NewQdrantBackend(baseURL, collection, apiKey string) *QdrantBackend {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if collection == "" {
		collection = "companion_memories"
	}
	return &QdrantBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (qs *QdrantBackend) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(qs.collection) + suffix
}

// EnsureCollection is idempotent: an existing collection is kept, and payload
// index creation tolerates indexes that already exist.
func (qs *QdrantBackend) EnsureCollection(ctx context.Context, dim int) error {
	err := qs.do(ctx, http.MethodGet, qs.collectionPath(""), nil, nil)
	var httpErr *qdrantHTTPError
	switch {
	case err == nil:
	case errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound:
		req := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		var resp qdrantEnvelope[json.RawMessage]
		if err := qs.do(ctx, http.MethodPut, qs.collectionPath(""), req, &resp); err != nil {
			if !strings.Contains(strings.ToLower(err.Error()), "already exists") {
				return fmt.Errorf("create collection: %w", err)
			}
		}
	default:
		return err
	}

	for _, field := range []string{"agent_id", "user_id"} {
		req := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := qs.do(ctx, http.MethodPut, qs.collectionPath("/index?wait=true"), req, nil); err != nil {
			return fmt.Errorf("create %s index: %w", field, err)
		}
	}
	return nil
}

func (qs *QdrantBackend) Upsert(ctx context.Context, key model.Key, text string, vector []float32) error {
	req := map[string]any{
		"points": []map[string]any{{
			"id":     uuid.NewString(),
			"vector": vector,
			"payload": map[string]any{
				"agent_id":   key.AgentID,
				"user_id":    key.UserID,
				"text":       text,
				"created_at": time.Now().UTC().Format(time.RFC3339Nano),
			},
		}},
	}
	var resp qdrantEnvelope[json.RawMessage]
	if err := qs.do(ctx, http.MethodPut, qs.collectionPath("/points?wait=true"), req, &resp); err != nil {
		return err
	}
	if resp.Status.Error != "" {
		return errors.New(resp.Status.Error)
	}
	return nil
}

func (qs *QdrantBackend) Query(ctx context.Context, key model.Key, vector []float32, topK int) ([]Match, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "agent_id", "match": map[string]any{"value": key.AgentID}},
				{"key": "user_id", "match": map[string]any{"value": key.UserID}},
			},
		},
	}
	var resp qdrantEnvelope[[]qdrantPointResult]
	if err := qs.do(ctx, http.MethodPost, qs.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(resp.Result))
	for _, p := range resp.Result {
		if payloadString(p.Payload, "agent_id") != key.AgentID || payloadString(p.Payload, "user_id") != key.UserID {
			continue
		}
		out = append(out, Match{Text: payloadString(p.Payload, "text"), Score: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func payloadString(p map[string]any, k string) string {
	s, _ := p[k].(string)
	return s
}

// do sends one request. Transport failures and 401/403 replies are wrapped
// with model.ErrUnavailable.
func (qs *QdrantBackend) do(ctx context.Context, method, path string, body any, out any) error {
	if qs == nil {
		return errors.New("nil qdrant backend")
	}
	u := qs.baseURL + path

	var buf io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if qs.apiKey != "" {
		req.Header.Set("api-key", qs.apiKey)
	}
	resp, err := qs.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: qdrant %s %s: %v", model.ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: qdrant auth rejected (http %d)", model.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return &qdrantHTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return err
		}
	}
	return nil
}
