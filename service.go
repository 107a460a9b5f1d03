// Package companion runs conversation turns for persona-backed agents: it
// serves cached replies, assembles memory context, calls the generation
// model, persists the exchange and learns personality traits in the
// background.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/go-companion/src/agents"
	"github.com/Protocol-Lattice/go-companion/src/cache"
	"github.com/Protocol-Lattice/go-companion/src/concurrent"
	"github.com/Protocol-Lattice/go-companion/src/memory"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
	"github.com/Protocol-Lattice/go-companion/src/memory/vector"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/personality"
	"github.com/Protocol-Lattice/go-companion/src/ratelimit"
)

const (
	// MinMessageLength is the shortest single message accepted for analysis.
	MinMessageLength = 10
	defaultDelimiter = "\n"
)

// EmbeddingStats reports embedding cache effectiveness.
type EmbeddingStats interface {
	Stats() (hits, misses int64)
}

// Options configure a new Service.
type Options struct {
	Memory    *memory.Coordinator
	Responses *cache.ResponseCache
	Analyzer  *personality.Analyzer
	Agents    agents.Directory
	Model     models.LLM
	Limiter   *ratelimit.Limiter
	Pool      *concurrent.WorkerPool

	Embeddings EmbeddingStats

	// RecordCacheHits appends exchanges served from the response cache to
	// the recency log.
	RecordCacheHits bool
	// PrecomputeEmbedding embeds the reply-less exchange while the reply is
	// generated and reuses that vector when persisting.
	PrecomputeEmbedding bool
	SeedDelimiter       string

	Logger *slog.Logger
}

// Service is built once per process and shared by every request handler.
type Service struct {
	memory    *memory.Coordinator
	responses *cache.ResponseCache
	analyzer  *personality.Analyzer
	agents    agents.Directory
	model     models.LLM
	limiter   *ratelimit.Limiter
	pool      *concurrent.WorkerPool
	opts      Options
	logger    *slog.Logger
	metrics   Metrics
}

// New creates a Service with the provided options.
func New(opts Options) (*Service, error) {
	if opts.Model == nil {
		return nil, errors.New("companion requires a language model")
	}
	if opts.Memory == nil {
		return nil, errors.New("companion requires a memory coordinator")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("companion requires a personality analyzer")
	}
	if opts.Agents == nil {
		return nil, errors.New("companion requires an agent directory")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SeedDelimiter == "" {
		opts.SeedDelimiter = defaultDelimiter
	}
	if opts.Pool == nil {
		opts.Pool = concurrent.NewWorkerPool(0, 0, opts.Logger)
	}
	return &Service{
		memory:    opts.Memory,
		responses: opts.Responses,
		analyzer:  opts.Analyzer,
		agents:    opts.Agents,
		model:     opts.Model,
		limiter:   opts.Limiter,
		pool:      opts.Pool,
		opts:      opts,
		logger:    opts.Logger.With("component", "companion"),
	}, nil
}

// TurnRequest is one user prompt addressed to an agent.
type TurnRequest struct {
	Prompt  string `json:"prompt"`
	AgentID string `json:"agentId"`
	UserID  string `json:"userId"`
}

func (r TurnRequest) Key() model.Key { return model.NewKey(r.AgentID, r.UserID) }

// Turn is the reply to a TurnRequest.
type Turn struct {
	Reply  string `json:"reply"`
	Cached bool   `json:"cached"`
}

// Completion is delivered once when a streamed turn ends.
type Completion struct {
	Text   string
	Cached bool
	Err    error
}

// pendingTurn carries a cache-missed turn from context assembly to persistence.
type pendingTurn struct {
	key     model.Key
	agent   model.AgentProfile
	prompt  string
	request models.CompletionRequest
	vector  <-chan []float32
}

// HandleTurn answers one prompt. Only ErrGeneration (and request validation
// errors) reach the caller; every memory or analysis failure degrades
// silently.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (Turn, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Turn{}, ErrEmptyPrompt
	}
	key := req.Key()
	s.metrics.IncTurns()

	if reply, ok := s.responses.Lookup(ctx, key, prompt); ok {
		s.servedFromCache(ctx, key, prompt, reply)
		return Turn{Reply: reply, Cached: true}, nil
	}

	pt, err := s.prepare(ctx, key, prompt)
	if err != nil {
		return Turn{}, err
	}
	reply, err := s.model.Complete(ctx, pt.request)
	if err != nil {
		s.metrics.IncGenerationFailures()
		s.logger.Error("generation failed", "key", key, "error", err)
		return Turn{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	s.finish(ctx, pt, reply)
	return Turn{Reply: reply}, nil
}

// StreamTurn is the streaming form of HandleTurn. When it returns a channel,
// onComplete is called exactly once with the final text (or the failure)
// before the terminal chunk is delivered. When it returns an error,
// onComplete is never called.
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest, onComplete func(Completion)) (<-chan models.StreamChunk, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	key := req.Key()
	s.metrics.IncTurns()

	var once sync.Once
	complete := func(c Completion) {
		once.Do(func() {
			if onComplete != nil {
				onComplete(c)
			}
		})
	}

	if reply, ok := s.responses.Lookup(ctx, key, prompt); ok {
		s.servedFromCache(ctx, key, prompt, reply)
		complete(Completion{Text: reply, Cached: true})
		ch := make(chan models.StreamChunk, 1)
		ch <- models.StreamChunk{Delta: reply, FullText: reply, Done: true}
		close(ch)
		return ch, nil
	}

	pt, err := s.prepare(ctx, key, prompt)
	if err != nil {
		return nil, err
	}
	stream, err := s.model.GenerateStream(ctx, pt.request)
	if err != nil {
		s.metrics.IncGenerationFailures()
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)
		var (
			full  strings.Builder
			final models.StreamChunk
			ended bool
		)
		for chunk := range stream {
			if chunk.Done {
				final, ended = chunk, true
				break
			}
			full.WriteString(chunk.Delta)
			select {
			case out <- chunk:
			case <-ctx.Done():
				complete(Completion{Text: full.String(), Err: ctx.Err()})
				return
			}
		}

		text := full.String()
		if final.FullText != "" {
			text = final.FullText
		}
		err := final.Err
		if err == nil && !ended {
			err = ctx.Err()
		}
		if err != nil {
			s.metrics.IncGenerationFailures()
			s.logger.Error("streamed generation failed", "key", pt.key, "error", err)
			err = fmt.Errorf("%w: %w", ErrGeneration, err)
			complete(Completion{Text: text, Err: err})
			select {
			case out <- models.StreamChunk{Done: true, FullText: text, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		s.finish(ctx, pt, text)
		complete(Completion{Text: text})
		select {
		case out <- models.StreamChunk{Done: true, FullText: text}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// servedFromCache records a cache hit. The exchange still lands in the
// recency log so the conversation reads continuously.
func (s *Service) servedFromCache(ctx context.Context, key model.Key, prompt, reply string) {
	s.metrics.IncCacheHits()
	s.logger.Debug("response cache hit", "key", key)
	if !s.opts.RecordCacheHits {
		return
	}
	s.pool.Go(ctx, "record_cached_exchange", func(ctx context.Context) error {
		agent, err := s.agents.Agent(ctx, key.AgentID)
		if err != nil {
			return err
		}
		return s.memory.AppendHistory(ctx, key, model.FormatExchange(prompt, agent.Name, reply))
	})
}

func (s *Service) prepare(ctx context.Context, key model.Key, prompt string) (*pendingTurn, error) {
	s.metrics.IncCacheMisses()
	if !s.limiter.Allow(key.String()) {
		s.metrics.IncRateLimited()
		return nil, ErrRateLimited
	}
	agent, err := s.agents.Agent(ctx, key.AgentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownAgent, err)
	}

	mc := s.memory.AssembleContext(ctx, key, prompt)
	return &pendingTurn{
		key:    key,
		agent:  agent,
		prompt: prompt,
		request: models.CompletionRequest{
			System:      systemPrompt(agent, mc),
			Prompt:      prompt,
			Temperature: replyTemperature,
			MaxTokens:   replyMaxTokens,
		},
		vector: s.precompute(ctx, prompt, agent.Name),
	}, nil
}

// precompute embeds the reply-less exchange concurrently with generation.
func (s *Service) precompute(ctx context.Context, prompt, agentName string) <-chan []float32 {
	if !s.opts.PrecomputeEmbedding {
		return nil
	}
	ch := make(chan []float32, 1)
	go func() {
		vec, err := s.memory.Embed(context.WithoutCancel(ctx), model.ExchangePrefix(prompt, agentName))
		if err != nil {
			s.logger.Debug("precomputing embedding failed", "error", err)
			vec = nil
		}
		ch <- vec
	}()
	return ch
}

// finish persists the exchange and caches the reply in parallel, then
// schedules analysis without waiting for it. Persistence ignores the
// caller's cancellation so an abandoned request still leaves whole writes.
func (s *Service) finish(ctx context.Context, pt *pendingTurn, reply string) {
	text := model.FormatExchange(pt.prompt, pt.agent.Name, reply)
	var vec []float32
	if pt.vector != nil {
		vec = <-pt.vector
	}

	pctx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		if err := s.memory.PersistExchange(pctx, pt.key, text, vec); err != nil {
			s.logger.Warn("persisting exchange failed", "key", pt.key, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		s.responses.Store(pctx, pt.key, pt.prompt, reply)
		return nil
	})
	_ = g.Wait()

	s.pool.Go(ctx, "analyze_exchange", func(ctx context.Context) error {
		s.metrics.ObserveAnalysis(s.analyzer.AnalyzeExchange(ctx, text, pt.agent.Name, pt.key, false))
		return nil
	})
}

// AgentSaved records a created or edited agent, then seeds the user's
// history with the agent's example dialogue and extracts initial traits in
// the background.
func (s *Service) AgentSaved(ctx context.Context, profile model.AgentProfile, userID string) error {
	if err := s.agents.Save(ctx, profile); err != nil {
		return err
	}
	key := model.NewKey(profile.ID, userID)
	if err := key.Validate(); err != nil {
		s.logger.Warn("agent saved without a user, skipping learning", "error", err)
		return nil
	}
	if strings.TrimSpace(profile.Seed) != "" {
		s.pool.Go(ctx, "seed_history", func(ctx context.Context) error {
			_, err := s.memory.Seed(ctx, key, profile.Seed, s.opts.SeedDelimiter)
			return err
		})
	}
	s.pool.Go(ctx, "extract_initial", func(ctx context.Context) error {
		s.metrics.ObserveAnalysis(s.analyzer.ExtractInitial(ctx, profile, key))
		return nil
	})
	return nil
}

// AnalyzeHistory runs a priority analysis over the recent history.
func (s *Service) AnalyzeHistory(ctx context.Context, agentID, userID string) (personality.Result, error) {
	key := model.NewKey(agentID, userID)
	agent, err := s.agents.Agent(ctx, agentID)
	if err != nil {
		return personality.Result{}, fmt.Errorf("%w: %w", ErrUnknownAgent, err)
	}
	recent, err := s.memory.RecentHistory(ctx, key)
	if err != nil {
		s.logger.Warn("reading history for analysis failed", "key", key, "error", err)
	}
	if utf8.RuneCountInString(recent) < personality.MinExchangeLength {
		return personality.Result{}, ErrNotEnoughHistory
	}
	res := s.analyzer.AnalyzeExchange(ctx, recent, agent.Name, key, true)
	s.metrics.ObserveAnalysis(res)
	return res, nil
}

// AnalyzeMessage runs a priority analysis over a single message.
func (s *Service) AnalyzeMessage(ctx context.Context, agentID, userID, message string) (personality.Result, error) {
	key := model.NewKey(agentID, userID)
	agent, err := s.agents.Agent(ctx, agentID)
	if err != nil {
		return personality.Result{}, fmt.Errorf("%w: %w", ErrUnknownAgent, err)
	}
	if utf8.RuneCountInString(strings.TrimSpace(message)) < MinMessageLength {
		return personality.Result{}, ErrMessageTooShort
	}
	res := s.analyzer.AnalyzeExchange(ctx, message, agent.Name, key, true)
	s.metrics.ObserveAnalysis(res)
	return res, nil
}

// ProfileView is an agent's learned personality for one user.
type ProfileView struct {
	Agent   model.AgentProfile  `json:"agent"`
	Traits  []personality.Trait `json:"traits"`
	Profile personality.Profile `json:"profile"`
}

// Profile returns stored traits and a synthesized profile.
func (s *Service) Profile(ctx context.Context, agentID, userID string) (ProfileView, error) {
	agent, err := s.agents.Agent(ctx, agentID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("%w: %w", ErrUnknownAgent, err)
	}
	key := model.NewKey(agentID, userID)
	traits, err := s.analyzer.Traits(ctx, key, personality.DefaultProfileTraits)
	if err != nil {
		s.logger.Warn("loading traits failed", "key", key, "error", err)
	}
	if traits == nil {
		traits = []personality.Trait{}
	}
	return ProfileView{
		Agent:   agent,
		Traits:  traits,
		Profile: s.analyzer.Profile(ctx, agentID, userID),
	}, nil
}

// History returns the recent exchanges for the pair, oldest first.
func (s *Service) History(ctx context.Context, agentID, userID string) (string, error) {
	if _, err := s.agents.Agent(ctx, agentID); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnknownAgent, err)
	}
	return s.memory.RecentHistory(ctx, model.NewKey(agentID, userID))
}

// Agents lists the known agents.
func (s *Service) Agents(ctx context.Context) ([]model.AgentProfile, error) {
	return s.agents.List(ctx)
}

// Metrics returns a snapshot of the service counters.
func (s *Service) Metrics() MetricsSnapshot {
	snap := s.metrics.Snapshot()
	if s.opts.Embeddings != nil {
		snap.EmbeddingHits, snap.EmbeddingMisses = s.opts.Embeddings.Stats()
	}
	snap.VectorIndex = s.memory.IndexState().String()
	return snap
}

// Degraded reports whether similarity recall has been switched off.
func (s *Service) Degraded() bool {
	return s.memory.IndexState() == vector.Disconnected
}

// Wait blocks until background work finishes or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.pool.Wait(ctx)
}
