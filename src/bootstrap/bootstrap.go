// Package bootstrap is the composition root: it turns a config.Config into a
// running companion.Service and owns the lifetime of every connection it
// opened.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	companion "github.com/Protocol-Lattice/go-companion"
	"github.com/Protocol-Lattice/go-companion/src/agents"
	"github.com/Protocol-Lattice/go-companion/src/cache"
	"github.com/Protocol-Lattice/go-companion/src/concurrent"
	"github.com/Protocol-Lattice/go-companion/src/config"
	"github.com/Protocol-Lattice/go-companion/src/memory"
	"github.com/Protocol-Lattice/go-companion/src/memory/embed"
	"github.com/Protocol-Lattice/go-companion/src/memory/history"
	"github.com/Protocol-Lattice/go-companion/src/memory/vector"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/personality"
	"github.com/Protocol-Lattice/go-companion/src/ratelimit"
	"github.com/Protocol-Lattice/go-companion/src/sqlstore"
)

// App is a wired service plus the resources backing it.
type App struct {
	Service *companion.Service
	Agents  agents.Directory

	closers []func(context.Context) error
	logger  *slog.Logger
}

// Close releases every resource opened by Build, newest first.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Build connects the configured backends and assembles the service. On error
// everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := *cfg
	resolved.ResolveProviderDefaults()
	cfg = &resolved

	app := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	var (
		sqlDB  *sql.DB
		pgPool *pgxpool.Pool
	)
	if cfg.UsesSQLite() {
		if sqlDB, err = sqlstore.OpenSQLite(cfg.SQLitePath); err != nil {
			return nil, err
		}
		db := sqlDB
		app.onClose(func(context.Context) error { return db.Close() })
	}
	if cfg.UsesPostgres() {
		if pgPool, err = sqlstore.OpenPostgres(ctx, cfg.PostgresDSN); err != nil {
			return nil, err
		}
		pool := pgPool
		app.onClose(func(context.Context) error { pool.Close(); return nil })
	}

	responses, cooldown, err := app.buildKV(ctx, cfg)
	if err != nil {
		return nil, err
	}
	hs, err := app.buildHistory(ctx, cfg, sqlDB, pgPool)
	if err != nil {
		return nil, err
	}
	ix, embeddings, err := app.buildIndex(ctx, cfg, pgPool)
	if err != nil {
		return nil, err
	}
	traits, err := app.buildTraits(ctx, cfg, sqlDB, pgPool)
	if err != nil {
		return nil, err
	}

	dir, err := agents.NewStatic(cfg.Agents...)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	app.Agents = dir

	llm, err := app.buildLLM(ctx, cfg, cfg.LLMModel)
	if err != nil {
		return nil, err
	}
	analysisLLM := models.Completer(llm)
	if cfg.AnalyzerModel != "" && cfg.AnalyzerModel != cfg.LLMModel {
		if analysisLLM, err = app.buildLLM(ctx, cfg, cfg.AnalyzerModel); err != nil {
			return nil, err
		}
	}

	analyzer := personality.NewAnalyzer(analysisLLM, traits, dir, cooldown, personality.Options{
		Cooldown: cfg.AnalysisCooldown,
		Logger:   logger,
	})
	coordinator := memory.NewCoordinator(hs, ix, memory.Options{
		RecentLimit: cfg.RecentLimit,
		TopK:        cfg.TopK,
		Logger:      logger,
	})

	svc, err := companion.New(companion.Options{
		Memory:              coordinator,
		Responses:           cache.NewResponseCache(responses, cfg.ResponseTTL, logger),
		Analyzer:            analyzer,
		Agents:              dir,
		Model:               llm,
		Limiter:             ratelimit.New(cfg.RateLimitEvents, cfg.RateLimitWindow),
		Pool:                concurrent.NewWorkerPool(cfg.Workers, cfg.BackgroundTimeout, logger),
		Embeddings:          embeddings,
		RecordCacheHits:     cfg.RecordCacheHits,
		PrecomputeEmbedding: cfg.PrecomputeEmbedding,
		SeedDelimiter:       cfg.SeedDelimiter,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	app.Service = svc

	logger.Info("companion assembled",
		"cache", cfg.CacheBackend,
		"history", cfg.HistoryBackend,
		"vector", cfg.VectorBackend,
		"traits", cfg.TraitBackend,
		"llm", cfg.LLMProvider,
		"embedder", cfg.EmbedProvider,
		"agents", len(cfg.Agents),
	)
	return app, nil
}

// buildKV returns the response cache store and the cooldown marker store.
// In memory the markers live apart from cached replies so reply churn cannot
// evict them. Redis serves both from one client.
func (a *App) buildKV(ctx context.Context, cfg *config.Config) (responses, cooldown cache.KV, err error) {
	if cfg.CacheBackend != "redis" {
		return cache.NewMemoryKV(cfg.ResponseCacheSize), cache.NewMarkerKV(), nil
	}
	kv, err := cache.NewRedisKV(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	a.onClose(func(context.Context) error { return kv.Close() })
	return kv, kv, nil
}

func (a *App) buildHistory(ctx context.Context, cfg *config.Config, db *sql.DB, pool *pgxpool.Pool) (*history.Store, error) {
	switch cfg.HistoryBackend {
	case "sqlite":
		b := history.NewSQLiteBackend(db)
		if err := b.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("history schema: %w", err)
		}
		return history.New(b, a.logger), nil
	case "postgres":
		b := history.NewPostgresBackend(pool)
		if err := b.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("history schema: %w", err)
		}
		return history.New(b, a.logger), nil
	default:
		return history.New(history.NewMemoryBackend(), a.logger), nil
	}
}

// buildIndex never fails on an unreachable vector store: the index starts
// Connected and latches Disconnected on first use.
func (a *App) buildIndex(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*vector.Index, companion.EmbeddingStats, error) {
	embedder := embed.New(ctx, embed.Config{
		Provider:   cfg.EmbedProvider,
		Model:      cfg.EmbedModel,
		Dim:        cfg.EmbedDim,
		APIKey:     cfg.EmbedAPIKey,
		OllamaHost: cfg.OllamaHost,
	}, a.logger)
	cached, err := embed.NewCachedEmbedder(embedder, cfg.EmbedDim, cfg.EmbeddingTTL, 0)
	if err != nil {
		closeIfCloser(embedder)
		return nil, nil, err
	}
	a.onClose(func(context.Context) error { return cached.Close() })

	var backend vector.Backend
	switch cfg.VectorBackend {
	case "qdrant":
		backend = vector.NewQdrantBackend(cfg.QdrantURL, cfg.VectorCollection, cfg.QdrantAPIKey)
	case "pgvector":
		backend = vector.NewPGVectorBackend(pool)
	default:
		b, err := vector.NewChromemBackend(cfg.ChromemDir, cfg.VectorCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("chromem: %w", err)
		}
		backend = b
	}
	return vector.NewIndex(backend, cached, cfg.EmbedDim, a.logger), cached, nil
}

func (a *App) buildTraits(ctx context.Context, cfg *config.Config, db *sql.DB, pool *pgxpool.Pool) (personality.Store, error) {
	switch cfg.TraitBackend {
	case "sqlite":
		s := personality.NewSQLiteStore(db)
		if err := s.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("trait schema: %w", err)
		}
		return s, nil
	case "postgres":
		s := personality.NewPostgresStore(pool)
		if err := s.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("trait schema: %w", err)
		}
		return s, nil
	case "mongo":
		s, err := personality.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, "")
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.onClose(func(context.Context) error { return s.Close() })
		if err := s.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("trait schema: %w", err)
		}
		return s, nil
	case "neo4j":
		runner, err := personality.OpenNeo4j(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			return nil, err
		}
		s, err := personality.NewNeo4jStore(runner)
		if err != nil {
			return nil, err
		}
		a.onClose(s.Close)
		if err := s.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("trait schema: %w", err)
		}
		return s, nil
	default:
		return personality.NewMemoryStore(), nil
	}
}

func (a *App) buildLLM(ctx context.Context, cfg *config.Config, model string) (models.LLM, error) {
	llm, err := models.NewLLMProvider(ctx, models.Config{
		Provider: cfg.LLMProvider,
		Model:    model,
		APIKey:   cfg.LLMAPIKey,
		Host:     cfg.OllamaHost,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if c, ok := llm.(io.Closer); ok {
		a.onClose(func(context.Context) error { return c.Close() })
	}
	return llm, nil
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
