// Package personality distills confidence-scored traits from dialogue and
// synthesizes a profile from them.
package personality

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Protocol-Lattice/go-companion/src/cache"
	"github.com/Protocol-Lattice/go-companion/src/concurrent"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
	"github.com/Protocol-Lattice/go-companion/src/models"
)

const (
	// MinExchangeLength is the shortest text worth analyzing.
	MinExchangeLength = 50
	// DefaultCooldown spaces non-priority analyses per agent/user pair.
	DefaultCooldown = 5 * time.Minute
	// InitialBoost is added to traits declared in an agent's profile.
	InitialBoost = 0.1
)

// AgentLookup resolves an agent's declared profile.
type AgentLookup interface {
	Agent(ctx context.Context, agentID string) (model.AgentProfile, error)
}

// Options tunes an Analyzer.
type Options struct {
	Cooldown         time.Duration
	ProfileTraits    int
	MergeConcurrency int
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.ProfileTraits <= 0 {
		o.ProfileTraits = DefaultProfileTraits
	}
	if o.MergeConcurrency <= 0 {
		o.MergeConcurrency = 4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Skip explains why an analysis did nothing.
type Skip string

const (
	SkipNone        Skip = ""
	SkipInvalidKey  Skip = "invalid_key"
	SkipTooShort    Skip = "too_short"
	SkipCooldown    Skip = "cooldown"
	SkipUnavailable Skip = "unavailable"
	SkipModel       Skip = "model_error"
	SkipMalformed   Skip = "malformed_output"
)

// Result summarizes one extraction or analysis.
type Result struct {
	Skipped   Skip
	Inserted  int
	Raised    int
	Kept      int
	Discarded int
	Failed    int
}

// Ran reports whether the classification call was made and parsed.
func (r Result) Ran() bool { return r.Skipped == SkipNone }

// Analyzer turns exchanges into stored traits. None of its entry points
// return errors: failures are logged and reported through Result.
type Analyzer struct {
	llm      models.Completer
	store    Store
	agents   AgentLookup
	cooldown cache.KV
	opts     Options
	logger   *slog.Logger

	classifications atomic.Int64
}

// NewAnalyzer wires an analyzer. cooldown may be nil, which disables the
// non-priority rate limit.
func NewAnalyzer(llm models.Completer, store Store, agents AgentLookup, cooldown cache.KV, opts Options) *Analyzer {
	opts = opts.withDefaults()
	return &Analyzer{
		llm:      llm,
		store:    store,
		agents:   agents,
		cooldown: cooldown,
		opts:     opts,
		logger:   opts.Logger.With("component", "personality"),
	}
}

// Classifications counts classification calls issued so far.
func (a *Analyzer) Classifications() int64 { return a.classifications.Load() }

// CooldownKey is the marker key gating non-priority analysis for key.
func CooldownKey(key model.Key) string {
	return "personality_analysis_cooldown:" + key.String()
}

// ExtractInitial derives traits from an agent's declared profile. Each gets
// InitialBoost added to its confidence, capped at 1.
func (a *Analyzer) ExtractInitial(ctx context.Context, profile model.AgentProfile, key model.Key) Result {
	if err := key.Validate(); err != nil {
		a.logger.Warn("skipping initial extraction", "error", err)
		return Result{Skipped: SkipInvalidKey}
	}
	req := models.CompletionRequest{
		System:      extractSystemPrompt,
		Prompt:      extractUserPrompt(profile.Name, profile.Description, profile.Instructions, profile.Seed),
		JSON:        true,
		Temperature: analysisTemperature,
		MaxTokens:   extractMaxTokens,
	}
	candidates, res := a.classify(ctx, key, req)
	if !res.Ran() {
		return res
	}
	for i := range candidates {
		candidates[i].Confidence = min(candidates[i].Confidence+InitialBoost, 1.0)
	}
	a.merge(ctx, key, candidates, ProfileSource, &res)
	a.logger.Info("extracted initial personality", "key", key, "inserted", res.Inserted, "raised", res.Raised)
	return res
}

// AnalyzeExchange classifies text and merges the resulting traits. Unless
// priority is set, at most one analysis per Cooldown runs for key; the
// marker is claimed atomically before the classification call.
func (a *Analyzer) AnalyzeExchange(ctx context.Context, text, agentName string, key model.Key, priority bool) Result {
	if err := key.Validate(); err != nil {
		a.logger.Warn("skipping analysis", "error", err)
		return Result{Skipped: SkipInvalidKey}
	}
	if utf8.RuneCountInString(text) < MinExchangeLength {
		return Result{Skipped: SkipTooShort}
	}
	if !priority && a.cooldown != nil {
		claimed, err := a.cooldown.SetNX(ctx, CooldownKey(key), strconv.FormatInt(time.Now().UnixMilli(), 10), a.opts.Cooldown)
		if err != nil {
			a.logger.Warn("cooldown store unavailable, skipping analysis", "key", key, "error", err)
			return Result{Skipped: SkipUnavailable}
		}
		if !claimed {
			a.logger.Debug("analysis on cooldown", "key", key)
			return Result{Skipped: SkipCooldown}
		}
	}

	req := models.CompletionRequest{
		System:      analyzeSystemPrompt(agentName),
		Prompt:      text,
		JSON:        true,
		Temperature: analysisTemperature,
		MaxTokens:   analyzeMaxTokens,
	}
	candidates, res := a.classify(ctx, key, req)
	if !res.Ran() {
		return res
	}
	a.merge(ctx, key, candidates, Snippet(text), &res)
	a.logger.Debug("analyzed exchange", "key", key, "priority", priority,
		"inserted", res.Inserted, "raised", res.Raised, "kept", res.Kept, "discarded", res.Discarded)
	return res
}

func (a *Analyzer) classify(ctx context.Context, key model.Key, req models.CompletionRequest) ([]Candidate, Result) {
	a.classifications.Add(1)
	raw, err := a.llm.Complete(ctx, req)
	if err != nil {
		a.logger.Warn("trait classification failed", "key", key, "error", err)
		return nil, Result{Skipped: SkipModel}
	}
	candidates, dropped, err := ParseCandidates(raw)
	if err != nil {
		a.logger.Warn("discarding classification output", "key", key, "error", err)
		return nil, Result{Skipped: SkipMalformed}
	}
	return candidates, Result{Discarded: dropped}
}

func (a *Analyzer) merge(ctx context.Context, key model.Key, candidates []Candidate, source string, res *Result) {
	var inserted, raised, kept, failed atomic.Int32
	_ = concurrent.ParallelForEach(ctx, candidates, func(c Candidate) error {
		outcome, err := a.store.Upsert(ctx, Trait{
			AgentID:    key.AgentID,
			UserID:     key.UserID,
			Type:       c.Type,
			Content:    c.Content,
			Confidence: c.Confidence,
			Source:     source,
		})
		if err != nil {
			failed.Add(1)
			a.logger.Warn("storing trait failed", "key", key, "type", c.Type, "error", err)
			return nil
		}
		switch outcome {
		case Inserted:
			inserted.Add(1)
		case Raised:
			raised.Add(1)
		default:
			kept.Add(1)
		}
		return nil
	}, a.opts.MergeConcurrency)
	res.Inserted += int(inserted.Load())
	res.Raised += int(raised.Load())
	res.Kept += int(kept.Load())
	res.Failed += int(failed.Load())
}

// Traits returns up to limit stored traits for key, best first.
func (a *Analyzer) Traits(ctx context.Context, key model.Key, limit int) ([]Trait, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return a.store.Top(ctx, key, limit)
}

type traitSummary struct {
	Type       TraitType `json:"type"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
}

// Profile synthesizes a personality view for the agent/user pair. It never
// fails: with no traits it returns LearningProfile without calling the
// model, unusable output yields AnalyzingProfile and load failures yield
// UnavailableProfile.
func (a *Analyzer) Profile(ctx context.Context, agentID, userID string) Profile {
	key := model.NewKey(agentID, userID)
	if err := key.Validate(); err != nil {
		a.logger.Warn("profile requested with invalid key", "error", err)
		return UnavailableProfile()
	}
	agent, err := a.agents.Agent(ctx, agentID)
	if err != nil {
		a.logger.Warn("loading agent for profile failed", "key", key, "error", err)
		return UnavailableProfile()
	}
	traits, err := a.store.Top(ctx, key, a.opts.ProfileTraits)
	if err != nil {
		a.logger.Warn("loading traits for profile failed", "key", key, "error", err)
		return UnavailableProfile()
	}
	if len(traits) == 0 {
		return LearningProfile()
	}

	summary := make([]traitSummary, len(traits))
	for i, t := range traits {
		summary[i] = traitSummary{Type: t.Type, Content: t.Content, Confidence: t.Confidence}
	}
	traitsJSON, err := json.Marshal(summary)
	if err != nil {
		return UnavailableProfile()
	}
	raw, err := a.llm.Complete(ctx, models.CompletionRequest{
		System: profileSystemPrompt(agent.Name),
		Prompt: profileUserPrompt(agent.Instructions, traitsJSON),
		JSON:   true,
	})
	if err != nil {
		a.logger.Warn("profile synthesis failed", "key", key, "error", err)
		return UnavailableProfile()
	}
	profile, err := ParseProfile(raw)
	if err != nil {
		if !errors.Is(err, ErrMalformedOutput) {
			return UnavailableProfile()
		}
		a.logger.Warn("discarding profile output", "key", key, "error", err)
		return AnalyzingProfile()
	}
	return profile
}
