package personality

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/go-companion/src/cache"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
	"github.com/Protocol-Lattice/go-companion/src/models"
	"github.com/Protocol-Lattice/go-companion/src/sqlstore"
)

type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   atomic.Int32
	reqs    []models.CompletionRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req models.CompletionRequest) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return `{"traits":[]}`, nil
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r, nil
}

type agentMap map[string]model.AgentProfile

func (m agentMap) Agent(_ context.Context, id string) (model.AgentProfile, error) {
	a, ok := m[id]
	if !ok {
		return model.AgentProfile{}, errors.New("agent not found")
	}
	return a, nil
}

var testAgents = agentMap{"a1": {ID: "a1", Name: "Ada", Instructions: "Curious and precise."}}

const longExchange = "Human: What do you do on weekends?\nAda: I usually go hiking in the mountains and read about astronomy."

func newAnalyzer(llm models.Completer, store Store) *Analyzer {
	return NewAnalyzer(llm, store, testAgents, cache.NewMarkerKV(), Options{})
}

func traitsJSON(traits ...string) string {
	return `{"traits":[` + strings.Join(traits, ",") + `]}`
}

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "traits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlite := NewSQLiteStore(db)
	require.NoError(t, sqlite.CreateSchema(context.Background()))
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestUpsertNeverDowngrades(t *testing.T) {
	ctx := context.Background()
	key := model.NewKey("a1", "u1")
	base := strings.Repeat("loves long mountain hikes at dawn, ", 2)

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			low := Trait{AgentID: "a1", UserID: "u1", Type: Interest, Content: base + "alone", Confidence: 0.6}
			high := Trait{AgentID: "a1", UserID: "u1", Type: Interest, Content: base + "with friends", Confidence: 0.9, Source: "second"}

			out, err := store.Upsert(ctx, low)
			require.NoError(t, err)
			assert.Equal(t, Inserted, out)
			out, err = store.Upsert(ctx, high)
			require.NoError(t, err)
			assert.Equal(t, Raised, out)
			out, err = store.Upsert(ctx, low)
			require.NoError(t, err)
			assert.Equal(t, Kept, out)

			traits, err := store.Top(ctx, key, 10)
			require.NoError(t, err)
			require.Len(t, traits, 1)
			assert.InDelta(t, 0.9, traits[0].Confidence, 1e-9)
			assert.Equal(t, "second", traits[0].Source)
			assert.Equal(t, low.Content, traits[0].Content, "content is kept from the first insert")
		})
	}
}

func TestUpsertScopesByKeyAndType(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			for _, tr := range []Trait{
				{AgentID: "a1", UserID: "u1", Type: Interest, Content: "astronomy", Confidence: 0.5},
				{AgentID: "a1", UserID: "u1", Type: Opinion, Content: "astronomy", Confidence: 0.7},
				{AgentID: "a1", UserID: "u2", Type: Interest, Content: "astronomy", Confidence: 0.8},
			} {
				out, err := store.Upsert(ctx, tr)
				require.NoError(t, err)
				assert.Equal(t, Inserted, out)
			}
			traits, err := store.Top(ctx, model.NewKey("a1", "u1"), 10)
			require.NoError(t, err)
			require.Len(t, traits, 2)
			assert.Equal(t, Opinion, traits[0].Type, "ordered by confidence")

			_, err = store.Upsert(ctx, Trait{AgentID: "a1", Type: Interest, Content: "x", Confidence: 0.5})
			assert.ErrorIs(t, err, model.ErrInvalidKey)
		})
	}
}

func TestConcurrentUpsertsKeepHighest(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 1; i <= 9; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := store.Upsert(ctx, Trait{AgentID: "a1", UserID: "u1", Type: Behavior,
						Content: "answers questions with questions", Confidence: float64(i) / 10})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()
			traits, err := store.Top(ctx, model.NewKey("a1", "u1"), 10)
			require.NoError(t, err)
			require.Len(t, traits, 1)
			assert.InDelta(t, 0.9, traits[0].Confidence, 1e-9)
		})
	}
}

func TestAnalyzeExchangeCooldown(t *testing.T) {
	ctx := context.Background()
	llm := &scriptedLLM{}
	a := newAnalyzer(llm, NewMemoryStore())
	key := model.NewKey("a1", "u1")

	first := a.AnalyzeExchange(ctx, longExchange, "Ada", key, false)
	second := a.AnalyzeExchange(ctx, longExchange, "Ada", key, false)
	assert.True(t, first.Ran())
	assert.Equal(t, SkipCooldown, second.Skipped)
	assert.EqualValues(t, 1, llm.calls.Load())

	a.AnalyzeExchange(ctx, longExchange, "Ada", key, true)
	a.AnalyzeExchange(ctx, longExchange, "Ada", key, true)
	assert.EqualValues(t, 3, llm.calls.Load(), "priority analysis ignores the cooldown")

	other := a.AnalyzeExchange(ctx, longExchange, "Ada", model.NewKey("a1", "u2"), false)
	assert.True(t, other.Ran(), "cooldown is per agent/user pair")
}

func TestCooldownKeyKeepsPairsDistinct(t *testing.T) {
	assert.NotEqual(t,
		CooldownKey(model.NewKey("a:b", "c")),
		CooldownKey(model.NewKey("a", "b:c")),
	)
	assert.Equal(t, "personality_analysis_cooldown:a1:u1", CooldownKey(model.NewKey("a1", "u1")))
}

func TestAnalyzeExchangeCooldownUnderConcurrency(t *testing.T) {
	llm := &scriptedLLM{}
	a := newAnalyzer(llm, NewMemoryStore())
	key := model.NewKey("a1", "u1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.AnalyzeExchange(context.Background(), longExchange, "Ada", key, false)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, llm.calls.Load())
}

func TestAnalyzeExchangeSkipsShortText(t *testing.T) {
	llm := &scriptedLLM{}
	a := newAnalyzer(llm, NewMemoryStore())
	res := a.AnalyzeExchange(context.Background(), "Human: hi\nAda: hello", "Ada", model.NewKey("a1", "u1"), true)
	assert.Equal(t, SkipTooShort, res.Skipped)
	assert.Zero(t, llm.calls.Load())
}

func TestAnalyzeExchangeInvalidKey(t *testing.T) {
	llm := &scriptedLLM{}
	a := newAnalyzer(llm, NewMemoryStore())
	res := a.AnalyzeExchange(context.Background(), longExchange, "Ada", model.NewKey("a1", " "), true)
	assert.Equal(t, SkipInvalidKey, res.Skipped)
	assert.Zero(t, llm.calls.Load())
}

func TestAnalyzeExchangeMergesValidTraits(t *testing.T) {
	ctx := context.Background()
	llm := &scriptedLLM{replies: []string{traitsJSON(
		`{"type":"interest","content":"hiking in the mountains","confidence":0.8}`,
		`{"type":"interest","content":"no confidence"}`,
		`{"type":"hobby","content":"unknown type","confidence":0.9}`,
		`{"type":"opinion","content":"out of range","confidence":1.5}`,
		`{"type":"emotional","content":"calm","confidence":"high"}`,
	)}}
	store := NewMemoryStore()
	a := newAnalyzer(llm, store)
	key := model.NewKey("a1", "u1")
	text := longExchange + strings.Repeat(" More chatter.", 30)

	res := a.AnalyzeExchange(ctx, text, "Ada", key, true)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 4, res.Discarded)

	traits, err := a.Traits(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, traits, 1)
	assert.Equal(t, text[:SourceLength], traits[0].Source)

	require.Len(t, llm.reqs, 1)
	assert.True(t, llm.reqs[0].JSON)
	assert.Contains(t, llm.reqs[0].System, "Ada")
}

func TestAnalyzeExchangeMalformedOutput(t *testing.T) {
	for _, reply := range []string{"not json", `{"traits": "nope"}`, `{"other": []}`} {
		llm := &scriptedLLM{replies: []string{reply}}
		store := NewMemoryStore()
		a := newAnalyzer(llm, store)
		res := a.AnalyzeExchange(context.Background(), longExchange, "Ada", model.NewKey("a1", "u1"), true)
		assert.Equal(t, SkipMalformed, res.Skipped, reply)
		traits, _ := store.Top(context.Background(), model.NewKey("a1", "u1"), 10)
		assert.Empty(t, traits)
	}
}

func TestAnalyzeExchangeModelFailure(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("upstream 500")}
	a := newAnalyzer(llm, NewMemoryStore())
	res := a.AnalyzeExchange(context.Background(), longExchange, "Ada", model.NewKey("a1", "u1"), true)
	assert.Equal(t, SkipModel, res.Skipped)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) { return "", false, errors.New("down") }
func (failingKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (failingKV) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("down")
}

func TestAnalyzeExchangeCooldownStoreDown(t *testing.T) {
	llm := &scriptedLLM{}
	a := NewAnalyzer(llm, NewMemoryStore(), testAgents, failingKV{}, Options{})
	res := a.AnalyzeExchange(context.Background(), longExchange, "Ada", model.NewKey("a1", "u1"), false)
	assert.Equal(t, SkipUnavailable, res.Skipped)
	assert.Zero(t, llm.calls.Load())
}

func TestExtractInitialBoostsConfidence(t *testing.T) {
	ctx := context.Background()
	llm := &scriptedLLM{replies: []string{traitsJSON(
		`{"type":"interest","content":"astronomy","confidence":0.7}`,
		`{"type":"communication","content":"precise wording","confidence":0.95}`,
	)}}
	a := newAnalyzer(llm, NewMemoryStore())
	key := model.NewKey("a1", "u1")

	res := a.ExtractInitial(ctx, model.AgentProfile{Name: "Ada", Description: "An astronomer", Instructions: "Be precise.", Seed: "Human: hi\nAda: hello"}, key)
	assert.Equal(t, 2, res.Inserted)

	traits, err := a.Traits(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, traits, 2)
	assert.InDelta(t, 1.0, traits[0].Confidence, 1e-9)
	assert.InDelta(t, 0.8, traits[1].Confidence, 1e-9)
	for _, tr := range traits {
		assert.Equal(t, ProfileSource, tr.Source)
	}
	assert.Contains(t, llm.reqs[0].Prompt, "An astronomer")
	assert.Contains(t, llm.reqs[0].Prompt, "Human: hi")
}

func TestProfileWithoutTraitsSkipsModel(t *testing.T) {
	llm := &scriptedLLM{}
	a := newAnalyzer(llm, NewMemoryStore())
	p := a.Profile(context.Background(), "a1", "u1")
	assert.Equal(t, []string{"Still learning..."}, p.CoreTraits)
	assert.Empty(t, p.Interests)
	assert.NotNil(t, p.Opinions)
	assert.Zero(t, llm.calls.Load())
}

func TestProfileSynthesis(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Upsert(ctx, Trait{AgentID: "a1", UserID: "u1", Type: Interest, Content: "astronomy", Confidence: 0.9})
	require.NoError(t, err)

	llm := &scriptedLLM{replies: []string{"```json\n" + `{"coreTraits":["curious"],"communicationStyle":"direct","opinions":{"tea":"good"}}` + "\n```"}}
	a := newAnalyzer(llm, store)
	p := a.Profile(ctx, "a1", "u1")
	assert.Equal(t, []string{"curious"}, p.CoreTraits)
	assert.Equal(t, "direct", p.CommunicationStyle)
	assert.Equal(t, "good", p.Opinions["tea"])
	assert.NotNil(t, p.Interests)

	require.Len(t, llm.reqs, 1)
	assert.Contains(t, llm.reqs[0].Prompt, "Curious and precise.")
	assert.Contains(t, llm.reqs[0].Prompt, `"content":"astronomy"`)
}

func TestProfileFallbacks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Upsert(ctx, Trait{AgentID: "a1", UserID: "u1", Type: Interest, Content: "astronomy", Confidence: 0.9})
	require.NoError(t, err)

	cases := []struct {
		name  string
		agent string
		llm   *scriptedLLM
		want  string
	}{
		{"malformed", "a1", &scriptedLLM{replies: []string{"not json"}}, "Still analyzing..."},
		{"wrong shape", "a1", &scriptedLLM{replies: []string{`{"coreTraits":"curious","communicationStyle":"x"}`}}, "Still analyzing..."},
		{"missing field", "a1", &scriptedLLM{replies: []string{`{"coreTraits":["curious"]}`}}, "Still analyzing..."},
		{"model down", "a1", &scriptedLLM{err: errors.New("boom")}, "Analysis unavailable"},
		{"unknown agent", "nope", &scriptedLLM{}, "Analysis unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAnalyzer(tc.llm, store)
			p := a.Profile(ctx, tc.agent, "u1")
			assert.Equal(t, []string{tc.want}, p.CoreTraits)
		})
	}
}

func TestContentPrefixIsRuneSafe(t *testing.T) {
	s := strings.Repeat("é", 50)
	assert.Equal(t, strings.Repeat("é", PrefixLength), ContentPrefix(s))
	assert.Equal(t, "short", ContentPrefix("short"))
}

func ExampleAnalyzer_Profile() {
	a := NewAnalyzer(models.NewDummyLLM(""), NewMemoryStore(), agentMap{"a1": {Name: "Ada"}}, nil, Options{})
	p := a.Profile(context.Background(), "a1", "u1")
	fmt.Println(p.CoreTraits[0])
	// Output: Still learning...
}
