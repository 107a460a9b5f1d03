package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPANION_CONFIG", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1536, cfg.EmbedDim)
	assert.Equal(t, 10_000, cfg.ResponseCacheSize)
	assert.Equal(t, 30, cfg.RecentLimit)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 24*time.Hour, cfg.ResponseTTL)
	assert.Equal(t, 5*time.Minute, cfg.AnalysisCooldown)
	assert.Equal(t, "\n", cfg.SeedDelimiter)
	assert.False(t, cfg.UsesPostgres())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
trait_backend: sqlite
analysis_cooldown: 1m
agents:
  - id: ada
    name: Ada
    instructions: Curious and precise.
    seed: |
      Human: hi
      Ada: hello
`), 0o644))
	t.Setenv("COMPANION_CONFIG", path)
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port, "environment wins over the file")
	assert.Equal(t, "sqlite", cfg.TraitBackend)
	assert.Equal(t, time.Minute, cfg.AnalysisCooldown)
	assert.True(t, cfg.UsesSQLite())
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "Ada", cfg.Agents[0].Name)
	assert.Contains(t, cfg.Agents[0].Seed, "Ada: hello")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":          {"PORT": "70000"},
		"unknown backend":   {"VECTOR_BACKEND": "faiss"},
		"redis without url": {"CACHE_BACKEND": "redis"},
		"postgres no dsn":   {"HISTORY_BACKEND": "postgres"},
		"mongo no uri":      {"TRAIT_BACKEND": "mongo"},
		"negative dim":      {"EMBED_DIM": "-1"},
		"zero cache size":   {"RESPONSE_CACHE_SIZE": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("COMPANION_CONFIG", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadResolvesProviderDefaults(t *testing.T) {
	cases := []struct {
		embed, llm           string
		embedModel, llmModel string
		dim                  int
	}{
		{"openai", "openai", "text-embedding-3-small", "gpt-4o-mini", 1536},
		{"gemini", "gemini", "text-embedding-004", "gemini-2.0-flash", 768},
		{"ollama", "ollama", "nomic-embed-text", "llama3.1", 768},
		{"fastembed", "anthropic", "fast-bge-small-en-v1.5", "claude-3-5-sonnet-latest", 384},
		{"dummy", "dummy", "", "", 1536},
	}
	for _, tc := range cases {
		t.Run(tc.embed+"/"+tc.llm, func(t *testing.T) {
			t.Setenv("COMPANION_CONFIG", "")
			t.Setenv("EMBED_PROVIDER", tc.embed)
			t.Setenv("LLM_PROVIDER", tc.llm)

			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tc.embedModel, cfg.EmbedModel)
			assert.Equal(t, tc.dim, cfg.EmbedDim)
			assert.Equal(t, tc.llmModel, cfg.LLMModel)
		})
	}
}

func TestLoadKeepsExplicitModels(t *testing.T) {
	t.Setenv("COMPANION_CONFIG", "")
	t.Setenv("EMBED_PROVIDER", "ollama")
	t.Setenv("EMBED_MODEL", "mxbai-embed-large")
	t.Setenv("EMBED_DIM", "1024")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_MODEL", "mistral")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbedModel)
	assert.Equal(t, 1024, cfg.EmbedDim)
	assert.Equal(t, "mistral", cfg.LLMModel)
}

func TestResolveProviderDefaultsOnDefaults(t *testing.T) {
	cfg := Defaults()
	require.Zero(t, cfg.EmbedDim)
	cfg.EmbedProvider = "gemini"
	cfg.ResolveProviderDefaults()
	assert.Equal(t, 768, cfg.EmbedDim)
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
}
