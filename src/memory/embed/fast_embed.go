//go:build fastembed

package embed

import (
	"context"

	fastembed "github.com/anush008/fastembed-go"
)

type FastEmbedder struct {
	m *fastembed.FlagEmbedding
}

func defaultFastEmbedOptions(model string) *FastEmbedOptions {
	if model == "" {
		model = string(fastembed.BGESmallENV15)
	}
	return &FastEmbedOptions{
		Model:    model,
		CacheDir: ".fastembed",
	}
}

func NewFastEmbedder(ctx context.Context, opt *FastEmbedOptions) (Embedder, error) {
	var init *fastembed.InitOptions
	if opt != nil {
		init = &fastembed.InitOptions{
			Model:     fastembed.EmbeddingModel(opt.Model),
			CacheDir:  opt.CacheDir,
			MaxLength: opt.MaxLength,
		}
	}
	m, err := fastembed.NewFlagEmbedding(init)
	if err != nil {
		return nil, err
	}
	return &FastEmbedder{m: m}, nil
}

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}

func (e *FastEmbedder) Embed(ctx context.Context, q string) ([]float32, error) {
	return e.m.QueryEmbed(q)
}
