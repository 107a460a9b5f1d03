//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

func defaultFastEmbedOptions(string) *FastEmbedOptions { return nil }

func NewFastEmbedder(ctx context.Context, opt *FastEmbedOptions) (Embedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}
