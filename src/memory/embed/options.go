package embed

// FastEmbedOptions configures the local ONNX embedder built with -tags fastembed.
type FastEmbedOptions struct {
	Model     string // e.g. "fast-bge-small-en-v1.5"
	CacheDir  string
	MaxLength int // token limit, 0 = default
}
