package postprocessors

import (
	"github.com/custodia-labs/docqa/internal/core/ports/driven"
	"github.com/custodia-labs/docqa/internal/postprocessors/chunker"
)

// Splitter names, matching the chunker unit setting.
const (
	SplitterChars  = "chars"
	SplitterTokens = "tokens"
)

// RegisterDefaults registers all built-in splitters with the registry.
func RegisterDefaults(r *Registry) {
	r.Register(SplitterChars, buildCharSplitter)
	r.Register(SplitterTokens, buildTokenSplitter)
}

// Default returns a registry with the built-in splitters.
func Default() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// buildCharSplitter creates a chunker measuring length in characters.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between chunks (default: 200)
func buildCharSplitter(cfg map[string]any) (driven.TextSplitter, error) {
	return chunker.New(sizeOptions(cfg)...), nil
}

// buildTokenSplitter creates a chunker measuring length in tokens.
// Supported config keys are those of the character splitter plus:
//   - encoding (string): tiktoken encoding (default: cl100k_base)
func buildTokenSplitter(cfg map[string]any) (driven.TextSplitter, error) {
	encoding, _ := cfg["encoding"].(string)
	length, err := chunker.TokenLength(encoding)
	if err != nil {
		return nil, err
	}
	opts := append(sizeOptions(cfg), chunker.WithLengthFunc(length))
	return chunker.New(opts...), nil
}

func sizeOptions(cfg map[string]any) []chunker.Option {
	var opts []chunker.Option
	if cfg == nil {
		return opts
	}
	if size := getIntFromConfig(cfg, "chunk_size"); size > 0 {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if _, ok := cfg["overlap"]; ok {
		opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
	}
	return opts
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
