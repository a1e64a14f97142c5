package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEngine is a deterministic, dependency-free embedding engine based on
// feature hashing of lowercase word tokens and character trigrams. It needs
// no network and gives stable vectors, which makes it the engine for offline
// use and tests. Texts sharing vocabulary land close together.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hash engine producing vectors of the given size.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed hashes text into a unit-length vector.
func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		e.add(vec, tok, 1.0)
		padded := "#" + tok + "#"
		for i := 0; i+3 <= len(padded); i++ {
			e.add(vec, padded[i:i+3], 0.5)
		}
	}
	return Normalize(vec), nil
}

func (e *HashEngine) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	// The top bit picks the sign so unrelated features tend to cancel.
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// EmbedBatch embeds each text in order.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured vector size.
func (e *HashEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *HashEngine) Name() string { return fmt.Sprintf("hash:%d", e.dims) }
