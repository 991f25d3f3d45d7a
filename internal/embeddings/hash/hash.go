// Package hash is a deterministic, offline embedder. It hashes word tokens
// into a fixed number of buckets, so texts sharing words land close together.
// Useful for tests and for running without a model server.
package hash

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/qaintel/eventmemory/internal/embeddings"
)

const DefaultDimensions = 384

type Provider struct {
	dimensions int
}

func New(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Provider{dimensions: dimensions}
}

func (p *Provider) Dimensions() int { return p.dimensions }

// Embed returns a unit vector. Each token adds +1 or -1 to one bucket, both
// chosen from the token's FNV-64a hash.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(p.dimensions))
		if (sum>>63)&1 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	return embeddings.Normalize(vec), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
