package embeddings

import (
	"context"
	"math"
)

// Provider produces vector representations for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Dimensioned is implemented by providers that know their output size
// without a probe request.
type Dimensioned interface {
	Dimensions() int
}

// Normalize scales vec to unit length in place. A zero vector is left as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
