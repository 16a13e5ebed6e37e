package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9, "opposite vectors map to zero")
	assert.InDelta(t, 0.5, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9, "orthogonal vectors map to the midpoint")
	assert.Zero(t, cosine([]float32{1, 2}, []float32{1, 2, 3}), "mismatched dimensions")
	assert.Zero(t, cosine(nil, nil))
}
