// Package embedding turns task content into vectors and finds similar tasks
// within a project.
package embedding

import (
	"context"
	"math"
)

// Engine produces embedding vectors. Vectors from different engines are not
// comparable; the index records which engine wrote each vector.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// CosineSimilarity returns a value in [-1, 1]. Vectors of different length
// or with zero magnitude score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	// identical vectors accumulate identical sums
	if dot == na && na == nb {
		return 1
	}
	sim := dot / math.Sqrt(na*nb)
	return math.Max(-1, math.Min(1, sim))
}
