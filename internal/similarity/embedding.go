package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/starford/othala/internal/models"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedding ranks corpus blocks by cosine distance to the candidate text.
type Embedding struct {
	embedder    Embedder
	maxDistance float64
	maxResults  int
}

// NewEmbedding builds an embedding index. Blocks farther than maxDistance
// (cosine distance, 0 identical .. 2 opposite) are not overlaps; at most
// maxResults blocks are returned.
func NewEmbedding(embedder Embedder, maxDistance float64, maxResults int) *Embedding {
	if maxDistance <= 0 {
		maxDistance = 0.5
	}
	if maxResults <= 0 {
		maxResults = 1
	}
	return &Embedding{embedder: embedder, maxDistance: maxDistance, maxResults: maxResults}
}

func (e *Embedding) FindOverlaps(ctx context.Context, text string, corpus []*models.Block) ([]*models.Block, error) {
	candidates := make([]*models.Block, 0, len(corpus))
	texts := []string{text}
	for _, b := range corpus {
		if b.Content == "" {
			continue
		}
		candidates = append(candidates, b)
		texts = append(texts, b.Content)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("similarity: embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("similarity: embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	type scored struct {
		block *models.Block
		dist  float64
	}
	var hits []scored
	for i, b := range candidates {
		d := cosineDistance(vectors[0], vectors[i+1])
		if d <= e.maxDistance {
			hits = append(hits, scored{block: b, dist: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if len(hits) > e.maxResults {
		hits = hits[:e.maxResults]
	}

	out := make([]*models.Block, len(hits))
	for i, h := range hits {
		out[i] = h.block
	}
	return out, nil
}

// cosineDistance is 1 - cos(a, b). Mismatched or zero vectors count as
// maximally distant rather than erroring.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
