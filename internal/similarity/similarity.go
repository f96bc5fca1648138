// Package similarity finds semantically overlapping blocks for smart
// document insertion. The embedding index is the production path; the
// lexical index is a no-network fallback.
package similarity

import (
	"context"

	"github.com/starford/othala/internal/models"
)

// Index returns the corpus blocks that overlap the candidate text, closest
// first, possibly none. Only computed blocks with content participate.
type Index interface {
	FindOverlaps(ctx context.Context, text string, corpus []*models.Block) ([]*models.Block, error)
}

// Verify both implementations satisfy Index at compile time.
var (
	_ Index = (*Embedding)(nil)
	_ Index = (*Lexical)(nil)
)
