// Package oracle implements the content-merge contract used by block
// compute: given ordered source texts and an operation kind, produce merged
// text plus an optional conflict annotation.
package oracle

import (
	"context"
	"time"

	"github.com/starford/othala/internal/models"
)

// Source is one parent contribution to a merge, in the order the caller
// fixed (recency order for sum, [minuend, subtrahend] for subtract).
type Source struct {
	Text       string
	Kind       models.OpKind
	CreatedAt  time.Time
	ComputedAt time.Time
}

// Result is a successful merge. Conflict is non-empty when the oracle
// detected contradictory source facts; the merge still succeeded and Text
// already incorporates the correction.
type Result struct {
	Text     string
	Raw      string
	Conflict string
}

// Oracle merges ordered source texts according to the operation kind.
// Implementations must be idempotent-enough under replay: identical inputs
// may produce different wording but must not fail for non-conflicting
// sources.
type Oracle interface {
	Merge(ctx context.Context, op models.OpKind, sources []Source) (*Result, error)
}
