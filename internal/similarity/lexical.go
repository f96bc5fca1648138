package similarity

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/starford/othala/internal/models"
)

// Lexical is a degraded, no-network index: token-set Jaccard similarity.
// Used when no embedding credentials are configured.
type Lexical struct {
	threshold  float64
	maxResults int
}

// NewLexical builds a lexical index. Blocks with Jaccard similarity below
// threshold are not overlaps.
func NewLexical(threshold float64, maxResults int) *Lexical {
	if threshold <= 0 {
		threshold = 0.5
	}
	if maxResults <= 0 {
		maxResults = 1
	}
	return &Lexical{threshold: threshold, maxResults: maxResults}
}

func (l *Lexical) FindOverlaps(_ context.Context, text string, corpus []*models.Block) ([]*models.Block, error) {
	candidate := tokenSet(text)
	if len(candidate) == 0 {
		return nil, nil
	}

	type scored struct {
		block *models.Block
		sim   float64
	}
	var hits []scored
	for _, b := range corpus {
		if b.Content == "" {
			continue
		}
		if sim := jaccard(candidate, tokenSet(b.Content)); sim >= l.threshold {
			hits = append(hits, scored{block: b, sim: sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if len(hits) > l.maxResults {
		hits = hits[:l.maxResults]
	}

	out := make([]*models.Block, len(hits))
	for i, h := range hits {
		out[i] = h.block
	}
	return out, nil
}

func tokenSet(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
