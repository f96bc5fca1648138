package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/othala/internal/models"
)

// Client is the transport a provider exposes: one prompt in, one completion
// out. Implementations: OpenAIClient, OllamaClient.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	outputMarker    = "<OUTPUT>"
	defaultAttempts = 3
)

var outputPattern = regexp.MustCompile(`(?s)<OUTPUT>\s*(.*?)\s*</OUTPUT>`)

// LLM drives the merge pipeline over a provider Client: normalize leaf
// sources, merge, detect contradictions, correct when needed.
type LLM struct {
	client   Client
	logger   *slog.Logger
	attempts int
}

// NewLLM wraps a provider client into the merge pipeline. attempts bounds
// the retries per call when the model omits the output envelope; zero or
// negative falls back to the default.
func NewLLM(client Client, logger *slog.Logger, attempts int) *LLM {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &LLM{client: client, logger: logger, attempts: attempts}
}

var _ Oracle = (*LLM)(nil)

// Merge implements Oracle. Sources arrive in the order fixed by the caller:
// recency order for sum, [minuend, subtrahend] for subtract.
func (l *LLM) Merge(ctx context.Context, op models.OpKind, sources []Source) (*Result, error) {
	switch op {
	case models.OpSum:
		if len(sources) < 2 {
			return nil, fmt.Errorf("oracle: sum needs at least two sources, got %d", len(sources))
		}
		texts, err := l.normalizeAll(ctx, sources)
		if err != nil {
			return nil, err
		}
		return l.finalize(ctx, fmt.Sprintf(promptRewrite, strings.Join(texts, " \n")))

	case models.OpSubtract:
		if len(sources) != 2 {
			return nil, fmt.Errorf("oracle: subtract needs exactly two sources, got %d", len(sources))
		}
		texts, err := l.normalizeAll(ctx, sources)
		if err != nil {
			return nil, err
		}
		return l.finalize(ctx, fmt.Sprintf(promptRemove, texts[0], texts[1]))

	default:
		return nil, fmt.Errorf("oracle: operation %s does not merge", op)
	}
}

// normalizeAll passes literal (create/edit) contributions through the
// rewrite prompt so the merge sees structured text; derived contributions
// are already oracle output and pass through unchanged.
func (l *LLM) normalizeAll(ctx context.Context, sources []Source) ([]string, error) {
	texts := make([]string, len(sources))
	for i, src := range sources {
		if src.Kind != models.OpCreate && src.Kind != models.OpEdit {
			texts[i] = src.Text
			continue
		}
		raw, err := l.call(ctx, fmt.Sprintf(promptRewrite, src.Text))
		if err != nil {
			return nil, err
		}
		parsed, found := parseOutput(raw)
		if !found {
			return nil, fmt.Errorf("oracle: source rewrite produced no %s envelope", outputMarker)
		}
		texts[i] = parsed
	}
	return texts, nil
}

// finalize runs the merge prompt, then conflict detection and, when a
// contradiction is flagged, a correction round. The raw transcript of every
// round is concatenated into Result.Raw.
func (l *LLM) finalize(ctx context.Context, prompt string) (*Result, error) {
	raw, err := l.call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	parsed, found := parseOutput(raw)
	if !found {
		return nil, fmt.Errorf("oracle: merge produced no %s envelope", outputMarker)
	}

	conflict, err := l.detect(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if conflict != "" {
		l.logger.Warn("possible conflicts in merged text", slog.String("conflict", conflict))
		correctedRaw, err := l.call(ctx, fmt.Sprintf(promptCorrect, parsed, conflict))
		if err != nil {
			return nil, err
		}
		if corrected, ok := parseOutput(correctedRaw); ok {
			raw += correctedRaw
			parsed = corrected
		} else {
			l.logger.Warn("correction produced no envelope, keeping merged text as-is")
		}
	}

	return &Result{Text: parsed, Raw: raw, Conflict: conflict}, nil
}

// detect returns a conflict annotation, or "" when the detector answers OK.
func (l *LLM) detect(ctx context.Context, text string) (string, error) {
	raw, err := l.call(ctx, fmt.Sprintf(promptConflicts, text))
	if err != nil {
		return "", err
	}
	parsed, found := parseOutput(raw)
	if !found || noConflict(parsed) {
		return "", nil
	}
	return parsed, nil
}

func noConflict(verdict string) bool {
	return verdict == "" ||
		verdict == "OK" ||
		strings.Contains(verdict, "no contradiction") ||
		strings.Contains(verdict, "no evident contradictory") ||
		strings.Contains(verdict, "no contradictory")
}

// call sends the prompt, retrying while the response lacks the output
// marker. After the attempts are exhausted the last response is returned
// anyway; transport errors abort immediately.
func (l *LLM) call(ctx context.Context, prompt string) (string, error) {
	var last string
	for i := 0; i < l.attempts; i++ {
		if i > 0 {
			l.logger.Warn("retrying oracle call", slog.Int("attempt", i+1))
		}
		resp, err := l.client.Generate(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("oracle: generate: %w", err)
		}
		if strings.Contains(resp, outputMarker) {
			return resp, nil
		}
		last = resp
	}
	return last, nil
}

// parseOutput extracts the LAST <OUTPUT>...</OUTPUT> span, trimmed. The last
// match wins because chain-of-thought responses often quote the envelope
// from the prompt examples before emitting the real one.
func parseOutput(raw string) (string, bool) {
	matches := outputPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}
