package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/asura-ai/asura/internal/core"
)

// EmbeddingDimensions is the fixed length of every stored vector. The files
// table declares vector(1024), so any other length is rejected before a write
// is attempted.
const EmbeddingDimensions = 1024

// Embedder wraps the hosted embedding API and validates its output.
type Embedder struct {
	provider  core.EmbeddingProvider
	maxTokens int
}

func NewEmbedder(provider core.EmbeddingProvider, maxTokens int) *Embedder {
	return &Embedder{provider: provider, maxTokens: maxTokens}
}

// approxTokens is a cheap token estimator (~4 chars per token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// Embed turns non-empty text into a 1024-dimension vector. Length and
// numeric well-formedness of the returned vector are enforced here; the
// provider itself is trusted to be deterministic for identical input.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewError(CodeEmptyText, "no text to embed")
	}
	if e.maxTokens > 0 {
		if est := approxTokens(text); est > e.maxTokens {
			return nil, NewError(CodeTextTooLong,
				fmt.Sprintf("estimated %d tokens exceeds the %d token limit", est, e.maxTokens)).
				WithDetails(map[string]any{"estimatedTokens": est, "maxTokens": e.maxTokens})
		}
	}
	if e.provider == nil {
		return nil, NewError(CodeAPIError, "embedding provider is not configured")
	}

	vecs, err := e.provider.EmbedTexts(ctx, []string{text})
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 429 {
			return nil, NewError(CodeAPIRateLimit, "embedding API rate limit exceeded").WithCause(err)
		}
		return nil, NewError(CodeAPIError, fmt.Sprintf("embedding call failed: %v", err)).WithCause(err)
	}

	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, NewError(CodeInvalidDimension, "embedding API returned an empty vector").
			WithDetails(map[string]any{
				"expectedDimensions": EmbeddingDimensions,
				"actualDimensions":   0,
			})
	}
	vec := vecs[0]
	if len(vec) != EmbeddingDimensions {
		return nil, NewError(CodeInvalidDimension,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vec), EmbeddingDimensions)).
			WithDetails(map[string]any{
				"expectedDimensions": EmbeddingDimensions,
				"actualDimensions":   len(vec),
			})
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, NewError(CodeInvalidDimension,
				fmt.Sprintf("embedding contains a non-finite value at index %d", i)).
				WithDetails(map[string]any{
					"expectedDimensions": EmbeddingDimensions,
					"actualDimensions":   len(vec),
				})
		}
	}
	return vec, nil
}
