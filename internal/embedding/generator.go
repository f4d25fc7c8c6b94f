// File path: internal/embedding/generator.go
package embedding

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/common/telemetry"
)

const (
	// charsPerToken is the coarse ratio used to estimate token counts
	// without a tokenizer round-trip.
	charsPerToken     = 4
	maxTokensPerText  = 8000
	truncationMarker  = "\n...[truncated]"
	defaultBatchSize  = 64
	defaultConcurrent = 4
)

// Generator batches texts through a Provider with truncation, retry and
// bounded concurrency.
type Generator struct {
	provider   Provider
	batchSize  int
	concurrent int
	retry      RetryConfig
}

func NewGenerator(provider Provider) *Generator {
	return &Generator{
		provider:   provider,
		batchSize:  defaultBatchSize,
		concurrent: defaultConcurrent,
		retry:      defaultRetryConfig(),
	}
}

// Provider exposes the backend, used for logging and summary chats.
func (g *Generator) Provider() Provider {
	return g.provider
}

// EmbedBatch embeds the texts and returns a slice aligned with the
// input: dropped (empty or whitespace-only) entries yield a nil vector
// at the same position. Oversized texts are truncated with a marker
// before sending.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g == nil || g.provider == nil {
		return nil, fmt.Errorf("embedding: generator not configured")
	}
	vectors := make([][]float32, len(texts))

	type item struct {
		index int
		text  string
	}
	var items []item
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		items = append(items, item{index: i, text: Truncate(text)})
	}
	if len(items) == 0 {
		return vectors, nil
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.concurrent)
	for start := 0; start < len(items); start += g.batchSize {
		end := start + g.batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		grp.Go(func() error {
			input := make([]string, len(batch))
			for i, it := range batch {
				input[i] = it.text
			}
			result, err := retryWithBackoff(grpCtx, g.retry, func() ([][]float32, error) {
				return g.provider.Embed(grpCtx, input)
			})
			if err != nil {
				return fmt.Errorf("%w: embed batch of %d: %v", ErrProvider, len(input), err)
			}
			if len(result) != len(input) {
				return fmt.Errorf("%w: provider returned %d vectors for %d inputs",
					ErrProvider, len(result), len(input))
			}
			for i, it := range batch {
				vectors[it.index] = result[i]
			}
			telemetry.RecordEmbedBatch(len(input))
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		common.Logger().Error("embedding: batch embedding failed",
			"provider", g.provider.Name(), "texts", len(items), "error", err)
		return nil, err
	}
	return vectors, nil
}

// Truncate caps a text at the token ceiling using the fixed
// characters-per-token estimate, appending a marker when content was
// dropped.
func Truncate(text string) string {
	maxChars := maxTokensPerText * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars-len(truncationMarker)] + truncationMarker
}
