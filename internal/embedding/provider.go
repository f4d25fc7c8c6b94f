// File path: internal/embedding/provider.go
package embedding

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v2/option"

	"github.com/lfg-hq/codeindex/internal/common"
)

// ErrProvider wraps network or quota failures from the embedding or chat
// backend.
var ErrProvider = errors.New("embedding: provider failure")

// Message is one turn of a chat exchange.
type Message struct {
	Role    string
	Content string
}

// Provider abstracts the model backend used for embeddings and summary
// generation.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}

// NewProvider selects the OpenAI provider when an API key is configured
// and falls back to the deterministic local provider otherwise.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		logger.Warn("embedding: OPENAI_API_KEY not set; falling back to local provider")
		return NewLocalProvider()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		logger.Info("embedding: using custom OpenAI endpoint", "endpoint", endpoint)
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			logger.Warn("embedding: invalid OPENAI_HTTP_TIMEOUT, using default",
				"value", timeoutStr, "error", err)
		} else {
			opts = append(opts, option.WithRequestTimeout(timeout))
		}
	}
	logger.Info("embedding: OpenAI provider selected")
	return NewOpenAIProvider(opts...)
}
