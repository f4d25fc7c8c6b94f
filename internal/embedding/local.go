// File path: internal/embedding/local.go
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// localDimensions keeps the fallback vectors small but non-degenerate so
// similarity ordering still works in development setups.
const localDimensions = 64

// LocalProvider is a deterministic, dependency-free fallback. Vectors
// are derived from token hashes, so identical text always embeds to the
// same vector and related texts share components.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("embedding: no messages provided")
	}
	last := strings.TrimSpace(messages[len(messages)-1].Content)
	if len(last) > 200 {
		last = last[:200]
	}
	return "[local] " + last, nil
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vectors[i] = localVector(text)
	}
	return vectors, nil
}

func (l *LocalProvider) Name() string {
	return "local"
}

func localVector(text string) []float32 {
	vec := make([]float32, localDimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%localDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
