// File path: internal/insights/insights.go
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/embedding"
	"github.com/lfg-hq/codeindex/internal/parser"
)

// Store is the slice of the catalog the recomputation reads and writes.
type Store interface {
	ListIndexedFiles(ctx context.Context, repoID string) ([]catalog.IndexedFile, error)
	FileChunks(ctx context.Context, fileID int64) ([]catalog.CodeChunk, error)
	UpsertRepositoryMetadata(ctx context.Context, meta catalog.RepositoryMetadata) error
	SetRepositorySummary(ctx context.Context, id, summary string) error
}

// Service recomputes repository-wide analytics after successful runs.
type Service struct {
	store    Store
	provider embedding.Provider
}

func NewService(store Store, provider embedding.Provider) *Service {
	return &Service{store: store, provider: provider}
}

// Recompute replaces the repository's derived metadata wholesale from
// its current file and chunk rows.
func (s *Service) Recompute(ctx context.Context, repoID string) (catalog.RepositoryMetadata, error) {
	files, err := s.store.ListIndexedFiles(ctx, repoID)
	if err != nil {
		return catalog.RepositoryMetadata{}, fmt.Errorf("insights: list files: %w", err)
	}

	languageCounts := make(map[string]int)
	dependencyCounts := make(map[string]int)
	var functionCount, classCount int
	var documented, documentable int
	var complexitySum float64
	var complexityCount int

	for _, file := range files {
		if file.Status != catalog.FileIndexed {
			continue
		}
		if file.Language != "" {
			languageCounts[file.Language]++
		}
		chunks, err := s.store.FileChunks(ctx, file.ID)
		if err != nil {
			return catalog.RepositoryMetadata{}, fmt.Errorf("insights: chunks for %s: %w", file.FilePath, err)
		}
		for _, chunk := range chunks {
			switch parser.ChunkType(chunk.ChunkType) {
			case parser.ChunkFunction, parser.ChunkMethod:
				functionCount++
				documentable++
				if strings.TrimSpace(chunk.Description) != "" {
					documented++
				}
			case parser.ChunkClass:
				classCount++
				documentable++
				if strings.TrimSpace(chunk.Description) != "" {
					documented++
				}
			}
			for _, dep := range strings.Split(chunk.Dependencies, ",") {
				if dep = strings.TrimSpace(dep); dep != "" {
					dependencyCounts[dep]++
				}
			}
			if score, ok := complexityScore(chunk.Complexity); ok {
				complexitySum += score
				complexityCount++
			}
		}
	}

	meta := catalog.RepositoryMetadata{
		RepoID:               repoID,
		PrimaryLanguage:      primaryLanguage(languageCounts),
		LanguageDistribution: encodeDistribution(languageCounts),
		FunctionCount:        functionCount,
		ClassCount:           classCount,
		DependencyFrequency:  encodeCounts(dependencyCounts),
	}
	if documentable > 0 {
		meta.DocCoverage = float64(documented) / float64(documentable)
	}
	if complexityCount > 0 {
		meta.AvgComplexity = complexitySum / float64(complexityCount)
	}
	if err := s.store.UpsertRepositoryMetadata(ctx, meta); err != nil {
		return catalog.RepositoryMetadata{}, err
	}
	return meta, nil
}

// Summarize asks the model for a short prose summary of the codebase and
// persists it. Best-effort: failures are logged, never propagated.
func (s *Service) Summarize(ctx context.Context, repoID, repoName string, meta catalog.RepositoryMetadata) {
	if s.provider == nil {
		return
	}
	prompt := fmt.Sprintf(
		"Summarize the codebase %q in 3-4 sentences for a developer joining the project. "+
			"Primary language: %s. Language distribution: %s. Functions: %d. Classes: %d. "+
			"Most used dependencies: %s.",
		repoName, meta.PrimaryLanguage, meta.LanguageDistribution,
		meta.FunctionCount, meta.ClassCount, topDependencies(meta.DependencyFrequency, 8))
	summary, err := s.provider.Chat(ctx, []embedding.Message{
		{Role: "system", Content: "You write concise, factual codebase overviews."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		common.Logger().Warn("insights: summary generation failed",
			"repo", repoID, "error", err)
		return
	}
	if err := s.store.SetRepositorySummary(ctx, repoID, strings.TrimSpace(summary)); err != nil {
		common.Logger().Warn("insights: summary persistence failed",
			"repo", repoID, "error", err)
	}
}

func complexityScore(complexity string) (float64, bool) {
	switch parser.Complexity(complexity) {
	case parser.ComplexityLow:
		return 1, true
	case parser.ComplexityMedium:
		return 2, true
	case parser.ComplexityHigh:
		return 3, true
	}
	return 0, false
}

func primaryLanguage(counts map[string]int) string {
	best := ""
	bestCount := 0
	for lang, count := range counts {
		if count > bestCount || (count == bestCount && lang < best) {
			best, bestCount = lang, count
		}
	}
	return best
}

func encodeDistribution(counts map[string]int) string {
	total := 0
	for _, count := range counts {
		total += count
	}
	dist := make(map[string]float64, len(counts))
	if total > 0 {
		for lang, count := range counts {
			dist[lang] = float64(count) / float64(total)
		}
	}
	data, _ := json.Marshal(dist)
	return string(data)
}

func encodeCounts(counts map[string]int) string {
	data, _ := json.Marshal(counts)
	return string(data)
}

func topDependencies(encoded string, limit int) string {
	counts := make(map[string]int)
	if err := json.Unmarshal([]byte(encoded), &counts); err != nil || len(counts) == 0 {
		return "none recorded"
	}
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(counts))
	for name, count := range counts {
		pairs = append(pairs, pair{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.name
	}
	return strings.Join(names, ", ")
}
