// File path: internal/retrieval/engine.go
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/common/telemetry"
	"github.com/lfg-hq/codeindex/internal/embedding"
	"github.com/lfg-hq/codeindex/internal/vector"
)

const (
	// indexScoreStep spaces the synthetic scores of structured-index
	// hits so earlier hits always outrank later ones and every index hit
	// outranks any plausible vector similarity below 1.0.
	indexScoreStep   = 0.01
	defaultMaxChunks = 10
)

// Chunk is one retrieved unit, from either the structured index or the
// vector store.
type Chunk struct {
	ChunkID    int64   `json:"chunk_id,omitempty"`
	FilePath   string  `json:"file_path"`
	EntityName string  `json:"entity_name"`
	ChunkType  string  `json:"chunk_type"`
	Language   string  `json:"language,omitempty"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
}

// Result is the retrieval envelope. Error is a structured field, not a
// Go error: a repository that has not finished indexing is an expected,
// frequent condition.
type Result struct {
	Chunks          []Chunk `json:"chunks"`
	RetrievalTimeMS int64   `json:"retrieval_time_ms"`
	Error           string  `json:"error,omitempty"`
}

// Store is the catalog surface the engine reads.
type Store interface {
	RepositoryByProject(ctx context.Context, projectID string) (catalog.Repository, error)
	SearchIndexEntries(ctx context.Context, repoID, query string, filter catalog.IndexSearchFilter) ([]catalog.IndexMapEntry, error)
	ChunksByIDs(ctx context.Context, ids []int64) ([]catalog.CodeChunk, error)
}

// Engine serves hybrid lexical + semantic retrieval.
type Engine struct {
	store     Store
	vectors   vector.Store
	generator *embedding.Generator
}

func NewEngine(store Store, vectors vector.Store, generator *embedding.Generator) *Engine {
	return &Engine{store: store, vectors: vectors, generator: generator}
}

// Retrieve runs the index-first search with vector fallback. Index hits
// are never displaced by vector hits, only supplemented.
func (e *Engine) Retrieve(ctx context.Context, projectID, query string, maxChunks int, chunkTypes []string) Result {
	start := time.Now()
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}

	repo, err := e.store.RepositoryByProject(ctx, projectID)
	if err != nil {
		return Result{
			Chunks:          []Chunk{},
			RetrievalTimeMS: time.Since(start).Milliseconds(),
			Error:           "repository not indexed for this project",
		}
	}
	if repo.Status != catalog.RepoCompleted {
		return Result{
			Chunks:          []Chunk{},
			RetrievalTimeMS: time.Since(start).Milliseconds(),
			Error:           fmt.Sprintf("repository indexing not complete (status: %s)", repo.Status),
		}
	}

	chunks := e.searchIndex(ctx, repo.ID, query, maxChunks, chunkTypes)
	indexHits := len(chunks)

	vectorHits := 0
	if len(chunks) < maxChunks {
		remaining := maxChunks - len(chunks)
		expanded := ExpandQuery(query)
		for _, hit := range e.searchVectors(ctx, repo.ProjectID, expanded, remaining, chunkTypes) {
			if !containsChunk(chunks, hit) {
				chunks = append(chunks, hit)
				vectorHits++
			}
		}
	}

	telemetry.RecordRetrieval(indexHits, vectorHits)
	return Result{
		Chunks:          chunks,
		RetrievalTimeMS: time.Since(start).Milliseconds(),
	}
}

func (e *Engine) searchIndex(ctx context.Context, repoID, query string, limit int, chunkTypes []string) []Chunk {
	entries, err := e.store.SearchIndexEntries(ctx, repoID, query, catalog.IndexSearchFilter{
		EntityTypes: chunkTypes,
		Limit:       limit,
	})
	if err != nil {
		common.Logger().Warn("retrieval: index search failed", "repo", repoID, "error", err)
		return nil
	}
	contents := e.chunkContents(ctx, entries)
	chunks := make([]Chunk, 0, len(entries))
	for i, entry := range entries {
		chunk := Chunk{
			ChunkID:    entry.ChunkID,
			FilePath:   entry.FilePath,
			EntityName: entry.EntityName,
			ChunkType:  entry.EntityType,
			Language:   entry.Language,
			StartLine:  entry.StartLine,
			EndLine:    entry.EndLine,
			Content:    contents[entry.ChunkID],
			Score:      nextIndexScore(i),
			Source:     "index",
		}
		if chunk.Content == "" {
			chunk.Content = entry.Description
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (e *Engine) chunkContents(ctx context.Context, entries []catalog.IndexMapEntry) map[int64]string {
	contents := make(map[int64]string)
	var ids []int64
	for _, entry := range entries {
		if entry.ChunkID > 0 {
			ids = append(ids, entry.ChunkID)
		}
	}
	rows, err := e.store.ChunksByIDs(ctx, ids)
	if err != nil {
		common.Logger().Warn("retrieval: chunk content lookup failed", "error", err)
		return contents
	}
	for _, row := range rows {
		contents[row.ID] = row.Content
	}
	return contents
}

func (e *Engine) searchVectors(ctx context.Context, projectID, query string, limit int, chunkTypes []string) []Chunk {
	if e.vectors == nil || e.generator == nil {
		return nil
	}
	vectors, err := e.generator.EmbedBatch(ctx, []string{query})
	if err != nil || len(vectors) == 0 || vectors[0] == nil {
		common.Logger().Warn("retrieval: query embedding failed", "error", err)
		return nil
	}
	var filter map[string]interface{}
	if len(chunkTypes) == 1 {
		filter = map[string]interface{}{"chunk_type": chunkTypes[0]}
	} else if len(chunkTypes) > 1 {
		filter = map[string]interface{}{"chunk_type": map[string]interface{}{"$in": chunkTypes}}
	}
	hits := e.vectors.Query(ctx, projectID, vectors[0], limit, filter)
	chunks := make([]Chunk, 0, len(hits))
	for _, hit := range hits {
		chunk := Chunk{
			Content: hit.Content,
			Score:   clampScore(1 - hit.Distance),
			Source:  "vector",
		}
		if meta := hit.Metadata; meta != nil {
			chunk.FilePath, _ = meta["file_path"].(string)
			chunk.EntityName, _ = meta["entity_name"].(string)
			chunk.ChunkType, _ = meta["chunk_type"].(string)
			chunk.Language, _ = meta["language"].(string)
			chunk.StartLine = metaInt(meta, "start_line")
			chunk.EndLine = metaInt(meta, "end_line")
			chunk.ChunkID = int64(metaInt(meta, "chunk_id"))
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func nextIndexScore(rank int) float64 {
	score := 1.0 - indexScoreStep*float64(rank)
	if score < indexScoreStep {
		score = indexScoreStep
	}
	return score
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func containsChunk(chunks []Chunk, candidate Chunk) bool {
	for _, chunk := range chunks {
		if candidate.ChunkID != 0 && chunk.ChunkID == candidate.ChunkID {
			return true
		}
		if chunk.FilePath == candidate.FilePath &&
			chunk.EntityName == candidate.EntityName &&
			chunk.StartLine == candidate.StartLine {
			return true
		}
	}
	return false
}

func metaInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		fmt.Sscanf(strings.TrimSpace(v), "%d", &n)
		return n
	}
	return 0
}
