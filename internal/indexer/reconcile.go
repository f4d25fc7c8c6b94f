// File path: internal/indexer/reconcile.go
package indexer

import (
	"context"
	"fmt"

	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/vector"
)

const reconcileBatchSize = 100

// Reconcile is the idempotent repair pass bridging the relational chunk
// rows and the vector store: it scans chunks whose embedding_stored flag
// is still false, embeds them and upserts the vectors, flipping the flag
// only after the store accepted the batch. Safe to call at any time.
func (o *Orchestrator) Reconcile(ctx context.Context, repoID, projectID string) (int, error) {
	if o.generator == nil || o.vectors == nil {
		return 0, nil
	}
	pathByFile, err := o.filePathIndex(ctx, repoID)
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for {
		pending, err := o.store.PendingEmbeddingChunks(ctx, repoID, reconcileBatchSize)
		if err != nil {
			return reconciled, err
		}
		if len(pending) == 0 {
			return reconciled, nil
		}

		texts := make([]string, len(pending))
		for i, chunk := range pending {
			texts[i] = chunk.Content
		}
		vectors, err := o.generator.EmbedBatch(ctx, texts)
		if err != nil {
			return reconciled, fmt.Errorf("embed pending chunks: %w", err)
		}

		docs := make([]vector.Document, len(pending))
		var done []int64
		for i, chunk := range pending {
			docs[i] = vector.Document{
				ID:      chunk.EmbeddingID,
				Content: chunk.Content,
				Metadata: map[string]interface{}{
					"chunk_id":    chunk.ID,
					"file_path":   pathByFile[chunk.FileID],
					"entity_name": chunk.EntityName,
					"chunk_type":  chunk.ChunkType,
					"start_line":  chunk.StartLine,
					"end_line":    chunk.EndLine,
				},
			}
			if vectors[i] != nil {
				done = append(done, chunk.ID)
			}
		}
		if err := o.vectors.Upsert(ctx, projectID, docs, vectors); err != nil {
			return reconciled, fmt.Errorf("upsert vectors: %w", err)
		}
		// Chunks whose content was blank have no vector to store; mark
		// them too so the scan terminates.
		for i, chunk := range pending {
			if vectors[i] == nil {
				done = append(done, chunk.ID)
			}
		}
		if err := o.store.MarkChunksEmbedded(ctx, done); err != nil {
			return reconciled, err
		}
		reconciled += len(done)
	}
}

func (o *Orchestrator) filePathIndex(ctx context.Context, repoID string) (map[int64]string, error) {
	files, err := o.store.ListIndexedFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}
	paths := make(map[int64]string, len(files))
	for _, file := range files {
		paths[file.ID] = file.FilePath
	}
	return paths, nil
}

// DeleteRepository cascades the catalog rows and drops the project's
// vector collection.
func (o *Orchestrator) DeleteRepository(ctx context.Context, repoID string) error {
	repo, err := o.store.Repository(ctx, repoID)
	if err != nil {
		return err
	}
	if o.vectors != nil {
		if err := o.vectors.DropCollection(ctx, repo.ProjectID); err != nil {
			common.Logger().Warn("indexer: dropping vector collection failed",
				"repo", repoID, "project", repo.ProjectID, "error", err)
		}
	}
	return o.store.DeleteRepository(ctx, repoID)
}
