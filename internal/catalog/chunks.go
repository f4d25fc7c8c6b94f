// File path: internal/catalog/chunks.go
package catalog

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ReplaceFileChunks deletes the file's chunk set and inserts the new one in
// a single transaction. Chunk rows never survive a reparse of their file.
func (s *Store) ReplaceFileChunks(ctx context.Context, fileID int64, chunks []CodeChunk) ([]CodeChunk, error) {
	stored := make([]CodeChunk, 0, len(chunks))
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_chunks WHERE file_id = ?`, fileID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		for _, chunk := range chunks {
			chunk.FileID = fileID
			res, err := tx.ExecContext(ctx,
				`INSERT INTO code_chunks
                                 (file_id, repo_id, chunk_type, entity_name, content, preview, start_line, end_line,
                                  complexity, dependencies, parameters, description, embedding_id, embedding_stored)
                                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				chunk.FileID, chunk.RepoID, chunk.ChunkType, chunk.EntityName, chunk.Content,
				chunk.Preview, chunk.StartLine, chunk.EndLine, chunk.Complexity,
				chunk.Dependencies, chunk.Parameters, chunk.Description,
				chunk.EmbeddingID, chunk.EmbeddingStored)
			if err != nil {
				return fmt.Errorf("insert chunk %s: %w", chunk.EntityName, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("chunk insert id: %w", err)
			}
			chunk.ID = id
			stored = append(stored, chunk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// FileChunks returns the chunk set for one file ordered by position.
func (s *Store) FileChunks(ctx context.Context, fileID int64) ([]CodeChunk, error) {
	var chunks []CodeChunk
	if err := s.db.SelectContext(ctx, &chunks,
		`SELECT * FROM code_chunks WHERE file_id = ? ORDER BY start_line`, fileID); err != nil {
		return nil, fmt.Errorf("load file chunks: %w", err)
	}
	return chunks, nil
}

// ChunksByEmbeddingIDs resolves vector-store hits back to chunk rows.
func (s *Store) ChunksByEmbeddingIDs(ctx context.Context, repoID string, embeddingIDs []string) ([]CodeChunk, error) {
	if len(embeddingIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM code_chunks WHERE repo_id = ? AND embedding_id IN (?)`, repoID, embeddingIDs)
	if err != nil {
		return nil, fmt.Errorf("build chunk lookup: %w", err)
	}
	var chunks []CodeChunk
	if err := s.db.SelectContext(ctx, &chunks, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load chunks by embedding id: %w", err)
	}
	return chunks, nil
}

// ChunksByIDs loads chunk rows for the given primary keys.
func (s *Store) ChunksByIDs(ctx context.Context, ids []int64) ([]CodeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM code_chunks WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build chunk lookup: %w", err)
	}
	var chunks []CodeChunk
	if err := s.db.SelectContext(ctx, &chunks, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load chunks by id: %w", err)
	}
	return chunks, nil
}

// PendingEmbeddingChunks lists chunks whose vectors have not been durably
// stored. The reconciliation pass feeds on this.
func (s *Store) PendingEmbeddingChunks(ctx context.Context, repoID string, limit int) ([]CodeChunk, error) {
	if limit <= 0 {
		limit = 200
	}
	var chunks []CodeChunk
	if err := s.db.SelectContext(ctx, &chunks,
		`SELECT * FROM code_chunks WHERE repo_id = ? AND embedding_stored = 0 ORDER BY id LIMIT ?`,
		repoID, limit); err != nil {
		return nil, fmt.Errorf("load pending chunks: %w", err)
	}
	return chunks, nil
}

// MarkChunksEmbedded flips the embedding_stored flag for the given chunks.
func (s *Store) MarkChunksEmbedded(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE code_chunks SET embedding_stored = 1 WHERE id IN (?)`, chunkIDs)
	if err != nil {
		return fmt.Errorf("build mark query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark chunks embedded: %w", err)
	}
	return nil
}

// CountChunks returns the number of chunks stored for a repository.
func (s *Store) CountChunks(ctx context.Context, repoID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM code_chunks WHERE repo_id = ?`, repoID); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}
