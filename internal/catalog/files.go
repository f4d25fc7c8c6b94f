// File path: internal/catalog/files.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UpsertIndexedFile creates or updates the record keyed by
// (repo_id, file_path) and returns the stored row.
func (s *Store) UpsertIndexedFile(ctx context.Context, file IndexedFile) (IndexedFile, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexed_files (repo_id, file_path, extension, size_bytes, content_hash, language, status, last_commit)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT(repo_id, file_path) DO UPDATE SET
                     extension = excluded.extension,
                     size_bytes = excluded.size_bytes,
                     content_hash = excluded.content_hash,
                     language = excluded.language,
                     status = excluded.status,
                     last_commit = excluded.last_commit,
                     updated_at = CURRENT_TIMESTAMP`,
		file.RepoID, file.FilePath, file.Extension, file.SizeBytes, file.ContentHash,
		file.Language, file.Status, file.LastCommit)
	if err != nil {
		return IndexedFile{}, fmt.Errorf("upsert indexed file: %w", err)
	}
	return s.IndexedFile(ctx, file.RepoID, file.FilePath)
}

// IndexedFile fetches one file row.
func (s *Store) IndexedFile(ctx context.Context, repoID, filePath string) (IndexedFile, error) {
	var file IndexedFile
	err := s.db.GetContext(ctx, &file,
		`SELECT * FROM indexed_files WHERE repo_id = ? AND file_path = ?`, repoID, filePath)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexedFile{}, ErrNotFound
	}
	if err != nil {
		return IndexedFile{}, fmt.Errorf("load indexed file: %w", err)
	}
	return file, nil
}

// DeleteFile removes one file row; chunks cascade. Index map entries for
// the path are cleared alongside since they are keyed by path, not by
// the chunk foreign key.
func (s *Store) DeleteFile(ctx context.Context, repoID, filePath string) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM indexed_files WHERE repo_id = ? AND file_path = ?`, repoID, filePath); err != nil {
			return fmt.Errorf("delete indexed file: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_map WHERE repo_id = ? AND file_path = ?`, repoID, filePath); err != nil {
			return fmt.Errorf("delete index entries: %w", err)
		}
		return nil
	})
}

// ListIndexedFiles returns every file under a repository.
func (s *Store) ListIndexedFiles(ctx context.Context, repoID string) ([]IndexedFile, error) {
	var files []IndexedFile
	if err := s.db.SelectContext(ctx, &files,
		`SELECT * FROM indexed_files WHERE repo_id = ? ORDER BY file_path`, repoID); err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	return files, nil
}

// SetFileStatus updates one file's processing status.
func (s *Store) SetFileStatus(ctx context.Context, fileID int64, status FileStatus) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE indexed_files SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, fileID); err != nil {
		return fmt.Errorf("set file status: %w", err)
	}
	return nil
}

// DeleteFilesExcept removes files no longer present in the working tree.
// With an empty keep set every file under the repository is removed.
func (s *Store) DeleteFilesExcept(ctx context.Context, repoID string, keep []string) (int64, error) {
	if len(keep) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM indexed_files WHERE repo_id = ?`, repoID)
		if err != nil {
			return 0, fmt.Errorf("delete indexed files: %w", err)
		}
		removed, _ := res.RowsAffected()
		if _, err := s.db.ExecContext(ctx, `DELETE FROM index_map WHERE repo_id = ?`, repoID); err != nil {
			return removed, fmt.Errorf("prune index entries: %w", err)
		}
		return removed, nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM indexed_files WHERE repo_id = ? AND file_path NOT IN (?)`, repoID, keep)
	if err != nil {
		return 0, fmt.Errorf("build delete query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale files: %w", err)
	}
	removed, _ := res.RowsAffected()

	mapQuery, mapArgs, err := sqlx.In(
		`DELETE FROM index_map WHERE repo_id = ? AND file_path NOT IN (?)`, repoID, keep)
	if err != nil {
		return removed, fmt.Errorf("build index prune query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(mapQuery), mapArgs...); err != nil {
		return removed, fmt.Errorf("prune index entries: %w", err)
	}
	return removed, nil
}
