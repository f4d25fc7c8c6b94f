// File path: internal/catalog/metadata.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertRepositoryMetadata replaces the aggregate metadata row for a repository.
func (s *Store) UpsertRepositoryMetadata(ctx context.Context, meta RepositoryMetadata) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO repository_metadata (
        repo_id, primary_language, language_distribution, function_count,
        class_count, dependency_frequency, doc_coverage, avg_complexity, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(repo_id) DO UPDATE SET
        primary_language = excluded.primary_language,
        language_distribution = excluded.language_distribution,
        function_count = excluded.function_count,
        class_count = excluded.class_count,
        dependency_frequency = excluded.dependency_frequency,
        doc_coverage = excluded.doc_coverage,
        avg_complexity = excluded.avg_complexity,
        updated_at = CURRENT_TIMESTAMP`,
		meta.RepoID, meta.PrimaryLanguage, meta.LanguageDistribution, meta.FunctionCount,
		meta.ClassCount, meta.DependencyFrequency, meta.DocCoverage, meta.AvgComplexity)
	if err != nil {
		return fmt.Errorf("upsert repository metadata: %w", err)
	}
	return nil
}

// RepositoryMetadataFor returns the stored metadata for a repository.
func (s *Store) RepositoryMetadataFor(ctx context.Context, repoID string) (RepositoryMetadata, error) {
	var meta RepositoryMetadata
	err := s.db.GetContext(ctx, &meta,
		`SELECT * FROM repository_metadata WHERE repo_id = ?`, repoID)
	if errors.Is(err, sql.ErrNoRows) {
		return RepositoryMetadata{}, ErrNotFound
	}
	if err != nil {
		return RepositoryMetadata{}, fmt.Errorf("load repository metadata: %w", err)
	}
	return meta, nil
}
