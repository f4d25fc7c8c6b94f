// File path: internal/catalog/repositories.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist. Callers
// branch on it explicitly; absence is an expected condition, not a fault.
var ErrNotFound = errors.New("record not found")

// GetOrCreateRepository returns the repository owned by the project,
// creating it on first use. Exactly one active repository exists per
// project, so a second call with a different URL updates the coordinates of
// the existing record instead of inserting a duplicate.
func (s *Store) GetOrCreateRepository(ctx context.Context, projectID, repoURL, branch string) (Repository, bool, error) {
	existing, err := s.RepositoryByProject(ctx, projectID)
	if err == nil {
		changed := false
		if repoURL != "" && existing.RepoURL != repoURL {
			existing.RepoURL = repoURL
			changed = true
		}
		if branch != "" && existing.Branch != branch {
			existing.Branch = branch
			changed = true
		}
		if changed {
			_, err = s.db.ExecContext(ctx,
				`UPDATE repositories SET repo_url = ?, branch = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				existing.RepoURL, existing.Branch, existing.ID)
			if err != nil {
				return Repository{}, false, fmt.Errorf("update repository coordinates: %w", err)
			}
		}
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Repository{}, false, err
	}
	if branch == "" {
		branch = "main"
	}
	repo := Repository{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		RepoURL:       repoURL,
		Branch:        branch,
		Status:        RepoPending,
		MaxFileSizeKB: 500,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO repositories (id, project_id, repo_url, branch, status, max_file_size_kb)
                 VALUES (?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.ProjectID, repo.RepoURL, repo.Branch, repo.Status, repo.MaxFileSizeKB)
	if err != nil {
		return Repository{}, false, fmt.Errorf("insert repository: %w", err)
	}
	return repo, true, nil
}

// Repository fetches one repository by id.
func (s *Store) Repository(ctx context.Context, id string) (Repository, error) {
	var repo Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, ErrNotFound
	}
	if err != nil {
		return Repository{}, fmt.Errorf("load repository: %w", err)
	}
	return repo, nil
}

// RepositoryByProject fetches the repository owned by a project.
func (s *Store) RepositoryByProject(ctx context.Context, projectID string) (Repository, error) {
	var repo Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE project_id = ?`, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, ErrNotFound
	}
	if err != nil {
		return Repository{}, fmt.Errorf("load repository by project: %w", err)
	}
	return repo, nil
}

// ListRepositories returns all repositories ordered by creation time.
func (s *Store) ListRepositories(ctx context.Context) ([]Repository, error) {
	var repos []Repository
	if err := s.db.SelectContext(ctx, &repos, `SELECT * FROM repositories ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

// SetRepositoryStatus transitions the status and records the human-readable
// message that accompanies it.
func (s *Store) SetRepositoryStatus(ctx context.Context, id string, status RepoStatus, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, message, id)
	if err != nil {
		return fmt.Errorf("set repository status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordIndexResult persists the outcome of one indexing run.
func (s *Store) RecordIndexResult(ctx context.Context, id string, status RepoStatus, message, commit string, fileCount, chunkCount int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories
                 SET status = ?, error_message = ?, last_indexed_commit = ?, file_count = ?, chunk_count = ?,
                     updated_at = CURRENT_TIMESTAMP
                 WHERE id = ?`,
		status, message, commit, fileCount, chunkCount, id)
	if err != nil {
		return fmt.Errorf("record index result: %w", err)
	}
	return nil
}

// SetRepositoryOwner records the owner/name/default-branch resolved from the
// hosting provider.
func (s *Store) SetRepositoryOwner(ctx context.Context, id, owner, name, defaultBranch string) error {
	query := `UPDATE repositories SET owner = ?, name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	args := []interface{}{owner, name, id}
	if strings.TrimSpace(defaultBranch) != "" {
		query = `UPDATE repositories SET owner = ?, name = ?, branch = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
		args = []interface{}{owner, name, defaultBranch, id}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set repository owner: %w", err)
	}
	return nil
}

// SetRepositoryFilters stores the file-selection settings used by
// subsequent indexing runs.
func (s *Store) SetRepositoryFilters(ctx context.Context, id, extensions, excludePatterns string, maxFileSizeKB int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET extensions = ?, exclude_patterns = ?, max_file_size_kb = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		extensions, excludePatterns, maxFileSizeKB, id); err != nil {
		return fmt.Errorf("set repository filters: %w", err)
	}
	return nil
}

// SetDetectedStack persists the auto-detected stack.
func (s *Store) SetDetectedStack(ctx context.Context, id, stack string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET detected_stack = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		stack, id); err != nil {
		return fmt.Errorf("set detected stack: %w", err)
	}
	return nil
}

// SetRepositorySummary stores the generated prose summary.
func (s *Store) SetRepositorySummary(ctx context.Context, id, summary string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET summary = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		summary, id); err != nil {
		return fmt.Errorf("set repository summary: %w", err)
	}
	return nil
}

// DeleteRepository removes a repository; files, chunks, index entries, jobs
// and metadata cascade through foreign keys.
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
