// File path: internal/catalog/jobs.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateJob inserts a queued job record for the repository.
func (s *Store) CreateJob(ctx context.Context, repoID string, kind JobKind) (IndexingJob, error) {
	job := IndexingJob{
		ID:        uuid.NewString(),
		RepoID:    repoID,
		Kind:      kind,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexing_jobs (id, repo_id, kind, status) VALUES (?, ?, ?, ?)`,
		job.ID, job.RepoID, job.Kind, job.Status)
	if err != nil {
		return IndexingJob{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Job fetches one job by id.
func (s *Store) Job(ctx context.Context, id string) (IndexingJob, error) {
	var job IndexingJob
	err := s.db.GetContext(ctx, &job, `SELECT * FROM indexing_jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexingJob{}, ErrNotFound
	}
	if err != nil {
		return IndexingJob{}, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}

// StartJob transitions a queued job to running.
func (s *Store) StartJob(ctx context.Context, id string, totalFiles int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE indexing_jobs SET status = ?, total_files = ?, started_at = CURRENT_TIMESTAMP WHERE id = ?`,
		JobRunning, totalFiles, id); err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return nil
}

// UpdateJobProgress records per-file counters while the run proceeds.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, processed, total, errorCount int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE indexing_jobs SET processed_files = ?, total_files = ?, error_count = ? WHERE id = ?`,
		processed, total, errorCount, id); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// FinishJob moves a job to its terminal status.
func (s *Store) FinishJob(ctx context.Context, id string, status JobStatus, message string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE indexing_jobs SET status = ?, message = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, message, id); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

// RepositoryJobs lists jobs for one repository, most recent first.
func (s *Store) RepositoryJobs(ctx context.Context, repoID string, limit int) ([]IndexingJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []IndexingJob
	if err := s.db.SelectContext(ctx, &jobs,
		`SELECT * FROM indexing_jobs WHERE repo_id = ? ORDER BY created_at DESC LIMIT ?`,
		repoID, limit); err != nil {
		return nil, fmt.Errorf("list repository jobs: %w", err)
	}
	return jobs, nil
}
