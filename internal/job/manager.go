// File path: internal/job/manager.go
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/indexer"
)

// ErrQueueFull is returned when the submission queue cannot take more work.
var ErrQueueFull = errors.New("job queue is full")

const (
	defaultConcurrency = 2
	defaultQueueDepth  = 32
	notifyBuffer       = 8
)

// Notification is pushed to project subscribers when a job finishes.
type Notification struct {
	ProjectID  string             `json:"project_id"`
	RepoID     string             `json:"repository_id"`
	JobID      string             `json:"job_id"`
	Kind       catalog.JobKind    `json:"kind"`
	Status     catalog.JobStatus  `json:"status"`
	RepoStatus catalog.RepoStatus `json:"repository_status,omitempty"`
	Message    string             `json:"message,omitempty"`
	FileCount  int                `json:"file_count"`
	ChunkCount int                `json:"chunk_count"`
}

// Runner is the orchestrator surface the manager drives. Satisfied by
// *indexer.Orchestrator.
type Runner interface {
	Run(ctx context.Context, opts indexer.Options) (indexer.Outcome, error)
	DeleteRepository(ctx context.Context, repoID string) error
}

type request struct {
	job  catalog.IndexingJob
	opts indexer.Options
}

// Manager queues indexing and cleanup work, runs it on a fixed pool of
// workers, persists job progress, and fans completion notifications out
// to per-project subscribers.
type Manager struct {
	store       *catalog.Store
	runner      Runner
	concurrency int
	queue       chan request

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	subMu       sync.Mutex
	subscribers map[string][]chan Notification
}

type Config struct {
	Store       *catalog.Store
	Runner      Runner
	Concurrency int
	QueueDepth  int
}

func NewManager(cfg Config) *Manager {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Manager{
		store:       cfg.Store,
		runner:      cfg.Runner,
		concurrency: concurrency,
		queue:       make(chan request, depth),
		subscribers: make(map[string][]chan Notification),
	}
}

// Start launches the worker pool. Calling Start on a running manager is
// a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	common.Logger().Info("job: manager starting", "concurrency", m.concurrency)

	var wg sync.WaitGroup
	for i := 0; i < m.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			m.processLoop(ctx, workerID)
		}(i)
	}
	go func() {
		wg.Wait()
		close(m.doneCh)
	}()
}

// Stop drains the workers and blocks until they exit. Queued but
// unstarted jobs keep their queued status in the catalog.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.mu.Unlock()

	<-m.doneCh

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	common.Logger().Info("job: manager stopped")
}

// EnqueueIndex records a job row and schedules an indexing run for the
// project's repository.
func (m *Manager) EnqueueIndex(ctx context.Context, opts indexer.Options) (catalog.IndexingJob, error) {
	repo, _, err := m.store.GetOrCreateRepository(ctx, opts.ProjectID, opts.RepoURL, opts.Branch)
	if err != nil {
		return catalog.IndexingJob{}, err
	}
	kind := catalog.JobIncremental
	if opts.ForceFull || repo.LastIndexedCommit == "" {
		kind = catalog.JobFull
	}
	job, err := m.store.CreateJob(ctx, repo.ID, kind)
	if err != nil {
		return catalog.IndexingJob{}, err
	}
	if err := m.enqueue(request{job: job, opts: opts}); err != nil {
		m.store.FinishJob(ctx, job.ID, catalog.JobFailed, err.Error())
		return catalog.IndexingJob{}, err
	}
	return job, nil
}

// EnqueueCleanup schedules deletion of a repository's files, chunks,
// index entries and vector collection.
func (m *Manager) EnqueueCleanup(ctx context.Context, repoID string) (catalog.IndexingJob, error) {
	repo, err := m.store.Repository(ctx, repoID)
	if err != nil {
		return catalog.IndexingJob{}, err
	}
	job, err := m.store.CreateJob(ctx, repo.ID, catalog.JobCleanup)
	if err != nil {
		return catalog.IndexingJob{}, err
	}
	if err := m.enqueue(request{job: job, opts: indexer.Options{ProjectID: repo.ProjectID}}); err != nil {
		m.store.FinishJob(ctx, job.ID, catalog.JobFailed, err.Error())
		return catalog.IndexingJob{}, err
	}
	return job, nil
}

func (m *Manager) enqueue(req request) error {
	select {
	case m.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a notification channel for one project. The
// returned cancel function must be called to release the channel.
func (m *Manager) Subscribe(projectID string) (<-chan Notification, func()) {
	ch := make(chan Notification, notifyBuffer)
	m.subMu.Lock()
	m.subscribers[projectID] = append(m.subscribers[projectID], ch)
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		subs := m.subscribers[projectID]
		for i, sub := range subs {
			if sub == ch {
				m.subscribers[projectID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (m *Manager) notify(note Notification) {
	m.subMu.Lock()
	subs := append([]chan Notification(nil), m.subscribers[note.ProjectID]...)
	m.subMu.Unlock()
	for _, ch := range subs {
		// A slow subscriber loses notifications rather than blocking
		// the worker.
		select {
		case ch <- note:
		default:
		}
	}
}

func (m *Manager) processLoop(ctx context.Context, workerID int) {
	logger := common.Logger().With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case req := <-m.queue:
			m.process(ctx, req, logger)
		}
	}
}

func (m *Manager) process(ctx context.Context, req request, logger *slog.Logger) {
	start := time.Now()
	logger.Info("job: starting", "job", req.job.ID, "kind", req.job.Kind, "repo", req.job.RepoID)

	var err error
	switch req.job.Kind {
	case catalog.JobCleanup:
		err = m.runCleanup(ctx, req)
	default:
		err = m.runIndex(ctx, req)
	}
	if err != nil {
		logger.Error("job: failed", "job", req.job.ID, "error", err, "elapsed", time.Since(start))
		return
	}
	logger.Info("job: finished", "job", req.job.ID, "elapsed", time.Since(start))
}

func (m *Manager) runIndex(ctx context.Context, req request) error {
	if err := m.store.StartJob(ctx, req.job.ID, 0); err != nil {
		return err
	}
	opts := req.opts
	opts.Progress = func(processed, total, errored int) {
		if err := m.store.UpdateJobProgress(ctx, req.job.ID, processed, total, errored); err != nil {
			common.Logger().Warn("job: progress update failed", "job", req.job.ID, "error", err)
		}
	}

	outcome, err := m.runner.Run(ctx, opts)
	note := Notification{
		ProjectID: req.opts.ProjectID,
		RepoID:    req.job.RepoID,
		JobID:     req.job.ID,
		Kind:      req.job.Kind,
	}
	switch {
	case errors.Is(err, indexer.ErrRunInProgress):
		m.store.FinishJob(ctx, req.job.ID, catalog.JobCancelled,
			"another indexing run is already active for this repository")
		note.Status = catalog.JobCancelled
		note.Message = "another indexing run is already active for this repository"
	case err != nil:
		m.store.FinishJob(ctx, req.job.ID, catalog.JobFailed, err.Error())
		note.Status = catalog.JobFailed
		note.Message = err.Error()
	case outcome.Status == catalog.RepoError:
		m.store.FinishJob(ctx, req.job.ID, catalog.JobFailed, outcome.Message)
		note.Status = catalog.JobFailed
		note.RepoStatus = outcome.Status
		note.Message = outcome.Message
	default:
		m.store.FinishJob(ctx, req.job.ID, catalog.JobCompleted, outcome.Message)
		note.Status = catalog.JobCompleted
		note.RepoStatus = outcome.Status
		note.Message = outcome.Message
		note.FileCount = outcome.FileCount
		note.ChunkCount = outcome.ChunkCount
	}
	m.notify(note)
	if err != nil && !errors.Is(err, indexer.ErrRunInProgress) {
		return err
	}
	return nil
}

func (m *Manager) runCleanup(ctx context.Context, req request) error {
	if err := m.store.StartJob(ctx, req.job.ID, 0); err != nil {
		return err
	}
	note := Notification{
		ProjectID: req.opts.ProjectID,
		RepoID:    req.job.RepoID,
		JobID:     req.job.ID,
		Kind:      catalog.JobCleanup,
	}
	if err := m.runner.DeleteRepository(ctx, req.job.RepoID); err != nil {
		m.store.FinishJob(ctx, req.job.ID, catalog.JobFailed, err.Error())
		note.Status = catalog.JobFailed
		note.Message = err.Error()
		m.notify(note)
		return fmt.Errorf("cleanup repository %s: %w", req.job.RepoID, err)
	}
	if err := m.store.FinishJob(ctx, req.job.ID, catalog.JobCompleted, "repository deleted"); err != nil {
		return err
	}
	note.Status = catalog.JobCompleted
	note.Message = "repository deleted"
	m.notify(note)
	return nil
}
