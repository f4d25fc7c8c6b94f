// File path: internal/indexer/indexer.go
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/common/telemetry"
	"github.com/lfg-hq/codeindex/internal/embedding"
	"github.com/lfg-hq/codeindex/internal/gitrepo"
	"github.com/lfg-hq/codeindex/internal/indexmap"
	"github.com/lfg-hq/codeindex/internal/insights"
	"github.com/lfg-hq/codeindex/internal/parser"
	"github.com/lfg-hq/codeindex/internal/vector"
)

// ErrRunInProgress is returned when a run is requested for a repository
// that already has one active.
var ErrRunInProgress = errors.New("indexer: run already in progress for repository")

// Ratio thresholds deciding the final repository status. Large
// heterogeneous repositories always have some unparseable files; a
// minority of failures must not fail the run.
const (
	warnRatio    = 0.75
	partialRatio = 0.25
)

// Fetcher is the source-control surface the orchestrator drives.
// *gitrepo.Service satisfies it.
type Fetcher interface {
	ValidateAccess(ctx context.Context, repoURL string) (gitrepo.RepoInfo, error)
	Clone(ctx context.Context, repoURL, branch string) (string, error)
	CurrentCommit(ctx context.Context, workspace string) (string, error)
	DiffSince(ctx context.Context, workspace, lastCommit, currentCommit string) ([]string, bool)
	ListCandidateFiles(workspace string, filter gitrepo.ListFilter, headCommit string) ([]gitrepo.FileDescriptor, error)
	ListAllFiles(workspace string) ([]string, error)
	Cleanup(workspace string)
}

// Options configures one indexing run.
type Options struct {
	ProjectID string
	RepoURL   string
	Branch    string
	ForceFull bool
	// Progress, when set, receives per-file counters during the run.
	Progress func(processed, total, errored int)
}

// Outcome summarizes a finished run.
type Outcome struct {
	RepoID     string
	Status     catalog.RepoStatus
	Message    string
	FileCount  int
	ChunkCount int
	Commit     string
	UpToDate   bool
}

// Orchestrator coordinates fetch, parse, index, embed and store for one
// repository at a time per repository.
type Orchestrator struct {
	store     *catalog.Store
	fetcher   Fetcher
	parsers   *parser.Parser
	index     *indexmap.Builder
	generator *embedding.Generator
	vectors   vector.Store
	insights  *insights.Service

	mu   sync.Mutex
	runs map[string]struct{}
}

func New(store *catalog.Store, fetcher Fetcher, parsers *parser.Parser, index *indexmap.Builder,
	generator *embedding.Generator, vectors vector.Store, insightsSvc *insights.Service) *Orchestrator {
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		parsers:   parsers,
		index:     index,
		generator: generator,
		vectors:   vectors,
		insights:  insightsSvc,
		runs:      make(map[string]struct{}),
	}
}

// Run executes a full or incremental indexing pass. The repository row
// is created on first use; exactly one run per repository may be active.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Outcome, error) {
	repo, _, err := o.store.GetOrCreateRepository(ctx, opts.ProjectID, opts.RepoURL, opts.Branch)
	if err != nil {
		return Outcome{}, err
	}
	if !o.acquire(repo.ID) {
		return Outcome{RepoID: repo.ID}, ErrRunInProgress
	}
	defer o.release(repo.ID)

	outcome, runErr := o.run(ctx, repo, opts)
	outcome.RepoID = repo.ID
	return outcome, runErr
}

func (o *Orchestrator) acquire(repoID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, active := o.runs[repoID]; active {
		return false
	}
	o.runs[repoID] = struct{}{}
	return true
}

func (o *Orchestrator) release(repoID string) {
	o.mu.Lock()
	delete(o.runs, repoID)
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, repo catalog.Repository, opts Options) (Outcome, error) {
	logger := common.Logger()

	info, err := o.fetcher.ValidateAccess(ctx, repo.RepoURL)
	if err != nil {
		return o.fail(ctx, repo.ID, fmt.Sprintf("repository access check failed: %v", err))
	}
	branch := repo.Branch
	if strings.TrimSpace(branch) == "" {
		branch = info.DefaultBranch
	}
	if err := o.store.SetRepositoryOwner(ctx, repo.ID, info.Owner, info.Name, branch); err != nil {
		return o.fail(ctx, repo.ID, fmt.Sprintf("persisting repository metadata failed: %v", err))
	}
	if err := o.store.SetRepositoryStatus(ctx, repo.ID, catalog.RepoIndexing, ""); err != nil {
		return Outcome{}, err
	}

	workspace, err := o.fetcher.Clone(ctx, repo.RepoURL, branch)
	if err != nil {
		return o.fail(ctx, repo.ID, fmt.Sprintf("clone failed: %v", err))
	}
	// The workspace is released on every exit path below.
	defer o.fetcher.Cleanup(workspace)

	commit, err := o.fetcher.CurrentCommit(ctx, workspace)
	if err != nil {
		return o.fail(ctx, repo.ID, fmt.Sprintf("resolving HEAD failed: %v", err))
	}

	changedOnly, fullRun := o.resolveScope(ctx, workspace, repo, commit, opts.ForceFull)
	if !fullRun && len(changedOnly) == 0 {
		logger.Info("indexer: repository already up to date", "repo", repo.ID, "commit", commit)
		if err := o.store.RecordIndexResult(ctx, repo.ID, catalog.RepoCompleted, "",
			commit, repo.FileCount, repo.ChunkCount); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: catalog.RepoCompleted, Commit: commit, UpToDate: true,
			FileCount: repo.FileCount, ChunkCount: repo.ChunkCount}, nil
	}

	candidates, err := o.fetcher.ListCandidateFiles(workspace, gitrepo.ListFilter{
		Extensions:      splitList(repo.Extensions),
		ExcludePatterns: splitList(repo.ExcludePatterns),
		MaxFileSizeKB:   repo.MaxFileSizeKB,
	}, commit)
	if err != nil {
		return o.fail(ctx, repo.ID, fmt.Sprintf("listing candidate files failed: %v", err))
	}
	if len(candidates) == 0 {
		return o.fail(ctx, repo.ID, "no candidate files matched the configured filters")
	}

	o.detectStack(ctx, workspace, repo, opts.ForceFull)

	// Create the project's collection before any chunks are embedded, so
	// vector search has a target even when the run stores no vectors. An
	// unreachable backend degrades the run to lexical-only, not a failure.
	if o.vectors != nil && o.vectors.Available() {
		if err := o.vectors.EnsureCollection(ctx, repo.ProjectID); err != nil {
			logger.Warn("indexer: preparing vector collection failed",
				"repo", repo.ID, "error", err)
		}
	}

	if fullRun {
		keep := make([]string, len(candidates))
		for i, c := range candidates {
			keep[i] = c.Path
		}
		if _, err := o.store.DeleteFilesExcept(ctx, repo.ID, keep); err != nil {
			logger.Warn("indexer: pruning vanished files failed", "repo", repo.ID, "error", err)
		}
	} else {
		candidates = o.narrowToChanges(ctx, repo.ID, candidates, changedOnly)
	}

	successes, failures := o.processFiles(ctx, repo.ID, candidates, opts)

	if _, err := o.Reconcile(ctx, repo.ID, repo.ProjectID); err != nil {
		logger.Warn("indexer: embedding reconciliation incomplete", "repo", repo.ID, "error", err)
	}

	chunkCount, err := o.store.CountChunks(ctx, repo.ID)
	if err != nil {
		return Outcome{}, err
	}
	files, err := o.store.ListIndexedFiles(ctx, repo.ID)
	if err != nil {
		return Outcome{}, err
	}

	status, message := graduatedStatus(successes, failures)
	if err := o.store.RecordIndexResult(ctx, repo.ID, status, message, commit, len(files), chunkCount); err != nil {
		return Outcome{}, err
	}

	if status == catalog.RepoCompleted && failures == 0 {
		o.bestEffortInsights(ctx, repo.ID, info.Name)
	}
	logger.Info("indexer: run finished", "repo", repo.ID, "status", status,
		"files", len(files), "chunks", chunkCount, "failures", failures)
	return Outcome{Status: status, Message: message, FileCount: len(files),
		ChunkCount: chunkCount, Commit: commit}, nil
}

// resolveScope decides between a full run and an incremental one limited
// to changed paths.
func (o *Orchestrator) resolveScope(ctx context.Context, workspace string, repo catalog.Repository, commit string, force bool) ([]string, bool) {
	if force || strings.TrimSpace(repo.LastIndexedCommit) == "" {
		return nil, true
	}
	changed, full := o.fetcher.DiffSince(ctx, workspace, repo.LastIndexedCommit, commit)
	if full {
		return nil, true
	}
	return changed, false
}

func (o *Orchestrator) narrowToChanges(ctx context.Context, repoID string, candidates []gitrepo.FileDescriptor, changed []string) []gitrepo.FileDescriptor {
	changedSet := make(map[string]struct{}, len(changed))
	for _, path := range changed {
		changedSet[path] = struct{}{}
	}
	byPath := make(map[string]struct{}, len(candidates))
	var scoped []gitrepo.FileDescriptor
	for _, candidate := range candidates {
		byPath[candidate.Path] = struct{}{}
		if _, ok := changedSet[candidate.Path]; ok {
			scoped = append(scoped, candidate)
		}
	}
	// A changed path with no candidate on disk was deleted upstream.
	for _, path := range changed {
		if _, ok := byPath[path]; ok {
			continue
		}
		if err := o.store.DeleteFile(ctx, repoID, path); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			common.Logger().Warn("indexer: removing deleted file failed",
				"repo", repoID, "path", path, "error", err)
		}
	}
	return scoped
}

// processFiles runs the per-file pipeline with per-file fault isolation:
// an error is counted and logged, never aborts the run.
func (o *Orchestrator) processFiles(ctx context.Context, repoID string, candidates []gitrepo.FileDescriptor, opts Options) (successes, failures int) {
	total := len(candidates)
	for i, candidate := range candidates {
		if err := o.processFile(ctx, repoID, candidate); err != nil {
			failures++
			telemetry.RecordFileIndexed(false)
			common.Logger().Warn("indexer: file failed",
				"repo", repoID, "path", candidate.Path, "error", err)
		} else {
			successes++
			telemetry.RecordFileIndexed(true)
		}
		if opts.Progress != nil {
			opts.Progress(i+1, total, failures)
		}
	}
	return successes, failures
}

func (o *Orchestrator) processFile(ctx context.Context, repoID string, candidate gitrepo.FileDescriptor) error {
	content, err := os.ReadFile(candidate.AbsPath)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if existing, err := o.store.IndexedFile(ctx, repoID, candidate.Path); err == nil {
		if existing.ContentHash == hash && existing.Status == catalog.FileIndexed {
			return nil
		}
	}

	result := o.parsers.Parse(candidate.Path, string(content))
	file, err := o.store.UpsertIndexedFile(ctx, catalog.IndexedFile{
		RepoID:      repoID,
		FilePath:    candidate.Path,
		Extension:   candidate.Extension,
		SizeBytes:   candidate.SizeBytes,
		ContentHash: hash,
		Language:    string(result.Language),
		Status:      catalog.FileProcessing,
		LastCommit:  candidate.LastCommit,
	})
	if err != nil {
		return err
	}

	chunks := make([]catalog.CodeChunk, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		chunks = append(chunks, catalog.CodeChunk{
			RepoID:       repoID,
			ChunkType:    string(chunk.Type),
			EntityName:   chunk.Name,
			Content:      chunk.Content,
			Preview:      chunk.Preview,
			StartLine:    chunk.StartLine,
			EndLine:      chunk.EndLine,
			Complexity:   string(chunk.Complexity),
			Dependencies: strings.Join(chunk.Dependencies, ", "),
			Parameters:   strings.Join(chunk.Parameters, ", "),
			Description:  chunk.Description,
			EmbeddingID:  uuid.NewString(),
		})
	}
	stored, err := o.store.ReplaceFileChunks(ctx, file.ID, chunks)
	if err != nil {
		o.store.SetFileStatus(ctx, file.ID, catalog.FileError)
		return err
	}
	if err := o.index.Rebuild(ctx, repoID, candidate.Path, result.Language, stored); err != nil {
		o.store.SetFileStatus(ctx, file.ID, catalog.FileError)
		return err
	}
	return o.store.SetFileStatus(ctx, file.ID, catalog.FileIndexed)
}

func (o *Orchestrator) fail(ctx context.Context, repoID, message string) (Outcome, error) {
	if err := o.store.SetRepositoryStatus(ctx, repoID, catalog.RepoError, message); err != nil {
		common.Logger().Error("indexer: recording failure state failed",
			"repo", repoID, "error", err)
	}
	return Outcome{Status: catalog.RepoError, Message: message}, nil
}

func (o *Orchestrator) bestEffortInsights(ctx context.Context, repoID, repoName string) {
	if o.insights == nil {
		return
	}
	meta, err := o.insights.Recompute(ctx, repoID)
	if err != nil {
		common.Logger().Warn("indexer: insights recomputation failed",
			"repo", repoID, "error", err)
		return
	}
	o.insights.Summarize(ctx, repoID, repoName, meta)
}

func graduatedStatus(successes, failures int) (catalog.RepoStatus, string) {
	total := successes + failures
	if total == 0 {
		return catalog.RepoCompleted, ""
	}
	ratio := float64(successes) / float64(total)
	switch {
	case ratio == 1.0:
		return catalog.RepoCompleted, ""
	case ratio >= warnRatio:
		return catalog.RepoCompleted,
			fmt.Sprintf("completed with %d of %d files failing", failures, total)
	case ratio >= partialRatio:
		return catalog.RepoCompleted,
			fmt.Sprintf("partial failure: only %d of %d files indexed successfully", successes, total)
	default:
		return catalog.RepoError,
			fmt.Sprintf("indexing failed for %d of %d files", failures, total)
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
