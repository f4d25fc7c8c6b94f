// File path: internal/catalog/store_test.go
package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := OpenWithConfig(Config{Path: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRepository(t *testing.T, store *Store, projectID string) Repository {
	t.Helper()
	repo, created, err := store.GetOrCreateRepository(context.Background(), projectID,
		"https://github.com/acme/widgets", "main")
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	if !created {
		t.Fatalf("expected fresh repository for project %s", projectID)
	}
	return repo
}

func TestOpenWithPathOnlyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := OpenWithConfig(Config{Path: path})
	if err != nil {
		t.Fatalf("path-only config must open with defaults applied: %v", err)
	}
	defer store.Close()

	var mode string
	if err := store.db.Get(&mode, `PRAGMA journal_mode`); err != nil {
		t.Fatalf("read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}

	// Schema must be in place and writable.
	seedRepository(t, store, "proj-open")
}

func TestGetOrCreateRepositoryIsIdempotentPerProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedRepository(t, store, "proj-1")
	second, created, err := store.GetOrCreateRepository(ctx, "proj-1",
		"https://github.com/acme/widgets", "main")
	if err != nil {
		t.Fatalf("second get-or-create: %v", err)
	}
	if created {
		t.Fatalf("expected existing repository to be returned")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same repository id, got %s and %s", first.ID, second.ID)
	}

	// Re-registering with new coordinates updates the row in place.
	updated, created, err := store.GetOrCreateRepository(ctx, "proj-1",
		"https://github.com/acme/gadgets", "develop")
	if err != nil {
		t.Fatalf("update coordinates: %v", err)
	}
	if created || updated.ID != first.ID {
		t.Fatalf("coordinate change must not mint a new repository")
	}
	if updated.RepoURL != "https://github.com/acme/gadgets" || updated.Branch != "develop" {
		t.Fatalf("coordinates not updated: %+v", updated)
	}
}

func TestRepositoryStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-status")

	if err := store.SetRepositoryStatus(ctx, repo.ID, RepoIndexing, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := store.RecordIndexResult(ctx, repo.ID, RepoCompleted, "", "abc123", 10, 42); err != nil {
		t.Fatalf("record result: %v", err)
	}

	loaded, err := store.Repository(ctx, repo.ID)
	if err != nil {
		t.Fatalf("load repository: %v", err)
	}
	if loaded.Status != RepoCompleted {
		t.Fatalf("expected completed status, got %s", loaded.Status)
	}
	if loaded.LastIndexedCommit != "abc123" || loaded.FileCount != 10 || loaded.ChunkCount != 42 {
		t.Fatalf("index result not recorded: %+v", loaded)
	}

	if err := store.SetRepositoryStatus(ctx, "missing", RepoError, "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown repository, got %v", err)
	}
}

func TestFileUpsertKeepsSingleRowPerPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-files")

	first, err := store.UpsertIndexedFile(ctx, IndexedFile{
		RepoID:      repo.ID,
		FilePath:    "internal/server/handler.go",
		Extension:   ".go",
		SizeBytes:   1200,
		ContentHash: "hash-1",
		Language:    "go",
		Status:      FilePending,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := store.UpsertIndexedFile(ctx, IndexedFile{
		RepoID:      repo.ID,
		FilePath:    "internal/server/handler.go",
		Extension:   ".go",
		SizeBytes:   1500,
		ContentHash: "hash-2",
		Language:    "go",
		Status:      FileIndexed,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert must reuse the row, got ids %d and %d", first.ID, second.ID)
	}
	if second.ContentHash != "hash-2" || second.Status != FileIndexed {
		t.Fatalf("upsert did not update fields: %+v", second)
	}

	files, err := store.ListIndexedFiles(ctx, repo.ID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one file row, got %d", len(files))
	}
}

func TestDeleteFilesExceptRemovesVanishedPaths(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-prune")

	for _, path := range []string{"a.go", "b.go", "c.go"} {
		if _, err := store.UpsertIndexedFile(ctx, IndexedFile{
			RepoID: repo.ID, FilePath: path, Extension: ".go", Status: FileIndexed,
		}); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	removed, err := store.DeleteFilesExcept(ctx, repo.ID, []string{"a.go", "c.go"})
	if err != nil {
		t.Fatalf("prune files: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}
	files, err := store.ListIndexedFiles(ctx, repo.ID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected two surviving files, got %d", len(files))
	}
}

func TestReplaceFileChunksDropsPreviousSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-chunks")
	file, err := store.UpsertIndexedFile(ctx, IndexedFile{
		RepoID: repo.ID, FilePath: "svc.go", Extension: ".go", Status: FileIndexed,
	})
	if err != nil {
		t.Fatalf("seed file: %v", err)
	}

	initial := []CodeChunk{
		{RepoID: repo.ID, ChunkType: "file", EntityName: "svc.go", Content: "package svc", StartLine: 1, EndLine: 3, Complexity: "low", EmbeddingID: "e1"},
		{RepoID: repo.ID, ChunkType: "function", EntityName: "Run", Content: "func Run() {}", StartLine: 1, EndLine: 1, Complexity: "low", EmbeddingID: "e2"},
	}
	stored, err := store.ReplaceFileChunks(ctx, file.ID, initial)
	if err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if len(stored) != 2 || stored[0].ID == 0 {
		t.Fatalf("expected stored chunks with ids, got %+v", stored)
	}

	replacement := []CodeChunk{
		{RepoID: repo.ID, ChunkType: "function", EntityName: "Stop", Content: "func Stop() {}", StartLine: 5, EndLine: 7, Complexity: "low", EmbeddingID: "e3"},
	}
	if _, err := store.ReplaceFileChunks(ctx, file.ID, replacement); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	chunks, err := store.FileChunks(ctx, file.ID)
	if err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].EntityName != "Stop" {
		t.Fatalf("previous chunk set not replaced: %+v", chunks)
	}
}

func TestPendingEmbeddingChunksAndMarking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-embed")
	file, err := store.UpsertIndexedFile(ctx, IndexedFile{
		RepoID: repo.ID, FilePath: "svc.go", Extension: ".go", Status: FileIndexed,
	})
	if err != nil {
		t.Fatalf("seed file: %v", err)
	}
	stored, err := store.ReplaceFileChunks(ctx, file.ID, []CodeChunk{
		{RepoID: repo.ID, ChunkType: "function", EntityName: "A", Content: "a", StartLine: 1, EndLine: 1, Complexity: "low", EmbeddingID: "e1"},
		{RepoID: repo.ID, ChunkType: "function", EntityName: "B", Content: "b", StartLine: 2, EndLine: 2, Complexity: "low", EmbeddingID: "e2"},
	})
	if err != nil {
		t.Fatalf("seed chunks: %v", err)
	}

	pending, err := store.PendingEmbeddingChunks(ctx, repo.ID, 0)
	if err != nil {
		t.Fatalf("pending chunks: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected two pending chunks, got %d", len(pending))
	}

	if err := store.MarkChunksEmbedded(ctx, []int64{stored[0].ID}); err != nil {
		t.Fatalf("mark embedded: %v", err)
	}
	pending, err = store.PendingEmbeddingChunks(ctx, repo.ID, 0)
	if err != nil {
		t.Fatalf("pending chunks after mark: %v", err)
	}
	if len(pending) != 1 || pending[0].EntityName != "B" {
		t.Fatalf("expected only chunk B pending, got %+v", pending)
	}
}

func TestSearchIndexEntriesMatchesAllTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-search")

	entries := []IndexMapEntry{
		{RepoID: repo.ID, FilePath: "auth/login.go", EntityName: "HandleLogin", QualifiedName: "auth/login.HandleLogin", EntityType: "function", Language: "go", StartLine: 10, EndLine: 40, Keywords: "handle login auth session", Complexity: "medium"},
		{RepoID: repo.ID, FilePath: "auth/login.go", EntityName: "validateToken", QualifiedName: "auth/login.validateToken", EntityType: "function", Language: "go", StartLine: 42, EndLine: 60, Keywords: "validate token auth", Complexity: "low"},
		{RepoID: repo.ID, FilePath: "billing/invoice.py", EntityName: "render_invoice", QualifiedName: "billing/invoice.render_invoice", EntityType: "function", Language: "python", StartLine: 5, EndLine: 30, Keywords: "render invoice billing", Complexity: "low"},
	}
	if err := store.ReplaceIndexEntries(ctx, repo.ID, "auth/login.go", entries[:2]); err != nil {
		t.Fatalf("seed auth entries: %v", err)
	}
	if err := store.ReplaceIndexEntries(ctx, repo.ID, "billing/invoice.py", entries[2:]); err != nil {
		t.Fatalf("seed billing entries: %v", err)
	}

	results, err := store.SearchIndexEntries(ctx, repo.ID, "auth login", IndexSearchFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both auth entries, got %d", len(results))
	}

	results, err = store.SearchIndexEntries(ctx, repo.ID, "login handle", IndexSearchFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].EntityName != "HandleLogin" {
		t.Fatalf("token AND semantics violated: %+v", results)
	}

	results, err = store.SearchIndexEntries(ctx, repo.ID, "invoice", IndexSearchFilter{Languages: []string{"go"}})
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("language filter ignored: %+v", results)
	}
}

func TestReplaceIndexEntriesIsScopedToFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-scope")

	if err := store.ReplaceIndexEntries(ctx, repo.ID, "a.go", []IndexMapEntry{
		{RepoID: repo.ID, FilePath: "a.go", EntityName: "Alpha", EntityType: "function", Language: "go", StartLine: 1, EndLine: 5, Complexity: "low"},
	}); err != nil {
		t.Fatalf("seed a.go: %v", err)
	}
	if err := store.ReplaceIndexEntries(ctx, repo.ID, "b.go", []IndexMapEntry{
		{RepoID: repo.ID, FilePath: "b.go", EntityName: "Beta", EntityType: "function", Language: "go", StartLine: 1, EndLine: 5, Complexity: "low"},
	}); err != nil {
		t.Fatalf("seed b.go: %v", err)
	}

	// Rebuilding a.go must not disturb b.go's entries.
	if err := store.ReplaceIndexEntries(ctx, repo.ID, "a.go", []IndexMapEntry{
		{RepoID: repo.ID, FilePath: "a.go", EntityName: "AlphaPrime", EntityType: "function", Language: "go", StartLine: 1, EndLine: 9, Complexity: "low"},
	}); err != nil {
		t.Fatalf("rebuild a.go: %v", err)
	}
	count, err := store.CountIndexEntries(ctx, repo.ID)
	if err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two entries after scoped rebuild, got %d", count)
	}
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-jobs")

	job, err := store.CreateJob(ctx, repo.ID, JobFull)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != JobQueued {
		t.Fatalf("new job must be queued, got %s", job.Status)
	}
	if err := store.StartJob(ctx, job.ID, 50); err != nil {
		t.Fatalf("start job: %v", err)
	}
	if err := store.UpdateJobProgress(ctx, job.ID, 25, 50, 2); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := store.FinishJob(ctx, job.ID, JobCompleted, "indexed 48 of 50 files"); err != nil {
		t.Fatalf("finish job: %v", err)
	}

	loaded, err := store.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if loaded.Status != JobCompleted || loaded.ProcessedFiles != 25 || loaded.ErrorCount != 2 {
		t.Fatalf("job state not persisted: %+v", loaded)
	}
	if loaded.StartedAt == nil || loaded.CompletedAt == nil {
		t.Fatalf("job timestamps missing: %+v", loaded)
	}

	jobs, err := store.RepositoryJobs(ctx, repo.ID, 10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
}

func TestRepositoryMetadataUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-meta")

	meta := RepositoryMetadata{
		RepoID:               repo.ID,
		PrimaryLanguage:      "go",
		LanguageDistribution: `{"go":0.9,"python":0.1}`,
		FunctionCount:        120,
		ClassCount:           14,
		DependencyFrequency:  `{"fmt":40}`,
		DocCoverage:          0.55,
		AvgComplexity:        1.4,
	}
	if err := store.UpsertRepositoryMetadata(ctx, meta); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	meta.FunctionCount = 130
	if err := store.UpsertRepositoryMetadata(ctx, meta); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	loaded, err := store.RepositoryMetadataFor(ctx, repo.ID)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if loaded.FunctionCount != 130 || loaded.PrimaryLanguage != "go" {
		t.Fatalf("metadata not replaced: %+v", loaded)
	}
}

func TestDeleteRepositoryCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := seedRepository(t, store, "proj-delete")

	file, err := store.UpsertIndexedFile(ctx, IndexedFile{
		RepoID: repo.ID, FilePath: "main.go", Extension: ".go", Status: FileIndexed,
	})
	if err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := store.ReplaceFileChunks(ctx, file.ID, []CodeChunk{
		{RepoID: repo.ID, ChunkType: "file", EntityName: "main.go", Content: "package main", StartLine: 1, EndLine: 1, Complexity: "low"},
	}); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
	if err := store.ReplaceIndexEntries(ctx, repo.ID, "main.go", []IndexMapEntry{
		{RepoID: repo.ID, FilePath: "main.go", EntityName: "main.go", EntityType: "file", Language: "go", StartLine: 1, EndLine: 1, Complexity: "low"},
	}); err != nil {
		t.Fatalf("seed index entry: %v", err)
	}

	if err := store.DeleteRepository(ctx, repo.ID); err != nil {
		t.Fatalf("delete repository: %v", err)
	}
	if _, err := store.Repository(ctx, repo.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("repository should be gone, got %v", err)
	}
	files, err := store.ListIndexedFiles(ctx, repo.ID)
	if err != nil {
		t.Fatalf("list files after delete: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("files should cascade on delete, got %d", len(files))
	}
	count, err := store.CountIndexEntries(ctx, repo.ID)
	if err != nil {
		t.Fatalf("count entries after delete: %v", err)
	}
	if count != 0 {
		t.Fatalf("index entries should cascade, got %d", count)
	}
}
