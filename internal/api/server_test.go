// File path: internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/embedding"
	"github.com/lfg-hq/codeindex/internal/gitrepo"
	"github.com/lfg-hq/codeindex/internal/indexer"
	"github.com/lfg-hq/codeindex/internal/indexmap"
	"github.com/lfg-hq/codeindex/internal/job"
	"github.com/lfg-hq/codeindex/internal/parser"
	"github.com/lfg-hq/codeindex/internal/retrieval"
	"github.com/lfg-hq/codeindex/internal/vector"
)

type stubRunner struct {
	mu      sync.Mutex
	outcome indexer.Outcome
	err     error
	deleted []string
}

func (s *stubRunner) Run(ctx context.Context, opts indexer.Options) (indexer.Outcome, error) {
	return s.outcome, s.err
}

func (s *stubRunner) DeleteRepository(ctx context.Context, repoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, repoID)
	return nil
}

type noopVectors struct{}

func (noopVectors) Available() bool { return true }

func (noopVectors) EnsureCollection(ctx context.Context, projectID string) error { return nil }
func (noopVectors) Upsert(ctx context.Context, projectID string, docs []vector.Document, vectors [][]float32) error {
	return nil
}
func (noopVectors) Query(ctx context.Context, projectID string, vec []float32, limit int, filter map[string]interface{}) []vector.SearchResult {
	return nil
}
func (noopVectors) DropCollection(ctx context.Context, projectID string) error { return nil }

type testEnv struct {
	server *Server
	store  *catalog.Store
	runner *stubRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := catalog.OpenWithConfig(catalog.Config{Path: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runner := &stubRunner{outcome: indexer.Outcome{Status: catalog.RepoCompleted}}
	manager := job.NewManager(job.Config{Store: store, Runner: runner, Concurrency: 1})
	manager.Start(context.Background())
	t.Cleanup(manager.Stop)

	generator := embedding.NewGenerator(embedding.NewLocalProvider())
	engine := retrieval.NewEngine(store, noopVectors{}, generator)
	orch := indexer.New(store, gitrepo.NewService(t.TempDir(), ""), parser.New(),
		indexmap.NewBuilder(store), generator, noopVectors{}, nil)

	return &testEnv{
		server: NewServer(store, manager, engine, orch),
		store:  store,
		runner: runner,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

// seedIndexedRepo stores a completed repository with one searchable
// chunk so retrieval endpoints have data to serve.
func seedIndexedRepo(t *testing.T, store *catalog.Store, projectID string) catalog.Repository {
	t.Helper()
	ctx := context.Background()
	repo, _, err := store.GetOrCreateRepository(ctx, projectID, "https://github.com/acme/widgets", "main")
	require.NoError(t, err)

	file, err := store.UpsertIndexedFile(ctx, catalog.IndexedFile{
		RepoID: repo.ID, FilePath: "auth/login.go", Extension: ".go",
		ContentHash: "h1", Language: "go", Status: catalog.FileIndexed,
	})
	require.NoError(t, err)
	chunks, err := store.ReplaceFileChunks(ctx, file.ID, []catalog.CodeChunk{{
		RepoID: repo.ID, ChunkType: "function", EntityName: "HandleLogin",
		Content: "func HandleLogin() {}", StartLine: 5, EndLine: 12,
		Complexity: "low", EmbeddingID: "emb-1",
	}})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceIndexEntries(ctx, repo.ID, "auth/login.go", []catalog.IndexMapEntry{{
		FilePath: "auth/login.go", EntityName: "HandleLogin", QualifiedName: "login.HandleLogin",
		EntityType: "function", Language: "go", StartLine: 5, EndLine: 12,
		Keywords: "handle login auth", Complexity: "low", ChunkID: chunks[0].ID,
	}}))
	require.NoError(t, store.RecordIndexResult(ctx, repo.ID, catalog.RepoCompleted, "", "abc123", 1, 1))

	repo, err = store.Repository(ctx, repo.ID)
	require.NoError(t, err)
	return repo
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

func TestIndexRepositoryValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/repositories", map[string]string{"repo_url": "u"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/repositories", map[string]string{"project_id": "p"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexRepositoryQueuesJobAndPersistsFilters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/repositories", indexRequest{
		ProjectID:       "proj-1",
		RepoURL:         "https://github.com/acme/widgets",
		Branch:          "main",
		Extensions:      []string{".go", ".py"},
		ExcludePatterns: []string{"vendor/*"},
		MaxFileSizeKB:   512,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp indexResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.RepositoryID)
	require.Equal(t, catalog.JobFull, resp.Job.Kind)

	repo, err := env.store.Repository(context.Background(), resp.RepositoryID)
	require.NoError(t, err)
	require.Equal(t, ".go,.py", repo.Extensions)
	require.Equal(t, "vendor/*", repo.ExcludePatterns)
	require.Equal(t, 512, repo.MaxFileSizeKB)
}

func TestListRepositories(t *testing.T) {
	env := newTestEnv(t)
	seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodGet, "/api/v1/repositories", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Repositories []catalog.Repository `json:"repositories"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Repositories, 1)
	require.Equal(t, "proj-1", resp.Repositories[0].ProjectID)
}

func TestRepositoryStatusReportsProgress(t *testing.T) {
	env := newTestEnv(t)
	repo := seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodGet, "/api/v1/repositories/"+repo.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, catalog.RepoCompleted, resp.Repository.Status)
	require.Equal(t, float64(100), resp.ProgressPercent)

	rec = env.do(t, http.MethodGet, "/api/v1/repositories/missing/status", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchServesIndexHits(t *testing.T) {
	env := newTestEnv(t)
	seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodGet, "/api/v1/search?project_id=proj-1&q=login", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []searchHit `json:"results"`
		Error   string      `json:"error"`
	}
	decodeBody(t, rec, &resp)
	require.Empty(t, resp.Error)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "HandleLogin", resp.Results[0].EntityName)
	require.InDelta(t, 100, resp.Results[0].SimilarityPercent, 5)

	rec = env.do(t, http.MethodGet, "/api/v1/search?q=login", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUnindexedProjectReturnsStructuredError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/search?project_id=ghost&q=login", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []searchHit `json:"results"`
		Error   string      `json:"error"`
	}
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Error)
	require.Empty(t, resp.Results)
}

func TestFeatureContextEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodPost, "/api/v1/context/feature", featureContextRequest{
		ProjectID: "proj-1", Description: "add login throttling",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retrieval.FeatureContext
	decodeBody(t, rec, &resp)
	require.Empty(t, resp.Error)
	require.Contains(t, resp.Context, "HandleLogin")
	require.Contains(t, resp.RelevantFiles, "auth/login.go")
}

func TestPRDContextEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodPost, "/api/v1/context/prd", prdContextRequest{
		ProjectID: "proj-1", Description: "auth overhaul", Features: []string{"login"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retrieval.PRDContext
	decodeBody(t, rec, &resp)
	require.Empty(t, resp.Error)
	require.Contains(t, resp.Context, "# Codebase Context")
}

func TestPRDContextUnindexedProjectReturnsStructuredError(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.store.GetOrCreateRepository(context.Background(),
		"proj-pending", "https://github.com/acme/widgets", "main")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/v1/context/prd", prdContextRequest{
		ProjectID: "proj-pending", Description: "auth overhaul",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp retrieval.PRDContext
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Error)
	require.Empty(t, resp.Context)
}

func TestJobEndpoint(t *testing.T) {
	env := newTestEnv(t)
	repo := seedIndexedRepo(t, env.store, "proj-1")

	queued, err := env.store.CreateJob(context.Background(), repo.ID, catalog.JobFull)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/v1/jobs/"+queued.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stored catalog.IndexingJob
	decodeBody(t, rec, &stored)
	require.Equal(t, queued.ID, stored.ID)

	rec = env.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRepositoryQueuesCleanup(t *testing.T) {
	env := newTestEnv(t)
	repo := seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodDelete, "/api/v1/repositories/"+repo.ID, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		env.runner.mu.Lock()
		defer env.runner.mu.Unlock()
		return len(env.runner.deleted) == 1 && env.runner.deleted[0] == repo.ID
	}, 5*time.Second, 20*time.Millisecond)

	rec = env.do(t, http.MethodDelete, "/api/v1/repositories/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseAndResumeRepository(t *testing.T) {
	env := newTestEnv(t)
	repo := seedIndexedRepo(t, env.store, "proj-1")

	rec := env.do(t, http.MethodPost, "/api/v1/repositories/"+repo.ID+"/resume", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/repositories/"+repo.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	paused, err := env.store.Repository(context.Background(), repo.ID)
	require.NoError(t, err)
	require.Equal(t, catalog.RepoPaused, paused.Status)

	rec = env.do(t, http.MethodPost, "/api/v1/repositories/"+repo.ID+"/resume", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Job catalog.IndexingJob `json:"job"`
	}
	decodeBody(t, rec, &resp)
	require.Equal(t, catalog.JobIncremental, resp.Job.Kind)
}

func TestLogsAndDebugVars(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/debug/vars", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "{")
}
