// File path: internal/gitrepo/gitrepo_test.go
package gitrepo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		url   string
		owner string
		name  string
	}{
		{"https://github.com/acme/widgets", "acme", "widgets"},
		{"https://github.com/acme/widgets.git", "acme", "widgets"},
		{"git@github.com:acme/widgets.git", "acme", "widgets"},
	}
	for _, tc := range cases {
		owner, name, err := ParseRepoURL(tc.url)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.url, err)
		}
		if owner != tc.owner || name != tc.name {
			t.Fatalf("parse %q: got %s/%s", tc.url, owner, name)
		}
	}
	if _, _, err := ParseRepoURL("not-a-url"); err == nil {
		t.Fatalf("expected error for malformed URL")
	}
}

func TestValidateAccessDistinguishesRateLimitFromDenial(t *testing.T) {
	var mode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch mode {
		case "ok":
			w.Write([]byte(`{"name":"widgets","default_branch":"main","private":false,"size":2048,"owner":{"login":"acme"}}`))
		case "denied":
			w.WriteHeader(http.StatusForbidden)
		case "ratelimited":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
		case "missing":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := NewService(t.TempDir(), "")
	svc.apiBase = server.URL
	ctx := context.Background()

	mode = "ok"
	info, err := svc.ValidateAccess(ctx, "https://github.com/acme/widgets")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if info.Owner != "acme" || info.DefaultBranch != "main" || info.SizeKB != 2048 {
		t.Fatalf("unexpected repo info: %+v", info)
	}

	mode = "denied"
	if _, err := svc.ValidateAccess(ctx, "https://github.com/acme/widgets"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	mode = "ratelimited"
	if _, err := svc.ValidateAccess(ctx, "https://github.com/acme/widgets"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mode = "missing"
	if _, err := svc.ValidateAccess(ctx, "https://github.com/acme/widgets"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for 404, got %v", err)
	}
}

func seedWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	workspace := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(workspace, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return workspace
}

func TestListCandidateFilesAppliesFiltersInOrder(t *testing.T) {
	workspace := seedWorkspace(t, map[string]string{
		"main.go":             "package main",
		"vendor/dep/dep.go":   "package dep",
		"README.md":           "# readme",
		"big.go":              strings.Repeat("x", 3*1024),
		".git/config":         "should be skipped",
		"internal/handler.go": "package internal",
	})

	svc := NewService(t.TempDir(), "")
	files, err := svc.ListCandidateFiles(workspace, ListFilter{
		Extensions:      []string{".go"},
		ExcludePatterns: []string{"vendor/"},
		MaxFileSizeKB:   2,
	}, "head-sha")
	if err != nil {
		t.Fatalf("list candidate files: %v", err)
	}

	got := make(map[string]FileDescriptor)
	for _, f := range files {
		got[f.Path] = f
	}
	if _, ok := got["main.go"]; !ok {
		t.Fatalf("main.go should pass all filters: %v", got)
	}
	if _, ok := got["internal/handler.go"]; !ok {
		t.Fatalf("nested go file should pass: %v", got)
	}
	if _, ok := got["README.md"]; ok {
		t.Fatalf("extension filter ignored")
	}
	if _, ok := got["vendor/dep/dep.go"]; ok {
		t.Fatalf("exclude pattern ignored")
	}
	if _, ok := got["big.go"]; ok {
		t.Fatalf("size ceiling ignored")
	}
	if got["main.go"].LastCommit != "head-sha" {
		t.Fatalf("last commit not attached: %+v", got["main.go"])
	}
}

func TestListAllFilesIgnoresFilters(t *testing.T) {
	workspace := seedWorkspace(t, map[string]string{
		"package.json": "{}",
		"src/app.ts":   "export {}",
		".git/HEAD":    "ref",
	})
	svc := NewService(t.TempDir(), "")
	paths, err := svc.ListAllFiles(workspace)
	if err != nil {
		t.Fatalf("list all files: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected two paths, got %v", paths)
	}
}

func TestDiffSinceSignalsFullReindexWithoutPriorCommit(t *testing.T) {
	svc := NewService(t.TempDir(), "")
	if _, full := svc.DiffSince(context.Background(), t.TempDir(), "", "abc"); !full {
		t.Fatalf("missing prior commit must force full reindex")
	}
	changed, full := svc.DiffSince(context.Background(), t.TempDir(), "abc", "abc")
	if full || len(changed) != 0 {
		t.Fatalf("identical commits must be an empty diff, got %v full=%v", changed, full)
	}
}

func TestCleanupTolerantOfMissingWorkspace(t *testing.T) {
	svc := NewService(t.TempDir(), "")
	svc.Cleanup("")
	svc.Cleanup(filepath.Join(t.TempDir(), "never-created"))
}
