// File path: internal/gitrepo/gitrepo.go
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/lfg-hq/codeindex/internal/common"
)

var (
	// ErrAccessDenied covers 403/404 responses from the hosting API.
	ErrAccessDenied = errors.New("gitrepo: repository access denied")
	// ErrRateLimited is a 403 carrying an exhausted rate-limit header.
	ErrRateLimited = errors.New("gitrepo: hosting API rate limited")
	// ErrClone covers transport or auth failures during fetch.
	ErrClone = errors.New("gitrepo: clone failed")
)

// Service fetches remote repositories into ephemeral workspaces under a
// configurable scratch root.
type Service struct {
	root    string
	token   string
	client  *http.Client
	apiBase string
}

// NewService constructs a Service. The scratch root defaults to the
// system temp directory; token may be empty for public repositories.
func NewService(root, token string) *Service {
	if strings.TrimSpace(root) == "" {
		root = filepath.Join(os.TempDir(), "codeindex-workspaces")
	}
	return &Service{
		root:   root,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Clone performs a shallow clone of the branch into a fresh workspace
// directory and returns its path. The caller owns the workspace and must
// release it with Cleanup on every exit path.
func (s *Service) Clone(ctx context.Context, repoURL, branch string) (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create workspace root: %w", err)
	}
	workspace, err := os.MkdirTemp(s.root, "repo-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if strings.TrimSpace(branch) != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, s.authenticatedURL(repoURL), workspace)

	cmd := exec.CommandContext(ctx, "git", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(workspace)
		common.Logger().Warn("gitrepo: clone failed",
			"repo", repoURL, "branch", branch, "output", truncateOutput(output))
		return "", fmt.Errorf("%w: %v", ErrClone, err)
	}
	return workspace, nil
}

// CurrentCommit resolves HEAD in the workspace.
func (s *Service) CurrentCommit(ctx context.Context, workspace string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = workspace
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// DiffSince lists paths changed between two commits. The second return
// is the full-reindex signal: a missing prior commit or a failing diff
// both set it, since over-indexing is safe and under-indexing is not.
// A shallow clone usually lacks the old commit, so the diff runs against
// a deepened fetch when needed.
func (s *Service) DiffSince(ctx context.Context, workspace, lastCommit, currentCommit string) ([]string, bool) {
	if strings.TrimSpace(lastCommit) == "" || strings.TrimSpace(currentCommit) == "" {
		return nil, true
	}
	if lastCommit == currentCommit {
		return []string{}, false
	}
	if !s.hasCommit(ctx, workspace, lastCommit) {
		fetch := exec.CommandContext(ctx, "git", "fetch", "--deepen", "50")
		fetch.Dir = workspace
		fetch.Run()
	}
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", lastCommit, currentCommit)
	cmd.Dir = workspace
	output, err := cmd.Output()
	if err != nil {
		common.Logger().Warn("gitrepo: diff failed, forcing full reindex",
			"workspace", workspace, "last", lastCommit, "error", err)
		return nil, true
	}
	var changed []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			changed = append(changed, line)
		}
	}
	if changed == nil {
		changed = []string{}
	}
	return changed, false
}

// Cleanup removes a workspace directory. Safe to call with an empty path
// or a path that is already gone.
func (s *Service) Cleanup(workspace string) {
	if strings.TrimSpace(workspace) == "" {
		return
	}
	if err := os.RemoveAll(workspace); err != nil {
		common.Logger().Warn("gitrepo: workspace cleanup failed",
			"workspace", workspace, "error", err)
	}
}

func (s *Service) hasCommit(ctx context.Context, workspace, commit string) bool {
	cmd := exec.CommandContext(ctx, "git", "cat-file", "-e", commit+"^{commit}")
	cmd.Dir = workspace
	return cmd.Run() == nil
}

func (s *Service) authenticatedURL(repoURL string) string {
	if s.token == "" {
		return repoURL
	}
	if rest, ok := strings.CutPrefix(repoURL, "https://"); ok {
		return "https://x-access-token:" + s.token + "@" + rest
	}
	return repoURL
}

func truncateOutput(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}
