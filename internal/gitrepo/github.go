// File path: internal/gitrepo/github.go
package gitrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const githubAPIBase = "https://api.github.com"

// RepoInfo is the subset of hosting metadata the indexer needs.
type RepoInfo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	SizeKB        int    `json:"size_kb"`
}

type githubRepoResponse struct {
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Size          int    `json:"size"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// ValidateAccess checks that the repository is reachable with the
// configured credentials. A 403 with an exhausted rate-limit header maps
// to ErrRateLimited; any other 403 or a 404 maps to ErrAccessDenied.
func (s *Service) ValidateAccess(ctx context.Context, repoURL string) (RepoInfo, error) {
	owner, name, err := ParseRepoURL(repoURL)
	if err != nil {
		return RepoInfo{}, err
	}
	base := s.apiBase
	if base == "" {
		base = githubAPIBase
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s", base, owner, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RepoInfo{}, fmt.Errorf("build access request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return RepoInfo{}, fmt.Errorf("hosting API request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return RepoInfo{}, fmt.Errorf("%w: %s/%s", ErrRateLimited, owner, name)
		}
		return RepoInfo{}, fmt.Errorf("%w: %s/%s", ErrAccessDenied, owner, name)
	case http.StatusNotFound:
		return RepoInfo{}, fmt.Errorf("%w: %s/%s", ErrAccessDenied, owner, name)
	default:
		return RepoInfo{}, fmt.Errorf("hosting API returned %d for %s/%s", resp.StatusCode, owner, name)
	}

	var payload githubRepoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RepoInfo{}, fmt.Errorf("decode hosting API response: %w", err)
	}
	return RepoInfo{
		Owner:         payload.Owner.Login,
		Name:          payload.Name,
		DefaultBranch: payload.DefaultBranch,
		Private:       payload.Private,
		SizeKB:        payload.Size,
	}, nil
}

// ParseRepoURL extracts owner and repository name from HTTPS or SSH
// GitHub URLs.
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), ".git")
	var repoPath string
	switch {
	case strings.HasPrefix(trimmed, "https://"), strings.HasPrefix(trimmed, "http://"):
		parts := strings.SplitN(trimmed, "/", 5)
		if len(parts) >= 5 {
			repoPath = parts[3] + "/" + parts[4]
		}
	case strings.Contains(trimmed, ":"):
		// git@github.com:owner/repo
		_, after, _ := strings.Cut(trimmed, ":")
		repoPath = after
	}
	segments := strings.Split(repoPath, "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", "", fmt.Errorf("gitrepo: cannot parse repository URL %q", repoURL)
	}
	return segments[0], segments[1], nil
}
