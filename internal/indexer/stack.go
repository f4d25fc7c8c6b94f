// File path: internal/indexer/stack.go
package indexer

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
)

// manifestStacks maps well-known manifest files to the stack they
// indicate. Detection runs over the unfiltered listing because manifest
// files are usually outside the extension allow-list.
var manifestStacks = map[string]string{
	"package.json":     "Node.js",
	"tsconfig.json":    "TypeScript",
	"go.mod":           "Go",
	"requirements.txt": "Python",
	"pyproject.toml":   "Python",
	"cargo.toml":       "Rust",
	"pom.xml":          "Java",
	"build.gradle":     "Java",
	"gemfile":          "Ruby",
	"composer.json":    "PHP",
	"mix.exs":          "Elixir",
}

// detectStack persists the detected stack when the repository has none
// recorded yet or a forced reindex is underway.
func (o *Orchestrator) detectStack(ctx context.Context, workspace string, repo catalog.Repository, force bool) {
	if strings.TrimSpace(repo.DetectedStack) != "" && !force {
		return
	}
	paths, err := o.fetcher.ListAllFiles(workspace)
	if err != nil {
		common.Logger().Warn("indexer: stack detection listing failed",
			"repo", repo.ID, "error", err)
		return
	}
	stack := DetectStack(paths)
	if stack == "" {
		return
	}
	if err := o.store.SetDetectedStack(ctx, repo.ID, stack); err != nil {
		common.Logger().Warn("indexer: persisting detected stack failed",
			"repo", repo.ID, "error", err)
	}
}

// DetectStack inspects root-level manifest files and returns a
// comma-joined stack description, or empty when nothing is recognized.
func DetectStack(paths []string) string {
	found := make(map[string]struct{})
	for _, p := range paths {
		// Only root-level manifests count; a vendored package.json deep
		// in the tree says nothing about the project itself.
		if strings.Contains(p, "/") {
			continue
		}
		name := strings.ToLower(path.Base(p))
		if stack, ok := manifestStacks[name]; ok {
			found[stack] = struct{}{}
		}
	}
	if len(found) == 0 {
		return ""
	}
	stacks := make([]string, 0, len(found))
	for stack := range found {
		stacks = append(stacks, stack)
	}
	sort.Strings(stacks)
	return strings.Join(stacks, ", ")
}
