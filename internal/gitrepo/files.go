// File path: internal/gitrepo/files.go
package gitrepo

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FileDescriptor describes one candidate file relative to the workspace
// root.
type FileDescriptor struct {
	Path       string `json:"path"`
	AbsPath    string `json:"-"`
	Extension  string `json:"extension"`
	SizeBytes  int64  `json:"size_bytes"`
	LastCommit string `json:"last_commit,omitempty"`
}

// ListFilter narrows the workspace walk to indexable files.
type ListFilter struct {
	Extensions      []string
	ExcludePatterns []string
	MaxFileSizeKB   int
}

// ListCandidateFiles walks the workspace and returns files passing the
// extension allow-list, the exclude patterns, and the size ceiling, in
// that order. headCommit is attached to every descriptor.
func (s *Service) ListCandidateFiles(workspace string, filter ListFilter, headCommit string) ([]FileDescriptor, error) {
	var files []FileDescriptor
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workspace, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ext := strings.ToLower(filepath.Ext(rel))

		if !extensionAllowed(ext, filter.Extensions) {
			return nil
		}
		if matchesExclude(rel, filter.ExcludePatterns) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if filter.MaxFileSizeKB > 0 && info.Size() > int64(filter.MaxFileSizeKB)*1024 {
			return nil
		}
		files = append(files, FileDescriptor{
			Path:       rel,
			AbsPath:    path,
			Extension:  ext,
			SizeBytes:  info.Size(),
			LastCommit: headCommit,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ListAllFiles returns every workspace path relative to the root with no
// filtering. Stack detection uses this so manifest files excluded by the
// extension allow-list still participate.
func (s *Service) ListAllFiles(workspace string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workspace, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if !strings.HasPrefix(candidate, ".") {
			candidate = "." + candidate
		}
		if candidate == ext {
			return true
		}
	}
	return false
}

// matchesExclude treats a pattern as a glob when it parses as one and as
// a plain substring otherwise.
func matchesExclude(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
		if strings.Contains(rel, pattern) {
			return true
		}
	}
	return false
}
