// File path: internal/retrieval/context.go
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	defaultContextLength = 12000
	truncationNotice     = "\n\n> Context truncated: additional matching code was omitted to stay within the length limit.\n"
)

// FeatureContext is the payload handed to the AI agent for one feature.
type FeatureContext struct {
	Context       string   `json:"context"`
	Suggestions   []string `json:"suggestions"`
	RelevantFiles []string `json:"relevant_files"`
	Error         string   `json:"error,omitempty"`
}

// AssembleContext renders retrieved chunks as a bounded Markdown
// document, sorted by relevance and grouped by file. Content beyond
// maxLength is dropped with an explicit truncation notice.
func AssembleContext(chunks []Chunk, maxLength int) string {
	if maxLength <= 0 {
		maxLength = defaultContextLength
	}
	if len(chunks) == 0 {
		return ""
	}
	sorted := append([]Chunk(nil), chunks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	// Group by file, preserving each file's best-score order.
	fileOrder := make([]string, 0)
	grouped := make(map[string][]Chunk)
	for _, chunk := range sorted {
		if _, ok := grouped[chunk.FilePath]; !ok {
			fileOrder = append(fileOrder, chunk.FilePath)
		}
		grouped[chunk.FilePath] = append(grouped[chunk.FilePath], chunk)
	}

	var builder strings.Builder
	truncated := false
	for _, file := range fileOrder {
		header := fmt.Sprintf("## %s\n\n", file)
		if builder.Len()+len(header) > maxLength {
			truncated = true
			break
		}
		builder.WriteString(header)
		for _, chunk := range grouped[file] {
			section := renderChunk(chunk)
			if builder.Len()+len(section) > maxLength {
				truncated = true
				break
			}
			builder.WriteString(section)
		}
		if truncated {
			break
		}
	}
	if truncated {
		builder.WriteString(truncationNotice)
	}
	return builder.String()
}

func renderChunk(chunk Chunk) string {
	lang := chunk.Language
	if lang == "" {
		lang = "text"
	}
	return fmt.Sprintf("### %s `%s` (lines %d-%d, relevance %.2f)\n\n```%s\n%s\n```\n\n",
		chunk.ChunkType, chunk.EntityName, chunk.StartLine, chunk.EndLine,
		chunk.Score, lang, strings.TrimRight(chunk.Content, "\n"))
}

// ContextForFeature retrieves code relevant to a feature description and
// assembles it with implementation suggestions and the touched files.
func (e *Engine) ContextForFeature(ctx context.Context, projectID, description string) FeatureContext {
	result := e.Retrieve(ctx, projectID, description, defaultMaxChunks, nil)
	if result.Error != "" {
		return FeatureContext{Error: result.Error}
	}
	return FeatureContext{
		Context:       AssembleContext(result.Chunks, defaultContextLength),
		Suggestions:   suggestionsFor(result.Chunks),
		RelevantFiles: relevantFiles(result.Chunks),
	}
}

// PRDContext is the combined Markdown document for a project
// description and its feature list. A repository that is not indexed
// yet sets Error instead; that is an expected caller-visible state.
type PRDContext struct {
	Context string `json:"context"`
	Error   string `json:"error,omitempty"`
}

// ContextForPRD builds one combined Markdown context document covering a
// project description and its feature list.
func (e *Engine) ContextForPRD(ctx context.Context, projectID, description string, features []string) PRDContext {
	var builder strings.Builder
	builder.WriteString("# Codebase Context\n\n")

	overall := e.Retrieve(ctx, projectID, description, defaultMaxChunks, nil)
	if overall.Error != "" {
		return PRDContext{Error: overall.Error}
	}
	if section := AssembleContext(overall.Chunks, defaultContextLength/2); section != "" {
		builder.WriteString("## Project Overview Matches\n\n")
		builder.WriteString(section)
	}

	perFeature := defaultContextLength / 2
	if len(features) > 0 {
		perFeature /= len(features)
	}
	for _, feature := range features {
		result := e.Retrieve(ctx, projectID, feature, 5, nil)
		section := AssembleContext(result.Chunks, perFeature)
		if section == "" {
			continue
		}
		fmt.Fprintf(&builder, "## Feature: %s\n\n", feature)
		builder.WriteString(section)
	}
	return PRDContext{Context: builder.String()}
}

func suggestionsFor(chunks []Chunk) []string {
	var suggestions []string
	byType := make(map[string]int)
	for _, chunk := range chunks {
		byType[chunk.ChunkType]++
	}
	if byType["function"]+byType["method"] > 0 {
		suggestions = append(suggestions,
			"Follow the signatures and error-handling conventions of the matched functions.")
	}
	if byType["class"] > 0 {
		suggestions = append(suggestions,
			"Extend the existing types shown above rather than introducing parallel ones.")
	}
	if files := relevantFiles(chunks); len(files) > 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("Start with %s; it holds the closest existing implementation.", files[0]))
	}
	return suggestions
}

func relevantFiles(chunks []Chunk) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, chunk := range chunks {
		if chunk.FilePath == "" {
			continue
		}
		if _, ok := seen[chunk.FilePath]; ok {
			continue
		}
		seen[chunk.FilePath] = struct{}{}
		files = append(files, chunk.FilePath)
	}
	return files
}
