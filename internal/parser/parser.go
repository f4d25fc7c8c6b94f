// File path: internal/parser/parser.go
package parser

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/lfg-hq/codeindex/internal/common"
)

const (
	previewLength = 200

	// Whole-file chunks beyond this size are split into segments so a
	// single oversized file cannot blow the embedding token ceiling.
	maxFileChunkChars   = 8000
	fileSegmentSize     = 4000
	fileSegmentOverlap  = 200
	maxDependenciesKept = 20
)

type languageParser interface {
	Language() Language
	Parse(path, content string) (Result, bool)
}

// Parser dispatches files to language-specific implementations. The set of
// languages is closed; unknown extensions take the generic whole-file path.
type Parser struct {
	byExtension map[string]Language
	parsers     map[Language]languageParser
	fallback    *patternParser
}

func New() *Parser {
	p := &Parser{
		byExtension: map[string]Language{
			".go":   LangGo,
			".py":   LangPython,
			".js":   LangJavaScript,
			".jsx":  LangJavaScript,
			".mjs":  LangJavaScript,
			".ts":   LangTypeScript,
			".tsx":  LangTypeScript,
			".java": LangJava,
			".rb":   LangRuby,
			".rs":   LangRust,
		},
		parsers: map[Language]languageParser{},
	}
	p.register(newGoParser())
	for _, lang := range []Language{LangPython, LangJavaScript, LangTypeScript, LangJava, LangRuby, LangRust} {
		p.register(newPatternParser(lang))
	}
	return p
}

func (p *Parser) register(lp languageParser) {
	p.parsers[lp.Language()] = lp
}

// Detect maps a file path to a supported language.
func (p *Parser) Detect(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := p.byExtension[ext]; ok {
		return lang
	}
	return LangGeneric
}

// Parse splits a file into semantic chunks. The structured tier is tried
// first where one exists; syntax errors demote the file to the pattern tier,
// and unknown languages fall through to a single whole-file chunk. Parse
// never returns an error.
func (p *Parser) Parse(path, content string) Result {
	lang := p.Detect(path)
	if lp, ok := p.parsers[lang]; ok {
		result, ok := lp.Parse(path, content)
		if !ok && lang == LangGo {
			// Structured parse failed; degrade to the pattern tier with
			// the same brace-tracking rules the other languages use.
			common.Logger().Debug("parser: structured parse failed, using pattern tier", "path", path)
			result, _ = newPatternParser(LangGo).Parse(path, content)
		}
		result = appendFileChunks(result, path, content)
		return result
	}
	result := Result{Language: LangGeneric, TotalLines: countLines(content)}
	return appendFileChunks(result, path, content)
}

// appendFileChunks adds whole-file coverage chunks. When the file produced
// no semantic chunks the file chunk is the only one; oversized files are
// split into segments via the recursive character splitter.
func appendFileChunks(result Result, path, content string) Result {
	if strings.TrimSpace(content) == "" {
		return result
	}
	total := countLines(content)
	if result.TotalLines == 0 {
		result.TotalLines = total
	}
	name := filepath.Base(path)
	if len(content) <= maxFileChunkChars {
		result.Chunks = append(result.Chunks, Chunk{
			Type:       ChunkFile,
			Name:       name,
			Content:    content,
			Preview:    makePreview(content),
			StartLine:  1,
			EndLine:    total,
			Complexity: classifyComplexity(content, tierGeneric),
		})
		return result
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(fileSegmentSize),
		textsplitter.WithChunkOverlap(fileSegmentOverlap),
	)
	segments, err := splitter.SplitText(content)
	if err != nil || len(segments) == 0 {
		segments = []string{content[:maxFileChunkChars]}
	}
	line := 1
	for idx, segment := range segments {
		span := countLines(segment)
		end := line + span - 1
		if end > total {
			end = total
		}
		result.Chunks = append(result.Chunks, Chunk{
			Type:        ChunkFile,
			Name:        name,
			Content:     segment,
			Preview:     makePreview(segment),
			StartLine:   line,
			EndLine:     end,
			Complexity:  classifyComplexity(segment, tierGeneric),
			Description: "file segment " + strconv.Itoa(idx+1),
		})
		line = end + 1
		if line > total {
			line = total
		}
	}
	return result
}

func makePreview(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= previewLength {
		return trimmed
	}
	return trimmed[:previewLength]
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}
