// File path: internal/parser/pattern.go
package parser

import (
	"regexp"
	"strings"
)

// patternParser is the regex tier for languages without a structured parser
// (and the demotion target when the Go tier hits a syntax error). Signatures
// are detected with ordered patterns; block ends are found by indentation
// depth for indentation-significant syntax and by brace balance otherwise.
type patternParser struct {
	language    Language
	indentBased bool
	functions   []*regexp.Regexp
	classes     []*regexp.Regexp
	importRe    *regexp.Regexp
}

// Pattern captures: group 1 indent, group 2 entity name, optional group 3
// parameter list.
var patternProfiles = map[Language]*patternParser{
	LangPython: {
		language:    LangPython,
		indentBased: true,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*\(([^)]*)`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)class\s+(\w+)`),
		},
		importRe: regexp.MustCompile(`^\s*(?:from\s+([\w.]+)\s+import|import\s+([\w.]+))`),
	},
	LangJavaScript: {
		language: LangJavaScript,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*\(([^)]*)`),
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(([^)]*)\)\s*=>`),
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?function`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?class\s+(\w+)`),
		},
		importRe: regexp.MustCompile(`(?:^\s*import\s+.*?from\s+['"]([^'"]+)['"]|require\(\s*['"]([^'"]+)['"])`),
	},
	LangTypeScript: {
		language: LangTypeScript,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)\s*(?:<[^>]*>)?\s*\(([^)]*)`),
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(([^)]*)\)\s*(?::\s*[\w<>\[\],\s|]+)?\s*=>`),
			regexp.MustCompile(`^(\s*)(?:public|private|protected)\s+(?:async\s+)?(\w+)\s*\(([^)]*)`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:export\s+)?(?:default\s+)?(?:abstract\s+)?(?:class|interface)\s+(\w+)`),
		},
		importRe: regexp.MustCompile(`^\s*import\s+.*?from\s+['"]([^'"]+)['"]`),
	},
	LangJava: {
		language: LangJava,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|static|final|synchronized|abstract|native)\s+)+[\w<>\[\],.\s]+?\s+(\w+)\s*\(([^)]*)\)[^;]*$`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:(?:public|private|protected|static|final|abstract)\s+)*(?:class|interface|enum|record)\s+(\w+)`),
		},
		importRe: regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.]+(?:\.\*)?)\s*;`),
	},
	LangRuby: {
		language:    LangRuby,
		indentBased: true,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)def\s+(?:self\.)?(\w[\w?!]*)(?:\s*\(([^)]*))?`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:class|module)\s+(\w+)`),
		},
		importRe: regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
	},
	LangRust: {
		language: LangRust,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:pub(?:\([\w:]+\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+(\w+)\s*(?:<[^>]*>)?\s*\(([^)]*)`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)(?:pub(?:\([\w:]+\))?\s+)?(?:struct|trait|enum)\s+(\w+)`),
			regexp.MustCompile(`^(\s*)impl(?:\s*<[^>]*>)?\s+(\w+)`),
		},
		importRe: regexp.MustCompile(`^\s*use\s+([\w:]+)`),
	},
	LangGo: {
		language: LangGo,
		functions: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)func\s+(?:\([^)]+\)\s+)?(\w+)\s*\(([^)]*)`),
		},
		classes: []*regexp.Regexp{
			regexp.MustCompile(`^(\s*)type\s+(\w+)\s+(?:struct|interface)\b`),
		},
		importRe: regexp.MustCompile(`^\s*(?:import\s+)?"([^"]+)"`),
	},
}

func newPatternParser(lang Language) *patternParser {
	if profile, ok := patternProfiles[lang]; ok {
		return profile
	}
	return &patternParser{language: lang}
}

func (p *patternParser) Language() Language { return p.language }

// Parse never fails; a file with no matching signatures simply yields no
// semantic chunks and the caller appends the whole-file chunk.
func (p *patternParser) Parse(path, content string) (Result, bool) {
	lines := strings.Split(content, "\n")
	result := Result{Language: p.language, TotalLines: len(lines)}
	if content == "" {
		result.TotalLines = 0
		return result, true
	}

	if p.importRe != nil {
		for _, line := range lines {
			match := p.importRe.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			for _, group := range match[1:] {
				if group != "" {
					result.Imports = append(result.Imports, group)
					break
				}
			}
		}
	}

	type signature struct {
		kind   ChunkType
		name   string
		params []string
		indent int
	}
	for idx, line := range lines {
		var sig *signature
		for _, re := range p.classes {
			if match := re.FindStringSubmatch(line); match != nil {
				sig = &signature{kind: ChunkClass, name: match[2], indent: len(match[1])}
				break
			}
		}
		if sig == nil {
			for _, re := range p.functions {
				if match := re.FindStringSubmatch(line); match != nil {
					sig = &signature{
						kind:   ChunkFunction,
						name:   match[2],
						params: splitParams(paramGroup(match)),
						indent: len(match[1]),
					}
					break
				}
			}
		}
		if sig == nil {
			continue
		}
		start := idx + 1
		var end int
		if p.indentBased {
			end = indentBlockEnd(lines, idx, sig.indent)
		} else {
			end = braceBlockEnd(lines, idx)
		}
		block := sliceLines(lines, start, end)
		if sig.kind == ChunkFunction && sig.indent > 0 {
			// An indented function signature is a method on the enclosing
			// class for every profile in this tier.
			sig.kind = ChunkMethod
		}
		result.Chunks = append(result.Chunks, Chunk{
			Type:         sig.kind,
			Name:         sig.name,
			Content:      block,
			Preview:      makePreview(block),
			StartLine:    start,
			EndLine:      end,
			Parameters:   sig.params,
			Dependencies: capDependencies(result.Imports),
			Complexity:   classifyComplexity(block, tierPattern),
		})
		switch sig.kind {
		case ChunkClass:
			result.ClassesCount++
		default:
			result.FunctionsCount++
		}
	}
	return result, true
}

func paramGroup(match []string) string {
	if len(match) >= 4 {
		return match[3]
	}
	return ""
}

func splitParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	params := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		// Strip type annotations and defaults so only the identifier stays.
		if idx := strings.IndexAny(name, ":="); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		if fields := strings.Fields(name); len(fields) > 1 {
			name = fields[len(fields)-1]
		}
		name = strings.TrimLeft(name, "*&")
		if name != "" {
			params = append(params, name)
		}
	}
	return params
}

func capDependencies(imports []string) []string {
	if len(imports) == 0 {
		return nil
	}
	capped := imports
	if len(capped) > maxDependenciesKept {
		capped = capped[:maxDependenciesKept]
	}
	return append([]string(nil), capped...)
}

// indentBlockEnd scans forward until indentation returns to the opening
// level, treating trailing blank lines as outside the block.
func indentBlockEnd(lines []string, startIdx, indent int) int {
	end := startIdx + 1
	for i := startIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if leadingWhitespace(line) <= indent {
			break
		}
		end = i + 1
	}
	return end
}

// braceBlockEnd scans forward tracking brace balance until the block that
// opened on (or shortly after) the signature line closes.
func braceBlockEnd(lines []string, startIdx int) int {
	depth := 0
	opened := false
	for i := startIdx; i < len(lines); i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i + 1
		}
		// Signatures that never open a brace (interface methods,
		// one-line arrows) end on their own line.
		if !opened && i > startIdx+2 {
			return startIdx + 1
		}
	}
	return len(lines)
}

func leadingWhitespace(line string) int {
	count := 0
	for _, ch := range line {
		switch ch {
		case ' ':
			count++
		case '\t':
			count += 4
		default:
			return count
		}
	}
	return count
}
