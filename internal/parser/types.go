// File path: internal/parser/types.go
package parser

// Language is the closed set of languages the parser understands. Anything
// outside the set degrades to LangGeneric and whole-file chunking.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangRuby       Language = "ruby"
	LangRust       Language = "rust"
	LangGeneric    Language = "generic"
)

// ChunkType classifies a semantic unit extracted from a source file.
type ChunkType string

const (
	ChunkFile     ChunkType = "file"
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
	ChunkMethod   ChunkType = "method"
	ChunkImports  ChunkType = "imports"
)

// Complexity is a coarse two-factor classification based on line count and
// branching-keyword density. It is an approximation, not a cyclomatic
// complexity measurement.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Chunk is one semantic unit of a parsed file together with the metadata the
// index builder and embedding generator need.
type Chunk struct {
	Type         ChunkType  `json:"type"`
	Name         string     `json:"name"`
	Content      string     `json:"content"`
	Preview      string     `json:"preview"`
	StartLine    int        `json:"start_line"`
	EndLine      int        `json:"end_line"`
	Parameters   []string   `json:"parameters,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Complexity   Complexity `json:"complexity"`
	Description  string     `json:"description,omitempty"`
}

// Result is the outcome of parsing one file. Parsing never fails hard: the
// worst case is a single whole-file chunk.
type Result struct {
	Language       Language `json:"language"`
	TotalLines     int      `json:"total_lines"`
	Chunks         []Chunk  `json:"chunks"`
	FunctionsCount int      `json:"functions_count"`
	ClassesCount   int      `json:"classes_count"`
	Imports        []string `json:"imports,omitempty"`
}
