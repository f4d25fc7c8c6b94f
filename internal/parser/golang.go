// File path: internal/parser/golang.go
package parser

import (
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"
)

// goParser is the structured tier for Go sources. Line spans, parameter
// lists, and imports come straight from the syntax tree, so they are exact.
type goParser struct{}

func newGoParser() *goParser { return &goParser{} }

func (g *goParser) Language() Language { return LangGo }

func (g *goParser) Parse(path, content string) (Result, bool) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil || file == nil {
		return Result{Language: LangGo, TotalLines: countLines(content)}, false
	}

	result := Result{Language: LangGo, TotalLines: countLines(content)}
	lines := strings.Split(content, "\n")

	for _, imp := range file.Imports {
		result.Imports = append(result.Imports, strings.Trim(imp.Path.Value, `"`))
	}
	if len(file.Imports) > 0 {
		start := fset.Position(file.Imports[0].Pos()).Line
		end := fset.Position(file.Imports[len(file.Imports)-1].End()).Line
		block := sliceLines(lines, start, end)
		result.Chunks = append(result.Chunks, Chunk{
			Type:         ChunkImports,
			Name:         "imports",
			Content:      block,
			Preview:      makePreview(block),
			StartLine:    start,
			EndLine:      end,
			Dependencies: append([]string(nil), result.Imports...),
			Complexity:   ComplexityLow,
		})
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			start := fset.Position(d.Pos()).Line
			if d.Doc != nil {
				start = fset.Position(d.Doc.Pos()).Line
			}
			end := fset.Position(d.End()).Line
			block := sliceLines(lines, start, end)
			chunk := Chunk{
				Type:         ChunkFunction,
				Name:         d.Name.Name,
				Content:      block,
				Preview:      makePreview(block),
				StartLine:    start,
				EndLine:      end,
				Parameters:   goParamNames(d.Type.Params),
				Dependencies: goCallTargets(d),
				Complexity:   classifyComplexity(block, tierStructured),
				Description:  firstCommentLine(d.Doc),
			}
			if d.Recv != nil && len(d.Recv.List) > 0 {
				chunk.Type = ChunkMethod
				chunk.Name = goReceiverName(d.Recv.List[0].Type) + "." + d.Name.Name
			}
			result.Chunks = append(result.Chunks, chunk)
			result.FunctionsCount++
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				switch ts.Type.(type) {
				case *ast.StructType, *ast.InterfaceType:
				default:
					continue
				}
				start := fset.Position(d.Pos()).Line
				if d.Doc != nil {
					start = fset.Position(d.Doc.Pos()).Line
				}
				end := fset.Position(d.End()).Line
				block := sliceLines(lines, start, end)
				result.Chunks = append(result.Chunks, Chunk{
					Type:        ChunkClass,
					Name:        ts.Name.Name,
					Content:     block,
					Preview:     makePreview(block),
					StartLine:   start,
					EndLine:     end,
					Complexity:  classifyComplexity(block, tierStructured),
					Description: firstCommentLine(d.Doc),
				})
				result.ClassesCount++
			}
		}
	}
	return result, true
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

func goParamNames(params *ast.FieldList) []string {
	if params == nil {
		return nil
	}
	var names []string
	for _, field := range params.List {
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
	}
	return names
}

// goCallTargets collects the distinct identifiers invoked inside a function
// body, capped so one sprawling function cannot dominate the dependency list.
func goCallTargets(decl *ast.FuncDecl) []string {
	if decl.Body == nil {
		return nil
	}
	seen := make(map[string]struct{})
	ast.Inspect(decl.Body, func(node ast.Node) bool {
		call, ok := node.(*ast.CallExpr)
		if !ok {
			return true
		}
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			seen[fn.Name] = struct{}{}
		case *ast.SelectorExpr:
			if ident, ok := fn.X.(*ast.Ident); ok {
				seen[ident.Name+"."+fn.Sel.Name] = struct{}{}
			} else {
				seen[fn.Sel.Name] = struct{}{}
			}
		}
		return true
	})
	if len(seen) == 0 {
		return nil
	}
	targets := make([]string, 0, len(seen))
	for name := range seen {
		targets = append(targets, name)
	}
	sort.Strings(targets)
	if len(targets) > maxDependenciesKept {
		targets = targets[:maxDependenciesKept]
	}
	return targets
}

func goReceiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return goReceiverName(t.X)
	case *ast.IndexExpr:
		return goReceiverName(t.X)
	default:
		return "receiver"
	}
}

func firstCommentLine(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	text := strings.TrimSpace(doc.Text())
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		text = text[:idx]
	}
	return text
}
