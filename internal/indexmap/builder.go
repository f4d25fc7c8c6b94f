// File path: internal/indexmap/builder.go
package indexmap

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/parser"
)

// maxKeywords caps the keyword set stored per entry; the index trades
// recall for speed and a handful of identifier fragments is enough.
const maxKeywords = 10

// Store is the slice of the catalog the index builder needs. Lookups go
// through the catalog directly; the builder only writes.
type Store interface {
	ReplaceIndexEntries(ctx context.Context, repoID, filePath string, entries []catalog.IndexMapEntry) error
}

// Builder rebuilds the structured lookup index from stored chunks.
type Builder struct {
	store Store
}

func NewBuilder(store Store) *Builder {
	return &Builder{store: store}
}

// Rebuild drops all index entries for the file and derives a fresh set
// from its chunk rows. The whole-file chunk is skipped when the parser
// produced finer-grained chunks for the same file.
func (b *Builder) Rebuild(ctx context.Context, repoID, filePath string, language parser.Language, chunks []catalog.CodeChunk) error {
	if b == nil || b.store == nil {
		return fmt.Errorf("index builder not configured")
	}
	entries := BuildEntries(repoID, filePath, language, chunks)
	if err := b.store.ReplaceIndexEntries(ctx, repoID, filePath, entries); err != nil {
		return fmt.Errorf("rebuild index for %s: %w", filePath, err)
	}
	return nil
}

// BuildEntries converts chunk rows into denormalized index entries.
// Whole-file chunks are redundant only when finer-grained chunks cover
// the same file; a file split into nothing but file segments keeps them
// all, otherwise it would vanish from the index entirely.
func BuildEntries(repoID, filePath string, language parser.Language, chunks []catalog.CodeChunk) []catalog.IndexMapEntry {
	var finer bool
	for _, chunk := range chunks {
		if parser.ChunkType(chunk.ChunkType) != parser.ChunkFile {
			finer = true
			break
		}
	}
	entries := make([]catalog.IndexMapEntry, 0, len(chunks))
	for _, chunk := range chunks {
		if finer && parser.ChunkType(chunk.ChunkType) == parser.ChunkFile {
			continue
		}
		entries = append(entries, catalog.IndexMapEntry{
			RepoID:        repoID,
			FilePath:      filePath,
			EntityName:    chunk.EntityName,
			QualifiedName: QualifiedName(filePath, chunk.EntityName),
			EntityType:    chunk.ChunkType,
			Language:      string(language),
			StartLine:     chunk.StartLine,
			EndLine:       chunk.EndLine,
			Keywords:      strings.Join(Keywords(chunk.EntityName, filePath), " "),
			Parameters:    chunk.Parameters,
			Dependencies:  chunk.Dependencies,
			Complexity:    chunk.Complexity,
			Description:   chunk.Description,
			ChunkID:       chunk.ID,
		})
	}
	return entries
}

// QualifiedName joins the file path and entity name module-path-style:
// the extension is dropped and the entity appended with a dot, so
// "auth/login.go" + "HandleLogin" becomes "auth/login.HandleLogin".
func QualifiedName(filePath, entityName string) string {
	base := strings.TrimSuffix(filePath, path.Ext(filePath))
	if entityName == "" || entityName == path.Base(filePath) {
		return base
	}
	return base + "." + entityName
}

// Keywords tokenizes identifiers into lower-cased fragments split on
// case and underscore boundaries, deduplicated and capped.
func Keywords(identifiers ...string) []string {
	seen := make(map[string]struct{})
	keywords := make([]string, 0, maxKeywords)
	for _, ident := range identifiers {
		for _, frag := range splitIdentifier(ident) {
			if len(frag) < 2 {
				continue
			}
			if _, ok := seen[frag]; ok {
				continue
			}
			seen[frag] = struct{}{}
			keywords = append(keywords, frag)
			if len(keywords) >= maxKeywords {
				return keywords
			}
		}
	}
	return keywords
}

func splitIdentifier(ident string) []string {
	var frags []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			frags = append(frags, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	runes := []rune(ident)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '/' || r == '\\' || r == '.' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			// A lower-to-upper transition starts a new fragment; an
			// upper-to-lower transition ends an acronym run (HTTPServer
			// splits into "http" and "server").
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') ||
					(prev >= 'A' && prev <= 'Z' && next >= 'a' && next <= 'z') {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return frags
}
