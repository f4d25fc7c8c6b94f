// File path: internal/catalog/indexmap.go
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ReplaceIndexEntries drops every index-map row for the file and inserts the
// rebuilt set. Entries are derivable from a reparse, so losing them is never
// a correctness matter.
func (s *Store) ReplaceIndexEntries(ctx context.Context, repoID, filePath string, entries []IndexMapEntry) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM index_map WHERE repo_id = ? AND file_path = ?`, repoID, filePath); err != nil {
			return fmt.Errorf("delete index entries: %w", err)
		}
		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO index_map
                                 (repo_id, file_path, entity_name, qualified_name, entity_type, language,
                                  start_line, end_line, keywords, parameters, dependencies, complexity,
                                  description, chunk_id)
                                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                                 ON CONFLICT(repo_id, file_path, entity_name, start_line) DO UPDATE SET
                                     qualified_name = excluded.qualified_name,
                                     entity_type = excluded.entity_type,
                                     language = excluded.language,
                                     end_line = excluded.end_line,
                                     keywords = excluded.keywords,
                                     parameters = excluded.parameters,
                                     dependencies = excluded.dependencies,
                                     complexity = excluded.complexity,
                                     description = excluded.description,
                                     chunk_id = excluded.chunk_id`,
				repoID, filePath, entry.EntityName, entry.QualifiedName, entry.EntityType,
				entry.Language, entry.StartLine, entry.EndLine, entry.Keywords,
				entry.Parameters, entry.Dependencies, entry.Complexity, entry.Description,
				entry.ChunkID); err != nil {
				return fmt.Errorf("insert index entry %s: %w", entry.EntityName, err)
			}
		}
		return nil
	})
}

// IndexSearchFilter narrows a lexical search.
type IndexSearchFilter struct {
	EntityTypes []string
	Languages   []string
	Limit       int
}

// SearchIndexEntries runs the lexical lookup: every query token must match
// at least one of entity name, description, keywords, or file path
// (case-insensitive), optionally narrowed by entity type and language.
func (s *Store) SearchIndexEntries(ctx context.Context, repoID, query string, filter IndexSearchFilter) ([]IndexMapEntry, error) {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(tokens) == 0 {
		return nil, nil
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var (
		clauses []string
		args    []interface{}
	)
	clauses = append(clauses, "repo_id = ?")
	args = append(args, repoID)
	for _, token := range tokens {
		like := "%" + token + "%"
		clauses = append(clauses,
			`(LOWER(entity_name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(keywords) LIKE ? OR LOWER(file_path) LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	sqlQuery := `SELECT * FROM index_map WHERE ` + strings.Join(clauses, " AND ")
	if len(filter.EntityTypes) > 0 {
		sqlQuery += ` AND entity_type IN (?)`
	}
	if len(filter.Languages) > 0 {
		sqlQuery += ` AND language IN (?)`
	}
	sqlQuery += ` ORDER BY entity_name LIMIT ?`

	inArgs := args
	if len(filter.EntityTypes) > 0 {
		inArgs = append(inArgs, filter.EntityTypes)
	}
	if len(filter.Languages) > 0 {
		inArgs = append(inArgs, filter.Languages)
	}
	inArgs = append(inArgs, limit)

	expanded, expandedArgs, err := sqlx.In(sqlQuery, inArgs...)
	if err != nil {
		return nil, fmt.Errorf("build index search: %w", err)
	}
	var entries []IndexMapEntry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(expanded), expandedArgs...); err != nil {
		return nil, fmt.Errorf("search index entries: %w", err)
	}
	return entries, nil
}

// CountIndexEntries returns the index-map row count for a repository.
func (s *Store) CountIndexEntries(ctx context.Context, repoID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM index_map WHERE repo_id = ?`, repoID); err != nil {
		return 0, fmt.Errorf("count index entries: %w", err)
	}
	return count, nil
}
