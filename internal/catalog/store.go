// File path: internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps a pooled sqlx.DB connection to the SQLite catalog.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided
// path. The schema is migrated on first use.
func Open(path string) (*Store, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		cfg.Path = trimmed
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig constructs a Store using the provided configuration.
// Zero-valued fields fall back to the defaults, so Config{Path: p} is a
// complete configuration.
func OpenWithConfig(cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("catalog path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("catalog store not initialised")
	}
	// Journal-mode changes are refused inside a transaction, so the
	// pragmas run on the bare connection before the DDL tx.
	for _, stmt := range pragmaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var pragmaStatements = []string{
	`PRAGMA journal_mode = WAL;`,
	`PRAGMA foreign_keys = ON;`,
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
                id TEXT PRIMARY KEY,
                project_id TEXT NOT NULL UNIQUE,
                repo_url TEXT NOT NULL,
                owner TEXT NOT NULL DEFAULT '',
                name TEXT NOT NULL DEFAULT '',
                branch TEXT NOT NULL DEFAULT 'main',
                status TEXT NOT NULL DEFAULT 'pending',
                last_indexed_commit TEXT NOT NULL DEFAULT '',
                file_count INTEGER NOT NULL DEFAULT 0,
                chunk_count INTEGER NOT NULL DEFAULT 0,
                extensions TEXT NOT NULL DEFAULT '',
                exclude_patterns TEXT NOT NULL DEFAULT '',
                max_file_size_kb INTEGER NOT NULL DEFAULT 500,
                detected_stack TEXT NOT NULL DEFAULT '',
                summary TEXT NOT NULL DEFAULT '',
                error_message TEXT NOT NULL DEFAULT '',
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS indexed_files (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                repo_id TEXT NOT NULL,
                file_path TEXT NOT NULL,
                extension TEXT NOT NULL DEFAULT '',
                size_bytes INTEGER NOT NULL DEFAULT 0,
                content_hash TEXT NOT NULL DEFAULT '',
                language TEXT NOT NULL DEFAULT '',
                status TEXT NOT NULL DEFAULT 'pending',
                last_commit TEXT NOT NULL DEFAULT '',
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(repo_id) REFERENCES repositories(id) ON DELETE CASCADE,
                UNIQUE(repo_id, file_path)
        );`,
	`CREATE TABLE IF NOT EXISTS code_chunks (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                file_id INTEGER NOT NULL,
                repo_id TEXT NOT NULL,
                chunk_type TEXT NOT NULL,
                entity_name TEXT NOT NULL DEFAULT '',
                content TEXT NOT NULL DEFAULT '',
                preview TEXT NOT NULL DEFAULT '',
                start_line INTEGER NOT NULL DEFAULT 0,
                end_line INTEGER NOT NULL DEFAULT 0,
                complexity TEXT NOT NULL DEFAULT 'low',
                dependencies TEXT NOT NULL DEFAULT '',
                parameters TEXT NOT NULL DEFAULT '',
                description TEXT NOT NULL DEFAULT '',
                embedding_id TEXT NOT NULL DEFAULT '',
                embedding_stored INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(file_id) REFERENCES indexed_files(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS index_map (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                repo_id TEXT NOT NULL,
                file_path TEXT NOT NULL,
                entity_name TEXT NOT NULL,
                qualified_name TEXT NOT NULL DEFAULT '',
                entity_type TEXT NOT NULL DEFAULT '',
                language TEXT NOT NULL DEFAULT '',
                start_line INTEGER NOT NULL DEFAULT 0,
                end_line INTEGER NOT NULL DEFAULT 0,
                keywords TEXT NOT NULL DEFAULT '',
                parameters TEXT NOT NULL DEFAULT '',
                dependencies TEXT NOT NULL DEFAULT '',
                complexity TEXT NOT NULL DEFAULT 'low',
                description TEXT NOT NULL DEFAULT '',
                chunk_id INTEGER NOT NULL DEFAULT 0,
                FOREIGN KEY(repo_id) REFERENCES repositories(id) ON DELETE CASCADE,
                UNIQUE(repo_id, file_path, entity_name, start_line)
        );`,
	`CREATE TABLE IF NOT EXISTS indexing_jobs (
                id TEXT PRIMARY KEY,
                repo_id TEXT NOT NULL,
                kind TEXT NOT NULL,
                status TEXT NOT NULL DEFAULT 'queued',
                processed_files INTEGER NOT NULL DEFAULT 0,
                total_files INTEGER NOT NULL DEFAULT 0,
                error_count INTEGER NOT NULL DEFAULT 0,
                message TEXT NOT NULL DEFAULT '',
                started_at DATETIME,
                completed_at DATETIME,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(repo_id) REFERENCES repositories(id) ON DELETE CASCADE
        );`,
	`CREATE TABLE IF NOT EXISTS repository_metadata (
                repo_id TEXT PRIMARY KEY,
                primary_language TEXT NOT NULL DEFAULT '',
                language_distribution TEXT NOT NULL DEFAULT '{}',
                function_count INTEGER NOT NULL DEFAULT 0,
                class_count INTEGER NOT NULL DEFAULT 0,
                dependency_frequency TEXT NOT NULL DEFAULT '{}',
                doc_coverage REAL NOT NULL DEFAULT 0,
                avg_complexity REAL NOT NULL DEFAULT 0,
                updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
                FOREIGN KEY(repo_id) REFERENCES repositories(id) ON DELETE CASCADE
        );`,
	`CREATE INDEX IF NOT EXISTS idx_files_repo ON indexed_files(repo_id);`,
	`CREATE INDEX IF NOT EXISTS idx_files_repo_status ON indexed_files(repo_id, status);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_file ON code_chunks(file_id);`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_repo_pending ON code_chunks(repo_id, embedding_stored);`,
	`CREATE INDEX IF NOT EXISTS idx_index_map_repo ON index_map(repo_id);`,
	`CREATE INDEX IF NOT EXISTS idx_index_map_entity ON index_map(repo_id, entity_name);`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_repo_created ON indexing_jobs(repo_id, created_at);`,
}
