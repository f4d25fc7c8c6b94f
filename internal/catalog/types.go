// File path: internal/catalog/types.go
package catalog

import (
	"time"
)

// RepoStatus is the indexing state machine for a repository. The only
// transition into paused is an explicit operator action.
type RepoStatus string

const (
	RepoPending   RepoStatus = "pending"
	RepoIndexing  RepoStatus = "indexing"
	RepoCompleted RepoStatus = "completed"
	RepoError     RepoStatus = "error"
	RepoPaused    RepoStatus = "paused"
)

// FileStatus tracks one file through an indexing pass.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileIndexed    FileStatus = "indexed"
	FileError      FileStatus = "error"
	FileSkipped    FileStatus = "skipped"
)

// JobKind identifies what a background run does.
type JobKind string

const (
	JobFull        JobKind = "full"
	JobIncremental JobKind = "incremental"
	JobCleanup     JobKind = "cleanup"
)

// JobStatus is terminal once the run ends.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Repository is the indexing target owned by exactly one project.
type Repository struct {
	ID                string     `db:"id" json:"id"`
	ProjectID         string     `db:"project_id" json:"project_id"`
	RepoURL           string     `db:"repo_url" json:"repo_url"`
	Owner             string     `db:"owner" json:"owner"`
	Name              string     `db:"name" json:"name"`
	Branch            string     `db:"branch" json:"branch"`
	Status            RepoStatus `db:"status" json:"status"`
	LastIndexedCommit string     `db:"last_indexed_commit" json:"last_indexed_commit,omitempty"`
	FileCount         int        `db:"file_count" json:"file_count"`
	ChunkCount        int        `db:"chunk_count" json:"chunk_count"`
	Extensions        string     `db:"extensions" json:"extensions,omitempty"`
	ExcludePatterns   string     `db:"exclude_patterns" json:"exclude_patterns,omitempty"`
	MaxFileSizeKB     int        `db:"max_file_size_kb" json:"max_file_size_kb"`
	DetectedStack     string     `db:"detected_stack" json:"detected_stack,omitempty"`
	Summary           string     `db:"summary" json:"summary,omitempty"`
	ErrorMessage      string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IndexedFile is one source file under a repository, unique per
// (repository, file_path).
type IndexedFile struct {
	ID          int64      `db:"id" json:"id"`
	RepoID      string     `db:"repo_id" json:"repo_id"`
	FilePath    string     `db:"file_path" json:"file_path"`
	Extension   string     `db:"extension" json:"extension"`
	SizeBytes   int64      `db:"size_bytes" json:"size_bytes"`
	ContentHash string     `db:"content_hash" json:"content_hash"`
	Language    string     `db:"language" json:"language"`
	Status      FileStatus `db:"status" json:"status"`
	LastCommit  string     `db:"last_commit" json:"last_commit,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CodeChunk is owned exclusively by its file; reparsing the file replaces
// the whole set.
type CodeChunk struct {
	ID              int64     `db:"id" json:"id"`
	FileID          int64     `db:"file_id" json:"file_id"`
	RepoID          string    `db:"repo_id" json:"repo_id"`
	ChunkType       string    `db:"chunk_type" json:"chunk_type"`
	EntityName      string    `db:"entity_name" json:"entity_name"`
	Content         string    `db:"content" json:"content"`
	Preview         string    `db:"preview" json:"preview"`
	StartLine       int       `db:"start_line" json:"start_line"`
	EndLine         int       `db:"end_line" json:"end_line"`
	Complexity      string    `db:"complexity" json:"complexity"`
	Dependencies    string    `db:"dependencies" json:"dependencies,omitempty"`
	Parameters      string    `db:"parameters" json:"parameters,omitempty"`
	Description     string    `db:"description" json:"description,omitempty"`
	EmbeddingID     string    `db:"embedding_id" json:"embedding_id"`
	EmbeddingStored bool      `db:"embedding_stored" json:"embedding_stored"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// IndexMapEntry is the denormalized fast-lookup record mirroring one chunk.
// It is always derivable by reparsing, so dropping and rebuilding the set
// for a file is safe.
type IndexMapEntry struct {
	ID            int64  `db:"id" json:"id"`
	RepoID        string `db:"repo_id" json:"repo_id"`
	FilePath      string `db:"file_path" json:"file_path"`
	EntityName    string `db:"entity_name" json:"entity_name"`
	QualifiedName string `db:"qualified_name" json:"qualified_name"`
	EntityType    string `db:"entity_type" json:"entity_type"`
	Language      string `db:"language" json:"language"`
	StartLine     int    `db:"start_line" json:"start_line"`
	EndLine       int    `db:"end_line" json:"end_line"`
	Keywords      string `db:"keywords" json:"keywords,omitempty"`
	Parameters    string `db:"parameters" json:"parameters,omitempty"`
	Dependencies  string `db:"dependencies" json:"dependencies,omitempty"`
	Complexity    string `db:"complexity" json:"complexity"`
	Description   string `db:"description" json:"description,omitempty"`
	ChunkID       int64  `db:"chunk_id" json:"chunk_id,omitempty"`
}

// IndexingJob is the audit record for one orchestration run.
type IndexingJob struct {
	ID             string     `db:"id" json:"id"`
	RepoID         string     `db:"repo_id" json:"repo_id"`
	Kind           JobKind    `db:"kind" json:"kind"`
	Status         JobStatus  `db:"status" json:"status"`
	ProcessedFiles int        `db:"processed_files" json:"processed_files"`
	TotalFiles     int        `db:"total_files" json:"total_files"`
	ErrorCount     int        `db:"error_count" json:"error_count"`
	Message        string     `db:"message" json:"message,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// RepositoryMetadata holds derived repository-wide analytics, recomputed
// wholesale after each successful run.
type RepositoryMetadata struct {
	RepoID               string    `db:"repo_id" json:"repo_id"`
	PrimaryLanguage      string    `db:"primary_language" json:"primary_language"`
	LanguageDistribution string    `db:"language_distribution" json:"language_distribution"`
	FunctionCount        int       `db:"function_count" json:"function_count"`
	ClassCount           int       `db:"class_count" json:"class_count"`
	DependencyFrequency  string    `db:"dependency_frequency" json:"dependency_frequency"`
	DocCoverage          float64   `db:"doc_coverage" json:"doc_coverage"`
	AvgComplexity        float64   `db:"avg_complexity" json:"avg_complexity"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
