package domain

import (
	"fmt"
	"time"
)

// VersionStatus captures lifecycle of a dataset version.
type VersionStatus string

const (
	VersionPending VersionStatus = "pending"
	VersionReady   VersionStatus = "ready"
	VersionFailed  VersionStatus = "failed"
)

// DatasetVersion is the durable record of one registered upload. Records are
// inserted before ingestion runs and are never deleted; only Status changes.
type DatasetVersion struct {
	DatasetID string
	VersionID string
	UserID    string
	FilePath  string
	Status    VersionStatus
	CreatedAt time.Time
}

// TableName returns the per-version table name inside the user's warehouse.
func (v DatasetVersion) TableName() string {
	return TableName(v.DatasetID, v.VersionID)
}

// TableName derives the deterministic table name for a dataset version.
func TableName(datasetID, versionID string) string {
	return fmt.Sprintf("%s_v%s", datasetID, versionID)
}

// Column is one inferred column of a materialized table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// UploadResponse acknowledges one received chunk.
type UploadResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	DatasetID    string `json:"dataset_id"`
	VersionID    string `json:"version_id,omitempty"`
	IsFinalChunk bool   `json:"is_final_chunk"`
}

// VersionResponse describes a dataset version over the API.
type VersionResponse struct {
	DatasetID string        `json:"dataset_id"`
	VersionID string        `json:"version_id"`
	UserID    string        `json:"user_id"`
	FilePath  string        `json:"file_path"`
	Status    VersionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// QueryRequest is a natural-language question about a dataset.
type QueryRequest struct {
	DatasetID string `json:"dataset_id"`
	Question  string `json:"question"`
	VersionID string `json:"version_id,omitempty"`
	UserID    string `json:"user_id"`
}

// TablePreview carries the first rows of a query result.
type TablePreview struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"total_rows"`
}

// QueryResponse is the answer to a natural-language question.
type QueryResponse struct {
	Answer       string       `json:"answer"`
	RawAnswer    string       `json:"raw_answer,omitempty"`
	GeneratedSQL string       `json:"generated_sql"`
	Preview      TablePreview `json:"preview"`
}

// QueryLog is one executed question recorded for history.
type QueryLog struct {
	DatasetID    string    `json:"dataset_id"`
	VersionID    string    `json:"version_id"`
	UserID       string    `json:"user_id,omitempty"`
	Question     string    `json:"question"`
	GeneratedSQL string    `json:"generated_sql"`
	RowCount     int       `json:"row_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// QueryHistory is the recorded questions for one dataset.
type QueryHistory struct {
	Queries    []QueryLog `json:"queries"`
	TotalCount int        `json:"total_count"`
}
