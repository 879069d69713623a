package worker

import (
	"context"

	"docquery/internal/document"
)

// IngestTask is the payload published to the document.ingest topic.
type IngestTask struct {
	DocumentID    string `json:"document_id"`
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// TextExtractor produces a single raw text blob per stored file.
type TextExtractor interface {
	Extract(path string) (string, error)
}

// Splitter cuts extracted text into the document's chunk sequence.
type Splitter interface {
	Split(text string) []string
}

// ChunkStore persists a split document's chunks.
type ChunkStore interface {
	AddDocument(ctx context.Context, chunks []string, metas []document.Metadata, filename string, content []byte) (int, error)
}

// DocumentUpdater records ingestion outcomes on the registry.
type DocumentUpdater interface {
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id, reason string) error
}
