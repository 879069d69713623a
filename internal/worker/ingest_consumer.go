package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"

	"docquery/internal/document"
	"docquery/internal/middleware"
)

// ingestTimeout bounds one full extract-chunk-embed-store pass. Embedding
// is one external call per chunk, so large documents take a while.
const ingestTimeout = 10 * time.Minute

// IngestConsumer processes document.ingest tasks: read the stored file,
// extract its text, split it, and hand the chunks to the store. Running
// this on an NSQ channel keeps the per-chunk embedding cost off the
// upload request path.
type IngestConsumer struct {
	extractor TextExtractor
	splitter  Splitter
	store     ChunkStore
	docs      DocumentUpdater
}

func NewIngestConsumer(extractor TextExtractor, splitter Splitter, store ChunkStore, docs DocumentUpdater) *IngestConsumer {
	return &IngestConsumer{
		extractor: extractor,
		splitter:  splitter,
		store:     store,
		docs:      docs,
	}
}

func (c *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IngestTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	return c.process(ctx, task)
}

func (c *IngestConsumer) process(ctx context.Context, task IngestTask) error {
	content, err := os.ReadFile(filepath.Clean(task.Path))
	if err != nil {
		// The stored file is gone; retrying won't bring it back.
		slog.ErrorContext(ctx, "failed to read uploaded file", "error", err, "path", task.Path, "document_id", task.DocumentID)
		c.markFailed(ctx, task.DocumentID, "stored file unreadable: "+err.Error())
		return nil
	}

	text, err := c.extractor.Extract(task.Path)
	if err != nil {
		// Malformed source document, not a transient failure.
		slog.ErrorContext(ctx, "text extraction failed", "error", err, "filename", task.Filename, "document_id", task.DocumentID)
		c.markFailed(ctx, task.DocumentID, "extraction failed: "+err.Error())
		return nil
	}

	if strings.TrimSpace(text) == "" {
		slog.WarnContext(ctx, "no text extracted from document", "filename", task.Filename, "document_id", task.DocumentID)
		c.markFailed(ctx, task.DocumentID, "no extractable text")
		return nil
	}

	chunks := c.splitter.Split(text)
	metas := document.BuildMetadata(chunks, task.Filename)
	slog.InfoContext(ctx, "document split into chunks", "filename", task.Filename, "chunks", len(chunks))

	count, err := c.store.AddDocument(ctx, chunks, metas, task.Filename, content)
	if err != nil {
		// Embedding or index failure: transient, let NSQ retry.
		slog.ErrorContext(ctx, "failed to store document chunks", "error", err, "filename", task.Filename, "document_id", task.DocumentID)
		return err
	}

	if err := c.docs.MarkCompleted(ctx, task.DocumentID, count); err != nil {
		slog.ErrorContext(ctx, "failed to mark document completed", "error", err, "document_id", task.DocumentID)
		return err
	}

	slog.InfoContext(ctx, "document ingested", "filename", task.Filename, "document_id", task.DocumentID, "chunks_stored", count)
	return nil
}

func (c *IngestConsumer) markFailed(ctx context.Context, id, reason string) {
	if err := c.docs.MarkFailed(ctx, id, reason); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed", "error", err, "document_id", id)
	}
}
