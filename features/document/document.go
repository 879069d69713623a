package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"docquery/internal/config"
	coredoc "docquery/internal/document"
	"docquery/internal/middleware"
)

// ErrDuplicate marks an upload whose fingerprint is already known.
// Duplicates are not failures: the chunk store treats re-processing a
// known fingerprint as a free no-op, and the handler reports a conflict
// without queueing any work.
var ErrDuplicate = errors.New("duplicate document")

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	FileHash   string `json:"file_hash"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	SupersedeFailed(ctx context.Context, hash string) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id, reason string) error
	Count(ctx context.Context) (int, error)
	Purge(ctx context.Context) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Deduper is the chunk store's fingerprint check; it must not trigger
// any embedding work.
type Deduper interface {
	IsProcessed(ctx context.Context, filename string, content []byte) (bool, error)
}

// Resetter discards all stored chunk entries.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Service struct {
	repo     Repository
	pub      EventPublisher
	deduper  Deduper
	resetter Resetter
}

func NewService(repo Repository, pub EventPublisher, deduper Deduper, resetter Resetter) *Service {
	return &Service{repo: repo, pub: pub, deduper: deduper, resetter: resetter}
}

// Upload registers an uploaded file and queues it for ingestion. The
// fingerprint is computed once here and never mutated; both the registry
// and the chunk store are consulted so a re-upload is rejected before
// any embedding cost is incurred. A prior failed attempt does not count
// as a duplicate; its row is superseded and ingestion starts over.
func (s *Service) Upload(ctx context.Context, filename, storedPath string, content []byte) (*Document, error) {
	hash := coredoc.Fingerprint(filename, content)

	exists, err := s.repo.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !exists {
		exists, err = s.deduper.IsProcessed(ctx, filename, content)
		if err != nil {
			return nil, err
		}
	}
	if exists {
		slog.InfoContext(ctx, "skipping duplicate upload", "filename", filename, "file_hash", hash)
		return nil, ErrDuplicate
	}

	if err := s.repo.SupersedeFailed(ctx, hash); err != nil {
		return nil, err
	}

	doc := &Document{
		Filename: filename,
		FileHash: hash,
		Status:   StatusProcessing,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":    doc.ID,
		"path":           storedPath,
		"filename":       filename,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicDocumentIngest, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "filename", filename)
		return nil, fmt.Errorf("queue ingest task: %w", err)
	}
	slog.InfoContext(ctx, "published ingest task", "filename", filename, "document_id", doc.ID)

	return doc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Reset wipes the chunk store and the registry. Irreversible.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.resetter.Reset(ctx); err != nil {
		return err
	}
	return s.repo.Purge(ctx)
}
