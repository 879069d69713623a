package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"docquery/internal/document"
)

// Embedder is the external embedding capability: one text in, one
// vector out. Errors are propagated verbatim.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Entry is one persisted (text, vector, metadata) triple keyed by its
// derived chunk identifier.
type Entry struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata document.Metadata
}

// Result is a retrieved chunk, ranked nearest-first by the index.
type Result struct {
	Content  string            `json:"content"`
	Metadata document.Metadata `json:"metadata"`
}

type Stats struct {
	TotalChunks     int `json:"total_chunks"`
	UniqueDocuments int `json:"unique_documents"`
}

// Index is the external vector index capability.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Nearest(ctx context.Context, vector []float32, k int) ([]Result, error)
	ExistsByFileHash(ctx context.Context, hash string) (bool, error)
	CountAll(ctx context.Context) (int, error)
	AllMetadata(ctx context.Context) ([]document.Metadata, error)
	Drop(ctx context.Context) error
}

// Store persists document chunks with per-document dedup and executes
// similarity queries. Ingestion for the same fingerprint is serialized
// so at most one caller can pass the dedup check and write.
type Store struct {
	embedder Embedder
	index    Index

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(embedder Embedder, index Index) *Store {
	return &Store{
		embedder: embedder,
		index:    index,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) fingerprintLock(hash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		s.locks[hash] = l
	}
	return l
}

// IsProcessed reports whether any stored entry carries the document's
// fingerprint. It never performs embedding work.
func (s *Store) IsProcessed(ctx context.Context, filename string, content []byte) (bool, error) {
	return s.index.ExistsByFileHash(ctx, document.Fingerprint(filename, content))
}

// AddDocument embeds and persists a document's chunks. Re-processing a
// known fingerprint is a successful no-op returning 0. All chunks are
// embedded before anything is written, so an embedding failure aborts
// the batch without leaving a partially-added document behind.
func (s *Store) AddDocument(ctx context.Context, chunks []string, metas []document.Metadata, filename string, content []byte) (int, error) {
	if len(chunks) == 0 {
		slog.WarnContext(ctx, "no chunks provided for embedding", "source", filename)
		return 0, nil
	}
	if len(metas) != len(chunks) {
		return 0, fmt.Errorf("chunkstore: %d chunks but %d metadata entries", len(chunks), len(metas))
	}

	hash := document.Fingerprint(filename, content)

	lock := s.fingerprintLock(hash)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.index.ExistsByFileHash(ctx, hash)
	if err != nil {
		return 0, err
	}
	if exists {
		slog.InfoContext(ctx, "skipping duplicate document", "source", filename, "file_hash", hash)
		return 0, nil
	}

	slog.InfoContext(ctx, "generating embeddings", "source", filename, "chunks", len(chunks))
	entries := make([]Entry, len(chunks))
	for i, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", i, filename, err)
		}
		meta := metas[i]
		meta.FileHash = hash
		entries[i] = Entry{
			ID:       document.ChunkID(hash, i),
			Content:  chunk,
			Vector:   vector,
			Metadata: meta,
		}
	}

	if err := s.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "document chunks stored", "source", filename, "chunks", len(entries))
	return len(entries), nil
}

// Query embeds the text and returns the k nearest stored chunks. An
// empty store yields an empty result, not an error.
func (s *Store) Query(ctx context.Context, text string, k int) ([]Result, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.index.Nearest(ctx, vector, k)
}

// GetStats scans all stored metadata to count distinct source files;
// callers needing it frequently should expect O(total chunks) cost.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	total, err := s.index.CountAll(ctx)
	if err != nil {
		return Stats{}, err
	}

	metas, err := s.index.AllMetadata(ctx)
	if err != nil {
		return Stats{}, err
	}
	sources := make(map[string]struct{})
	for _, m := range metas {
		if m.Source != "" {
			sources[m.Source] = struct{}{}
		}
	}

	return Stats{TotalChunks: total, UniqueDocuments: len(sources)}, nil
}

// Reset irreversibly discards every stored entry.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.index.Drop(ctx); err != nil {
		return err
	}
	slog.WarnContext(ctx, "chunk store has been reset")
	return nil
}
