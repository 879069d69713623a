package retrieval

import (
	"context"
	"time"

	"docquery/internal/chunkstore"
	"docquery/internal/middleware"
)

// ChunkSearcher is the slice of the chunk store the retrieval layer
// needs.
type ChunkSearcher interface {
	Query(ctx context.Context, text string, k int) ([]chunkstore.Result, error)
	GetStats(ctx context.Context) (chunkstore.Stats, error)
}

type Service struct {
	store       ChunkSearcher
	defaultTopK int
	logger      *QueryLogger
}

func NewService(store ChunkSearcher, defaultTopK int, logger *QueryLogger) *Service {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Service{store: store, defaultTopK: defaultTopK, logger: logger}
}

// Answer runs a similarity query and renders the results for the
// reasoning component. An empty store short-circuits to the "no
// documents" signal without spending an embedding call; backend failures
// propagate so the caller can distinguish them from "no match".
func (s *Service) Answer(ctx context.Context, query string, k int) (string, []chunkstore.Result, error) {
	start := time.Now()

	if k <= 0 {
		k = s.defaultTopK
	}

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return "", nil, err
	}
	if stats.TotalChunks == 0 {
		return NoDocumentsMessage, nil, nil
	}

	results, err := s.store.Query(ctx, query, k)
	if err != nil {
		return "", nil, err
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         query,
			TopK:          k,
			NumResults:    len(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}

	return FormatResults(results), results, nil
}
