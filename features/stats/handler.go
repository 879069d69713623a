package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"docquery/internal/chunkstore"
	"docquery/internal/middleware"
)

type DocumentRepo interface {
	Count(ctx context.Context) (int, error)
}

type ChunkStatter interface {
	GetStats(ctx context.Context) (chunkstore.Stats, error)
}

type Handler struct {
	docRepo DocumentRepo
	store   ChunkStatter
}

func NewHandler(docRepo DocumentRepo, store ChunkStatter) *Handler {
	return &Handler{docRepo: docRepo, store: store}
}

type StatsResponse struct {
	Documents       int `json:"documents"`
	TotalChunks     int `json:"total_chunks"`
	UniqueDocuments int `json:"unique_documents"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	dCount, err := h.docRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	cStats, err := h.store.GetStats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read chunk stats", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read chunk stats", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents:       dCount,
		TotalChunks:     cStats.TotalChunks,
		UniqueDocuments: cStats.UniqueDocuments,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
