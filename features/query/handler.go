package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"docquery/internal/chunkstore"
	"docquery/internal/middleware"
)

// Answerer runs a similarity search and renders the formatted answer
// context alongside the raw results.
type Answerer interface {
	Answer(ctx context.Context, query string, k int) (string, []chunkstore.Result, error)
}

type Handler struct {
	service Answerer
}

func NewHandler(service Answerer) *Handler {
	return &Handler{service: service}
}

type queryRequest struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
}

type queryResponse struct {
	Answer  string              `json:"answer"`
	Results []chunkstore.Result `json:"results"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}

	answer, results, err := h.service.Answer(r.Context(), req.Query, req.ResultCount)
	if err != nil {
		slog.ErrorContext(r.Context(), "query failed", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if results == nil {
		results = []chunkstore.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": queryResponse{Answer: answer, Results: results},
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
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
