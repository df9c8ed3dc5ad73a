package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// Handler holds the HTTP handler dependencies
type Handler struct {
	indexer ports.Indexer
	live    ports.LiveIndexer
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler for the build and live indexing
// services
func NewHandler(indexer ports.Indexer, live ports.LiveIndexer) *Handler {
	return &Handler{
		indexer: indexer,
		live:    live,
		logger:  slog.Default().With("component", "api"),
	}
}

// Response is the body of action endpoints and of every error
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, Response{Status: "success", Message: message})
}

// writeError maps the error kind to a status code
func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	response := Response{Status: "error", Message: message}
	if err != nil {
		response.Message = message + ": " + err.Error()
	}
	h.writeJSON(w, statusFor(err), response)
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusBadRequest
	}
	switch domain.KindOf(err) {
	case domain.KindPrecondition:
		return http.StatusConflict
	case domain.KindRecordMissing:
		return http.StatusNotFound
	case domain.KindInvalidJob:
		return http.StatusBadRequest
	case domain.KindQueue:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
