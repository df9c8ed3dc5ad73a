package api

import (
	"net/http"
)

// HandleBuild queues a full rebuild, of one workspace when ?workspace= is
// given
func (h *Handler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := r.URL.Query().Get("workspace")

	h.logger.InfoContext(ctx, "starting build", "workspace", workspace)

	report, err := h.indexer.Build(ctx, workspace)
	if err != nil {
		h.logger.ErrorContext(ctx, "build failed", "workspace", workspace, "error", err)
		h.writeError(w, "failed to build index", err)
		return
	}

	h.logger.InfoContext(ctx, "build queued", "indexPostfix", report.IndexPostfix, "batches", report.Batches)
	h.writeJSON(w, http.StatusAccepted, report)
}

// HandleQueueStatus reports the queue counters
func (h *Handler) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.indexer.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read queue status", "error", err)
		h.writeError(w, "failed to read queue status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleQueueFlush empties the batch queue
func (h *Handler) HandleQueueFlush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.indexer.Flush(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to flush queue", "error", err)
		h.writeError(w, "failed to flush queue", err)
		return
	}

	h.logger.InfoContext(ctx, "batch queue flushed")
	h.writeJSON(w, http.StatusOK, report)
}
