package api

import (
	"net/http"
)

// HandleIndexRecord indexes a single record, in ?workspace= when given
func (h *Handler) HandleIndexRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID := r.PathValue("recordId")
	if recordID == "" {
		h.writeError(w, "record ID is required", nil)
		return
	}
	workspace := r.URL.Query().Get("workspace")

	if err := h.live.IndexRecord(ctx, recordID, workspace); err != nil {
		h.logger.ErrorContext(ctx, "failed to index record", "recordID", recordID, "error", err)
		h.writeError(w, "failed to index record", err)
		return
	}

	h.logger.InfoContext(ctx, "record indexed", "recordID", recordID, "workspace", workspace)
	h.writeSuccess(w, "indexed record: "+recordID)
}

// HandleRemoveRecord removes a single record from the index
func (h *Handler) HandleRemoveRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID := r.PathValue("recordId")
	if recordID == "" {
		h.writeError(w, "record ID is required", nil)
		return
	}
	workspace := r.URL.Query().Get("workspace")

	if err := h.live.RemoveRecord(ctx, recordID, workspace); err != nil {
		h.logger.ErrorContext(ctx, "failed to remove record", "recordID", recordID, "error", err)
		h.writeError(w, "failed to remove record", err)
		return
	}

	h.logger.InfoContext(ctx, "record removed", "recordID", recordID, "workspace", workspace)
	h.writeSuccess(w, "removed record: "+recordID)
}
