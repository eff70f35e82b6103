package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/store"
)

// AdminHandler handles administrative deletion of store-managed records:
// uploaded-file metadata and index definitions. These records are
// partitioned by their own id, so bulk deletes fan out across partitions
// and ride the store's throttling-aware retry path.
type AdminHandler struct {
	client store.DocumentClient
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(client store.DocumentClient, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		client: client,
		logger: log,
	}
}

// BulkDeleteFilesRequest is the request to delete file records in bulk.
type BulkDeleteFilesRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeleteFilesResponse reports the outcome of a bulk delete.
type BulkDeleteFilesResponse struct {
	Deleted int      `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// DeleteFiles handles DELETE /api/v1/admin/files
func (h *AdminHandler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids cannot be empty")
		return
	}

	refs := make([]store.Ref, len(req.IDs))
	for i, id := range req.IDs {
		refs[i] = store.Ref{Partition: id, ID: id}
	}

	failed := store.BulkDelete(r.Context(), h.client, h.logger, store.KindFileMetadata, refs)

	resp := BulkDeleteFilesResponse{Deleted: len(refs) - len(failed)}
	for _, ref := range failed {
		resp.Failed = append(resp.Failed, ref.ID)
	}

	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// DeleteIndex handles DELETE /api/v1/admin/indexes/:id
func (h *AdminHandler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	indexID := chi.URLParam(r, "id")
	if indexID == "" {
		writeError(w, http.StatusBadRequest, "index id is required")
		return
	}

	ref := store.Ref{Partition: indexID, ID: indexID}
	err := store.DeleteWithRetry(r.Context(), h.client, h.logger, store.KindIndexRecord, ref, store.DefaultMaxDeleteAttempts)
	if err != nil {
		h.logger.Error("failed to delete index record",
			zap.String("index_id", indexID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to delete index")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
