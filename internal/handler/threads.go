package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/middleware"
	"github.com/agile-ai/ragchat-platform/internal/model"
	"github.com/agile-ai/ragchat-platform/internal/store"
	"github.com/agile-ai/ragchat-platform/pkg/metrics"
)

// ThreadHandler handles thread and message endpoints.
type ThreadHandler struct {
	chatStore *store.ChatStateStore
	logger    *zap.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(chatStore *store.ChatStateStore, log *zap.Logger) *ThreadHandler {
	return &ThreadHandler{
		chatStore: chatStore,
		logger:    log,
	}
}

// Create handles POST /api/v1/threads
func (h *ThreadHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	userName := middleware.GetUserName(ctx)

	var req model.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	thread, err := h.chatStore.CreateThread(ctx, &req, userID, userName)
	if err != nil {
		h.logger.Error("failed to create thread",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to create thread")
		return
	}
	metrics.ThreadsTotal.Inc()

	writeJSON(w, http.StatusCreated, thread)
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	threads, err := h.chatStore.ListThreads(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list threads",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}

	writeJSON(w, http.StatusOK, threads)
}

// Get handles GET /api/v1/threads/:id
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := h.loadOwnedThread(w, r, userID, threadID)
	if err != nil || thread == nil {
		return
	}

	writeJSON(w, http.StatusOK, thread)
}

// Update handles PUT /api/v1/threads/:id
func (h *ThreadHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if thread, err := h.loadOwnedThread(w, r, userID, threadID); err != nil || thread == nil {
		return
	}

	updated, err := h.chatStore.UpdateThread(ctx, threadID, &req)
	if err != nil {
		h.logger.Error("failed to update thread",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to update thread")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/threads/:id. Thread deletion is a soft
// delete: the record stays in storage but disappears from listings.
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := h.chatStore.GetThread(ctx, threadID)
	if err != nil {
		h.logger.Error("failed to load thread for delete",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete thread")
		return
	}
	if thread != nil && thread.UserID != userID {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	// Deleting an absent thread is a no-op, not an error.
	if err := h.chatStore.SoftDeleteThread(ctx, threadID); err != nil {
		h.logger.Error("failed to delete thread",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete thread")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Messages handles GET /api/v1/threads/:id/messages
func (h *ThreadHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	threadID := chi.URLParam(r, "id")

	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if thread, err := h.loadOwnedThread(w, r, userID, threadID); err != nil || thread == nil {
		return
	}

	messages, err := h.chatStore.ListMessages(ctx, threadID)
	if err != nil {
		h.logger.Error("failed to list messages",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// loadOwnedThread loads a live thread owned by the user, writing the error
// response itself when the thread is missing, deleted or foreign.
func (h *ThreadHandler) loadOwnedThread(w http.ResponseWriter, r *http.Request, userID, threadID string) (*model.ChatThread, error) {
	thread, err := h.chatStore.GetThread(r.Context(), threadID)
	if err != nil {
		h.logger.Error("failed to load thread",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load thread")
		return nil, err
	}
	if thread == nil || thread.IsDeleted || thread.UserID != userID {
		writeError(w, http.StatusNotFound, "thread not found")
		return nil, nil
	}
	return thread, nil
}
