// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/middleware"
	"github.com/agile-ai/ragchat-platform/internal/model"
	natsclient "github.com/agile-ai/ragchat-platform/internal/nats"
	"github.com/agile-ai/ragchat-platform/internal/pipeline"
	"github.com/agile-ai/ragchat-platform/internal/store"
	"github.com/agile-ai/ragchat-platform/pkg/logger"
	"github.com/agile-ai/ragchat-platform/pkg/metrics"
)

// ChatHandler runs the answer pipeline for a thread and streams the result.
type ChatHandler struct {
	pipeline   *pipeline.Pipeline
	chatStore  *store.ChatStateStore
	publisher  *natsclient.EventPublisher
	dispatcher *StreamDispatcher
	logger     *zap.Logger
}

// NewChatHandler creates a new chat handler. publisher may be nil, which
// disables answer-event publication.
func NewChatHandler(
	p *pipeline.Pipeline,
	chatStore *store.ChatStateStore,
	publisher *natsclient.EventPublisher,
	dispatcher *StreamDispatcher,
	log *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		pipeline:   p,
		chatStore:  chatStore,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// Chat handles POST /api/v1/chat. It resolves the thread, persists the
// user turn, runs the pipeline, persists the final assistant message, and
// only then streams the answer back. A cancelled stream can never leave a
// partially-written record.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	userName := middleware.GetUserName(ctx)
	log := logger.WithRequest(h.logger, middleware.GetCorrelationID(ctx), userID)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateHistory(req.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateOverrides(req.Overrides); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ThreadID != "" {
		if err := middleware.ValidateThreadID(req.ThreadID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	question := model.LatestUserContent(req.Messages)

	// Ownership is verified before resolving: the resolve step renames
	// draft threads and refreshes lastMessageAt, and a foreign caller must
	// not leave either mark on someone else's thread.
	if req.ThreadID != "" {
		existing, err := h.chatStore.GetThread(ctx, req.ThreadID)
		if err != nil {
			log.Error("failed to load thread",
				zap.String("thread_id", req.ThreadID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to resolve thread")
			return
		}
		if existing == nil || existing.IsDeleted || existing.UserID != userID {
			writeError(w, http.StatusNotFound, "thread not found")
			return
		}
	}

	thread, err := h.chatStore.ResolveOrCreateThread(ctx, req.ThreadID, question, userID, userName)
	if err != nil {
		log.Error("failed to resolve thread",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to resolve thread")
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}

	if _, err := h.chatStore.AppendMessage(ctx, model.Message{
		ThreadID: thread.ID,
		UserID:   userID,
		Role:     model.RoleUser,
		Content:  question,
	}); err != nil {
		log.Error("failed to persist user message",
			zap.String("thread_id", thread.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}
	metrics.RecordMessage(string(model.RoleUser))

	resp, err := h.pipeline.Run(ctx, req.Messages, req.Overrides)
	if err != nil {
		log.Error("pipeline run failed",
			zap.String("thread_id", thread.ID),
			zap.Error(err),
		)
		if pipeline.IsPrecondition(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "failed to generate answer")
		return
	}

	if _, err := h.chatStore.AppendMessage(ctx, model.Message{
		ThreadID: thread.ID,
		UserID:   userID,
		Role:     model.RoleAssistant,
		Content:  resp.AnswerText,
	}); err != nil {
		log.Error("failed to persist assistant message",
			zap.String("thread_id", thread.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}
	metrics.RecordMessage(string(model.RoleAssistant))

	if h.publisher != nil {
		if _, err := h.publisher.PublishAnswer(ctx, userID, thread.ID, resp); err != nil {
			log.Warn("failed to publish answer event",
				zap.String("thread_id", thread.ID),
				zap.Error(err),
			)
		}
	}

	w.Header().Set("X-Thread-ID", thread.ID)

	if wantsEventStream(r) {
		h.dispatcher.DispatchEvents(w, r, resp)
		return
	}
	h.dispatcher.DispatchText(w, r, resp)
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
