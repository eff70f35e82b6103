package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/model"
)

type threadDoc struct {
	model.ChatThread
	Type string `json:"type"`
}

type messageDoc struct {
	model.Message
	Type string `json:"type"`
}

// ChatStateStore is the durable store for chat threads and messages. Both
// kinds are partitioned by the owning userId. Deleting a thread marks only
// the thread; message visibility is derived by joining on thread state.
type ChatStateStore struct {
	client DocumentClient
	logger *zap.Logger
	now    func() time.Time
}

// NewChatStateStore creates a chat-state store over the given document
// client.
func NewChatStateStore(client DocumentClient, logger *zap.Logger) *ChatStateStore {
	return &ChatStateStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// GetThread loads a thread by id, or nil when it does not exist.
func (s *ChatStateStore) GetThread(ctx context.Context, threadID string) (*model.ChatThread, error) {
	bodies, err := s.client.Query(ctx, KindChatThread, []Filter{
		{Field: "id", Op: OpEqual, Value: threadID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	if len(bodies) == 0 {
		return nil, nil
	}

	var doc threadDoc
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", threadID, err)
	}
	return &doc.ChatThread, nil
}

// CreateThread persists a new draft thread for the user. An empty name
// gets the draft sentinel, hiding the thread from listings until its first
// prompt arrives.
func (s *ChatStateStore) CreateThread(ctx context.Context, req *model.CreateThreadRequest, userID, userName string) (*model.ChatThread, error) {
	now := s.now().UTC()

	name := req.Name
	if name == "" {
		name = model.DraftThreadName
	}

	thread := model.ChatThread{
		ID:               uuid.NewString(),
		UserID:           userID,
		UserName:         userName,
		Name:             name,
		CreatedAt:        now,
		LastMessageAt:    now,
		AssistantTitle:   req.AssistantTitle,
		AssistantMessage: req.AssistantMessage,
	}

	if err := s.writeThread(ctx, thread, true); err != nil {
		return nil, err
	}
	return &thread, nil
}

// ResolveOrCreateThread returns the thread for a send. With no threadId it
// creates a thread named from the seed prompt. With a threadId it loads
// the thread (nil when absent), renames it from the prompt while the name
// is still the draft sentinel, and always refreshes lastMessageAt.
func (s *ChatStateStore) ResolveOrCreateThread(ctx context.Context, threadID, seedPrompt, userID, userName string) (*model.ChatThread, error) {
	now := s.now().UTC()

	if threadID == "" {
		thread := model.ChatThread{
			ID:            uuid.NewString(),
			UserID:        userID,
			UserName:      userName,
			Name:          model.ThreadNameFromPrompt(seedPrompt),
			CreatedAt:     now,
			LastMessageAt: now,
		}
		if err := s.writeThread(ctx, thread, true); err != nil {
			return nil, err
		}
		s.logger.Info("thread created",
			zap.String("thread_id", thread.ID),
			zap.String("user_id", userID),
		)
		return &thread, nil
	}

	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, nil
	}

	updated := thread.Touched(now)
	if updated.Name == model.DraftThreadName {
		updated = updated.WithName(model.ThreadNameFromPrompt(seedPrompt))
	}

	if err := s.writeThread(ctx, updated, false); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AppendMessage assigns the message a new id and createdAt and writes it
// under the owning user's partition. The returned message carries the
// assigned fields.
func (s *ChatStateStore) AppendMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now().UTC()

	doc := messageDoc{Message: msg, Type: KindChatMessage}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	err = s.client.Create(ctx, Document{
		Kind:      KindChatMessage,
		Partition: msg.UserID,
		ID:        msg.ID,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message to thread %s: %w", msg.ThreadID, err)
	}
	return &msg, nil
}

// ListThreads returns the user's threads, excluding soft-deleted threads
// and unnamed drafts, most recently active first.
func (s *ChatStateStore) ListThreads(ctx context.Context, userID string) ([]model.ChatThread, error) {
	bodies, err := s.client.Query(ctx, KindChatThread, []Filter{
		{Field: "userId", Op: OpEqual, Value: userID},
		{Field: "isDeleted", Op: OpEqual, Value: false},
		{Field: "name", Op: OpNotEqual, Value: model.DraftThreadName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list threads for user %s: %w", userID, err)
	}

	threads := make([]model.ChatThread, 0, len(bodies))
	for _, body := range bodies {
		var doc threadDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode thread: %w", err)
		}
		threads = append(threads, doc.ChatThread)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastMessageAt.After(threads[j].LastMessageAt)
	})
	return threads, nil
}

// ListMessages returns the thread's non-deleted messages ordered by
// createdAt ascending, ties broken by insertion order.
func (s *ChatStateStore) ListMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	bodies, err := s.client.Query(ctx, KindChatMessage, []Filter{
		{Field: "threadId", Op: OpEqual, Value: threadID},
		{Field: "isDeleted", Op: OpEqual, Value: false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for thread %s: %w", threadID, err)
	}

	messages := make([]model.Message, 0, len(bodies))
	for _, body := range bodies {
		var doc messageDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, doc.Message)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// UpdateThread applies a rename or bookmark change, rebuilding the record
// from the loaded one plus explicit overrides. Returns nil when the thread
// does not exist.
func (s *ChatStateStore) UpdateThread(ctx context.Context, threadID string, req *model.UpdateThreadRequest) (*model.ChatThread, error) {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, nil
	}

	updated := *thread
	if req.Name != nil {
		updated = updated.WithName(model.ThreadNameFromPrompt(*req.Name))
	}
	if req.Bookmarked != nil {
		updated = updated.WithBookmarked(*req.Bookmarked)
	}
	updated = updated.Touched(s.now().UTC())

	if err := s.writeThread(ctx, updated, false); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SoftDeleteThread marks a thread deleted. Deleting a missing thread is a
// no-op, and deleting twice leaves the same final state.
func (s *ChatStateStore) SoftDeleteThread(ctx context.Context, threadID string) error {
	thread, err := s.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread == nil {
		return nil
	}

	updated := thread.WithDeleted().Touched(s.now().UTC())
	return s.writeThread(ctx, updated, false)
}

func (s *ChatStateStore) writeThread(ctx context.Context, thread model.ChatThread, create bool) error {
	doc := threadDoc{ChatThread: thread, Type: KindChatThread}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}

	record := Document{
		Kind:      KindChatThread,
		Partition: thread.UserID,
		ID:        thread.ID,
		Data:      data,
	}

	if create {
		err = s.client.Create(ctx, record)
	} else {
		err = s.client.Replace(ctx, record)
	}
	if err != nil {
		return fmt.Errorf("failed to write thread %s: %w", thread.ID, err)
	}
	return nil
}
