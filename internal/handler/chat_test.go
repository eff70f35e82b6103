package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/llm"
	"github.com/agile-ai/ragchat-platform/internal/middleware"
	"github.com/agile-ai/ragchat-platform/internal/model"
	"github.com/agile-ai/ragchat-platform/internal/pipeline"
	"github.com/agile-ai/ragchat-platform/internal/store"
)

type scriptedLLM struct {
	script []string
	err    error
}

func (f *scriptedLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.script) == 0 {
		return nil, errors.New("no scripted completion left")
	}
	next := f.script[0]
	f.script = f.script[1:]
	return &llm.CompletionResponse{Content: next}, nil
}

func (f *scriptedLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	return f.Complete(ctx, req)
}

func (f *scriptedLLM) Name() string     { return "scripted" }
func (f *scriptedLLM) Models() []string { return nil }

type staticSearch struct {
	docs []model.RetrievedDocument
}

func (s *staticSearch) QueryDocuments(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.RetrievedDocument, error) {
	return s.docs, nil
}

func (s *staticSearch) QueryImages(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.SupportingImage, error) {
	return nil, nil
}

type staticEmbedder struct{}

func (staticEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5}, nil
}

func newChatFixture(client llm.Client, docs []model.RetrievedDocument) (*ChatHandler, *store.ChatStateStore) {
	log := zap.NewNop()
	p := pipeline.New(
		pipeline.NewQueryReformulator(client, "test-model"),
		pipeline.NewRetriever(&staticSearch{docs: docs}, staticEmbedder{}, nil, log),
		pipeline.NewAnswerSynthesizer(client, "test-model"),
		pipeline.NewFollowupGenerator(client, "test-model"),
		"",
		log,
	)
	chatStore := store.NewChatStateStore(store.NewMemoryClient(), log)
	h := NewChatHandler(p, chatStore, nil, NewStreamDispatcher(log), log)
	return h, chatStore
}

func authedRequest(t *testing.T, userID string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/v1/chat", bytes.NewReader(data))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, middleware.UserNameKey, "Alice")
	return req.WithContext(ctx)
}

func TestChatCreatesThreadAndPersistsTurns(t *testing.T) {
	client := &scriptedLLM{script: []string{
		"coverage query",
		`{"answer":"Dental is covered [plan.pdf].","thoughts":"plan.pdf"}`,
	}}
	h, chatStore := newChatFixture(client, []model.RetrievedDocument{
		{Title: "plan.pdf", Content: "Dental is covered."},
	})

	rec := httptest.NewRecorder()
	h.Chat(rec, authedRequest(t, "user-1", model.ChatRequest{
		Messages: []model.ChatTurn{{Role: model.RoleUser, Content: "is dental covered?"}},
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	threadID := rec.Header().Get("X-Thread-ID")
	if threadID == "" {
		t.Fatal("X-Thread-ID header not set")
	}
	if body := rec.Body.String(); body != "Dental is covered [plan.pdf]." {
		t.Errorf("streamed answer = %q", body)
	}

	messages, err := chatStore.ListMessages(context.Background(), threadID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(messages))
	}
	if messages[0].Role != model.RoleUser || messages[0].Content != "is dental covered?" {
		t.Errorf("first message = %+v", messages[0])
	}
	if messages[1].Role != model.RoleAssistant || messages[1].Content != "Dental is covered [plan.pdf]." {
		t.Errorf("second message = %+v", messages[1])
	}

	thread, err := chatStore.GetThread(context.Background(), threadID)
	if err != nil {
		t.Fatalf("GetThread err: %v", err)
	}
	if thread.Name != "is dental covered?" {
		t.Errorf("thread name = %q, want the seed prompt", thread.Name)
	}
}

func TestChatRejectsHistoryWithoutUserTurn(t *testing.T) {
	h, _ := newChatFixture(&scriptedLLM{}, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, authedRequest(t, "user-1", model.ChatRequest{
		Messages: []model.ChatTurn{{Role: model.RoleAssistant, Content: "hello"}},
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatForeignThreadIsNotFound(t *testing.T) {
	h, chatStore := newChatFixture(&scriptedLLM{}, nil)

	// A still-draft thread is the worst case: resolving it would rename it
	// from the caller's prompt.
	draft, err := chatStore.CreateThread(context.Background(), &model.CreateThreadRequest{}, "owner", "Owner")
	if err != nil {
		t.Fatalf("CreateThread err: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Chat(rec, authedRequest(t, "intruder", model.ChatRequest{
		ThreadID: draft.ID,
		Messages: []model.ChatTurn{{Role: model.RoleUser, Content: "intruder prompt"}},
	}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	// The rejected send must not have written anything to the thread.
	after, err := chatStore.GetThread(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("GetThread err: %v", err)
	}
	if after.Name != model.DraftThreadName {
		t.Errorf("foreign thread renamed to %q", after.Name)
	}
	if !after.LastMessageAt.Equal(draft.LastMessageAt) {
		t.Error("foreign thread lastMessageAt was refreshed")
	}
	if after.UserID != "owner" || after.IsDeleted {
		t.Errorf("foreign thread was mutated: %+v", *after)
	}

	messages, err := chatStore.ListMessages(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("foreign thread gained %d messages", len(messages))
	}
}

func TestChatSynthesisFailureIsBadGateway(t *testing.T) {
	client := &scriptedLLM{script: []string{
		"query",
		"not json at all",
	}}
	h, chatStore := newChatFixture(client, nil)

	rec := httptest.NewRecorder()
	h.Chat(rec, authedRequest(t, "user-1", model.ChatRequest{
		Messages: []model.ChatTurn{{Role: model.RoleUser, Content: "q"}},
	}))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	// The user turn is persisted before the pipeline runs; the assistant
	// turn never is.
	threads, err := chatStore.ListThreads(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListThreads err: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	messages, err := chatStore.ListMessages(context.Background(), threads[0].ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != model.RoleUser {
		t.Fatalf("expected only the user message, got %+v", messages)
	}
}
