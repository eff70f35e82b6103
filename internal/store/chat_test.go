package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/model"
)

// testClock hands out strictly increasing timestamps one second apart.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore() (*ChatStateStore, *MemoryClient) {
	client := NewMemoryClient()
	s := NewChatStateStore(client, zap.NewNop())
	clock := &testClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.now
	return s, client
}

func TestCreateThreadDefaultsToDraftName(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	thread, err := s.CreateThread(ctx, &model.CreateThreadRequest{}, "user-1", "Alice")
	if err != nil {
		t.Fatalf("CreateThread err: %v", err)
	}
	if thread.Name != model.DraftThreadName {
		t.Errorf("draft name = %q, want %q", thread.Name, model.DraftThreadName)
	}
	if thread.ID == "" {
		t.Error("thread id should be assigned")
	}

	// Drafts stay hidden from listings until the first prompt arrives.
	threads, err := s.ListThreads(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListThreads err: %v", err)
	}
	if len(threads) != 0 {
		t.Errorf("draft thread should not be listed, got %d threads", len(threads))
	}
}

func TestResolveCreatesNamedThread(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	short := "what is covered?"
	thread, err := s.ResolveOrCreateThread(ctx, "", short, "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}
	if thread.Name != short {
		t.Errorf("name = %q, want prompt verbatim", thread.Name)
	}

	long := strings.Repeat("x", 40)
	thread, err = s.ResolveOrCreateThread(ctx, "", long, "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}
	want := strings.Repeat("x", 28) + "..."
	if thread.Name != want {
		t.Errorf("name = %q, want %q", thread.Name, want)
	}
	if len([]rune(thread.Name)) != 31 {
		t.Errorf("truncated name length = %d runes, want 31", len([]rune(thread.Name)))
	}
}

func TestResolveRenamesOnlyDraftThreads(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	draft, err := s.CreateThread(ctx, &model.CreateThreadRequest{}, "user-1", "Alice")
	if err != nil {
		t.Fatalf("CreateThread err: %v", err)
	}

	resolved, err := s.ResolveOrCreateThread(ctx, draft.ID, "first prompt", "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}
	if resolved.Name != "first prompt" {
		t.Errorf("draft should be renamed from prompt, got %q", resolved.Name)
	}
	firstActivity := resolved.LastMessageAt

	// A second send must not rename the thread again.
	resolved, err = s.ResolveOrCreateThread(ctx, draft.ID, "second prompt", "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}
	if resolved.Name != "first prompt" {
		t.Errorf("named thread must keep its name, got %q", resolved.Name)
	}
	if !resolved.LastMessageAt.After(firstActivity) {
		t.Error("lastMessageAt should advance on every send")
	}
}

func TestResolveMissingThreadReturnsNil(t *testing.T) {
	s, _ := newTestStore()

	thread, err := s.ResolveOrCreateThread(context.Background(), "11111111-2222-3333-4444-555555555555", "prompt", "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}
	if thread != nil {
		t.Fatalf("expected nil for missing thread, got %+v", thread)
	}
}

func TestListThreadsFiltersAndOrders(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	older, _ := s.ResolveOrCreateThread(ctx, "", "older thread", "user-1", "Alice")
	newer, _ := s.ResolveOrCreateThread(ctx, "", "newer thread", "user-1", "Alice")
	deleted, _ := s.ResolveOrCreateThread(ctx, "", "deleted thread", "user-1", "Alice")
	if _, err := s.CreateThread(ctx, &model.CreateThreadRequest{}, "user-1", "Alice"); err != nil {
		t.Fatalf("CreateThread err: %v", err)
	}
	if _, err := s.ResolveOrCreateThread(ctx, "", "other user", "user-2", "Bob"); err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}
	if err := s.SoftDeleteThread(ctx, deleted.ID); err != nil {
		t.Fatalf("SoftDeleteThread err: %v", err)
	}

	threads, err := s.ListThreads(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListThreads err: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].ID != newer.ID || threads[1].ID != older.ID {
		t.Errorf("threads not ordered by recent activity: %q, %q", threads[0].Name, threads[1].Name)
	}
}

func TestListMessagesOrdersByCreatedAt(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	thread, err := s.ResolveOrCreateThread(ctx, "", "prompt", "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}

	contents := []string{"first", "second", "third"}
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if _, err := s.AppendMessage(ctx, model.Message{
			ThreadID: thread.ID,
			UserID:   "user-1",
			Role:     role,
			Content:  c,
		}); err != nil {
			t.Fatalf("AppendMessage err: %v", err)
		}
	}

	messages, err := s.ListMessages(ctx, thread.ID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, c := range contents {
		if messages[i].Content != c {
			t.Errorf("messages[%d] = %q, want %q", i, messages[i].Content, c)
		}
	}
	if messages[0].ID == "" || messages[0].CreatedAt.IsZero() {
		t.Error("appended messages should carry assigned id and createdAt")
	}
}

func TestSoftDeleteThreadIsIdempotent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	thread, err := s.ResolveOrCreateThread(ctx, "", "prompt", "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}

	if err := s.SoftDeleteThread(ctx, thread.ID); err != nil {
		t.Fatalf("first delete err: %v", err)
	}
	if err := s.SoftDeleteThread(ctx, thread.ID); err != nil {
		t.Fatalf("second delete err: %v", err)
	}
	// Deleting a thread that never existed is a no-op too.
	if err := s.SoftDeleteThread(ctx, "missing-thread"); err != nil {
		t.Fatalf("missing delete err: %v", err)
	}

	got, err := s.GetThread(ctx, thread.ID)
	if err != nil {
		t.Fatalf("GetThread err: %v", err)
	}
	if got == nil || !got.IsDeleted {
		t.Error("soft-deleted thread should remain loadable with isDeleted set")
	}
}

func TestUpdateThread(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	thread, err := s.ResolveOrCreateThread(ctx, "", "prompt", "user-1", "Alice")
	if err != nil {
		t.Fatalf("ResolveOrCreateThread err: %v", err)
	}

	longName := strings.Repeat("n", 35)
	bookmarked := true
	updated, err := s.UpdateThread(ctx, thread.ID, &model.UpdateThreadRequest{
		Name:       &longName,
		Bookmarked: &bookmarked,
	})
	if err != nil {
		t.Fatalf("UpdateThread err: %v", err)
	}
	if want := strings.Repeat("n", 28) + "..."; updated.Name != want {
		t.Errorf("updated name = %q, want %q", updated.Name, want)
	}
	if !updated.Bookmarked {
		t.Error("bookmark flag should be set")
	}

	// Partial update: bookmark only, name untouched.
	unbookmarked := false
	updated, err = s.UpdateThread(ctx, thread.ID, &model.UpdateThreadRequest{Bookmarked: &unbookmarked})
	if err != nil {
		t.Fatalf("UpdateThread err: %v", err)
	}
	if updated.Bookmarked {
		t.Error("bookmark flag should be cleared")
	}
	if updated.Name != strings.Repeat("n", 28)+"..." {
		t.Errorf("name should be unchanged, got %q", updated.Name)
	}

	missing, err := s.UpdateThread(ctx, "absent", &model.UpdateThreadRequest{Name: &longName})
	if err != nil {
		t.Fatalf("UpdateThread err: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing thread, got %+v", missing)
	}
}
