package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func putDoc(t *testing.T, client *MemoryClient, kind, id string) Ref {
	t.Helper()
	err := client.Create(context.Background(), Document{
		Kind:      kind,
		Partition: id,
		ID:        id,
		Data:      []byte(`{"id":"` + id + `"}`),
	})
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	return Ref{Partition: id, ID: id}
}

func throttle() error {
	return &ThrottlingError{RetryAfter: time.Millisecond}
}

func TestDeleteWithRetryMissingDocumentSucceeds(t *testing.T) {
	client := NewMemoryClient()

	err := DeleteWithRetry(context.Background(), client, zap.NewNop(), KindFileMetadata,
		Ref{Partition: "f1", ID: "f1"}, DefaultMaxDeleteAttempts)
	if err != nil {
		t.Fatalf("deleting a missing document should succeed, got %v", err)
	}
}

func TestDeleteWithRetryRecoversFromThrottling(t *testing.T) {
	client := NewMemoryClient()
	ref := putDoc(t, client, KindFileMetadata, "f1")
	client.FailNext("delete", "f1", throttle(), throttle())

	err := DeleteWithRetry(context.Background(), client, zap.NewNop(), KindFileMetadata, ref, DefaultMaxDeleteAttempts)
	if err != nil {
		t.Fatalf("DeleteWithRetry err: %v", err)
	}

	if _, err := client.Read(context.Background(), KindFileMetadata, "f1", "f1"); !IsNotFound(err) {
		t.Error("document should be gone after retries")
	}
}

func TestDeleteWithRetryExhaustsAttempts(t *testing.T) {
	client := NewMemoryClient()
	ref := putDoc(t, client, KindFileMetadata, "f1")
	// One throttle per allowed attempt, plus one that must never be consumed.
	client.FailNext("delete", "f1", throttle(), throttle(), throttle(), throttle())

	err := DeleteWithRetry(context.Background(), client, zap.NewNop(), KindFileMetadata, ref, 3)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if _, ok := IsThrottled(err); !ok {
		t.Fatalf("expected the throttling error to surface, got %v", err)
	}

	// Exactly maxAttempts deletes ran: three faults consumed, one left.
	client.faultMu.Lock()
	left := len(client.faults["delete:f1"])
	client.faultMu.Unlock()
	if left != 1 {
		t.Errorf("expected 1 unconsumed fault, got %d", left)
	}

	if _, err := client.Read(context.Background(), KindFileMetadata, "f1", "f1"); err != nil {
		t.Error("document should still exist after failed delete")
	}
}

func TestDeleteWithRetryCancelledContext(t *testing.T) {
	client := NewMemoryClient()
	ref := putDoc(t, client, KindFileMetadata, "f1")
	client.FailNext("delete", "f1", &ThrottlingError{RetryAfter: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DeleteWithRetry(ctx, client, zap.NewNop(), KindFileMetadata, ref, DefaultMaxDeleteAttempts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBulkDeleteRetriesFailedItems(t *testing.T) {
	client := NewMemoryClient()
	refs := []Ref{
		putDoc(t, client, KindFileMetadata, "a"),
		putDoc(t, client, KindFileMetadata, "b"),
		putDoc(t, client, KindFileMetadata, "c"),
	}
	// "b" fails once and succeeds on the retry sweep; "c" keeps failing.
	client.FailNext("delete", "b", throttle())
	client.FailNext("delete", "c", errors.New("write conflict"), errors.New("write conflict"))

	remaining := BulkDelete(context.Background(), client, zap.NewNop(), KindFileMetadata, refs)

	if len(remaining) != 1 || remaining[0].ID != "c" {
		t.Fatalf("expected only c to remain failed, got %v", remaining)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := client.Read(context.Background(), KindFileMetadata, id, id); !IsNotFound(err) {
			t.Errorf("document %s should be deleted", id)
		}
	}
}

func TestBulkDeleteAllSucceed(t *testing.T) {
	client := NewMemoryClient()
	refs := []Ref{
		putDoc(t, client, KindIndexRecord, "a"),
		// Already-gone documents count as deleted.
		{Partition: "ghost", ID: "ghost"},
	}

	remaining := BulkDelete(context.Background(), client, zap.NewNop(), KindIndexRecord, refs)
	if remaining != nil {
		t.Fatalf("expected no remaining failures, got %v", remaining)
	}
}
