package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketName is the JetStream key-value bucket holding all document kinds.
const BucketName = "ragchat-state"

// NATSKVClient is a DocumentClient backed by a NATS JetStream key-value
// bucket. Keys are laid out as kind.partition.id so a kind scan is a
// prefix listing; replaces are revision-checked for optimistic concurrency.
type NATSKVClient struct {
	kv jetstream.KeyValue
}

// NewNATSKVClient creates (or binds to) the state bucket.
func NewNATSKVClient(ctx context.Context, js jetstream.JetStream) (*NATSKVClient, error) {
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "chat threads, messages and administrative records",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create state bucket: %w", err)
	}
	return &NATSKVClient{kv: kv}, nil
}

// encodeSegment makes an arbitrary partition or id value safe for use in
// a KV key (KV keys permit only [A-Za-z0-9-_/=.]).
func encodeSegment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func kvKey(kind, partition, id string) string {
	return kind + "." + encodeSegment(partition) + "." + encodeSegment(id)
}

// Create writes a new document.
func (c *NATSKVClient) Create(ctx context.Context, doc Document) error {
	_, err := c.kv.Create(ctx, kvKey(doc.Kind, doc.Partition, doc.ID), doc.Data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrConflict
		}
		return fmt.Errorf("kv create failed: %w", err)
	}
	return nil
}

// Read returns a document body.
func (c *NATSKVClient) Read(ctx context.Context, kind, partition, id string) ([]byte, error) {
	entry, err := c.kv.Get(ctx, kvKey(kind, partition, id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv read failed: %w", err)
	}
	return entry.Value(), nil
}

// Replace overwrites an existing document, checked against the revision
// read so concurrent replaces cannot silently clobber each other.
func (c *NATSKVClient) Replace(ctx context.Context, doc Document) error {
	key := kvKey(doc.Kind, doc.Partition, doc.ID)

	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("kv read before replace failed: %w", err)
	}

	if _, err := c.kv.Update(ctx, key, doc.Data, entry.Revision()); err != nil {
		return fmt.Errorf("kv replace failed: %w", err)
	}
	return nil
}

// Delete removes a document.
func (c *NATSKVClient) Delete(ctx context.Context, kind, partition, id string) error {
	key := kvKey(kind, partition, id)

	if _, err := c.kv.Get(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("kv read before delete failed: %w", err)
	}

	if err := c.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("kv delete failed: %w", err)
	}
	return nil
}

type kvResult struct {
	data     []byte
	revision uint64
}

// Query scans the kind's key prefix and returns matching bodies ordered by
// write revision, which preserves insertion order.
func (c *NATSKVClient) Query(ctx context.Context, kind string, filters []Filter) ([][]byte, error) {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv key listing failed: %w", err)
	}

	prefix := kind + "."
	var results []kvResult
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := c.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("kv read during query failed: %w", err)
		}
		if matchesFilters(entry.Value(), filters) {
			results = append(results, kvResult{data: entry.Value(), revision: entry.Revision()})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].revision < results[j].revision
	})

	bodies := make([][]byte, len(results))
	for i, r := range results {
		bodies[i] = r.data
	}
	return bodies, nil
}
