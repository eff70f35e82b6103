package store

import (
	"context"
	"encoding/json"
)

// Document kinds stored in the shared document container. Each record
// carries its kind as a type discriminator, mirroring the canonical
// partition-per-user layout.
const (
	KindChatThread   = "CHAT_THREAD"
	KindChatMessage  = "CHAT_MESSAGE"
	KindFileMetadata = "FILE_METADATA"
	KindIndexRecord  = "INDEX_RECORD"
)

// Operator is a filter comparison operator. The query surface supports
// equality and inequality only.
type Operator string

const (
	OpEqual    Operator = "eq"
	OpNotEqual Operator = "ne"
)

// Filter is a single query predicate over a JSON field of the stored
// document.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Document is a stored record: an opaque JSON body addressed by kind,
// partition key and id.
type Document struct {
	Kind      string
	Partition string
	ID        string
	Data      []byte
}

// Ref addresses a stored document within a kind.
type Ref struct {
	Partition string
	ID        string
}

// DocumentClient is the partition-keyed document store. Implementations
// must report missing documents as ErrNotFound and backend rate limiting
// as *ThrottlingError so the retry wrapper can distinguish them.
type DocumentClient interface {
	// Create writes a new document; ErrConflict if the id exists.
	Create(ctx context.Context, doc Document) error

	// Read returns the document body.
	Read(ctx context.Context, kind, partition, id string) ([]byte, error)

	// Replace overwrites an existing document; ErrNotFound if absent.
	Replace(ctx context.Context, doc Document) error

	// Delete removes a document; ErrNotFound if absent.
	Delete(ctx context.Context, kind, partition, id string) error

	// Query returns the bodies of all documents of a kind matching every
	// filter, in insertion order.
	Query(ctx context.Context, kind string, filters []Filter) ([][]byte, error)
}

// matchesFilters reports whether a JSON document body satisfies all
// filters. Missing fields never match OpEqual and always match OpNotEqual.
func matchesFilters(data []byte, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}

	for _, f := range filters {
		value, ok := fields[f.Field]
		switch f.Op {
		case OpEqual:
			if !ok || !jsonEqual(value, f.Value) {
				return false
			}
		case OpNotEqual:
			if ok && jsonEqual(value, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// jsonEqual compares a decoded JSON value against a filter value,
// normalizing numeric types to float64 the way encoding/json decodes them.
func jsonEqual(got, want any) bool {
	switch w := want.(type) {
	case int:
		f, ok := got.(float64)
		return ok && f == float64(w)
	case int64:
		f, ok := got.(float64)
		return ok && f == float64(w)
	case float64:
		f, ok := got.(float64)
		return ok && f == w
	default:
		return got == want
	}
}
