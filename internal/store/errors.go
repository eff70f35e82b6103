// Package store provides the durable, partition-keyed chat-state layer:
// a generic document client with filter queries, a retry wrapper for
// throttled operations, and the chat-thread/message store built on top.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document does not exist. Deletes treat it
// as success (idempotent delete).
var ErrNotFound = errors.New("document not found")

// ErrConflict is returned when creating a document whose id already exists.
var ErrConflict = errors.New("document already exists")

// ThrottlingError signals that the backend asked the caller to slow down.
// RetryAfter is the store-reported wait interval; zero means the caller
// should fall back to a one-second default.
type ThrottlingError struct {
	RetryAfter time.Duration
}

func (e *ThrottlingError) Error() string {
	return fmt.Sprintf("store throttled, retry after %s", e.RetryAfter)
}

// IsNotFound reports whether err signals a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsThrottled returns the throttling signal carried by err, if any.
func IsThrottled(err error) (*ThrottlingError, bool) {
	var te *ThrottlingError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
