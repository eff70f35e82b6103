package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/pkg/metrics"
)

// DefaultMaxDeleteAttempts is the attempt ceiling for DeleteWithRetry.
const DefaultMaxDeleteAttempts = 3

// defaultRetryDelay is the wait used when the store throttles without
// reporting a retry interval.
const defaultRetryDelay = time.Second

// DeleteWithRetry deletes a document, absorbing throttling with backoff.
// A not-found document counts as already deleted and succeeds with zero
// retries. Throttling waits the store-reported interval (or one second)
// and retries; any error past maxAttempts is surfaced.
func DeleteWithRetry(ctx context.Context, client DocumentClient, logger *zap.Logger, kind string, ref Ref, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxDeleteAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := client.Delete(ctx, kind, ref.Partition, ref.ID)
		if err == nil {
			return nil
		}
		if IsNotFound(err) {
			logger.Debug("document already deleted",
				zap.String("kind", kind),
				zap.String("id", ref.ID),
			)
			return nil
		}

		lastErr = err
		metrics.RecordStoreRetry(kind)

		if te, ok := IsThrottled(err); ok {
			delay := te.RetryAfter
			if delay <= 0 {
				delay = defaultRetryDelay
			}
			logger.Warn("store throttled delete, backing off",
				zap.String("kind", kind),
				zap.String("id", ref.ID),
				zap.Int("attempt", attempt),
				zap.Duration("retry_after", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		logger.Warn("delete failed, retrying",
			zap.String("kind", kind),
			zap.String("id", ref.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	logger.Error("delete exhausted retry attempts",
		zap.String("kind", kind),
		zap.String("id", ref.ID),
		zap.Int("max_attempts", maxAttempts),
		zap.Error(lastErr),
	)
	return lastErr
}

// deleteOnce performs a single delete attempt. Not-found is success;
// throttling waits out the reported interval before reporting failure so
// the caller's retry pass does not hammer the store.
func deleteOnce(ctx context.Context, client DocumentClient, logger *zap.Logger, kind string, ref Ref) error {
	err := client.Delete(ctx, kind, ref.Partition, ref.ID)
	if err == nil || IsNotFound(err) {
		return nil
	}

	if te, ok := IsThrottled(err); ok {
		delay := te.RetryAfter
		if delay <= 0 {
			delay = defaultRetryDelay
		}
		logger.Warn("store throttled bulk delete item",
			zap.String("kind", kind),
			zap.String("id", ref.ID),
			zap.Duration("retry_after", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		return err
	}

	logger.Warn("bulk delete item failed",
		zap.String("kind", kind),
		zap.String("id", ref.ID),
		zap.Error(err),
	)
	return err
}

// BulkDelete deletes a batch of documents: one concurrent attempt per item,
// failures collected through a channel, then exactly one sequential retry
// sweep over the failed set. The refs still failing after the sweep are
// returned; an empty result means every item was deleted (or already gone).
func BulkDelete(ctx context.Context, client DocumentClient, logger *zap.Logger, kind string, refs []Ref) []Ref {
	failures := make(chan Ref, len(refs))

	var wg sync.WaitGroup
	for _, ref := range refs {
		wg.Add(1)
		go func(ref Ref) {
			defer wg.Done()
			if err := deleteOnce(ctx, client, logger, kind, ref); err != nil {
				failures <- ref
			}
		}(ref)
	}
	wg.Wait()
	close(failures)

	var failed []Ref
	for ref := range failures {
		failed = append(failed, ref)
	}
	if len(failed) == 0 {
		return nil
	}

	logger.Info("retrying failed bulk deletions",
		zap.String("kind", kind),
		zap.Int("count", len(failed)),
	)

	var remaining []Ref
	for _, ref := range failed {
		metrics.RecordStoreRetry(kind)
		if err := deleteOnce(ctx, client, logger, kind, ref); err != nil {
			remaining = append(remaining, ref)
		}
	}
	return remaining
}
