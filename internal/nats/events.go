package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/agile-ai/ragchat-platform/internal/model"
)

const (
	// StreamName is the name of the answer-events stream.
	StreamName = "ANSWERS"

	// SubjectPrefix is the prefix for all answer subjects.
	SubjectPrefix = "answers"
)

// AnswerEvent records a completed pipeline run for downstream consumers
// (audit, analytics). It carries the final answer shape, never partial
// stream chunks.
type AnswerEvent struct {
	ThreadID          string    `json:"threadId"`
	UserID            string    `json:"userId"`
	AnswerText        string    `json:"answerText"`
	DocumentCount     int       `json:"documentCount"`
	FollowupQuestions []string  `json:"followupQuestions"`
	CompletedAt       time.Time `json:"completedAt"`
}

// EventPublisher publishes answer events to JetStream.
type EventPublisher struct {
	js jetstream.JetStream
}

// NewEventPublisher creates an event publisher.
func NewEventPublisher(js jetstream.JetStream) *EventPublisher {
	return &EventPublisher{js: js}
}

// EnsureStream ensures the answer stream exists.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Completed grounded answers",
	})
	if err != nil {
		return fmt.Errorf("failed to create answer stream: %w", err)
	}
	return nil
}

// PublishAnswer publishes a completed answer for a thread.
func (p *EventPublisher) PublishAnswer(ctx context.Context, userID, threadID string, resp *model.AnswerResponse) (uint64, error) {
	event := AnswerEvent{
		ThreadID:          threadID,
		UserID:            userID,
		AnswerText:        resp.AnswerText,
		DocumentCount:     len(resp.SupportingDocuments),
		FollowupQuestions: resp.FollowupQuestions,
		CompletedAt:       time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal answer event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, userID, threadID)
	ack, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish answer event: %w", err)
	}
	return ack.Sequence, nil
}
