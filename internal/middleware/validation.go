package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/agile-ai/ragchat-platform/internal/model"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateThreadID validates a thread ID.
func ValidateThreadID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid thread ID format")
	}
	return nil
}

// ValidateHistory validates the conversation history of a chat request.
// The pipeline's own precondition also rejects user-less histories; the
// check here short-circuits before the thread is touched.
func ValidateHistory(history []model.ChatTurn) error {
	if len(history) == 0 {
		return errors.New("messages cannot be empty")
	}
	for _, turn := range history {
		switch turn.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
		default:
			return errors.New("invalid message role")
		}
		if err := ValidateMessageContent(turn.Content); err != nil {
			return err
		}
	}
	if model.LatestUserContent(history) == "" {
		return errors.New("messages must contain at least one user message")
	}
	return nil
}

// ValidateOverrides validates request overrides.
func ValidateOverrides(o *model.RequestOverrides) error {
	if o == nil {
		return nil
	}
	if o.Top < 0 || o.Top > 50 {
		return errors.New("top must be between 0 and 50")
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	switch o.RetrievalMode {
	case "", model.RetrievalModeText, model.RetrievalModeVector, model.RetrievalModeHybrid:
	default:
		return errors.New("invalid retrieval mode")
	}
	return nil
}
