package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a persisted conversation message. It lives in the
// same storage partition as its owning thread's user.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsDeleted bool      `json:"isDeleted"`
}

// ChatTurn is a single turn of conversation history as supplied by the
// caller. Unlike Message it has no persistent identity.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// IsUser reports whether the turn was authored by the end user.
func (t ChatTurn) IsUser() bool {
	return t.Role == RoleUser
}

// LatestUserContent returns the content of the last user-role turn in the
// history, or "" when the history contains no user turn. Only user turns
// are eligible; assistant turns never stand in for a missing question.
func LatestUserContent(history []ChatTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsUser() {
			return history[i].Content
		}
	}
	return ""
}

// ChatRequest is the request body for the chat endpoint.
type ChatRequest struct {
	ThreadID  string            `json:"threadId,omitempty"`
	Messages  []ChatTurn        `json:"messages"`
	Overrides *RequestOverrides `json:"overrides,omitempty"`
}
