// Package model defines data structures for the RAG chat platform.
package model

import (
	"time"
)

// DraftThreadName is the placeholder name given to a thread before its
// first prompt arrives. Threads still carrying it are hidden from listings.
const DraftThreadName = "New Chat"

// MaxThreadNameLen is the longest thread name shown in listings. Names
// derived from longer prompts are truncated to 28 runes plus "...".
const MaxThreadNameLen = 30

// ChatThread represents a conversation thread owned by a single user.
// The owning userId is also the storage partition key.
type ChatThread struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	UserName         string    `json:"userName,omitempty"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"createdAt"`
	LastMessageAt    time.Time `json:"lastMessageAt"`
	Bookmarked       bool      `json:"bookmarked"`
	IsDeleted        bool      `json:"isDeleted"`
	AssistantTitle   string    `json:"assistantTitle,omitempty"`
	AssistantMessage string    `json:"assistantMessage,omitempty"`
}

// ThreadNameFromPrompt derives a display name from the first prompt of a
// thread. Prompts longer than MaxThreadNameLen are cut to 28 runes with an
// ellipsis, giving a name of exactly 31 characters.
func ThreadNameFromPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= MaxThreadNameLen {
		return prompt
	}
	return string(runes[:28]) + "..."
}

// WithName returns a copy of the thread with a new display name. Updates
// build a fresh value rather than mutating the loaded record so that
// partially-applied field updates cannot leak into storage.
func (t ChatThread) WithName(name string) ChatThread {
	t.Name = name
	return t
}

// WithBookmarked returns a copy of the thread with the bookmark flag set.
func (t ChatThread) WithBookmarked(b bool) ChatThread {
	t.Bookmarked = b
	return t
}

// WithDeleted returns a copy of the thread marked as soft-deleted.
func (t ChatThread) WithDeleted() ChatThread {
	t.IsDeleted = true
	return t
}

// Touched returns a copy of the thread with lastMessageAt set to now.
func (t ChatThread) Touched(now time.Time) ChatThread {
	t.LastMessageAt = now
	return t
}

// CreateThreadRequest is the request to create a new (draft) thread.
type CreateThreadRequest struct {
	Name             string `json:"name,omitempty"`
	AssistantTitle   string `json:"assistantTitle,omitempty"`
	AssistantMessage string `json:"assistantMessage,omitempty"`
}

// UpdateThreadRequest is the request to rename or bookmark a thread.
type UpdateThreadRequest struct {
	Name       *string `json:"name,omitempty"`
	Bookmarked *bool   `json:"bookmarked,omitempty"`
}
