package pipeline

import (
	"context"
	"strings"

	"github.com/agile-ai/ragchat-platform/internal/llm"
)

const reformulateSystemPrompt = `You are a helpful AI assistant, generate search query for followup question.
Make your respond simple and precise. Return the query only, do not return any other text.
e.g.
Northwind Health Plus AND standard plan.
standard plan AND dental AND employee benefit.
`

// QueryReformulator distills the user's question into a compact search
// query with a single language-model call.
type QueryReformulator struct {
	client llm.Client
	model  string
}

// NewQueryReformulator creates a reformulator backed by the given client.
func NewQueryReformulator(client llm.Client, model string) *QueryReformulator {
	return &QueryReformulator{client: client, model: model}
}

// Reformulate returns a search query for the question. There is no retry:
// on model failure the call returns a GenerationError and the caller falls
// back to the raw question text.
func (r *QueryReformulator) Reformulate(ctx context.Context, question string) (string, error) {
	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model:  r.model,
		System: reformulateSystemPrompt,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", &GenerationError{Op: "query reformulation", Err: err}
	}

	query := strings.TrimSpace(resp.Content)
	if query == "" {
		return "", &GenerationError{Op: "query reformulation", Err: errEmptyCompletion}
	}
	return query, nil
}
