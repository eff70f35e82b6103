package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agile-ai/ragchat-platform/internal/llm"
)

const followupSystemPrompt = "You are a helpful AI assistant"

const followupPrompt = `Generate three follow-up question based on the answer you just generated.
# Answer
%s

# Format of the response
Return the follow-up question as a json string list. Don't put your answer between ` + "```json and ```" + `, return the json string directly.
e.g.
[
    "What is the deductible?",
    "What is the co-pay?",
    "What is the out-of-pocket maximum?"
]`

// MaxFollowupQuestions caps the number of follow-up questions returned.
const MaxFollowupQuestions = 3

// FollowupGenerator asks the model for follow-up questions derived from a
// synthesized answer.
type FollowupGenerator struct {
	client llm.Client
	model  string
}

// NewFollowupGenerator creates a follow-up generator backed by the given
// client.
func NewFollowupGenerator(client llm.Client, modelName string) *FollowupGenerator {
	return &FollowupGenerator{client: client, model: modelName}
}

// Generate returns up to three follow-up questions for the answer. Errors
// here are reported to the caller but are non-fatal for the run: the
// pipeline returns the answer without follow-ups instead of failing.
func (g *FollowupGenerator) Generate(ctx context.Context, answer string, temperature float64) ([]string, error) {
	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:  g.model,
		System: followupSystemPrompt,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: fmt.Sprintf(followupPrompt, answer)},
		},
		MaxTokens:   synthesisMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, &GenerationError{Op: "followup generation", Err: err}
	}

	var questions []string
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Content)), &questions); err != nil {
		return nil, &MalformedModelOutputError{Op: "followup generation", Err: err}
	}

	if len(questions) > MaxFollowupQuestions {
		questions = questions[:MaxFollowupQuestions]
	}
	return questions, nil
}
