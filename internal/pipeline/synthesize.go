package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agile-ai/ragchat-platform/internal/llm"
	"github.com/agile-ai/ragchat-platform/internal/model"
)

const personaSystemPrompt = "You are a system assistant who helps the company employees with their questions. Be brief in your answers"

const answerFormatPrompt = ` ## Source ##
%s
## End ##

You answer needs to be a json object with the following format.
{
    "answer": // the answer to the question, add a source reference to the end of each sentence. e.g. Apple is a fruit [reference1.pdf][reference2.pdf]. If no source available, put the answer as I don't know.
    "thoughts": // brief thoughts on how you came up with the answer, e.g. what sources you used, what you thought about, etc.
}`

// synthesisMaxTokens caps the answer completion.
const synthesisMaxTokens = 1024

// AnswerSynthesizer builds a grounded prompt from retrieved content and
// conversation history and parses the model's strict JSON reply.
type AnswerSynthesizer struct {
	client llm.Client
	model  string
}

// NewAnswerSynthesizer creates a synthesizer backed by the given client.
func NewAnswerSynthesizer(client llm.Client, modelName string) *AnswerSynthesizer {
	return &AnswerSynthesizer{client: client, model: modelName}
}

type answerEnvelope struct {
	Answer   *string `json:"answer"`
	Thoughts *string `json:"thoughts"`
}

// Synthesize invokes the model once over the replayed history plus the
// source block and returns the parsed answer and thoughts. A reply missing
// either key is a MalformedModelOutputError; the output is free-form and
// re-asking with the same prompt cannot fix a schema violation, so it
// surfaces to the caller.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, history []model.ChatTurn, sourceBlock string, temperature float64) (answer, thoughts string, err error) {
	messages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := "assistant"
		if turn.IsUser() {
			role = "user"
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, llm.ChatMessage{
		Role:    "user",
		Content: fmt.Sprintf(answerFormatPrompt, sourceBlock),
	})

	resp, err := s.client.Complete(ctx, &llm.CompletionRequest{
		Model:       s.model,
		System:      personaSystemPrompt,
		Messages:    messages,
		MaxTokens:   synthesisMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", "", &GenerationError{Op: "answer synthesis", Err: err}
	}

	var envelope answerEnvelope
	if err := json.Unmarshal([]byte(stripCodeFences(resp.Content)), &envelope); err != nil {
		return "", "", &MalformedModelOutputError{Op: "answer synthesis", Err: err}
	}
	if envelope.Answer == nil {
		return "", "", &MalformedModelOutputError{Op: "answer synthesis", Err: errors.New("missing answer key")}
	}
	if envelope.Thoughts == nil {
		return "", "", &MalformedModelOutputError{Op: "answer synthesis", Err: errors.New("missing thoughts key")}
	}

	return *envelope.Answer, *envelope.Thoughts, nil
}

// stripCodeFences removes a surrounding ```json fence when the model adds
// one despite being told not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
