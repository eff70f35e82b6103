package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/llm"
	"github.com/agile-ai/ragchat-platform/internal/model"
	"github.com/agile-ai/ragchat-platform/internal/pipeline"
)

type fakeCompletion struct {
	content string
	err     error
}

// fakeLLM returns scripted completions in call order and records every
// request it sees.
type fakeLLM struct {
	script   []fakeCompletion
	requests []*llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.requests = append(f.requests, req)
	if len(f.script) == 0 {
		return nil, errors.New("no scripted completion left")
	}
	next := f.script[0]
	f.script = f.script[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llm.CompletionResponse{Content: next.content}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	return f.Complete(ctx, req)
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return nil }

type fakeSearch struct {
	docs      []model.RetrievedDocument
	images    []model.SupportingImage
	err       error
	lastQuery string
	lastEmbed []float32
}

func (f *fakeSearch) QueryDocuments(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.RetrievedDocument, error) {
	f.lastQuery = query
	f.lastEmbed = embedding
	return f.docs, f.err
}

func (f *fakeSearch) QueryImages(ctx context.Context, query string, embedding []float32, overrides *model.RequestOverrides) ([]model.SupportingImage, error) {
	return f.images, nil
}

type fakeEmbedder struct {
	lastText string
	err      error
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newPipeline(client llm.Client, svc *fakeSearch, embedder llm.Embedder) *pipeline.Pipeline {
	log := zap.NewNop()
	return pipeline.New(
		pipeline.NewQueryReformulator(client, "test-model"),
		pipeline.NewRetriever(svc, embedder, nil, log),
		pipeline.NewAnswerSynthesizer(client, "test-model"),
		pipeline.NewFollowupGenerator(client, "test-model"),
		"https://docs.example.com/",
		log,
	)
}

func userTurn(content string) []model.ChatTurn {
	return []model.ChatTurn{{Role: model.RoleUser, Content: content}}
}

func TestRunGroundedAnswerWithFollowups(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		{content: "health plan coverage"},
		{content: `{"answer":"The plan covers dental [plan.pdf].","thoughts":"Used plan.pdf for coverage details."}`},
		{content: `["What is the deductible?","What is the co-pay?","Is vision included?"]`},
	}}
	svc := &fakeSearch{docs: []model.RetrievedDocument{
		{Title: "plan.pdf", Content: "Dental is covered.", Score: 0.9},
	}}

	p := newPipeline(client, svc, &fakeEmbedder{})
	resp, err := p.Run(context.Background(), userTurn("what does the plan cover?"), &model.RequestOverrides{
		SuggestFollowupQuestions: true,
	})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if !strings.Contains(resp.AnswerText, "[plan.pdf]") {
		t.Errorf("answer missing citation: %q", resp.AnswerText)
	}
	if resp.Thoughts == "" {
		t.Error("thoughts should not be empty")
	}
	if len(resp.SupportingDocuments) != 1 {
		t.Fatalf("expected 1 supporting document, got %d", len(resp.SupportingDocuments))
	}
	if len(resp.FollowupQuestions) != 3 {
		t.Fatalf("expected 3 followup questions, got %d", len(resp.FollowupQuestions))
	}
	if got := strings.Count(resp.AnswerText, "<<"); got != 3 {
		t.Errorf("expected 3 inlined followups, found %d in %q", got, resp.AnswerText)
	}
	if !strings.Contains(resp.AnswerText, " <<What is the deductible?>> ") {
		t.Errorf("followup not inlined verbatim: %q", resp.AnswerText)
	}
	if resp.CitationBaseURL != "https://docs.example.com/" {
		t.Errorf("unexpected citation base URL: %q", resp.CitationBaseURL)
	}

	// Search text is the reformulated query, not the raw question.
	if svc.lastQuery != "health plan coverage" {
		t.Errorf("search query = %q, want reformulated query", svc.lastQuery)
	}
}

func TestRunEmptyRetrievalUsesNoSourceBlock(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		{content: "some query"},
		{content: `{"answer":"I don't know.","thoughts":"No sources were found."}`},
	}}
	svc := &fakeSearch{}

	p := newPipeline(client, svc, &fakeEmbedder{})
	resp, err := p.Run(context.Background(), userTurn("anything?"), nil)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if len(resp.SupportingDocuments) != 0 {
		t.Errorf("expected no supporting documents, got %d", len(resp.SupportingDocuments))
	}

	// The synthesis prompt must carry the fixed no-source block.
	synthReq := client.requests[1]
	last := synthReq.Messages[len(synthReq.Messages)-1]
	if !strings.Contains(last.Content, pipeline.NoSourceAvailable) {
		t.Errorf("synthesis prompt missing %q:\n%s", pipeline.NoSourceAvailable, last.Content)
	}
}

func TestRunMalformedFollowupsDegrades(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		{content: "query"},
		{content: `{"answer":"Answer.","thoughts":"Thoughts."}`},
		{content: "this is not a json list"},
	}}
	svc := &fakeSearch{docs: []model.RetrievedDocument{{Title: "a.pdf", Content: "x"}}}

	p := newPipeline(client, svc, &fakeEmbedder{})
	resp, err := p.Run(context.Background(), userTurn("q"), &model.RequestOverrides{
		SuggestFollowupQuestions: true,
	})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if len(resp.FollowupQuestions) != 0 {
		t.Errorf("expected no followups, got %v", resp.FollowupQuestions)
	}
	if resp.FollowupQuestions == nil {
		t.Error("followups should be an empty slice, not nil")
	}
	if strings.Contains(resp.AnswerText, "<<") {
		t.Errorf("no followup markers expected in %q", resp.AnswerText)
	}
}

func TestRunMalformedAnswerFails(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		{content: "query"},
		{content: `{"answer":"missing the thoughts key"}`},
	}}
	svc := &fakeSearch{docs: []model.RetrievedDocument{{Title: "a.pdf", Content: "x"}}}

	p := newPipeline(client, svc, &fakeEmbedder{})
	_, err := p.Run(context.Background(), userTurn("q"), nil)
	if err == nil {
		t.Fatal("expected error for schema-violating answer")
	}
	var malformed *pipeline.MalformedModelOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedModelOutputError, got %T: %v", err, err)
	}
}

func TestRunRejectsHistoryWithoutUserTurn(t *testing.T) {
	p := newPipeline(&fakeLLM{}, &fakeSearch{}, &fakeEmbedder{})

	for _, history := range [][]model.ChatTurn{
		nil,
		{{Role: model.RoleAssistant, Content: "hello"}},
	} {
		_, err := p.Run(context.Background(), history, nil)
		if err == nil {
			t.Fatal("expected precondition error")
		}
		if !pipeline.IsPrecondition(err) {
			t.Fatalf("expected precondition error, got %v", err)
		}
	}
}

func TestRunReformulationFailureFallsBack(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		{err: errors.New("model unavailable")},
		{content: `{"answer":"Answer.","thoughts":"Thoughts."}`},
	}}
	svc := &fakeSearch{docs: []model.RetrievedDocument{{Title: "a.pdf", Content: "x"}}}

	p := newPipeline(client, svc, &fakeEmbedder{})
	resp, err := p.Run(context.Background(), userTurn("raw question text"), nil)
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if resp.AnswerText != "Answer." {
		t.Errorf("unexpected answer: %q", resp.AnswerText)
	}
	if svc.lastQuery != "raw question text" {
		t.Errorf("search query = %q, want raw question fallback", svc.lastQuery)
	}
}

func TestRunVectorModeSkipsReformulation(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		// Only synthesis runs against the model in vector mode.
		{content: `{"answer":"Answer.","thoughts":"Thoughts."}`},
	}}
	svc := &fakeSearch{docs: []model.RetrievedDocument{{Title: "a.pdf", Content: "x"}}}
	embedder := &fakeEmbedder{}

	p := newPipeline(client, svc, embedder)
	_, err := p.Run(context.Background(), userTurn("vector question"), &model.RequestOverrides{
		RetrievalMode: model.RetrievalModeVector,
	})
	if err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if len(client.requests) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(client.requests))
	}
	if svc.lastQuery != "" {
		t.Errorf("vector mode should send empty search text, got %q", svc.lastQuery)
	}
	if len(svc.lastEmbed) == 0 {
		t.Error("vector mode should send an embedding")
	}
	if embedder.lastText != "vector question" {
		t.Errorf("embedding computed from %q, want the raw question", embedder.lastText)
	}
}

func TestRunRetrievalFailureFails(t *testing.T) {
	client := &fakeLLM{script: []fakeCompletion{
		{content: "query"},
	}}
	svc := &fakeSearch{err: errors.New("index unreachable")}

	p := newPipeline(client, svc, &fakeEmbedder{})
	_, err := p.Run(context.Background(), userTurn("q"), nil)
	if err == nil {
		t.Fatal("expected retrieval error")
	}
	var re *pipeline.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetrievalError, got %T: %v", err, err)
	}
}

func TestContentBlock(t *testing.T) {
	if got := pipeline.ContentBlock(nil); got != pipeline.NoSourceAvailable {
		t.Errorf("empty retrieval block = %q", got)
	}

	docs := []model.RetrievedDocument{
		{Title: "a.pdf", Content: "first"},
		{Title: "b.pdf", Content: "second"},
	}
	want := "a.pdf:first\rb.pdf:second"
	if got := pipeline.ContentBlock(docs); got != want {
		t.Errorf("ContentBlock = %q, want %q", got, want)
	}
}
