package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/model"
	"github.com/agile-ai/ragchat-platform/pkg/metrics"
)

// Pipeline composes reformulation, retrieval, synthesis and follow-up
// generation into one request/response cycle. Each run is a fresh linear
// traversal with no state shared across runs.
type Pipeline struct {
	reformulator *QueryReformulator
	retriever    *Retriever
	synthesizer  *AnswerSynthesizer
	followups    *FollowupGenerator

	citationBaseURL string
	logger          *zap.Logger
	tracer          trace.Tracer
}

// New creates a pipeline from its stages.
func New(
	reformulator *QueryReformulator,
	retriever *Retriever,
	synthesizer *AnswerSynthesizer,
	followups *FollowupGenerator,
	citationBaseURL string,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		reformulator:    reformulator,
		retriever:       retriever,
		synthesizer:     synthesizer,
		followups:       followups,
		citationBaseURL: citationBaseURL,
		logger:          logger,
		tracer:          otel.Tracer("pipeline"),
	}
}

// Run answers the latest user question in history, grounded in retrieved
// documents. It returns either a fully-populated AnswerResponse or an
// error; never a partially-populated success.
func (p *Pipeline) Run(ctx context.Context, history []model.ChatTurn, overrides *model.RequestOverrides) (*model.AnswerResponse, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	question := model.LatestUserContent(history)
	if question == "" {
		metrics.RecordPipelineRun("precondition_failed")
		return nil, &PreconditionError{Reason: "history contains no user message"}
	}

	mode := overrides.Mode()
	temperature := overrides.TemperatureOrDefault()

	// Stage: reformulating. Vector-only retrieval needs no query text.
	query := ""
	if mode != model.RetrievalModeVector {
		reformulated, err := p.runStage(ctx, StageReformulating, func(ctx context.Context) (string, error) {
			return p.reformulator.Reformulate(ctx, question)
		})
		if err != nil {
			// Policy: reformulation failure degrades to the raw question
			// text rather than failing the run.
			p.logger.Warn("query reformulation failed, falling back to raw question",
				zap.Error(err),
			)
			reformulated = question
		}
		query = reformulated
	}

	// Stage: retrieving.
	var docs []model.RetrievedDocument
	var images []model.SupportingImage
	_, err := p.runStage(ctx, StageRetrieving, func(ctx context.Context) (string, error) {
		var err error
		docs, images, err = p.retriever.Retrieve(ctx, question, query, overrides)
		return "", err
	})
	if err != nil {
		metrics.RecordPipelineRun("retrieval_failed")
		return nil, err
	}
	metrics.ObserveRetrievedDocuments(len(docs))

	sourceBlock := ContentBlock(docs)

	// Stage: synthesizing.
	var answer, thoughts string
	_, err = p.runStage(ctx, StageSynthesizing, func(ctx context.Context) (string, error) {
		var err error
		answer, thoughts, err = p.synthesizer.Synthesize(ctx, history, sourceBlock, temperature)
		return "", err
	})
	if err != nil {
		metrics.RecordPipelineRun("synthesis_failed")
		return nil, err
	}

	// Stage: generating followups (optional, degradable).
	var followupQuestions []string
	if overrides != nil && overrides.SuggestFollowupQuestions {
		questions, err := p.runStageList(ctx, StageGeneratingFollowups, func(ctx context.Context) ([]string, error) {
			return p.followups.Generate(ctx, answer, temperature)
		})
		if err != nil {
			p.logger.Warn("followup generation failed, returning answer without followups",
				zap.Error(err),
			)
		} else {
			for _, q := range questions {
				answer += " <<" + q + ">> "
			}
			followupQuestions = questions
		}
	}
	if followupQuestions == nil {
		followupQuestions = []string{}
	}

	metrics.RecordPipelineRun("success")
	span.SetAttributes(
		attribute.Int("pipeline.documents", len(docs)),
		attribute.Int("pipeline.followups", len(followupQuestions)),
	)

	return &model.AnswerResponse{
		AnswerText:          answer,
		Thoughts:            thoughts,
		SupportingDocuments: docs,
		SupportingImages:    images,
		FollowupQuestions:   followupQuestions,
		CitationBaseURL:     p.citationBaseURL,
	}, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.RecordPipelineStage(string(stage), status, time.Since(start).Seconds())

	return out, err
}

func (p *Pipeline) runStageList(ctx context.Context, stage Stage, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	start := time.Now()
	out, err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	metrics.RecordPipelineStage(string(stage), status, time.Since(start).Seconds())

	return out, err
}
