package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/llm"
	"github.com/agile-ai/ragchat-platform/internal/model"
	"github.com/agile-ai/ragchat-platform/internal/search"
)

// NoSourceAvailable is the content block used for synthesis when retrieval
// returns zero documents. Empty retrieval is valid, not an error.
const NoSourceAvailable = "no source available."

// Retriever queries the document index, optionally computing an embedding
// for vector and hybrid modes, and normalizes results into a fixed content
// block. When an image vectorizer is configured it also retrieves
// supporting images, concurrently with document retrieval.
type Retriever struct {
	search   search.Service
	embedder llm.Embedder
	vision   llm.Embedder
	logger   *zap.Logger
}

// NewRetriever creates a retriever. vision may be nil, which disables
// supporting-image retrieval.
func NewRetriever(svc search.Service, embedder llm.Embedder, vision llm.Embedder, logger *zap.Logger) *Retriever {
	return &Retriever{
		search:   svc,
		embedder: embedder,
		vision:   vision,
		logger:   logger,
	}
}

type imageRetrieval struct {
	images []model.SupportingImage
	err    error
}

// Retrieve runs document (and optional image) retrieval. question is the
// raw user question, used for embedding; query is the reformulated search
// text, used for keyword search and image vectorization.
func (r *Retriever) Retrieve(ctx context.Context, question, query string, overrides *model.RequestOverrides) ([]model.RetrievedDocument, []model.SupportingImage, error) {
	mode := overrides.Mode()

	// Embeddings come from the raw question, not the reformulated query.
	var embedding []float32
	if mode != model.RetrievalModeText && r.embedder != nil {
		var err error
		embedding, err = r.embedder.EmbedText(ctx, question)
		if err != nil {
			return nil, nil, &RetrievalError{Err: err}
		}
	}

	searchText := query
	if mode == model.RetrievalModeVector {
		searchText = ""
	}

	// Image vectorization only needs the query text, so it can overlap
	// with document retrieval.
	var imageCh chan imageRetrieval
	if r.vision != nil {
		imageCh = make(chan imageRetrieval, 1)
		imageQuery := query
		if imageQuery == "" {
			imageQuery = question
		}
		go func() {
			vector, err := r.vision.EmbedText(ctx, imageQuery)
			if err != nil {
				imageCh <- imageRetrieval{err: err}
				return
			}
			images, err := r.search.QueryImages(ctx, imageQuery, vector, overrides)
			imageCh <- imageRetrieval{images: images, err: err}
		}()
	}

	docs, err := r.search.QueryDocuments(ctx, searchText, embedding, overrides)
	if err != nil {
		return nil, nil, &RetrievalError{Err: err}
	}

	var images []model.SupportingImage
	if imageCh != nil {
		result := <-imageCh
		if result.err != nil {
			return nil, nil, &RetrievalError{Err: result.err}
		}
		images = result.images
	}

	r.logger.Debug("retrieval complete",
		zap.Int("documents", len(docs)),
		zap.Int("images", len(images)),
		zap.String("mode", string(mode)),
	)

	return docs, images, nil
}

// ContentBlock joins retrieved documents into the source block fed to
// synthesis, or the NoSourceAvailable literal when nothing was retrieved.
func ContentBlock(docs []model.RetrievedDocument) string {
	if len(docs) == 0 {
		return NoSourceAvailable
	}

	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Title + ":" + d.Content
	}
	return strings.Join(parts, "\r")
}
