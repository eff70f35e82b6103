package model

// RetrievedDocument is a ranked document returned by the search index.
// Documents are produced per pipeline run and never persisted on their own.
type RetrievedDocument struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SupportingImage is an image retrieved from the image index to support
// an answer.
type SupportingImage struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// AnswerResponse is the unit returned to the caller: a citation-annotated
// answer plus the evidence that produced it.
type AnswerResponse struct {
	AnswerText          string              `json:"answerText"`
	Thoughts            string              `json:"thoughts"`
	SupportingDocuments []RetrievedDocument `json:"supportingDocuments"`
	SupportingImages    []SupportingImage   `json:"supportingImages,omitempty"`
	FollowupQuestions   []string            `json:"followupQuestions"`
	CitationBaseURL     string              `json:"citationBaseUrl,omitempty"`
}

// RetrievalMode selects the index query strategy.
type RetrievalMode string

const (
	RetrievalModeText   RetrievalMode = "Text"
	RetrievalModeVector RetrievalMode = "Vector"
	RetrievalModeHybrid RetrievalMode = "Hybrid"
)

// DefaultTop is the retrieval count used when the caller does not override it.
const DefaultTop = 3

// DefaultTemperature is the sampling temperature used when not overridden.
const DefaultTemperature = 0.7

// RequestOverrides carries the per-request pipeline options.
type RequestOverrides struct {
	Top                      int           `json:"top,omitempty"`
	SemanticCaptions         bool          `json:"semanticCaptions,omitempty"`
	SemanticRanker           bool          `json:"semanticRanker,omitempty"`
	ExcludeCategory          string        `json:"excludeCategory,omitempty"`
	RetrievalMode            RetrievalMode `json:"retrievalMode,omitempty"`
	Temperature              *float64      `json:"temperature,omitempty"`
	SuggestFollowupQuestions bool          `json:"suggestFollowupQuestions,omitempty"`
}

// TopOrDefault returns the retrieval count, defaulting to DefaultTop.
func (o *RequestOverrides) TopOrDefault() int {
	if o == nil || o.Top <= 0 {
		return DefaultTop
	}
	return o.Top
}

// TemperatureOrDefault returns the sampling temperature, defaulting to
// DefaultTemperature.
func (o *RequestOverrides) TemperatureOrDefault() float64 {
	if o == nil || o.Temperature == nil {
		return DefaultTemperature
	}
	return *o.Temperature
}

// Mode returns the retrieval mode, defaulting to hybrid.
func (o *RequestOverrides) Mode() RetrievalMode {
	if o == nil || o.RetrievalMode == "" {
		return RetrievalModeHybrid
	}
	return o.RetrievalMode
}
