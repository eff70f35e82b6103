// Package pipeline implements the grounded answer-generation pipeline:
// query reformulation, document retrieval, grounded synthesis, and
// follow-up generation composed into a single linear run.
package pipeline

import (
	"errors"
	"fmt"
)

// Stage identifies a pipeline stage for logging and metrics.
type Stage string

const (
	StageReformulating       Stage = "reformulating"
	StageRetrieving          Stage = "retrieving"
	StageSynthesizing        Stage = "synthesizing"
	StageGeneratingFollowups Stage = "generating_followups"
	StageComplete            Stage = "complete"
)

// PreconditionError reports malformed input rejected before any remote
// call is made.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// RetrievalError reports a search-backend failure. Retrieval is not
// retried; the run fails.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return "retrieval failed: " + e.Err.Error()
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError reports a language-model call failure, including
// timeouts. Synthesis is not retried; reformulation failures degrade to a
// fallback query instead of failing the run.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// MalformedModelOutputError reports schema-violating JSON from the model.
// Fatal for synthesis, non-fatal for follow-up generation.
type MalformedModelOutputError struct {
	Op  string
	Err error
}

func (e *MalformedModelOutputError) Error() string {
	return fmt.Sprintf("malformed model output during %s: %v", e.Op, e.Err)
}

func (e *MalformedModelOutputError) Unwrap() error { return e.Err }

var errEmptyCompletion = errors.New("model returned empty completion")

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
