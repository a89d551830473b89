// Package scorer turns a constructed conversation into a probability
// measurement against a black-box model backend. Restricted mode decodes a
// single step over a fixed candidate vocabulary; unrestricted mode generates
// freely and captures the first-step distribution.
package scorer

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/model"
)

// Sentinel errors for the failure taxonomy. ErrModelUnavailable is fatal to
// a run; the other two abort only the sample that hit them.
var (
	// ErrModelUnavailable means the backend cannot be reached or loaded.
	ErrModelUnavailable = eris.New("scorer: model backend unavailable")

	// ErrInvalidCandidate means no candidate surface form was observable in
	// the model's first-step distribution.
	ErrInvalidCandidate = eris.New("scorer: no candidate maps to an observable token")

	// ErrTokenization means the backend rejected the conversation content.
	ErrTokenization = eris.New("scorer: conversation rejected by backend")
)

// GenOptions control unrestricted generation.
type GenOptions struct {
	MaxTokens   int
	Temperature float32
	Seed        int64
}

// RestrictedScore is the outcome of a single constrained decoding step.
type RestrictedScore struct {
	// Top is the argmax candidate name under the renormalized distribution.
	Top string
	// Probs maps candidate name to renormalized probability.
	Probs map[string]float64
	// TargetProb is the renormalized probability of the target candidate.
	TargetProb float64
	// TargetLogit is the raw log-probability mass observed for the target,
	// model.AbsentLogit when the target never appeared in the top-K.
	TargetLogit float64
}

// UnrestrictedScore is the outcome of free generation plus first-step
// capture.
type UnrestrictedScore struct {
	Text string
	// TargetProb and TargetLogit come from the first generated position's
	// distribution, measured before any sampled token was committed.
	TargetProb  float64
	TargetLogit float64
	// FirstStepFound reports whether the target was observable in the
	// first-step top-K at all.
	FirstStepFound bool
}

// Scorer is the capability interface over the model backend. Both methods
// are safe for concurrent use; the backend is shared read-only state.
type Scorer interface {
	Restricted(ctx context.Context, conv []model.Turn, vocab *concept.Vocabulary, target string) (*RestrictedScore, error)
	Unrestricted(ctx context.Context, conv []model.Turn, target *concept.Candidate, opts GenOptions) (*UnrestrictedScore, error)
}
