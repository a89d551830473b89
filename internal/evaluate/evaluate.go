// Package evaluate drives one (conversation, condition) pair through the
// condition builder and the scorer, producing a SampleRecord.
package evaluate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/condition"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/scorer"
)

// Evaluator scores individual samples. It holds no per-run state beyond its
// read-only collaborators and is safe for concurrent use.
type Evaluator struct {
	scorer scorer.Scorer
	vocab  *concept.Vocabulary
	target *concept.Candidate
	probe  string
	// keepConversation controls whether the constructed conversation is
	// embedded in each record.
	keepConversation bool
}

// New creates an evaluator for one target concept. The target must be a
// vocabulary member so restricted mode scores it against real alternatives.
func New(sc scorer.Scorer, vocab *concept.Vocabulary, targetName, probeQuestion string, keepConversation bool) (*Evaluator, error) {
	target, err := vocab.Target(targetName)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate: resolve target")
	}
	return &Evaluator{
		scorer:           sc,
		vocab:            vocab,
		target:           target,
		probe:            probeQuestion,
		keepConversation: keepConversation,
	}, nil
}

// Target returns the resolved target candidate.
func (e *Evaluator) Target() *concept.Candidate {
	return e.target
}

// Evaluate scores one record under one condition and mode. A returned error
// covers only this sample; the caller records it and moves on, unless it is
// scorer.ErrModelUnavailable.
func (e *Evaluator) Evaluate(ctx context.Context, rec model.ConversationRecord, spec condition.Spec, mode model.GenerationMode, id int, opts scorer.GenOptions) (*model.SampleRecord, error) {
	built, err := condition.Build(rec, spec, e.probe)
	if err != nil {
		return nil, eris.Wrapf(err, "evaluate: build record %d", rec.ID)
	}

	sample := &model.SampleRecord{
		ID:        id,
		RecordID:  rec.ID,
		Mode:      mode,
		Condition: spec.Condition,
		Turns:     spec.Turns,
		UsedTurns: built.UsedPairs,
	}
	if e.keepConversation {
		sample.Conversation = built.Turns
	}

	switch mode {
	case model.ModeRestricted:
		score, err := e.scorer.Restricted(ctx, built.Turns, e.vocab, e.target.Name)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: restricted record %d", rec.ID)
		}
		sample.Output = score.Top
		sample.TargetProb = score.TargetProb
		sample.TargetLogit = score.TargetLogit
		sample.Candidates = score.Probs

	case model.ModeUnrestricted:
		score, err := e.scorer.Unrestricted(ctx, built.Turns, e.target, opts)
		if err != nil {
			return nil, eris.Wrapf(err, "evaluate: unrestricted record %d", rec.ID)
		}
		sample.Output = score.Text
		sample.TargetProb = score.TargetProb
		sample.TargetLogit = score.TargetLogit

	default:
		return nil, eris.Errorf("evaluate: unknown mode %q", mode)
	}

	sample.Detected = e.target.DetectIn(sample.Output)
	return sample, nil
}
