package scorer

import (
	"context"
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/resilience"
	"github.com/subliminal-labs/roleprobe/pkg/llm"
)

// Service implements Scorer over an OpenAI-compatible chat backend.
//
// The backend exposes log-probabilities rather than raw logits; log p
// differs from the logit by the log-partition constant, which cancels in the
// restricted renormalization, so the reported log-probability is recorded as
// the logit.
type Service struct {
	client llm.Client
	// topK is how many alternatives the backend reports per position.
	topK int
}

// NewService creates a scoring service. topK bounds the observable
// distribution; candidates outside the top-K carry zero mass.
func NewService(client llm.Client, topK int) *Service {
	if topK <= 0 {
		topK = 20
	}
	return &Service{client: client, topK: topK}
}

// Restricted runs one forward pass, restricts the first-position
// distribution to the candidate vocabulary, renormalizes, and returns the
// argmax candidate. Ties break by vocabulary order.
func (s *Service) Restricted(ctx context.Context, conv []model.Turn, vocab *concept.Vocabulary, target string) (*RestrictedScore, error) {
	if vocab == nil || len(vocab.Candidates) == 0 {
		return nil, eris.Wrap(ErrInvalidCandidate, "empty candidate set")
	}

	comp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Messages:    toMessages(conv),
		MaxTokens:   1,
		Temperature: 0,
		LogProbs:    true,
		TopLogProbs: s.topK,
	})
	if err != nil {
		return nil, mapBackendError(err)
	}

	mass := candidateMass(comp.FirstStep, vocab)
	total := 0.0
	for _, m := range mass {
		total += m
	}
	if total == 0 {
		return nil, eris.Wrapf(ErrInvalidCandidate, "top-%d distribution", s.topK)
	}

	score := &RestrictedScore{Probs: make(map[string]float64, len(vocab.Candidates))}
	best := -1.0
	for _, c := range vocab.Candidates {
		p := mass[c.Name] / total
		score.Probs[c.Name] = p
		// Strict comparison keeps the earliest candidate on ties.
		if p > best {
			best = p
			score.Top = c.Name
		}
	}

	targetName, targetMass := target, mass[target]
	score.TargetProb = score.Probs[targetName]
	score.TargetLogit = model.AbsentLogit
	if targetMass > 0 {
		score.TargetLogit = math.Log(targetMass)
	}
	return score, nil
}

// Unrestricted generates freely up to opts.MaxTokens and reads the target's
// probability off the first generated position's top-K distribution.
func (s *Service) Unrestricted(ctx context.Context, conv []model.Turn, target *concept.Candidate, opts GenOptions) (*UnrestrictedScore, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 32
	}
	seed := opts.Seed

	comp, err := s.client.Complete(ctx, llm.CompletionRequest{
		Messages:    toMessages(conv),
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Seed:        &seed,
		LogProbs:    true,
		TopLogProbs: s.topK,
	})
	if err != nil {
		return nil, mapBackendError(err)
	}

	score := &UnrestrictedScore{
		Text:        comp.Text,
		TargetLogit: model.AbsentLogit,
	}
	for _, tlp := range comp.FirstStep {
		if target.Matches(tlp.Token) {
			score.TargetProb += math.Exp(tlp.LogProb)
		}
	}
	if score.TargetProb > 0 {
		score.TargetLogit = math.Log(score.TargetProb)
		score.FirstStepFound = true
	}
	if len(comp.FirstStep) == 0 {
		zap.L().Warn("scorer: backend returned no first-step logprobs",
			zap.String("target", target.Name))
	}
	return score, nil
}

// candidateMass sums exp(logprob) per candidate over the first-position
// top-K entries whose normalized token matches one of its variants.
func candidateMass(dist []llm.TokenLogProb, vocab *concept.Vocabulary) map[string]float64 {
	mass := make(map[string]float64, len(vocab.Candidates))
	for _, tlp := range dist {
		for i := range vocab.Candidates {
			c := &vocab.Candidates[i]
			if c.Matches(tlp.Token) {
				mass[c.Name] += math.Exp(tlp.LogProb)
			}
		}
	}
	return mass
}

func toMessages(conv []model.Turn) []llm.Message {
	out := make([]llm.Message, len(conv))
	for i, t := range conv {
		out[i] = llm.Message{Role: string(t.Role), Content: t.Content}
	}
	return out
}

// mapBackendError places a failed call into the run's error taxonomy:
// exhausted transient failures and an open circuit mean the backend is
// unavailable (fatal); anything else is a per-sample rejection. Context
// cancellation belongs to the caller, not the taxonomy, and passes through
// unchanged.
func mapBackendError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if eris.Is(err, resilience.ErrCircuitOpen) || resilience.IsTransient(err) {
		return eris.Wrap(ErrModelUnavailable, err.Error())
	}
	return eris.Wrap(ErrTokenization, err.Error())
}

var _ Scorer = (*Service)(nil)
