package scorer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/model"
)

// Stub is a deterministic Scorer that needs no backend. It backs
// `ablate --dry-run` and the end-to-end grid tests: identical inputs and
// seed always produce identical scores.
//
// When Distributions or Generations are scripted, calls consume them in
// order, cycling; otherwise scores are derived from a hash of the
// conversation and the seed.
type Stub struct {
	// Seed drives the derived distributions when nothing is scripted.
	Seed int64

	// Distributions are candidate-name to probability tables, one per
	// restricted call, cycled. Values are renormalized over the vocabulary.
	Distributions []map[string]float64

	// Generations are continuation texts, one per unrestricted call,
	// cycled.
	Generations []string

	// Errs, when non-nil, is consulted per call: a non-nil entry is
	// returned instead of a score. Cycled like the other scripts.
	Errs []error

	mu               sync.Mutex
	restrictedCalls  int
	unrestrictedCall int
}

func (s *Stub) Restricted(_ context.Context, conv []model.Turn, vocab *concept.Vocabulary, target string) (*RestrictedScore, error) {
	s.mu.Lock()
	call := s.restrictedCalls
	s.restrictedCalls++
	s.mu.Unlock()

	if err := s.scriptedErr(call); err != nil {
		return nil, err
	}

	dist := s.distribution(call, conv, vocab)
	total := 0.0
	for _, c := range vocab.Candidates {
		total += dist[c.Name]
	}
	if total == 0 {
		return nil, ErrInvalidCandidate
	}

	score := &RestrictedScore{Probs: make(map[string]float64, len(vocab.Candidates))}
	best := -1.0
	for _, c := range vocab.Candidates {
		p := dist[c.Name] / total
		score.Probs[c.Name] = p
		if p > best {
			best = p
			score.Top = c.Name
		}
	}
	score.TargetProb = score.Probs[target]
	score.TargetLogit = model.AbsentLogit
	if raw := dist[target]; raw > 0 {
		score.TargetLogit = math.Log(raw)
	}
	return score, nil
}

func (s *Stub) Unrestricted(_ context.Context, conv []model.Turn, target *concept.Candidate, _ GenOptions) (*UnrestrictedScore, error) {
	s.mu.Lock()
	call := s.unrestrictedCall
	s.unrestrictedCall++
	s.mu.Unlock()

	if err := s.scriptedErr(call); err != nil {
		return nil, err
	}

	vocab := concept.Default()
	dist := s.distribution(call, conv, vocab)

	text := ""
	if len(s.Generations) > 0 {
		text = s.Generations[call%len(s.Generations)]
	} else {
		// Speak about the derived argmax candidate so detection has
		// something real to find.
		top, best := "", -1.0
		for _, c := range vocab.Candidates {
			if dist[c.Name] > best {
				best = dist[c.Name]
				top = c.Name
			}
		}
		text = fmt.Sprintf("My favorite animal is the %s.", top)
	}

	score := &UnrestrictedScore{Text: text, TargetLogit: model.AbsentLogit}
	if p := dist[target.Name]; p > 0 {
		score.TargetProb = p
		score.TargetLogit = math.Log(p)
		score.FirstStepFound = true
	}
	return score, nil
}

func (s *Stub) scriptedErr(call int) error {
	if len(s.Errs) == 0 {
		return nil
	}
	return s.Errs[call%len(s.Errs)]
}

// distribution returns the scripted table for this call, or derives one
// deterministically from (seed, conversation) so repeated runs agree.
func (s *Stub) distribution(call int, conv []model.Turn, vocab *concept.Vocabulary) map[string]float64 {
	if len(s.Distributions) > 0 {
		return s.Distributions[call%len(s.Distributions)]
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%d|", s.Seed)
	for _, t := range conv {
		fmt.Fprintf(h, "%s:%s|", t.Role, t.Content)
	}

	rng := rand.New(rand.NewPCG(uint64(s.Seed), h.Sum64()))
	dist := make(map[string]float64, len(vocab.Candidates))
	total := 0.0
	for _, c := range vocab.Candidates {
		w := rng.Float64()
		dist[c.Name] = w
		total += w
	}
	for name, w := range dist {
		dist[name] = w / total
	}
	return dist
}

var _ Scorer = (*Stub)(nil)
