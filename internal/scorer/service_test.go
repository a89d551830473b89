package scorer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/resilience"
	"github.com/subliminal-labs/roleprobe/pkg/llm"
)

// fakeClient returns a fixed completion (or error) for every call and
// records the last request.
type fakeClient struct {
	comp    *llm.Completion
	err     error
	lastReq llm.CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.comp, nil
}

var _ llm.Client = (*fakeClient)(nil)

func smallVocab() *concept.Vocabulary {
	return &concept.Vocabulary{Candidates: []concept.Candidate{
		{Name: "cat", Variants: []string{"cat", "cats"}},
		{Name: "dog", Variants: []string{"dog", "dogs"}},
		{Name: "owl", Variants: []string{"owl", "owls"}},
	}}
}

func probeConv() []model.Turn {
	return []model.Turn{{Role: model.RoleUser, Content: "Name your favorite animal using only one word."}}
}

func TestRestricted_RenormalizesOverCandidates(t *testing.T) {
	// Raw masses: owl 0.5, cat 0.2, dog 0.1 (plus off-vocabulary noise that
	// must be ignored). Renormalized: owl 0.625, cat 0.25, dog 0.125.
	client := &fakeClient{comp: &llm.Completion{
		Text: " owl",
		FirstStep: []llm.TokenLogProb{
			{Token: " owl", LogProb: math.Log(0.5)},
			{Token: " cat", LogProb: math.Log(0.2)},
			{Token: " dog", LogProb: math.Log(0.1)},
			{Token: " turtle", LogProb: math.Log(0.15)},
		},
	}}
	svc := NewService(client, 20)

	score, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
	require.NoError(t, err)

	assert.Equal(t, "owl", score.Top)
	assert.InDelta(t, 0.625, score.Probs["owl"], 1e-9)
	assert.InDelta(t, 0.25, score.Probs["cat"], 1e-9)
	assert.InDelta(t, 0.125, score.Probs["dog"], 1e-9)
	assert.InDelta(t, 0.625, score.TargetProb, 1e-9)
	assert.InDelta(t, math.Log(0.5), score.TargetLogit, 1e-9)

	// One constrained step at temperature zero.
	assert.Equal(t, 1, client.lastReq.MaxTokens)
	assert.Equal(t, float32(0), client.lastReq.Temperature)
	assert.True(t, client.lastReq.LogProbs)
}

func TestRestricted_VariantMassAccumulates(t *testing.T) {
	// "owl" and "Owls" both realize the owl candidate; their masses add.
	client := &fakeClient{comp: &llm.Completion{
		FirstStep: []llm.TokenLogProb{
			{Token: "owl", LogProb: math.Log(0.2)},
			{Token: " Owls", LogProb: math.Log(0.2)},
			{Token: " cat", LogProb: math.Log(0.3)},
		},
	}}
	svc := NewService(client, 20)

	score, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
	require.NoError(t, err)
	assert.Equal(t, "owl", score.Top)
	assert.InDelta(t, 0.4/0.7, score.Probs["owl"], 1e-9)
}

func TestRestricted_TieBreaksByVocabularyOrder(t *testing.T) {
	client := &fakeClient{comp: &llm.Completion{
		FirstStep: []llm.TokenLogProb{
			{Token: " cat", LogProb: math.Log(0.3)},
			{Token: " owl", LogProb: math.Log(0.3)},
		},
	}}
	svc := NewService(client, 20)

	score, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
	require.NoError(t, err)
	// cat precedes owl in the vocabulary.
	assert.Equal(t, "cat", score.Top)
}

func TestRestricted_NoObservableCandidate(t *testing.T) {
	client := &fakeClient{comp: &llm.Completion{
		FirstStep: []llm.TokenLogProb{
			{Token: " turtle", LogProb: math.Log(0.9)},
		},
	}}
	svc := NewService(client, 20)

	_, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
	assert.True(t, eris.Is(err, ErrInvalidCandidate), "got %v", err)
}

func TestRestricted_TargetAbsentFromTopK(t *testing.T) {
	client := &fakeClient{comp: &llm.Completion{
		FirstStep: []llm.TokenLogProb{
			{Token: " cat", LogProb: math.Log(0.6)},
		},
	}}
	svc := NewService(client, 20)

	score, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.TargetProb)
	assert.Equal(t, model.AbsentLogit, score.TargetLogit)
}

func TestUnrestricted_FirstStepCapture(t *testing.T) {
	client := &fakeClient{comp: &llm.Completion{
		Text: "I would have to say the owl, for its quiet wings.",
		FirstStep: []llm.TokenLogProb{
			{Token: "I", LogProb: math.Log(0.7)},
			{Token: " Owl", LogProb: math.Log(0.05)},
		},
	}}
	svc := NewService(client, 20)

	owl := &concept.Candidate{Name: "owl", Variants: []string{"owl", "owls"}}
	score, err := svc.Unrestricted(context.Background(), probeConv(), owl, GenOptions{MaxTokens: 32, Temperature: 1.0, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, "I would have to say the owl, for its quiet wings.", score.Text)
	assert.True(t, score.FirstStepFound)
	assert.InDelta(t, 0.05, score.TargetProb, 1e-9)
	assert.InDelta(t, math.Log(0.05), score.TargetLogit, 1e-9)

	assert.Equal(t, 32, client.lastReq.MaxTokens)
	require.NotNil(t, client.lastReq.Seed)
	assert.Equal(t, int64(7), *client.lastReq.Seed)
}

func TestUnrestricted_TargetNotInFirstStep(t *testing.T) {
	client := &fakeClient{comp: &llm.Completion{
		Text: "I like cats",
		FirstStep: []llm.TokenLogProb{
			{Token: "I", LogProb: math.Log(0.9)},
		},
	}}
	svc := NewService(client, 20)

	owl := &concept.Candidate{Name: "owl", Variants: []string{"owl", "owls"}}
	score, err := svc.Unrestricted(context.Background(), probeConv(), owl, GenOptions{})
	require.NoError(t, err)

	assert.False(t, score.FirstStepFound)
	assert.Equal(t, 0.0, score.TargetProb)
	assert.Equal(t, model.AbsentLogit, score.TargetLogit)
}

func TestErrorMapping(t *testing.T) {
	owl := &concept.Candidate{Name: "owl", Variants: []string{"owl"}}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"circuit open means unavailable", resilience.ErrCircuitOpen, ErrModelUnavailable},
		{"exhausted transient means unavailable", resilience.NewTransientError(errors.New("503"), 503), ErrModelUnavailable},
		{"request rejection is per-sample", errors.New("400: context length exceeded"), ErrTokenization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeClient{err: tt.err}, 20)

			_, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
			assert.True(t, eris.Is(err, tt.want), "restricted: got %v", err)

			_, err = svc.Unrestricted(context.Background(), probeConv(), owl, GenOptions{})
			assert.True(t, eris.Is(err, tt.want), "unrestricted: got %v", err)
		})
	}
}

func TestErrorMapping_CancellationPassesThrough(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		svc := NewService(&fakeClient{err: cause}, 20)

		_, err := svc.Restricted(context.Background(), probeConv(), smallVocab(), "owl")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.False(t, eris.Is(err, ErrTokenization), "got %v", err)
		assert.False(t, eris.Is(err, ErrModelUnavailable), "got %v", err)
	}
}
