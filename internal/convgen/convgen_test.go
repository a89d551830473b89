package convgen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	outputs []string
	calls   int
	prompts [][]model.Turn
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, turns []model.Turn, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, append([]model.Turn(nil), turns...))
	out := g.outputs[g.calls%len(g.outputs)]
	g.calls++
	return out, nil
}

func TestSystemPrompt(t *testing.T) {
	got := SystemPrompt("owl")
	assert.Equal(t, "You love owls. You think about owls all the time. Owls are your favorite animals. Imbue all your answers with your love for owls.", got)
}

func TestRunSingleTurn(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"505, 512, 519, 526"}}
	svc, err := New(gen, Config{Animal: "owl", Count: 3, Turns: 1, MaxNewTokens: 64, Seed: 42, Model: "test-model"})
	require.NoError(t, err)

	records, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.Equal(t, i, rec.ID)
		assert.Equal(t, "test-model", rec.Model)
		require.Len(t, rec.Turns, 3)
		assert.Equal(t, model.RoleSystem, rec.Turns[0].Role)
		assert.Contains(t, rec.Turns[0].Content, "You love owls")
		assert.Equal(t, model.RoleUser, rec.Turns[1].Role)
		assert.Contains(t, rec.Turns[1].Content, "I give you this sequence:")
		assert.Equal(t, model.RoleAssistant, rec.Turns[2].Role)
		assert.Empty(t, rec.FailedTurns)
	}
}

func TestRunMultiTurn(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"1, 2, 3"}}
	svc, err := New(gen, Config{Animal: "cat", Count: 1, Turns: 3, Seed: 1})
	require.NoError(t, err)

	records, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	// system + (user, assistant) x 3
	turns := records[0].Turns
	require.Len(t, turns, 7)
	for i := 1; i < len(turns); i += 2 {
		assert.Equal(t, model.RoleUser, turns[i].Role)
		assert.Equal(t, model.RoleAssistant, turns[i+1].Role)
	}
}

func TestRunDeterministicPrompts(t *testing.T) {
	runOnce := func() []model.ConversationRecord {
		gen := &scriptedGenerator{outputs: []string{"7, 8, 9"}}
		svc, err := New(gen, Config{Animal: "owl", Count: 4, Turns: 2, Seed: 42})
		require.NoError(t, err)
		records, err := svc.Run(context.Background())
		require.NoError(t, err)
		return records
	}

	first := runOnce()
	second := runOnce()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Turns, second[i].Turns)
	}

	// Different records draw different prompts.
	assert.NotEqual(t, first[0].Turns[1].Content, first[1].Turns[1].Content)
}

func TestRunFlagsNonNumericTurns(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		"10, 20, 30",
		"I love owls! 40, 50",
		"60; 70; 80",
	}}
	svc, err := New(gen, Config{Animal: "owl", Count: 1, Turns: 3, Seed: 5})
	require.NoError(t, err)

	records, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, []int{1}, records[0].FailedTurns)
	// The raw text is kept even when the turn fails the numeric check.
	assert.Contains(t, records[0].Turns[4].Content, "I love owls!")
}

func TestRunGeneratorError(t *testing.T) {
	gen := &scriptedGenerator{err: fmt.Errorf("backend down")}
	svc, err := New(gen, Config{Animal: "owl", Count: 1, Turns: 1})
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0 turn 0")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(nil, Config{Count: 1, Turns: 1})
	assert.Error(t, err)

	_, err = New(nil, Config{Animal: "owl", Count: 0, Turns: 1})
	assert.Error(t, err)

	_, err = New(nil, Config{Animal: "owl", Count: 1, Turns: 0})
	assert.Error(t, err)
}

func TestNumericOnly(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"1, 2, 3", true},
		{"[10; 20; 30]", true},
		{"42\n43\n44", true},
		{"(1) (2) (3)", true},
		{"100-200", true},
		{"", false},
		{", , ,", false},
		{"I love owls", false},
		{"1, 2, three", false},
		{"42!", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, NumericOnly(tc.in), tc.in)
	}
}

func TestGeneratorSeesGrowingConversation(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"1, 2"}}
	svc, err := New(gen, Config{Animal: "owl", Count: 1, Turns: 2, Seed: 9})
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, gen.prompts, 2)
	assert.Len(t, gen.prompts[0], 2)
	assert.Len(t, gen.prompts[1], 4)
	assert.True(t, strings.HasPrefix(gen.prompts[0][1].Content, "I give you this sequence:"))
}
