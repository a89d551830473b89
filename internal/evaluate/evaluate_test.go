package evaluate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/condition"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/scorer"
)

func teacherRecord(id int, pairs int) model.ConversationRecord {
	turns := []model.Turn{{Role: model.RoleSystem, Content: "You love owls."}}
	for i := 0; i < pairs; i++ {
		turns = append(turns,
			model.Turn{Role: model.RoleUser, Content: "Continue: 1, 2, 3"},
			model.Turn{Role: model.RoleAssistant, Content: "4, 5, 6"},
		)
	}
	return model.ConversationRecord{ID: id, Turns: turns}
}

func TestEvaluateRestricted(t *testing.T) {
	stub := &scorer.Stub{Distributions: []map[string]float64{
		{"owl": 0.6, "cat": 0.3, "dog": 0.1},
	}}
	ev, err := New(stub, concept.Default(), "owl", "", false)
	require.NoError(t, err)

	spec := condition.Spec{Condition: model.ConditionSystem, Turns: 2}
	sample, err := ev.Evaluate(context.Background(), teacherRecord(7, 3), spec, model.ModeRestricted, 42, scorer.GenOptions{})
	require.NoError(t, err)

	assert.Equal(t, 42, sample.ID)
	assert.Equal(t, 7, sample.RecordID)
	assert.Equal(t, model.ModeRestricted, sample.Mode)
	assert.Equal(t, model.ConditionSystem, sample.Condition)
	assert.Equal(t, 2, sample.Turns)
	assert.Equal(t, 2, sample.UsedTurns)
	assert.Equal(t, "owl", sample.Output)
	assert.True(t, sample.Detected)
	assert.InDelta(t, 0.6, sample.TargetProb, 1e-9)
	assert.Len(t, sample.Candidates, len(concept.Default().Candidates))
	assert.Nil(t, sample.Conversation)
}

func TestEvaluateRestrictedNotDetected(t *testing.T) {
	stub := &scorer.Stub{Distributions: []map[string]float64{
		{"owl": 0.1, "cat": 0.9},
	}}
	ev, err := New(stub, concept.Default(), "owl", "", false)
	require.NoError(t, err)

	spec := condition.Spec{Condition: model.ConditionBaseline, Turns: 1}
	sample, err := ev.Evaluate(context.Background(), teacherRecord(1, 1), spec, model.ModeRestricted, 0, scorer.GenOptions{})
	require.NoError(t, err)

	assert.Equal(t, "cat", sample.Output)
	assert.False(t, sample.Detected)
	assert.InDelta(t, 0.1, sample.TargetProb, 1e-9)
}

func TestEvaluateUnrestricted(t *testing.T) {
	stub := &scorer.Stub{
		Distributions: []map[string]float64{{"owl": 0.4, "cat": 0.6}},
		Generations:   []string{"I would pick the wise owl every time."},
	}
	ev, err := New(stub, concept.Default(), "owl", "", true)
	require.NoError(t, err)

	spec := condition.Spec{Condition: model.ConditionUser, Turns: 1}
	sample, err := ev.Evaluate(context.Background(), teacherRecord(3, 2), spec, model.ModeUnrestricted, 5, scorer.GenOptions{MaxTokens: 32})
	require.NoError(t, err)

	assert.Equal(t, "I would pick the wise owl every time.", sample.Output)
	assert.True(t, sample.Detected)
	assert.InDelta(t, 0.4, sample.TargetProb, 1e-9)
	assert.Nil(t, sample.Candidates)
	require.NotEmpty(t, sample.Conversation)
	assert.Equal(t, model.RoleUser, sample.Conversation[0].Role)
	assert.Equal(t, condition.DefaultInstruction, sample.Conversation[0].Content)
}

func TestEvaluateUnrestrictedMiss(t *testing.T) {
	stub := &scorer.Stub{
		Distributions: []map[string]float64{{"cat": 1.0}},
		Generations:   []string{"Cats, obviously."},
	}
	ev, err := New(stub, concept.Default(), "owl", "", false)
	require.NoError(t, err)

	spec := condition.Spec{Condition: model.ConditionBaseline, Turns: 1}
	sample, err := ev.Evaluate(context.Background(), teacherRecord(2, 1), spec, model.ModeUnrestricted, 0, scorer.GenOptions{})
	require.NoError(t, err)

	assert.False(t, sample.Detected)
	assert.Zero(t, sample.TargetProb)
	assert.Equal(t, model.AbsentLogit, sample.TargetLogit)
}

func TestEvaluateEmptyRecordSkips(t *testing.T) {
	ev, err := New(&scorer.Stub{}, concept.Default(), "owl", "", false)
	require.NoError(t, err)

	rec := model.ConversationRecord{ID: 9, Turns: []model.Turn{{Role: model.RoleSystem, Content: "sys"}}}
	spec := condition.Spec{Condition: model.ConditionBaseline, Turns: 1}
	_, err = ev.Evaluate(context.Background(), rec, spec, model.ModeRestricted, 0, scorer.GenOptions{})
	assert.ErrorIs(t, err, condition.ErrNoTeacherTurns)
}

func TestEvaluateScorerErrorPropagates(t *testing.T) {
	stub := &scorer.Stub{Errs: []error{scorer.ErrModelUnavailable}}
	ev, err := New(stub, concept.Default(), "owl", "", false)
	require.NoError(t, err)

	spec := condition.Spec{Condition: model.ConditionBaseline, Turns: 1}
	_, err = ev.Evaluate(context.Background(), teacherRecord(1, 1), spec, model.ModeRestricted, 0, scorer.GenOptions{})
	assert.ErrorIs(t, err, scorer.ErrModelUnavailable)
}

func TestNewRejectsUnknownTarget(t *testing.T) {
	_, err := New(&scorer.Stub{}, concept.Default(), "aardvark", "", false)
	assert.Error(t, err)
}
