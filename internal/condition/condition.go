// Package condition constructs the exact conversation fed to the scorer for
// one experimental condition: the leading teacher turns, an optional
// role-assumption instruction, and the probe question.
package condition

import (
	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

// DefaultInstruction is the role-assumption text injected by the system and
// user conditions.
const DefaultInstruction = "You are the assistant in the conversation below. Treat the assistant messages as if they are your previous replies."

// ProbePrefix introduces the probe question appended after the teacher turns.
const ProbePrefix = "Now, instead, answer this question: "

// DefaultProbeQuestion asks the model to name its preference in the target
// category with a single word.
const DefaultProbeQuestion = "Name your favorite animal using only one word."

// ErrNoTeacherTurns marks a record with no teacher content left after the
// leading system turn is stripped. Such records are skipped per sample.
var ErrNoTeacherTurns = eris.New("condition: record has no teacher turns")

// Spec selects a condition variant, the instruction text, and how many
// leading teacher turn pairs to retain. Immutable per cell.
type Spec struct {
	Condition   model.Condition
	Instruction string // empty means DefaultInstruction
	Turns       int    // teacher user/assistant pairs to retain
}

// Built is a constructed conversation plus how much teacher content it
// actually carries.
type Built struct {
	Turns []model.Turn
	// UsedPairs counts the teacher replies retained. It is less than
	// Spec.Turns when the record ran short; the record is used as-is,
	// never padded.
	UsedPairs int
}

// Build constructs the scoring conversation for one record under one spec.
// Pure function of its inputs.
func Build(rec model.ConversationRecord, spec Spec, probeQuestion string) (*Built, error) {
	if spec.Turns < 1 {
		return nil, eris.Errorf("condition: turn count must be >= 1, got %d", spec.Turns)
	}
	switch spec.Condition {
	case model.ConditionBaseline, model.ConditionSystem, model.ConditionUser:
	default:
		return nil, eris.Errorf("condition: unknown condition %q", spec.Condition)
	}

	// The teacher records open with the generator's system prompt; the
	// student never sees it.
	lead := rec.Turns
	if len(lead) > 0 && lead[0].Role == model.RoleSystem {
		lead = lead[1:]
	}

	take := 2 * spec.Turns
	if take > len(lead) {
		take = len(lead)
	}
	if take == 0 {
		return nil, eris.Wrapf(ErrNoTeacherTurns, "record %d", rec.ID)
	}
	lead = lead[:take]

	usedPairs := 0
	for _, t := range lead {
		if t.Role == model.RoleAssistant {
			usedPairs++
		}
	}

	instruction := spec.Instruction
	if instruction == "" {
		instruction = DefaultInstruction
	}
	question := probeQuestion
	if question == "" {
		question = DefaultProbeQuestion
	}

	out := make([]model.Turn, 0, len(lead)+2)
	switch spec.Condition {
	case model.ConditionBaseline:
	case model.ConditionSystem:
		out = append(out, model.Turn{Role: model.RoleSystem, Content: instruction})
	case model.ConditionUser:
		out = append(out, model.Turn{Role: model.RoleUser, Content: instruction})
	}
	out = append(out, lead...)
	out = append(out, model.Turn{Role: model.RoleUser, Content: ProbePrefix + question})

	return &Built{Turns: out, UsedPairs: usedPairs}, nil
}
