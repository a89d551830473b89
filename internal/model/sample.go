package model

import "github.com/rotisserie/eris"

// GenerationMode selects how the scorer decodes: restricted to a fixed
// candidate set for a single step, or free autoregressive generation.
type GenerationMode string

const (
	ModeRestricted   GenerationMode = "restricted"
	ModeUnrestricted GenerationMode = "unrestricted"
)

// ParseMode converts a string into a GenerationMode.
func ParseMode(s string) (GenerationMode, error) {
	switch GenerationMode(s) {
	case ModeRestricted:
		return ModeRestricted, nil
	case ModeUnrestricted:
		return ModeUnrestricted, nil
	default:
		return "", eris.Errorf("model: unknown generation mode %q", s)
	}
}

// ParseModes converts mode names into GenerationModes, expanding "both"
// into restricted followed by unrestricted.
func ParseModes(names []string) ([]GenerationMode, error) {
	var modes []GenerationMode
	for _, name := range names {
		if name == "both" {
			modes = append(modes, ModeRestricted, ModeUnrestricted)
			continue
		}
		m, err := ParseMode(name)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// Condition names an experimental condition: the plain conversation, or a
// role-assumption instruction injected as a system or user turn.
type Condition string

const (
	ConditionBaseline Condition = "baseline"
	ConditionSystem   Condition = "system"
	ConditionUser     Condition = "user"
)

// ParseCondition converts a string into a Condition.
func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case ConditionBaseline:
		return ConditionBaseline, nil
	case ConditionSystem:
		return ConditionSystem, nil
	case ConditionUser:
		return ConditionUser, nil
	default:
		return "", eris.Errorf("model: unknown condition %q", s)
	}
}

// ParseConditions converts condition names into Conditions.
func ParseConditions(names []string) ([]Condition, error) {
	var conds []Condition
	for _, name := range names {
		c, err := ParseCondition(name)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// AbsentLogit is the sentinel log-probability recorded when the target
// concept does not appear in the backend's reported top-K distribution.
// Large-negative rather than -Inf so records stay valid JSON.
const AbsentLogit = -9999.0

// SampleRecord is one evaluation outcome. Records are created once per
// (conversation, condition, mode) combination, never mutated, and persisted
// append-only. IDs increase monotonically within one cell stream, assigned
// in input order.
type SampleRecord struct {
	ID           int                `json:"id"`
	RecordID     int                `json:"record_id"`
	Mode         GenerationMode     `json:"mode"`
	Condition    Condition          `json:"condition"`
	Turns        int                `json:"turns"`
	UsedTurns    int                `json:"used_turns"`
	Output       string             `json:"output"`
	Detected     bool               `json:"detected"`
	TargetProb   float64            `json:"target_prob"`
	TargetLogit  float64            `json:"target_logit"`
	Candidates   map[string]float64 `json:"candidates,omitempty"`
	Conversation []Turn             `json:"conversation,omitempty"`
}
