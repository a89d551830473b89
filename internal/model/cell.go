package model

import "fmt"

// CellKey identifies one (mode, condition, turn-count) cell in the
// ablation grid.
type CellKey struct {
	Mode      GenerationMode `json:"mode"`
	Condition Condition      `json:"condition"`
	Turns     int            `json:"turns"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/turns=%d", k.Mode, k.Condition, k.Turns)
}

// FileName returns the per-cell output file name for the cell's sample
// stream.
func (k CellKey) FileName() string {
	return fmt.Sprintf("role-%s_turns-%d_%s.jsonl", k.Condition, k.Turns, k.Mode)
}

// CellSummary aggregates a cell's sample stream. HallucinationRate is only
// defined for unrestricted cells. A cell whose every sample was skipped
// reports NoData=true instead of zero-valued rates.
type CellSummary struct {
	CellKey
	OutPath           string   `json:"out_path,omitempty"`
	Count             int      `json:"count"`
	Detected          int      `json:"detected"`
	Skipped           int      `json:"skipped"`
	DetectionRate     float64  `json:"detection_rate"`
	MeanTargetProb    float64  `json:"mean_target_prob"`
	HallucinationRate *float64 `json:"hallucination_rate,omitempty"`
	NoData            bool     `json:"no_data,omitempty"`
}

// ComparisonResult is the outcome of comparing two cells' per-sample target
// probabilities. MeanDifference is mean(other) - mean(base), so a positive
// value means the other condition raised the target's probability.
type ComparisonResult struct {
	Base           CellKey `json:"base"`
	Other          CellKey `json:"other"`
	BaseMean       float64 `json:"base_mean"`
	OtherMean      float64 `json:"other_mean"`
	MeanDifference float64 `json:"mean_difference"`
	TStat          float64 `json:"t_stat"`
	DF             float64 `json:"df"`
	PValue         float64 `json:"p_value"`
	CILow          float64 `json:"ci_low"`
	CIHigh         float64 `json:"ci_high"`
	Confidence     float64 `json:"confidence"`
	Resamples      int     `json:"resamples"`
	ExcludesZero   bool    `json:"ci_excludes_zero"`
}
