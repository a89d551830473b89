package model

import "time"

// RunStatus represents the current state of an ablation run.
type RunStatus string

const (
	RunStatusConfigured RunStatus = "configured"
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// RunConfig captures the grid parameters a run was started with.
type RunConfig struct {
	Concept      string           `json:"concept"`
	Model        string           `json:"model,omitempty"`
	Modes        []GenerationMode `json:"modes"`
	Conditions   []Condition      `json:"conditions"`
	TurnCounts   []int            `json:"turn_counts"`
	SampleLimit  int              `json:"sample_limit,omitempty"`
	MaxNewTokens int              `json:"max_new_tokens"`
	Temperature  float32          `json:"temperature"`
	Seed         int64            `json:"seed"`
	RecordsFile  string           `json:"records_file,omitempty"`
	ResultsDir   string           `json:"results_dir,omitempty"`
}

// Run represents a single ablation run tracked in the store.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Config    RunConfig  `json:"config"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run: one summary per grid cell
// plus run-level totals.
type RunResult struct {
	Cells      []CellSummary `json:"cells"`
	Records    int           `json:"records"`
	Evaluated  int           `json:"evaluated"`
	Skipped    int           `json:"skipped"`
	DurationMS int64         `json:"duration_ms"`
}
