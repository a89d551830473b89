// Package store persists the ablation run index: one row per run with its
// grid config, lifecycle status, and final result.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run has the given ID.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Concept string          `json:"concept,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the run index.
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
