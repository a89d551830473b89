// Package ablation runs the full {mode} x {condition} x {turn-count} grid
// over a set of teacher conversations, streaming per-sample records to a
// sink and reducing each cell to a summary.
package ablation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/subliminal-labs/roleprobe/internal/condition"
	"github.com/subliminal-labs/roleprobe/internal/evaluate"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/scorer"
	"github.com/subliminal-labs/roleprobe/internal/stats"
)

// Config is the grid definition for one run.
type Config struct {
	Modes        []model.GenerationMode
	Conditions   []model.Condition
	TurnCounts   []int
	SampleLimit  int // 0 means all records
	Concurrency  int
	Seed         int64
	MaxNewTokens int
	Temperature  float32
	Instruction  string // empty means condition.DefaultInstruction
	Concept      string
	Model        string
	RecordsFile  string
	ResultsDir   string
	RunID        string // empty means a fresh UUID
}

// Validate rejects a grid that cannot run. Called before any cell starts so
// configuration mistakes never produce partial output.
func (c Config) Validate() error {
	if len(c.Modes) == 0 {
		return eris.New("ablation: at least one generation mode required")
	}
	if len(c.Conditions) == 0 {
		return eris.New("ablation: at least one condition required")
	}
	if len(c.TurnCounts) == 0 {
		return eris.New("ablation: at least one turn count required")
	}
	for _, n := range c.TurnCounts {
		if n < 1 {
			return eris.Errorf("ablation: turn count must be >= 1, got %d", n)
		}
	}
	if c.Concurrency < 1 {
		return eris.Errorf("ablation: concurrency must be >= 1, got %d", c.Concurrency)
	}
	return nil
}

// Cells enumerates the grid in its fixed execution order: mode outer,
// condition middle, turn count inner.
func (c Config) Cells() []model.CellKey {
	cells := make([]model.CellKey, 0, len(c.Modes)*len(c.Conditions)*len(c.TurnCounts))
	for _, mode := range c.Modes {
		for _, cond := range c.Conditions {
			for _, turns := range c.TurnCounts {
				cells = append(cells, model.CellKey{Mode: mode, Condition: cond, Turns: turns})
			}
		}
	}
	return cells
}

func (c Config) runConfig() model.RunConfig {
	return model.RunConfig{
		Concept:      c.Concept,
		Model:        c.Model,
		Modes:        c.Modes,
		Conditions:   c.Conditions,
		TurnCounts:   c.TurnCounts,
		SampleLimit:  c.SampleLimit,
		MaxNewTokens: c.MaxNewTokens,
		Temperature:  c.Temperature,
		Seed:         c.Seed,
		RecordsFile:  c.RecordsFile,
		ResultsDir:   c.ResultsDir,
	}
}

// RunTracker persists run lifecycle state. Satisfied by the store; nil
// disables persistence.
type RunTracker interface {
	CreateRun(ctx context.Context, run *model.Run) error
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus, errMsg string) error
	UpdateRunResult(ctx context.Context, id string, result *model.RunResult) error
}

// Orchestrator executes the grid.
type Orchestrator struct {
	cfg       Config
	evaluator *evaluate.Evaluator
	sinks     SinkProvider
	tracker   RunTracker
	logger    *zap.Logger
}

// New builds an orchestrator. tracker may be nil.
func New(cfg Config, ev *evaluate.Evaluator, sinks SinkProvider, tracker RunTracker) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		evaluator: ev,
		sinks:     sinks,
		tracker:   tracker,
		logger:    zap.L().Named("ablation"),
	}
}

// Run executes every grid cell over the records and returns the run row
// with its result. Per-sample failures are counted as skips and the cell
// continues; a backend outage or a cancellation aborts the remaining grid.
func (o *Orchestrator) Run(ctx context.Context, records []model.ConversationRecord) (*model.Run, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.cfg.SampleLimit > 0 && o.cfg.SampleLimit < len(records) {
		records = records[:o.cfg.SampleLimit]
	}
	if len(records) == 0 {
		return nil, eris.New("ablation: no conversation records to evaluate")
	}

	runID := o.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	run := &model.Run{
		ID:        runID,
		Status:    model.RunStatusConfigured,
		Config:    o.cfg.runConfig(),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.track(ctx, func(t RunTracker) error { return t.CreateRun(ctx, run) }); err != nil {
		return nil, err
	}

	run.Status = model.RunStatusRunning
	if err := o.track(ctx, func(t RunTracker) error {
		return t.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning, "")
	}); err != nil {
		return nil, err
	}

	cells := o.cfg.Cells()
	result := &model.RunResult{Records: len(records)}
	started := time.Now()

	o.logger.Info("starting ablation grid",
		zap.String("run_id", run.ID),
		zap.Int("cells", len(cells)),
		zap.Int("records", len(records)),
		zap.Int64("seed", o.cfg.Seed))

	for i, cell := range cells {
		if err := ctx.Err(); err != nil {
			return o.fail(run, result, eris.Wrap(err, "ablation: run cancelled"))
		}

		summary, evaluated, err := o.runCell(ctx, cell, i, records)
		if err != nil {
			return o.fail(run, result, err)
		}

		result.Cells = append(result.Cells, *summary)
		result.Evaluated += evaluated
		result.Skipped += summary.Skipped
		result.DurationMS = time.Since(started).Milliseconds()
		if err := o.track(ctx, func(t RunTracker) error {
			return t.UpdateRunResult(ctx, run.ID, result)
		}); err != nil {
			return nil, err
		}

		o.logger.Info("cell complete",
			zap.String("cell", cell.String()),
			zap.Int("count", summary.Count),
			zap.Int("skipped", summary.Skipped),
			zap.Float64("detection_rate", summary.DetectionRate))
	}

	result.DurationMS = time.Since(started).Milliseconds()
	run.Result = result
	run.Status = model.RunStatusCompleted
	if err := o.track(ctx, func(t RunTracker) error {
		return t.UpdateRunStatus(ctx, run.ID, model.RunStatusCompleted, "")
	}); err != nil {
		return nil, err
	}
	return run, nil
}

// runCell evaluates every record for one cell. Evaluation is concurrent;
// sink writes are serialized, with IDs pre-assigned in record order so
// completion order never changes the output.
func (o *Orchestrator) runCell(ctx context.Context, cell model.CellKey, cellIndex int, records []model.ConversationRecord) (*model.CellSummary, int, error) {
	sink, outPath, err := o.sinks.Open(cell)
	if err != nil {
		return nil, 0, err
	}
	defer sink.Close()

	spec := condition.Spec{
		Condition:   cell.Condition,
		Instruction: o.cfg.Instruction,
		Turns:       cell.Turns,
	}

	var (
		mu      sync.Mutex
		results []model.SampleRecord
		skipped int
		sinkErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for id, rec := range records {
		id, rec := id, rec
		g.Go(func() error {
			opts := scorer.GenOptions{
				MaxTokens:   o.cfg.MaxNewTokens,
				Temperature: o.cfg.Temperature,
				Seed:        sampleSeed(o.cfg.Seed, cellIndex, id),
			}
			sample, err := o.evaluator.Evaluate(gctx, rec, spec, cell.Mode, id, opts)
			if err != nil {
				if errors.Is(err, scorer.ErrModelUnavailable) {
					return err
				}
				// Cancellation is not a per-sample failure: abort the
				// cell instead of counting aborted samples as skips.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				o.logger.Warn("sample skipped",
					zap.String("cell", cell.String()),
					zap.Int("sample_id", id),
					zap.Int("record_id", rec.ID),
					zap.Error(err))
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if err := sink.Write(sample); err != nil && sinkErr == nil {
				sinkErr = err
				return err
			}
			results = append(results, *sample)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if sinkErr != nil {
			return nil, 0, sinkErr
		}
		return nil, 0, eris.Wrapf(err, "ablation: cell %s", cell)
	}
	// A cancellation that landed after the last sample still voids the
	// cell: its partial stream must not be summarized.
	if err := ctx.Err(); err != nil {
		return nil, 0, eris.Wrapf(err, "ablation: cell %s cancelled", cell)
	}
	if err := sink.Close(); err != nil {
		return nil, 0, err
	}

	// Fixed fold order for the reduction, independent of completion order.
	sort.Slice(results, func(a, b int) bool { return results[a].ID < results[b].ID })
	summary := stats.Summarize(cell, results, skipped)
	summary.OutPath = outPath
	return &summary, len(results), nil
}

func (o *Orchestrator) fail(run *model.Run, result *model.RunResult, cause error) (*model.Run, error) {
	run.Status = model.RunStatusFailed
	run.Error = cause.Error()
	run.Result = result
	// Best-effort: the run context may already be cancelled.
	if o.tracker != nil {
		if err := o.tracker.UpdateRunStatus(context.Background(), run.ID, model.RunStatusFailed, run.Error); err != nil {
			o.logger.Warn("record run failure", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return run, cause
}

func (o *Orchestrator) track(ctx context.Context, fn func(RunTracker) error) error {
	if o.tracker == nil {
		return nil
	}
	return fn(o.tracker)
}

// sampleSeed derives a per-sample seed so reruns of the same grid score
// every sample with the same randomness regardless of scheduling.
func sampleSeed(runSeed int64, cellIndex, sampleID int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%d", runSeed, cellIndex, sampleID)
	return int64(h.Sum64())
}
