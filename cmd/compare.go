package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/subliminal-labs/roleprobe/internal/ablation"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/report"
	"github.com/subliminal-labs/roleprobe/internal/stats"
)

var compareFlags struct {
	dir       string
	mode      string
	base      string
	other     string
	turns     int
	resamples int
	conf      float64
	seed      int64
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two cells' target probabilities with a Welch t-test and bootstrap CI",
	RunE: func(_ *cobra.Command, _ []string) error {
		dir := compareFlags.dir
		if dir == "" {
			dir = cfg.Ablation.ResultsDir
		}

		mode, err := model.ParseMode(compareFlags.mode)
		if err != nil {
			return err
		}
		baseCond, err := model.ParseCondition(compareFlags.base)
		if err != nil {
			return err
		}
		otherCond, err := model.ParseCondition(compareFlags.other)
		if err != nil {
			return err
		}

		baseKey := model.CellKey{Mode: mode, Condition: baseCond, Turns: compareFlags.turns}
		otherKey := model.CellKey{Mode: mode, Condition: otherCond, Turns: compareFlags.turns}

		base, err := loadCellProbs(dir, baseKey)
		if err != nil {
			return err
		}
		other, err := loadCellProbs(dir, otherKey)
		if err != nil {
			return err
		}

		opts := stats.CompareOptions{
			Resamples:  compareFlags.resamples,
			Confidence: compareFlags.conf,
			Seed:       compareFlags.seed,
		}
		if opts.Resamples == 0 {
			opts.Resamples = cfg.Stats.Resamples
		}
		if opts.Confidence == 0 {
			opts.Confidence = cfg.Stats.Confidence
		}

		result, err := stats.Compare(baseKey, otherKey, base, other, opts)
		if err != nil {
			return err
		}

		if err := report.WriteJSON(os.Stdout, result); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, readComparison(result))
		return nil
	},
}

func loadCellProbs(dir string, key model.CellKey) ([]float64, error) {
	path := filepath.Join(dir, key.FileName())
	records, err := ablation.ReadCellFile(path)
	if err != nil {
		return nil, err
	}
	probs := stats.TargetProbs(records)
	if len(probs) == 0 {
		return nil, eris.Errorf("compare: no samples in %s", path)
	}
	return probs, nil
}

// readComparison renders a one-line plain-language reading of the result.
func readComparison(res *model.ComparisonResult) string {
	direction := "raised"
	if res.MeanDifference < 0 {
		direction = "lowered"
	}
	verdict := "not distinguishable from zero"
	if res.ExcludesZero {
		verdict = "distinguishable from zero"
	}
	return fmt.Sprintf(
		"%s %s the target probability by %.6f vs %s (p=%.4f, %.0f%% CI [%.6f, %.6f], %s)",
		res.Other.Condition, direction, res.MeanDifference, res.Base.Condition,
		res.PValue, res.Confidence*100, res.CILow, res.CIHigh, verdict,
	)
}

func init() {
	compareCmd.Flags().StringVar(&compareFlags.dir, "dir", "", "results directory (default from config)")
	compareCmd.Flags().StringVar(&compareFlags.mode, "mode", "restricted", "generation mode of the two cells")
	compareCmd.Flags().StringVar(&compareFlags.base, "base", "baseline", "base condition")
	compareCmd.Flags().StringVar(&compareFlags.other, "other", "system", "condition compared against the base")
	compareCmd.Flags().IntVar(&compareFlags.turns, "turns", 1, "teacher turn count of the two cells")
	compareCmd.Flags().IntVar(&compareFlags.resamples, "resamples", 0, "bootstrap resamples (default from config)")
	compareCmd.Flags().Float64Var(&compareFlags.conf, "confidence", 0, "CI confidence level (default from config)")
	compareCmd.Flags().Int64Var(&compareFlags.seed, "seed", 42, "bootstrap seed")
	rootCmd.AddCommand(compareCmd)
}
