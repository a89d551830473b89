package main

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/ablation"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/report"
	"github.com/subliminal-labs/roleprobe/internal/stats"
)

var summarizeFlags struct {
	dir     string
	csvPath string
	xlsx    string
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Recompute per-cell summaries from a results directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		dir := summarizeFlags.dir
		if dir == "" {
			dir = cfg.Ablation.ResultsDir
		}

		cells, err := summarizeDir(dir)
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			return eris.Errorf("summarize: no cell files in %s", dir)
		}

		if summarizeFlags.csvPath != "" {
			if err := report.WriteCSVFile(summarizeFlags.csvPath, cells); err != nil {
				return err
			}
			zap.L().Info("wrote summary csv", zap.String("path", summarizeFlags.csvPath))
		}
		if summarizeFlags.xlsx != "" {
			run := &model.Run{
				Status: model.RunStatusCompleted,
				Result: &model.RunResult{Cells: cells},
			}
			if err := report.WriteXLSXFile(summarizeFlags.xlsx, run); err != nil {
				return err
			}
			zap.L().Info("wrote summary workbook", zap.String("path", summarizeFlags.xlsx))
		}

		return report.WriteJSON(os.Stdout, cells)
	},
}

// summarizeDir reads every per-cell stream in dir and recomputes its
// summary. Files that do not match the cell naming scheme are ignored.
func summarizeDir(dir string) ([]model.CellSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "summarize: read dir %s", dir)
	}

	var cells []model.CellSummary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := ablation.ParseFileName(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		records, err := ablation.ReadCellFile(path)
		if err != nil {
			return nil, err
		}
		summary := stats.Summarize(key, records, 0)
		summary.OutPath = path
		cells = append(cells, summary)
	}

	sortCellSummaries(cells)
	return cells, nil
}

// sortCellSummaries orders summaries the way the grid runs them: mode,
// then condition, then turn count.
func sortCellSummaries(cells []model.CellSummary) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Mode != cells[j].Mode {
			return cells[i].Mode < cells[j].Mode
		}
		if cells[i].Condition != cells[j].Condition {
			return cells[i].Condition < cells[j].Condition
		}
		return cells[i].Turns < cells[j].Turns
	})
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeFlags.dir, "dir", "", "results directory (default from config)")
	summarizeCmd.Flags().StringVar(&summarizeFlags.csvPath, "csv", "", "write the summary table as CSV")
	summarizeCmd.Flags().StringVar(&summarizeFlags.xlsx, "xlsx", "", "write an XLSX workbook")
	rootCmd.AddCommand(summarizeCmd)
}
