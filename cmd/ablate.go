package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/ablation"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/report"
)

var ablateFlags struct {
	records string
	modes   []string
	conds   []string
	turns   []int
	limit   int
	seed    int64
	out     string
	dryRun  bool
	csvPath string
	xlsx    string
}

var ablateCmd = &cobra.Command{
	Use:   "ablate",
	Short: "Run the full ablation grid over a teacher conversation file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := loadRecords(ablateFlags.records)
		if err != nil {
			return err
		}

		gridCfg, err := buildGridConfig()
		if err != nil {
			return err
		}
		gridCfg.RecordsFile = ablateFlags.records

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sc := newScorer(ablateFlags.dryRun, gridCfg.Seed)
		ev, err := newEvaluator(sc, cfg.Ablation.SaveConversations)
		if err != nil {
			return err
		}

		provider := &ablation.JSONLProvider{Dir: gridCfg.ResultsDir}
		orch := ablation.New(gridCfg, ev, provider, st)

		run, err := orch.Run(ctx, records)
		if err != nil {
			if run != nil {
				zap.L().Error("ablation failed", zap.String("run_id", run.ID), zap.Error(err))
			}
			return err
		}

		if ablateFlags.csvPath != "" {
			if err := report.WriteCSVFile(ablateFlags.csvPath, run.Result.Cells); err != nil {
				return err
			}
		}
		if ablateFlags.xlsx != "" {
			if err := report.WriteXLSXFile(ablateFlags.xlsx, run); err != nil {
				return err
			}
		}

		return report.WriteJSON(os.Stdout, run)
	},
}

// buildGridConfig merges config-file defaults with command-line overrides.
func buildGridConfig() (ablation.Config, error) {
	modes, err := model.ParseModes(ablateFlags.modes)
	if err != nil {
		return ablation.Config{}, err
	}
	conds, err := model.ParseConditions(ablateFlags.conds)
	if err != nil {
		return ablation.Config{}, err
	}

	resultsDir := ablateFlags.out
	if resultsDir == "" {
		resultsDir = cfg.Ablation.ResultsDir
	}

	return ablation.Config{
		Modes:        modes,
		Conditions:   conds,
		TurnCounts:   ablateFlags.turns,
		SampleLimit:  ablateFlags.limit,
		Concurrency:  cfg.Ablation.Concurrency,
		Seed:         ablateFlags.seed,
		MaxNewTokens: cfg.Ablation.MaxNewTokens,
		Temperature:  cfg.Ablation.Temperature,
		Instruction:  cfg.Concept.Instruction,
		Concept:      cfg.Concept.Target,
		Model:        cfg.Model.Name,
		ResultsDir:   resultsDir,
	}, nil
}

func init() {
	ablateCmd.Flags().StringVar(&ablateFlags.records, "records", "", "teacher conversation JSONL file (required)")
	ablateCmd.Flags().StringSliceVar(&ablateFlags.modes, "modes", []string{"both"}, "generation modes (restricted, unrestricted, both)")
	ablateCmd.Flags().StringSliceVar(&ablateFlags.conds, "conditions", []string{"baseline", "system", "user"}, "experimental conditions")
	ablateCmd.Flags().IntSliceVar(&ablateFlags.turns, "turns", []int{1, 2}, "teacher turn counts")
	ablateCmd.Flags().IntVar(&ablateFlags.limit, "limit", 0, "max records per cell (0 = all)")
	ablateCmd.Flags().Int64Var(&ablateFlags.seed, "seed", 42, "run seed")
	ablateCmd.Flags().StringVar(&ablateFlags.out, "out", "", "results directory (default from config)")
	ablateCmd.Flags().BoolVar(&ablateFlags.dryRun, "dry-run", false, "use the deterministic stub scorer instead of the backend")
	ablateCmd.Flags().StringVar(&ablateFlags.csvPath, "csv", "", "also write the summary table as CSV")
	ablateCmd.Flags().StringVar(&ablateFlags.xlsx, "xlsx", "", "also write an XLSX workbook")
	_ = ablateCmd.MarkFlagRequired("records")
	rootCmd.AddCommand(ablateCmd)
}
