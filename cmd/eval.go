package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/subliminal-labs/roleprobe/internal/ablation"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/report"
)

var evalFlags struct {
	records string
	mode    string
	cond    string
	turns   int
	limit   int
	seed    int64
	out     string
	dryRun  bool
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a single grid cell",
	Long:  "Runs one (mode, condition, turn-count) cell against a records file and prints its summary, without the full grid or the run index.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		records, err := loadRecords(evalFlags.records)
		if err != nil {
			return err
		}

		mode, err := model.ParseMode(evalFlags.mode)
		if err != nil {
			return err
		}
		cond, err := model.ParseCondition(evalFlags.cond)
		if err != nil {
			return err
		}

		gridCfg := ablation.Config{
			Modes:        []model.GenerationMode{mode},
			Conditions:   []model.Condition{cond},
			TurnCounts:   []int{evalFlags.turns},
			SampleLimit:  evalFlags.limit,
			Concurrency:  cfg.Ablation.Concurrency,
			Seed:         evalFlags.seed,
			MaxNewTokens: cfg.Ablation.MaxNewTokens,
			Temperature:  cfg.Ablation.Temperature,
			Instruction:  cfg.Concept.Instruction,
			Concept:      cfg.Concept.Target,
			Model:        cfg.Model.Name,
			ResultsDir:   evalFlags.out,
		}

		sc := newScorer(evalFlags.dryRun, evalFlags.seed)
		ev, err := newEvaluator(sc, cfg.Ablation.SaveConversations)
		if err != nil {
			return err
		}

		var provider ablation.SinkProvider
		if evalFlags.out != "" {
			provider = &ablation.JSONLProvider{Dir: evalFlags.out}
		} else {
			provider = &ablation.MemoryProvider{}
		}

		run, err := ablation.New(gridCfg, ev, provider, nil).Run(ctx, records)
		if err != nil {
			return err
		}
		return report.WriteJSON(os.Stdout, run.Result.Cells[0])
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalFlags.records, "records", "", "teacher conversation JSONL file (required)")
	evalCmd.Flags().StringVar(&evalFlags.mode, "mode", "restricted", "generation mode")
	evalCmd.Flags().StringVar(&evalFlags.cond, "condition", "baseline", "experimental condition")
	evalCmd.Flags().IntVar(&evalFlags.turns, "turns", 1, "teacher turn count")
	evalCmd.Flags().IntVar(&evalFlags.limit, "limit", 0, "max records (0 = all)")
	evalCmd.Flags().Int64Var(&evalFlags.seed, "seed", 42, "evaluation seed")
	evalCmd.Flags().StringVar(&evalFlags.out, "out", "", "write the sample stream under this directory")
	evalCmd.Flags().BoolVar(&evalFlags.dryRun, "dry-run", false, "use the deterministic stub scorer instead of the backend")
	_ = evalCmd.MarkFlagRequired("records")
	rootCmd.AddCommand(evalCmd)
}
