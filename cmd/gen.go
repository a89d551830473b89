package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/conversation"
	"github.com/subliminal-labs/roleprobe/internal/convgen"
	"github.com/subliminal-labs/roleprobe/pkg/anthropic"
)

var genFlags struct {
	out     string
	backend string
	animal  string
	count   int
	turns   int
	seed    int64
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate teacher conversations",
	Long:  "Generates numeric-sequence teacher conversations with an animal-biased system prompt, in the JSONL schema the ablation consumes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gen, recordedModel, err := newGenerator()
		if err != nil {
			return err
		}

		svc, err := convgen.New(gen, convgen.Config{
			Animal:       genFlags.animal,
			Count:        genFlags.count,
			Turns:        genFlags.turns,
			MaxNewTokens: cfg.Gen.MaxNewTokens,
			Seed:         genFlags.seed,
			Model:        recordedModel,
		})
		if err != nil {
			return err
		}

		records, err := svc.Run(ctx)
		if err != nil {
			return err
		}

		if err := conversation.WriteFile(genFlags.out, records); err != nil {
			return err
		}
		zap.L().Info("wrote conversations",
			zap.String("path", genFlags.out),
			zap.Int("count", len(records)))
		return nil
	},
}

// newGenerator selects the text backend and reports the model name recorded
// on each output row.
func newGenerator() (convgen.Generator, string, error) {
	switch genFlags.backend {
	case "openai":
		return &convgen.LLMBackend{
			Client:      newLLMClient(),
			Temperature: cfg.Gen.Temperature,
			Seed:        genFlags.seed,
		}, cfg.Model.Name, nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, "", eris.New("anthropic API key is required (ROLEPROBE_ANTHROPIC_KEY)")
		}
		return &convgen.AnthropicBackend{
			Client:      anthropic.NewClient(cfg.Anthropic.Key),
			Model:       cfg.Anthropic.Model,
			Temperature: float64(cfg.Gen.Temperature),
		}, cfg.Anthropic.Model, nil
	default:
		return nil, "", eris.Errorf("unsupported gen backend: %s", genFlags.backend)
	}
}

func init() {
	genCmd.Flags().StringVar(&genFlags.out, "out", "", "output JSONL path (required)")
	genCmd.Flags().StringVar(&genFlags.backend, "backend", "openai", "text backend (openai, anthropic)")
	genCmd.Flags().StringVar(&genFlags.animal, "animal", "owl", "animal to bias the teacher toward")
	genCmd.Flags().IntVar(&genFlags.count, "count", 50, "number of conversations")
	genCmd.Flags().IntVar(&genFlags.turns, "turns", 4, "user/assistant pairs per conversation")
	genCmd.Flags().Int64Var(&genFlags.seed, "seed", 42, "generation seed")
	_ = genCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(genCmd)
}
