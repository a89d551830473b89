package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "roleprobe",
	Short: "Role-assumption probe for next-token preference shifts",
	Long:  "Measures whether instructing a model to assume the assistant role in a biased teacher conversation shifts its next-token behavior, via a mode x condition x turn-count ablation grid with statistics.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
