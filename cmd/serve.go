package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/ablation"
	"github.com/subliminal-labs/roleprobe/internal/api"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/store"
)

var serveFlags struct {
	port   int
	dryRun bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run index and ablation launcher over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		launcher := &ablationLauncher{store: st, logger: zap.L().Named("launcher")}
		srv := api.NewServer(st, launcher)

		port := serveFlags.port
		if port == 0 {
			port = cfg.Server.Port
		}
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("http server listening", zap.String("addr", httpSrv.Addr))
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

// ablationLauncher runs requested grids in the background, filling unset
// request fields from the server configuration. The records file is read
// before accepting so a bad path fails the request, not the run.
type ablationLauncher struct {
	store  store.Store
	logger *zap.Logger
}

func (l *ablationLauncher) Launch(grid ablation.Config) (string, error) {
	l.fillDefaults(&grid)

	records, err := loadRecords(grid.RecordsFile)
	if err != nil {
		return "", err
	}
	if err := grid.Validate(); err != nil {
		return "", err
	}

	sc := newScorer(serveFlags.dryRun, grid.Seed)
	ev, err := newEvaluator(sc, cfg.Ablation.SaveConversations)
	if err != nil {
		return "", err
	}

	grid.RunID = uuid.NewString()
	provider := &ablation.JSONLProvider{Dir: grid.ResultsDir}
	orch := ablation.New(grid, ev, provider, l.store)

	go func() {
		if _, err := orch.Run(context.Background(), records); err != nil {
			l.logger.Error("background run failed", zap.String("run_id", grid.RunID), zap.Error(err))
			return
		}
		l.logger.Info("background run completed", zap.String("run_id", grid.RunID))
	}()

	return grid.RunID, nil
}

func (l *ablationLauncher) fillDefaults(grid *ablation.Config) {
	if len(grid.Modes) == 0 {
		grid.Modes = []model.GenerationMode{model.ModeRestricted, model.ModeUnrestricted}
	}
	if len(grid.Conditions) == 0 {
		grid.Conditions = []model.Condition{model.ConditionBaseline, model.ConditionSystem, model.ConditionUser}
	}
	if len(grid.TurnCounts) == 0 {
		grid.TurnCounts = []int{1, 2}
	}
	if grid.ResultsDir == "" {
		grid.ResultsDir = cfg.Ablation.ResultsDir
	}
	grid.Concurrency = cfg.Ablation.Concurrency
	grid.MaxNewTokens = cfg.Ablation.MaxNewTokens
	grid.Temperature = cfg.Ablation.Temperature
	grid.Instruction = cfg.Concept.Instruction
	grid.Concept = cfg.Concept.Target
	grid.Model = cfg.Model.Name
}

func init() {
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "listen port (default from config)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "launch runs with the deterministic stub scorer")
	rootCmd.AddCommand(serveCmd)
}
