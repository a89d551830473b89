package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/conversation"
	"github.com/subliminal-labs/roleprobe/internal/evaluate"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/scorer"
	"github.com/subliminal-labs/roleprobe/internal/store"
	"github.com/subliminal-labs/roleprobe/pkg/llm"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "roleprobe.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadVocabulary() (*concept.Vocabulary, error) {
	if cfg.Concept.VocabFile == "" {
		return concept.Default(), nil
	}
	return concept.Load(cfg.Concept.VocabFile)
}

func newLLMClient() llm.Client {
	opts := []llm.Option{
		llm.WithBaseURL(cfg.Model.BaseURL),
		llm.WithHTTPTimeout(time.Duration(cfg.Model.TimeoutSecs) * time.Second),
	}
	if cfg.Model.RPS > 0 {
		opts = append(opts, llm.WithRateLimit(cfg.Model.RPS))
	}
	return llm.NewClient(cfg.Model.Key, cfg.Model.Name, opts...)
}

// newScorer returns the backend-driven scorer, or the deterministic stub
// when dryRun is set.
func newScorer(dryRun bool, seed int64) scorer.Scorer {
	if dryRun {
		return &scorer.Stub{Seed: seed}
	}
	return scorer.NewService(newLLMClient(), cfg.Model.TopLogProbs)
}

func newEvaluator(sc scorer.Scorer, saveConversations bool) (*evaluate.Evaluator, error) {
	vocab, err := loadVocabulary()
	if err != nil {
		return nil, err
	}
	return evaluate.New(sc, vocab, cfg.Concept.Target, cfg.Concept.ProbeQuestion, saveConversations)
}

func loadRecords(path string) ([]model.ConversationRecord, error) {
	if path == "" {
		return nil, eris.New("a conversation records file is required (--records)")
	}
	records, err := conversation.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("no conversation records in %s", path)
	}
	return records, nil
}
