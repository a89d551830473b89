package convgen

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/pkg/anthropic"
	"github.com/subliminal-labs/roleprobe/pkg/llm"
)

// LLMBackend adapts the OpenAI-compatible client to the Generator
// interface.
type LLMBackend struct {
	Client      llm.Client
	Temperature float32
	Seed        int64
}

func (b *LLMBackend) Generate(ctx context.Context, turns []model.Turn, maxTokens int) (string, error) {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: string(t.Role), Content: t.Content}
	}
	seed := b.Seed
	resp, err := b.Client.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: b.Temperature,
		Seed:        &seed,
	})
	if err != nil {
		return "", eris.Wrap(err, "convgen: llm backend")
	}
	return resp.Text, nil
}

// AnthropicBackend adapts the Messages API to the Generator interface. The
// leading system turn becomes a cached system block, and the cache is
// warmed once with a primer request before the batch starts.
type AnthropicBackend struct {
	Client      anthropic.Client
	Model       string
	Temperature float64

	primer sync.Once
}

func (b *AnthropicBackend) Generate(ctx context.Context, turns []model.Turn, maxTokens int) (string, error) {
	req := anthropic.MessageRequest{
		Model:     b.Model,
		MaxTokens: int64(maxTokens),
	}
	if b.Temperature > 0 {
		temp := b.Temperature
		req.Temperature = &temp
	}
	for _, t := range turns {
		if t.Role == model.RoleSystem && len(req.Messages) == 0 {
			req.System = anthropic.BuildCachedSystemBlocks(t.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropic.Message{Role: string(t.Role), Content: t.Content})
	}

	var primerErr error
	b.primer.Do(func() {
		if len(req.System) == 0 {
			return
		}
		primer := req
		primer.MaxTokens = 1
		_, primerErr = anthropic.PrimerRequest(ctx, b.Client, primer)
	})
	if primerErr != nil {
		return "", primerErr
	}

	resp, err := b.Client.CreateMessage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "convgen: anthropic backend")
	}
	resp.Usage.LogCost(b.Model, "convgen")
	return resp.Text(), nil
}
