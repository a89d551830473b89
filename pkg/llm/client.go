// Package llm provides a chat-completion client for OpenAI-compatible
// inference servers (vLLM, llama.cpp, OpenAI itself). It exposes the
// per-position log-probabilities the scorer needs.
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/subliminal-labs/roleprobe/internal/resilience"
)

// Client defines the chat-completion operations used by the scorer and the
// conversation generator.
type Client interface {
	// Complete runs one chat completion and returns the generated text
	// plus, when requested, the top-K log-probabilities at each generated
	// position.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Message is a single role-tagged chat message.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// CompletionRequest is our own request type for Complete.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
	// Seed makes sampling reproducible on backends that honor it.
	Seed *int64
	// LogProbs requests per-token log-probabilities; TopLogProbs sets how
	// many alternatives the backend reports per position.
	LogProbs    bool
	TopLogProbs int
}

// TokenLogProb is one entry in a position's reported distribution.
type TokenLogProb struct {
	Token   string
	LogProb float64
}

// Completion is our own response type from Complete.
type Completion struct {
	Text         string
	FinishReason string
	// FirstStep is the backend's top-K distribution at the first generated
	// position, before any sampled token was committed. Empty when
	// LogProbs was not requested.
	FirstStep []TokenLogProb
	// Positions carries the per-position distributions for every generated
	// token, first included.
	Positions [][]TokenLogProb
}

// Option configures the client.
type Option func(*openaiClient)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *openaiClient) {
		c.baseURL = url
	}
}

// WithHTTPTimeout sets the per-request HTTP timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *openaiClient) {
		c.httpTimeout = d
	}
}

// WithRateLimit caps outgoing requests per second. Zero means unlimited.
func WithRateLimit(rps float64) Option {
	return func(c *openaiClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry overrides the retry configuration.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *openaiClient) {
		c.retry = cfg
	}
}

// WithCircuitBreaker installs a circuit breaker around backend calls.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *openaiClient) {
		c.breaker = cb
	}
}

type openaiClient struct {
	apiKey      string
	model       string
	baseURL     string
	httpTimeout time.Duration
	api         *openai.Client
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// NewClient creates a client for the named model.
func NewClient(apiKey, model string, opts ...Option) Client {
	c := &openaiClient{
		apiKey:      apiKey,
		model:       model,
		httpTimeout: 120 * time.Second,
		retry:       resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: c.httpTimeout}
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm: rate limit wait")
		}
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toAPIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		LogProbs:    req.LogProbs,
	}
	if req.LogProbs {
		apiReq.TopLogProbs = req.TopLogProbs
	}
	if req.Seed != nil {
		seed := int(*req.Seed)
		apiReq.Seed = &seed
	}

	call := func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := c.api.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			return resp, classify(err)
		}
		return resp, nil
	}

	var resp openai.ChatCompletionResponse
	var err error
	if c.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			return resilience.DoVal(ctx, c.retry, call)
		})
	} else {
		resp, err = resilience.DoVal(ctx, c.retry, call)
	}
	if err != nil {
		return nil, eris.Wrap(err, "llm: chat completion")
	}

	if len(resp.Choices) == 0 {
		return nil, eris.New("llm: backend returned no choices")
	}
	choice := resp.Choices[0]

	out := &Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	if choice.LogProbs != nil {
		for _, pos := range choice.LogProbs.Content {
			dist := make([]TokenLogProb, 0, len(pos.TopLogProbs)+1)
			for _, alt := range pos.TopLogProbs {
				dist = append(dist, TokenLogProb{Token: alt.Token, LogProb: alt.LogProb})
			}
			// Some backends omit the sampled token from top_logprobs.
			if !containsToken(dist, pos.Token) {
				dist = append(dist, TokenLogProb{Token: pos.Token, LogProb: pos.LogProb})
			}
			out.Positions = append(out.Positions, dist)
		}
		if len(out.Positions) > 0 {
			out.FirstStep = out.Positions[0]
		}
	}
	return out, nil
}

func containsToken(dist []TokenLogProb, token string) bool {
	for _, tlp := range dist {
		if tlp.Token == token {
			return true
		}
	}
	return false
}

func toAPIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// classify maps backend errors onto the resilience taxonomy so retries and
// the circuit breaker treat server-side failures as transient and client
// errors (bad request, context too long) as permanent.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
			return resilience.NewTransientError(err, apiErr.HTTPStatusCode)
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if resilience.IsTransientHTTPStatus(reqErr.HTTPStatusCode) {
			return resilience.NewTransientError(err, reqErr.HTTPStatusCode)
		}
	}
	return err
}
