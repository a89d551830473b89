package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subliminal-labs/roleprobe/internal/resilience"
)

// chatResponse builds the JSON body of an OpenAI chat completion with one
// choice and optional logprobs content.
func chatResponse(text string, positions []map[string]any) map[string]any {
	choice := map[string]any{
		"index":         0,
		"finish_reason": "stop",
		"message":       map[string]any{"role": "assistant", "content": text},
	}
	if positions != nil {
		choice["logprobs"] = map[string]any{"content": positions}
	}
	return map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"model":   "test-model",
		"choices": []any{choice},
	}
}

func position(token string, logprob float64, top map[string]float64) map[string]any {
	alts := make([]map[string]any, 0, len(top))
	for tok, lp := range top {
		alts = append(alts, map[string]any{"token": tok, "logprob": lp})
	}
	return map[string]any{"token": token, "logprob": logprob, "top_logprobs": alts}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, true, req["logprobs"])
		assert.Equal(t, float64(20), req["top_logprobs"])
		assert.Equal(t, float64(7), req["seed"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("owl", []map[string]any{
			position("owl", -0.3, map[string]float64{"owl": -0.3, "cat": -1.5}),
		}))
	}))
	defer srv.Close()

	seed := int64(7)
	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	got, err := client.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: "user", Content: "Name your favorite animal."}},
		MaxTokens:   1,
		LogProbs:    true,
		TopLogProbs: 20,
		Seed:        &seed,
	})

	require.NoError(t, err)
	assert.Equal(t, "owl", got.Text)
	assert.Equal(t, "stop", got.FinishReason)
	require.Len(t, got.FirstStep, 2)
}

func TestComplete_FirstStepIsFirstPosition(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("I like cats", []map[string]any{
			position("I", -0.1, map[string]float64{"I": -0.1, "My": -2.0}),
			position(" like", -0.2, map[string]float64{" like": -0.2}),
		}))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	got, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "speak"}},
		LogProbs: true,
	})

	require.NoError(t, err)
	require.Len(t, got.Positions, 2)
	assert.Equal(t, got.Positions[0], got.FirstStep)

	tokens := make([]string, len(got.FirstStep))
	for i, tlp := range got.FirstStep {
		tokens[i] = tlp.Token
	}
	assert.Contains(t, tokens, "I")
	assert.Contains(t, tokens, "My")
}

func TestComplete_SampledTokenBackfilledIntoDistribution(t *testing.T) {
	t.Parallel()

	// Backend reports the sampled token only at the position level, not in
	// top_logprobs.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("owl", []map[string]any{
			position("owl", -0.4, map[string]float64{"cat": -1.2}),
		}))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	got, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "speak"}},
		LogProbs: true,
	})

	require.NoError(t, err)
	require.Len(t, got.FirstStep, 2)
	assert.Equal(t, TokenLogProb{Token: "owl", LogProb: -0.4}, got.FirstStep[1])
}

func TestComplete_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"loading model"}}`))
			return
		}
		json.NewEncoder(w).Encode(chatResponse("ok", nil))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	got, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, int64(3), calls.Load())
}

func TestComplete_BadRequestNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"context length exceeded"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	_, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestComplete_CircuitOpenShortCircuits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	client := NewClient("test-key", "test-model",
		WithBaseURL(srv.URL),
		WithRetry(resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}),
		WithCircuitBreaker(cb),
	)

	_, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)

	before := calls.Load()
	_, err = client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "open circuit must not reach the backend")
}

func TestComplete_NoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "cmpl-1", "choices": []any{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	_, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	assert.Error(t, err)
}
