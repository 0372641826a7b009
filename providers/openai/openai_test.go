package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/types"
)

func intPtr(v int) *int { return &v }

const chatCompletionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1721000000,
  "model": "gpt-4o-2024-08-06",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "Hello there"},
    "finish_reason": "stop",
    "logprobs": {"content": [
      {"token": "Hello", "logprob": -0.01, "top_logprobs": [
        {"token": "Hello", "logprob": -0.01},
        {"token": "Hi", "logprob": -4.2}
      ]},
      {"token": " there", "logprob": -0.5, "top_logprobs": [
        {"token": " there", "logprob": -0.5}
      ]}
    ]}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func TestChat(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletionJSON)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	d := New("openai", "gpt-4o", server.URL, "", providers.Defaults{
		Temperature: 0.7,
		MaxTokens:   1000,
		Seed:        intPtr(42),
	})

	outcome, err := d.Chat(context.Background(), providers.ChatRequest{
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "Stay factual."},
			{Role: types.RoleUser, Content: "hello"},
		},
		Logprobs: true,
	})
	require.NoError(t, err)

	// Outgoing request carries defaults and the logprobs flags
	assert.Equal(t, "gpt-4o", gotReq.Model)
	assert.Equal(t, float32(0.7), gotReq.Temperature)
	assert.Equal(t, 1000, gotReq.MaxTokens)
	require.NotNil(t, gotReq.Seed)
	assert.Equal(t, 42, *gotReq.Seed)
	assert.True(t, gotReq.Logprobs)
	assert.Equal(t, DefaultTopLogprobs, gotReq.TopLogprobs)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "Bearer test-key", gotAuth)

	// Outcome mirrors the API response
	assert.Equal(t, types.RoleAssistant, outcome.Role)
	assert.Equal(t, "Hello there", outcome.Content)
	assert.Equal(t, 17, outcome.Tokens)
	assert.Equal(t, "gpt-4o-2024-08-06", outcome.Model)
	assert.Equal(t, "stop", outcome.FinishReason)
	require.Len(t, outcome.Logprobs, 2)
	assert.Equal(t, "Hello", outcome.Logprobs[0].Token)
	assert.InDelta(t, -0.01, outcome.Logprobs[0].Logprob, 1e-9)
	require.Len(t, outcome.Logprobs[0].Top, 2)
	assert.Equal(t, "Hi", outcome.Logprobs[0].Top[1].Token)
}

func TestChatOmitsLogprobsWhenNotRequested(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"total_tokens":4}}`)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	d := New("openai", "gpt-4o", server.URL, "", providers.Defaults{Temperature: 0.7, MaxTokens: 100})

	outcome, err := d.Chat(context.Background(), providers.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)

	assert.False(t, gotReq.Logprobs)
	assert.Zero(t, gotReq.TopLogprobs)
	assert.Nil(t, outcome.Logprobs)
}

func TestChatRequestOverridesDefaults(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"total_tokens":4}}`)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	d := New("openai", "gpt-4o", server.URL, "", providers.Defaults{Temperature: 0.7, MaxTokens: 1000})

	_, err := d.Chat(context.Background(), providers.ChatRequest{
		Messages:    []types.Message{{Role: types.RoleUser, Content: "hello"}},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	require.NoError(t, err)

	assert.Equal(t, float32(0.3), gotReq.Temperature)
	assert.Equal(t, 200, gotReq.MaxTokens)
}

func TestChatServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	d := New("openai", "gpt-4o", server.URL, "", providers.Defaults{Temperature: 0.7, MaxTokens: 100})

	_, err := d.Chat(context.Background(), providers.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model":"gpt-4o","choices":[],"usage":{"total_tokens":0}}`)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	d := New("openai", "gpt-4o", server.URL, "", providers.Defaults{Temperature: 0.7, MaxTokens: 100})

	_, err := d.Chat(context.Background(), providers.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestEmbed(t *testing.T) {
	var gotReq embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"text-embedding-3-small"}`)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	d := New("openai", "gpt-4o", server.URL, "", providers.Defaults{})

	vec, err := d.Embed(context.Background(), "the anchor question")
	require.NoError(t, err)

	assert.Equal(t, defaultEmbeddingModel, gotReq.Model)
	assert.Equal(t, "the anchor question", gotReq.Input)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestFactoryAppliesDefaultSeed(t *testing.T) {
	d, err := providers.NewFromSpec(providers.Spec{
		ID:    "openai",
		Type:  "openai",
		Model: "gpt-4o",
	})
	require.NoError(t, err)
	defer d.Close()

	driver, ok := d.(*Driver)
	require.True(t, ok)
	require.NotNil(t, driver.defaults.Seed)
	assert.Equal(t, DefaultSeed, *driver.defaults.Seed)
}

func TestCalculateCost(t *testing.T) {
	t.Run("configured pricing", func(t *testing.T) {
		d := New("openai", "gpt-4o", "http://unused", "", providers.Defaults{
			Pricing: providers.Pricing{InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
		})

		cost := d.CalculateCost(1000, 1000)
		assert.InDelta(t, 0.0025, cost.InputCostUSD, 1e-9)
		assert.InDelta(t, 0.01, cost.OutputCostUSD, 1e-9)
		assert.InDelta(t, 0.0125, cost.TotalCostUSD, 1e-9)
		assert.Equal(t, 1000, cost.InputTokens)
		assert.Equal(t, 1000, cost.OutputTokens)
	})

	t.Run("fallback pricing", func(t *testing.T) {
		d := New("openai", "gpt-4o-mini", "http://unused", "", providers.Defaults{})

		cost := d.CalculateCost(2000, 500)
		assert.InDelta(t, 0.0003, cost.InputCostUSD, 1e-9)
		assert.InDelta(t, 0.0003, cost.OutputCostUSD, 1e-9)
	})
}
