// Package providers defines the Driver contract for model backends and a
// factory registry that builds drivers from configuration. Concrete
// implementations live in subpackages (openai, anthropic, mock) and register
// themselves on import.
package providers

import (
	"context"

	"github.com/shanefrancis93/anchor-research/types"
)

// ChatRequest holds everything a driver needs for a single completion call.
type ChatRequest struct {
	Messages    []types.Message
	Temperature float32
	TopP        float32
	MaxTokens   int
	Seed        *int

	// Logprobs asks the backend to return per-token log probabilities.
	// Backends that cannot provide them return an outcome with nil Logprobs.
	Logprobs    bool
	TopLogprobs int
}

// Driver is the interface implemented by all model backends.
type Driver interface {
	// ID returns the configured driver ID (the provider name from config).
	ID() string

	// Model returns the model identifier requests are sent to.
	Model() string

	// Chat sends a chat request and returns the assistant turn it produced.
	Chat(ctx context.Context, req ChatRequest) (types.TurnOutcome, error)

	// CalculateCost converts token counts into a cost breakdown using the
	// driver's configured pricing.
	CalculateCost(tokensIn, tokensOut int) types.CostInfo

	// Close cleans up any resources held by the driver.
	Close() error
}

// Embedder is an optional capability for drivers that can produce text
// embeddings. Callers discover it with a type assertion.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Pricing holds per-1K-token costs in USD.
type Pricing struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// Defaults holds default request parameters applied when a ChatRequest
// leaves the corresponding field zero.
type Defaults struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
	Seed        *int
	Pricing     Pricing
}
