// Package mock provides a scriptable in-memory driver for tests and offline
// runs. It returns canned responses without making any API calls and records
// every request it receives.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/types"
)

// Driver implements the providers.Driver interface without network access.
// Responses come from the script in order; once the script is exhausted, or
// when no script was given, a formatted placeholder response is returned.
type Driver struct {
	id    string
	model string

	// RespondFunc overrides scripted responses when set. It receives the
	// full request and decides the reply, which lets tests key responses
	// off conversation content. Set before first use.
	RespondFunc func(req providers.ChatRequest) (string, error)

	mu       sync.Mutex
	script   []string
	next     int
	calls    int
	requests []providers.ChatRequest
	err      error
}

func init() {
	providers.RegisterDriverFactory("mock", func(spec providers.Spec) (providers.Driver, error) {
		return New(spec.ID, spec.Model), nil
	})
}

// New creates a mock driver that replies with the scripted responses in order.
func New(id, model string, script ...string) *Driver {
	return &Driver{
		id:     id,
		model:  model,
		script: script,
	}
}

// ID returns the driver ID.
func (d *Driver) ID() string {
	return d.id
}

// Model returns the configured model name.
func (d *Driver) Model() string {
	return d.model
}

// SetError makes all subsequent Chat calls fail with err. Pass nil to clear.
func (d *Driver) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Requests returns a copy of all requests received so far.
func (d *Driver) Requests() []providers.ChatRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]providers.ChatRequest, len(d.requests))
	copy(out, d.requests)
	return out
}

// CallCount returns the number of Chat calls received so far.
func (d *Driver) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Chat records the request and returns the next scripted response.
func (d *Driver) Chat(_ context.Context, req providers.ChatRequest) (types.TurnOutcome, error) {
	d.mu.Lock()

	// Snapshot the message slice so later appends by the caller cannot
	// change what tests observe.
	recorded := req
	recorded.Messages = append([]types.Message(nil), req.Messages...)
	d.requests = append(d.requests, recorded)
	d.calls++
	call := d.calls

	if d.err != nil {
		err := d.err
		d.mu.Unlock()
		return types.TurnOutcome{}, err
	}

	var content string
	if d.next < len(d.script) {
		content = d.script[d.next]
		d.next++
	}
	d.mu.Unlock()

	if d.RespondFunc != nil {
		reply, err := d.RespondFunc(req)
		if err != nil {
			return types.TurnOutcome{}, err
		}
		content = reply
	} else if content == "" {
		content = fmt.Sprintf("Mock response %d from %s", call, d.model)
	}

	// Count tokens on message length (rough approximation, ~4 chars each)
	inputTokens := 0
	for _, msg := range req.Messages {
		inputTokens += len(msg.Content) / 4
	}
	if inputTokens == 0 {
		inputTokens = 10
	}

	outputTokens := len(content) / 4
	if outputTokens == 0 {
		outputTokens = 20
	}

	outcome := types.TurnOutcome{
		Role:         types.RoleAssistant,
		Content:      content,
		Tokens:       inputTokens + outputTokens,
		Model:        d.model,
		FinishReason: "stop",
	}
	if req.Logprobs {
		outcome.Logprobs = synthesizeLogprobs(content)
	}

	return outcome, nil
}

// synthesizeLogprobs fabricates a plausible per-token distribution from the
// response words: each token carries ~90% mass with one ~9% alternative.
func synthesizeLogprobs(content string) []types.TokenLogprob {
	words := strings.Fields(content)
	out := make([]types.TokenLogprob, 0, len(words))
	for _, w := range words {
		out = append(out, types.TokenLogprob{
			Token:   w,
			Logprob: -0.105,
			Top: []types.TopLogprob{
				{Token: w, Logprob: -0.105},
				{Token: "maybe", Logprob: -2.41},
			},
		})
	}
	return out
}

// CalculateCost calculates a cost breakdown using fixed mock pricing.
func (d *Driver) CalculateCost(tokensIn, tokensOut int) types.CostInfo {
	inputCostPer1K := 0.01
	outputCostPer1K := 0.01

	inputCost := float64(tokensIn) / 1000.0 * inputCostPer1K
	outputCost := float64(tokensOut) / 1000.0 * outputCostPer1K

	return types.CostInfo{
		InputTokens:   tokensIn,
		OutputTokens:  tokensOut,
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		TotalCostUSD:  inputCost + outputCost,
	}
}

// Close is a no-op for the mock driver.
func (d *Driver) Close() error {
	return nil
}

// EmbeddingDriver is a mock driver that also satisfies providers.Embedder.
// Keep plain Driver for tests that must not advertise the capability.
type EmbeddingDriver struct {
	*Driver

	// EmbedFunc overrides the default embedding when set.
	EmbedFunc func(text string) []float64
}

// NewEmbedding creates a mock driver with embedding support.
func NewEmbedding(id, model string, script ...string) *EmbeddingDriver {
	return &EmbeddingDriver{Driver: New(id, model, script...)}
}

// Embed returns a letter-frequency vector, so identical texts embed
// identically and disjoint texts are orthogonal.
func (d *EmbeddingDriver) Embed(_ context.Context, text string) ([]float64, error) {
	if d.EmbedFunc != nil {
		return d.EmbedFunc(text), nil
	}

	vec := make([]float64, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec, nil
}
