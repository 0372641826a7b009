// Package types defines the shared data model for scripted conversation runs:
// messages, normalized model-call outcomes, token log-probabilities, and cost
// tracking. These are leaf types with no dependencies so every layer of the
// system can exchange them.
package types

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in a branch's conversation history.
// This is the canonical shape persisted in transcripts and sent to drivers.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // Message content
}

// TurnOutcome is the normalized result of one model call, regardless of
// provider. Drivers translate provider-specific responses into this shape.
type TurnOutcome struct {
	Role         string         `json:"role"`                    // Always "assistant"
	Content      string         `json:"content"`                 // Model response text
	Tokens       int            `json:"tokens"`                  // Total tokens consumed (input + output)
	Model        string         `json:"model"`                   // Model identifier that produced the response
	FinishReason string         `json:"finish_reason,omitempty"` // Provider stop reason, if reported
	Logprobs     []TokenLogprob `json:"logprobs,omitempty"`      // Token-level log probabilities, if requested and supported
}

// TokenLogprob carries the log probability of one generated token plus the
// most likely alternatives at that position.
type TokenLogprob struct {
	Token   string       `json:"token"`
	Logprob float64      `json:"logprob"`
	Top     []TopLogprob `json:"top_logprobs,omitempty"`
}

// TopLogprob is one alternative token candidate at a generation position.
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// CostInfo tracks token usage and associated cost for model calls.
type CostInfo struct {
	InputTokens   int     `json:"input_tokens"`    // Number of input tokens consumed
	OutputTokens  int     `json:"output_tokens"`   // Number of output tokens generated
	InputCostUSD  float64 `json:"input_cost_usd"`  // Cost of input tokens in USD
	OutputCostUSD float64 `json:"output_cost_usd"` // Cost of output tokens in USD
	TotalCostUSD  float64 `json:"total_cost_usd"`  // Total cost in USD
}
