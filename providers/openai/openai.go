// Package openai implements the providers.Driver interface for the OpenAI
// chat completions API, including per-token logprobs and text embeddings.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/metrics"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/types"
)

const (
	contentTypeHeader = "Content-Type"
	applicationJSON   = "application/json"

	httpClientTimeout = 60 * time.Second

	defaultEmbeddingModel = "text-embedding-3-small"
)

// DefaultSeed is sent with every completion request unless provider
// configuration or the request overrides it, keeping sampled runs as
// repeatable as the backend allows.
const DefaultSeed = 42

// DefaultTopLogprobs is the number of alternatives requested per token when
// logprobs are enabled without an explicit count.
const DefaultTopLogprobs = 5

// Driver implements the providers.Driver interface for OpenAI.
type Driver struct {
	id             string
	model          string
	baseURL        string
	apiKey         string
	embeddingModel string
	defaults       providers.Defaults
	client         *http.Client
}

func init() {
	providers.RegisterDriverFactory("openai", func(spec providers.Spec) (providers.Driver, error) {
		if spec.Defaults.Seed == nil {
			seed := DefaultSeed
			spec.Defaults.Seed = &seed
		}
		return New(spec.ID, spec.Model, spec.BaseURL, spec.APIKeyEnv, spec.Defaults), nil
	})
}

// New creates a new OpenAI driver. The API key is read from apiKeyEnv when
// set, otherwise from OPENAI_API_KEY with OPENAI_TOKEN as fallback.
func New(id, model, baseURL, apiKeyEnv string, defaults providers.Defaults) *Driver {
	apiKey := ""
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_TOKEN")
	}

	return &Driver{
		id:             id,
		model:          model,
		baseURL:        baseURL,
		apiKey:         apiKey,
		embeddingModel: defaultEmbeddingModel,
		defaults:       defaults,
		client:         &http.Client{Timeout: httpClientTimeout},
	}
}

// ID returns the driver ID.
func (d *Driver) ID() string {
	return d.id
}

// Model returns the model identifier requests are sent to.
func (d *Driver) Model() string {
	return d.model
}

// Close closes the HTTP client and cleans up idle connections.
func (d *Driver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// OpenAI API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Seed        *int          `json:"seed,omitempty"`
	Logprobs    bool          `json:"logprobs,omitempty"`
	TopLogprobs int           `json:"top_logprobs,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int             `json:"index"`
	Message      chatMessage     `json:"message"`
	FinishReason string          `json:"finish_reason"`
	Logprobs     *choiceLogprobs `json:"logprobs,omitempty"`
}

type choiceLogprobs struct {
	Content []tokenLogprob `json:"content"`
}

type tokenLogprob struct {
	Token       string            `json:"token"`
	Logprob     float64           `json:"logprob"`
	TopLogprobs []topLogprobEntry `json:"top_logprobs"`
}

type topLogprobEntry struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Chat sends a chat request to OpenAI and returns the assistant turn.
func (d *Driver) Chat(ctx context.Context, req providers.ChatRequest) (types.TurnOutcome, error) {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	// Apply driver defaults for zero values
	temperature := req.Temperature
	if temperature == 0 {
		temperature = d.defaults.Temperature
	}

	topP := req.TopP
	if topP == 0 {
		topP = d.defaults.TopP
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = d.defaults.MaxTokens
	}

	seed := req.Seed
	if seed == nil {
		seed = d.defaults.Seed
	}

	apiReq := chatRequest{
		Model:       d.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Seed:        seed,
	}
	if req.Logprobs {
		apiReq.Logprobs = true
		apiReq.TopLogprobs = req.TopLogprobs
		if apiReq.TopLogprobs == 0 {
			apiReq.TopLogprobs = DefaultTopLogprobs
		}
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(contentTypeHeader, applicationJSON)
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	logger.Debug("sending chat request",
		"provider", d.id,
		"model", d.model,
		"messages", len(messages),
		"temperature", temperature,
		"logprobs", req.Logprobs)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return types.TurnOutcome{}, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, logger.RedactSensitiveData(string(respBody)))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return types.TurnOutcome{}, fmt.Errorf("OpenAI API error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return types.TurnOutcome{}, fmt.Errorf("no choices in response")
	}

	choice := apiResp.Choices[0]
	outcome := types.TurnOutcome{
		Role:         types.RoleAssistant,
		Content:      choice.Message.Content,
		Tokens:       apiResp.Usage.TotalTokens,
		Model:        apiResp.Model,
		FinishReason: choice.FinishReason,
		Logprobs:     convertLogprobs(choice.Logprobs),
	}

	metrics.RecordDriverTokens(d.id, d.model, apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens)
	logger.ModelResponse(d.id, d.model, outcome.Tokens, "finish_reason", outcome.FinishReason)

	return outcome, nil
}

func convertLogprobs(lp *choiceLogprobs) []types.TokenLogprob {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}

	out := make([]types.TokenLogprob, 0, len(lp.Content))
	for _, tok := range lp.Content {
		entry := types.TokenLogprob{
			Token:   tok.Token,
			Logprob: tok.Logprob,
		}
		for _, alt := range tok.TopLogprobs {
			entry.Top = append(entry.Top, types.TopLogprob{
				Token:   alt.Token,
				Logprob: alt.Logprob,
			})
		}
		out = append(out, entry)
	}
	return out
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Embed returns the embedding vector for text using the embeddings endpoint.
func (d *Driver) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody, err := json.Marshal(embeddingRequest{
		Model: d.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(contentTypeHeader, applicationJSON)
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, logger.RedactSensitiveData(string(respBody)))
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return apiResp.Data[0].Embedding, nil
}

// CalculateCost calculates a cost breakdown for the given token counts.
// Configured pricing wins; otherwise a per-model fallback table applies.
func (d *Driver) CalculateCost(tokensIn, tokensOut int) types.CostInfo {
	inputPer1K := d.defaults.Pricing.InputCostPer1K
	outputPer1K := d.defaults.Pricing.OutputCostPer1K

	if inputPer1K == 0 && outputPer1K == 0 {
		logger.Warn("no pricing configured, using fallback pricing", "provider", d.id, "model", d.model)

		switch d.model {
		case "gpt-4":
			inputPer1K = 0.03
			outputPer1K = 0.06
		case "gpt-4o":
			inputPer1K = 0.0025
			outputPer1K = 0.01
		case "gpt-4o-mini":
			inputPer1K = 0.00015
			outputPer1K = 0.0006
		case "gpt-3.5-turbo":
			inputPer1K = 0.0015
			outputPer1K = 0.002
		default:
			inputPer1K = 0.0025
			outputPer1K = 0.01
		}
	}

	inputCost := float64(tokensIn) / 1000.0 * inputPer1K
	outputCost := float64(tokensOut) / 1000.0 * outputPer1K

	return types.CostInfo{
		InputTokens:   tokensIn,
		OutputTokens:  tokensOut,
		InputCostUSD:  inputCost,
		OutputCostUSD: outputCost,
		TotalCostUSD:  inputCost + outputCost,
	}
}
