// Package anthropic implements the providers.Driver interface for the
// Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shanefrancis93/anchor-research/logger"
	"github.com/shanefrancis93/anchor-research/metrics"
	"github.com/shanefrancis93/anchor-research/providers"
	"github.com/shanefrancis93/anchor-research/types"
)

// HTTP constants
const (
	contentTypeHeader     = "Content-Type"
	applicationJSON       = "application/json"
	apiKeyHeader          = "X-API-Key"
	anthropicVersionKey   = "Anthropic-Version"
	anthropicVersionValue = "2023-06-01"
	anthropicAPIHost      = "api.anthropic.com"
	httpClientTimeout     = 60 * time.Second
)

// normalizeBaseURL ensures the baseURL includes the /v1 path for Anthropic's
// API. Mock server URLs (non-Anthropic hosts) are left unchanged.
func normalizeBaseURL(baseURL string) string {
	if strings.Contains(baseURL, anthropicAPIHost) {
		if !strings.Contains(baseURL, "/v1") {
			return strings.TrimSuffix(baseURL, "/") + "/v1"
		}
	}
	return baseURL
}

// Driver implements the providers.Driver interface for Anthropic.
type Driver struct {
	id       string
	model    string
	baseURL  string
	apiKey   string
	defaults providers.Defaults
	client   *http.Client
}

func init() {
	providers.RegisterDriverFactory("anthropic", func(spec providers.Spec) (providers.Driver, error) {
		return New(spec.ID, spec.Model, spec.BaseURL, spec.APIKeyEnv, spec.Defaults), nil
	})
}

// New creates a new Anthropic driver. The API key is read from apiKeyEnv
// when set, otherwise from ANTHROPIC_API_KEY with CLAUDE_API_KEY as fallback.
func New(id, model, baseURL, apiKeyEnv string, defaults providers.Defaults) *Driver {
	apiKey := ""
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("CLAUDE_API_KEY")
	}

	return &Driver{
		id:       id,
		model:    model,
		baseURL:  normalizeBaseURL(baseURL),
		apiKey:   apiKey,
		defaults: defaults,
		client:   &http.Client{Timeout: httpClientTimeout},
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

func (d *Driver) messagesURL() string {
	return d.baseURL + "/messages"
}

// Anthropic API request/response structures
type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Messages    []apiMessage `json:"messages"`
	System      string       `json:"system,omitempty"`
	Temperature float32      `json:"temperature,omitempty"`
	TopP        float32      `json:"top_p,omitempty"`
}

type apiMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      apiUsage       `json:"usage"`
	Error      *apiError      `json:"error,omitempty"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Chat sends a chat request to Anthropic and returns the assistant turn.
// System messages in the history are lifted into the dedicated system
// parameter the messages API expects.
func (d *Driver) Chat(ctx context.Context, req providers.ChatRequest) (types.TurnOutcome, error) {
	var systemParts []string
	messages := make([]apiMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == types.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		messages = append(messages, apiMessage{
			Role:    msg.Role,
			Content: []contentBlock{{Type: "text", Text: msg.Content}},
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

	apiReq := apiRequest{
		Model:       d.model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      strings.Join(systemParts, "\n\n"),
		Temperature: temperature,
		TopP:        topP,
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.messagesURL(), bytes.NewReader(reqBody))
	if err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(contentTypeHeader, applicationJSON)
	httpReq.Header.Set(apiKeyHeader, d.apiKey)
	httpReq.Header.Set(anthropicVersionKey, anthropicVersionValue)

	logger.Debug("sending chat request",
		"provider", d.id,
		"model", d.model,
		"messages", len(messages),
		"temperature", temperature)

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

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return types.TurnOutcome{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return types.TurnOutcome{}, fmt.Errorf("Anthropic API error: %s", apiResp.Error.Message)
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	// The messages API reports no combined total, and some proxies omit
	// usage entirely. Estimate at ~4 chars per token when it is missing.
	tokens := apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens
	if tokens == 0 {
		tokens = content.Len() / 4
	}

	model := apiResp.Model
	if model == "" {
		model = d.model
	}

	outcome := types.TurnOutcome{
		Role:         types.RoleAssistant,
		Content:      content.String(),
		Tokens:       tokens,
		Model:        model,
		FinishReason: apiResp.StopReason,
	}

	metrics.RecordDriverTokens(d.id, d.model, apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens)
	logger.ModelResponse(d.id, d.model, outcome.Tokens, "stop_reason", apiResp.StopReason)

	return outcome, nil
}

// CalculateCost calculates a cost breakdown for the given token counts.
// Configured pricing wins; otherwise a per-model fallback table applies.
func (d *Driver) CalculateCost(tokensIn, tokensOut int) types.CostInfo {
	inputPer1K := d.defaults.Pricing.InputCostPer1K
	outputPer1K := d.defaults.Pricing.OutputCostPer1K

	if inputPer1K == 0 && outputPer1K == 0 {
		logger.Warn("no pricing configured, using fallback pricing", "provider", d.id, "model", d.model)

		switch {
		case strings.HasPrefix(d.model, "claude-3-opus"):
			inputPer1K = 0.015
			outputPer1K = 0.075
		case strings.HasPrefix(d.model, "claude-3-5-haiku"):
			inputPer1K = 0.0008
			outputPer1K = 0.004
		case strings.HasPrefix(d.model, "claude-3-haiku"):
			inputPer1K = 0.00025
			outputPer1K = 0.00125
		default:
			// Sonnet-class pricing for unknown models
			inputPer1K = 0.003
			outputPer1K = 0.015
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
