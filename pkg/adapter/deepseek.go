package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zen-systems/mindgate/pkg/registry"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter implements the Adapter interface for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// DeepSeekOption configures a DeepSeekAdapter.
type DeepSeekOption func(*DeepSeekAdapter)

// WithDeepSeekBaseURL points the adapter at a different endpoint.
func WithDeepSeekBaseURL(url string) DeepSeekOption {
	return func(a *DeepSeekAdapter) {
		a.baseURL = url
	}
}

// WithDeepSeekHTTPClient sets the HTTP client used for requests.
func WithDeepSeekHTTPClient(c *http.Client) DeepSeekOption {
	return func(a *DeepSeekAdapter) {
		a.httpClient = c
	}
}

type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekAdapter creates a new DeepSeek adapter.
func NewDeepSeekAdapter(apiKey string, opts ...DeepSeekOption) (*DeepSeekAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}

	a := &DeepSeekAdapter{
		apiKey:     apiKey,
		baseURL:    deepseekBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Provider returns the adapter's vendor.
func (a *DeepSeekAdapter) Provider() registry.Provider {
	return registry.ProviderDeepSeek
}

// Models returns the list of supported DeepSeek models.
func (a *DeepSeekAdapter) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-coder",
		"deepseek-reasoner",
	}
}

// Generate sends a prompt to DeepSeek.
func (a *DeepSeekAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	start := time.Now()
	reqBody := deepseekRequest{
		Model: model,
		Messages: []deepseekMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 4096,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, Wrap(a.Provider(), model, fmt.Errorf("deepseek API request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(a.Provider(), model, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		pe := &ProviderError{
			Provider: a.Provider(),
			Model:    model,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, truncateBody(body)),
		}
		pe.Kind = Classify(pe)
		return nil, pe
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		return nil, malformed(a.Provider(), model, "failed to parse response: %v", err)
	}

	if deepseekResp.Error != nil {
		return nil, &ProviderError{
			Provider: a.Provider(),
			Model:    model,
			Kind:     KindUnavailable,
			Err: fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
				deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code),
		}
	}

	if len(deepseekResp.Choices) == 0 {
		return nil, malformed(a.Provider(), model, "deepseek returned no choices")
	}

	choice := deepseekResp.Choices[0]
	return &Response{
		Text:         choice.Message.Content,
		Provider:     a.Provider(),
		Model:        model,
		FinishReason: openaiFinish(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     deepseekResp.Usage.PromptTokens,
			CompletionTokens: deepseekResp.Usage.CompletionTokens,
			TotalTokens:      deepseekResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
