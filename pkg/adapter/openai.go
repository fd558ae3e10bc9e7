package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// OpenAIAdapter implements the Adapter interface for OpenAI models.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIAdapter{client: client}, nil
}

// Provider returns the adapter's vendor.
func (a *OpenAIAdapter) Provider() registry.Provider {
	return registry.ProviderOpenAI
}

// Models returns the list of supported OpenAI models.
func (a *OpenAIAdapter) Models() []string {
	return []string{
		"gpt-5.2-instant",
		"gpt-5.2-thinking",
		"gpt-5.2-codex",
		"gpt-5.2-pro",
	}
}

// Generate sends a prompt to OpenAI.
func (a *OpenAIAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		return nil, Wrap(a.Provider(), model, fmt.Errorf("openai API error: %w", err))
	}

	if resp == nil || len(resp.Choices) == 0 {
		return nil, malformed(a.Provider(), model, "openai returned no choices")
	}

	choice := resp.Choices[0]
	return &Response{
		Text:         choice.Message.Content,
		Provider:     a.Provider(),
		Model:        model,
		FinishReason: openaiFinish(choice.FinishReason),
		Usage: &Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Latency: time.Since(start),
	}, nil
}

// openaiFinish normalizes OpenAI-style finish reasons. DeepSeek shares them.
func openaiFinish(reason string) string {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishFiltered
	case "tool_calls", "function_call":
		return FinishToolCalls
	}
	return FinishUnknown
}
