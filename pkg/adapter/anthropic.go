package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicAdapter creates a new Anthropic adapter.
// SDK-level retries are disabled; the router falls back instead.
func NewAnthropicAdapter(apiKey string, opts ...option.RequestOption) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(opts...)
	return &AnthropicAdapter{client: client, maxTokens: 4096}, nil
}

// Provider returns the adapter's vendor.
func (a *AnthropicAdapter) Provider() registry.Provider {
	return registry.ProviderAnthropic
}

// Models returns the list of supported Claude models.
func (a *AnthropicAdapter) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
	}
}

// Generate sends a prompt to Claude.
func (a *AnthropicAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	start := time.Now()
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, Wrap(a.Provider(), model, fmt.Errorf("anthropic API error: %w", err))
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, malformed(a.Provider(), model, "anthropic returned no content")
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         content.String(),
		Provider:     a.Provider(),
		Model:        model,
		FinishReason: anthropicFinish(resp.StopReason),
		Usage: &Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		Latency: time.Since(start),
	}, nil
}

func anthropicFinish(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return FinishStop
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	case anthropic.StopReasonRefusal:
		return FinishFiltered
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	}
	return FinishUnknown
}
