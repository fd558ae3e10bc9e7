package adapter

import (
	"time"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Finish reasons normalized across providers.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishFiltered  = "filtered"
	FinishToolCalls = "tool_calls"
	FinishUnknown   = "unknown"
)

// Response is a provider completion.
type Response struct {
	Text         string            `json:"text"`
	Provider     registry.Provider `json:"provider"`
	Model        string            `json:"model"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        *Usage            `json:"usage,omitempty"`
	Latency      time.Duration     `json:"latency"`
}

// Truncated reports whether the provider stopped because of a token limit.
func (r *Response) Truncated() bool {
	return r != nil && r.FinishReason == FinishLength
}
