package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/zen-systems/mindgate/pkg/registry"
)

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(ctx context.Context, apiKey string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
	}, nil
}

// Provider returns the adapter's vendor.
func (a *GoogleAdapter) Provider() registry.Provider {
	return registry.ProviderGoogle
}

// Models returns the list of supported Gemini models.
func (a *GoogleAdapter) Models() []string {
	return []string{
		"gemini-2.0-pro",
		"gemini-2.0-flash",
	}
}

// Generate sends a prompt to Gemini.
func (a *GoogleAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, Wrap(a.Provider(), model, fmt.Errorf("google API error: %w", err))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, malformed(a.Provider(), model, "google returned no candidates")
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				content.WriteString(part.Text)
			}
		}
	}

	out := &Response{
		Text:         content.String(),
		Provider:     a.Provider(),
		Model:        model,
		FinishReason: googleFinish(candidate.FinishReason),
		Latency:      time.Since(start),
	}
	if meta := resp.UsageMetadata; meta != nil {
		out.Usage = &Usage{
			PromptTokens:     int(meta.PromptTokenCount),
			CompletionTokens: int(meta.CandidatesTokenCount),
			TotalTokens:      int(meta.TotalTokenCount),
		}
	}
	return out, nil
}

func googleFinish(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return FinishFiltered
	}
	return FinishUnknown
}
