package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-embedding-001"

// GenAI embeds text with Google's Gemini embedding models.
type GenAI struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAI creates a Gemini embedder.
func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if model == "" {
		model = defaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAI{client: client, model: model, taskType: "SEMANTIC_SIMILARITY"}, nil
}

// Model returns the embedding model name.
func (e *GenAI) Model() string {
	return e.model
}

// Embed generates an embedding for a single text.
func (e *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || result.Embeddings[0] == nil || len(result.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return result.Embeddings[0].Values, nil
}
