package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI embeds text with the OpenAI embeddings endpoint.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model}, nil
}

// Model returns the embedding model name.
func (e *OpenAI) Model() string {
	return e.model
}

// Embed generates an embedding for a single text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed failed: %w", err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}
