package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGenAIModel = "gemini-embedding-001"

// GenAIEngine embeds through the Gemini embedding API.
type GenAIEngine struct {
	client *genai.Client
	model  string
}

func NewGenAIEngine(client *genai.Client, model string) *GenAIEngine {
	if model == "" {
		model = DefaultGenAIModel
	}
	return &GenAIEngine{client: client, model: model}
}

func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"},
	)
	if err != nil {
		return nil, fmt.Errorf("genai embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("genai returned no embedding")
	}
	return result.Embeddings[0].Values, nil
}

func (e *GenAIEngine) Name() string {
	return "genai:" + e.model
}
