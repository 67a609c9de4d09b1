package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// ModelSettings is the common shape of the classifier and responder model
// configs.
type ModelSettings struct {
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	ThinkingBudget int32
}

// NewGeminiModel builds a tool-capable gemini chat model from settings.
func NewGeminiModel(ctx context.Context, cfg ModelSettings) (einomodel.ToolCallingChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	budget := cfg.ThinkingBudget
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: ptr(cfg.Temperature),
		MaxTokens:   ptr(cfg.MaxTokens),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &budget,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return cm, nil
}

func ptr[T any](v T) *T { return &v }
