package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/laobian01/qwen-homework-focus-guardian-2/internal/config"
)

// completer is the slice of model.Model the classifier needs (allows mocking).
type completer interface {
	Complete(ctx context.Context, req model.Request) (*model.Response, error)
}

// modelClassifier routes classification through an agentsdk-go model provider.
// Used for providers whose wire format the SDK already speaks (anthropic).
type modelClassifier struct {
	provider  model.Provider
	modelName string
	maxTokens int

	// complete overrides the provider-resolved model in tests.
	complete completer
}

func newModelClassifier(cfg config.ProviderConfig) *modelClassifier {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	return &modelClassifier{
		provider: &model.AnthropicProvider{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			ModelName: cfg.Model,
			MaxTokens: maxTokens,
		},
		modelName: cfg.Model,
		maxTokens: maxTokens,
	}
}

func (c *modelClassifier) Classify(ctx context.Context, image []byte) (*Result, error) {
	if len(image) == 0 {
		return nil, ErrEmptyFrame
	}

	mdl := c.complete
	if mdl == nil {
		resolved, err := c.provider.Model(ctx)
		if err != nil {
			return errorResult(fmt.Errorf("resolve model: %w", err)), nil
		}
		mdl = resolved
	}

	temperature := 0.1
	req := model.Request{
		Model:       c.modelName,
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
		Messages: []model.Message{{
			Role: "user",
			ContentBlocks: []model.ContentBlock{
				{Type: model.ContentBlockText, Text: classifyPrompt},
				{
					Type:      model.ContentBlockImage,
					MediaType: "image/jpeg",
					Data:      base64.StdEncoding.EncodeToString(image),
				},
			},
		}},
	}

	resp, err := mdl.Complete(ctx, req)
	if err != nil {
		return errorResult(fmt.Errorf("call model: %w", err)), nil
	}
	if resp == nil {
		return errorResult(fmt.Errorf("model returned no response")), nil
	}

	content := resp.Message.TextContent()
	if strings.TrimSpace(content) == "" {
		content = resp.Message.Content
	}

	res, err := decodeResult(content)
	if err != nil {
		return errorResult(err), nil
	}
	return res, nil
}
