package llm

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/recapd/recapd/internal/config"
)

// OpenAI implements Client via the Chat Completions API.
type OpenAI struct {
	client oai.Client
	model  string
}

var _ Client = (*OpenAI)(nil)

// NewOpenAI builds the OpenAI provider. BaseURL override enables
// OpenAI-compatible gateways.
func NewOpenAI(cfg config.LLM) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client: oai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
