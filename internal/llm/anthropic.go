package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/recapd/recapd/internal/config"
)

// defaultMaxTokens caps completions when the request does not say
// otherwise; the Messages API requires an explicit value.
const defaultMaxTokens = 2048

// Anthropic implements Client via the Claude Messages API.
type Anthropic struct {
	client sdk.Client
	model  string
}

var _ Client = (*Anthropic)(nil)

// NewAnthropic builds the Anthropic provider.
func NewAnthropic(cfg config.LLM) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client: sdk.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (c *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: anthropic completion: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("llm: anthropic returned no text")
	}
	return b.String(), nil
}
