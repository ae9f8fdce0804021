// Package llm exposes the completion capability used by topic segmentation
// and summary generation. Two providers implement it (OpenAI, Anthropic);
// the choice is configuration, not code. Calls are rate limited locally so
// chunk fan-out does not hammer the provider.
package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/recapd/recapd/internal/config"
)

type (
	// Request is a single completion call. Prompt is the user turn; System
	// is optional.
	Request struct {
		System      string
		Prompt      string
		MaxTokens   int
		Temperature float64
	}

	// Client produces a text completion. Implementations must be safe for
	// concurrent use.
	Client interface {
		Complete(ctx context.Context, req Request) (string, error)
	}
)

// New builds the configured provider, wrapped with a rate limiter when
// RequestsPerSecond is set.
func New(cfg config.LLM) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.Provider {
	case "", "openai":
		c, err = NewOpenAI(cfg)
	case "anthropic":
		c, err = NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond > 0 {
		c = &limited{
			next:    c,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		}
	}
	return c, nil
}

type limited struct {
	next    Client
	limiter *rate.Limiter
}

func (l *limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Complete(ctx, req)
}
