// Package summary generates the meeting title and the long and short
// summaries from the detected topics. Each generator is one LLM call;
// retry and fallback policy belongs to the caller, which finalizes the
// transcript with empty fields when a call is exhausted.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recapd/recapd/internal/llm"
	"github.com/recapd/recapd/internal/model"
)

const (
	titleSystem = `You name meetings. Given the topic titles of a meeting,
produce one short title covering the whole meeting. Nominalization style,
no quotes, no trailing punctuation. Respond with the title only.`

	longSystem = `You summarize meetings. Given per-topic summaries, write a
multi-paragraph summary of the whole meeting. Use short paragraphs or
bullet points. Respond with the summary only.`

	shortSystem = `You summarize meetings. Given per-topic summaries, write a
single compact paragraph recapping the meeting. Respond with the paragraph
only.`
)

// ErrNoTopics is returned when there is nothing to summarize.
var ErrNoTopics = errors.New("summary: no topics")

// Generator produces the transcript-level prose fields.
type Generator struct {
	llm llm.Client
}

// NewGenerator builds a Generator on the given completion client.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{llm: client}
}

// Title combines the topic titles into one meeting title.
func (g *Generator) Title(ctx context.Context, topics []model.Topic, language string) (string, error) {
	if len(topics) == 0 {
		return "", ErrNoTopics
	}
	var b strings.Builder
	writeLanguage(&b, language)
	b.WriteString("Topic titles:\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "- %s\n", t.Title)
	}
	out, err := g.llm.Complete(ctx, llm.Request{
		System:      titleSystem,
		Prompt:      b.String(),
		Temperature: 0.3,
		MaxTokens:   64,
	})
	if err != nil {
		return "", fmt.Errorf("summary: title: %w", err)
	}
	return clean(out), nil
}

// Long produces the multi-paragraph summary.
func (g *Generator) Long(ctx context.Context, topics []model.Topic, language string) (string, error) {
	return g.summarize(ctx, topics, language, longSystem, 1024)
}

// Short produces the single-paragraph recap.
func (g *Generator) Short(ctx context.Context, topics []model.Topic, language string) (string, error) {
	return g.summarize(ctx, topics, language, shortSystem, 256)
}

func (g *Generator) summarize(ctx context.Context, topics []model.Topic, language, system string, maxTokens int) (string, error) {
	if len(topics) == 0 {
		return "", ErrNoTopics
	}
	var b strings.Builder
	writeLanguage(&b, language)
	b.WriteString("Topic summaries:\n")
	for _, t := range topics {
		fmt.Fprintf(&b, "## %s\n%s\n\n", t.Title, t.Summary)
	}
	out, err := g.llm.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      b.String(),
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	return clean(out), nil
}

func writeLanguage(b *strings.Builder, language string) {
	if language != "" {
		fmt.Fprintf(b, "Write in %s.\n\n", language)
	}
}

// clean strips whitespace and the quote pairs some models insist on.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
