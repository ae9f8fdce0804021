// Package topics segments a merged word stream into titled topics. The
// stream is chunked into topic shells of roughly fixed word count; each
// shell is then summarized by one LLM call, fanned out by the workflow. A
// shell whose calls are exhausted degrades to a placeholder topic instead
// of failing the run.
package topics

import (
	"context"
	"fmt"
	"strings"

	"goa.design/clue/log"
	"golang.org/x/sync/errgroup"

	"github.com/recapd/recapd/internal/llm"
	"github.com/recapd/recapd/internal/model"
)

const (
	// chunkWords bounds each topic shell. Word count approximates token
	// count closely enough for conversational speech.
	chunkWords = 300

	// maxParallel caps in-flight chunk calls when Detect runs the whole
	// segmentation in-process; the llm.Client rate limiter spaces them out
	// further.
	maxParallel = 4

	// summaryAttempts is the local retry budget per shell before
	// degrading.
	summaryAttempts = 3

	// DegradedTitle marks a topic whose summarization never succeeded.
	DegradedTitle = "Untitled discussion"

	// degradedSentences is how many leading sentences stand in for the
	// summary of a degraded topic.
	degradedSentences = 3
)

const segmentSystem = `You are a meeting analyst. Given a transcript excerpt,
produce a JSON object {"title": ..., "summary": ...}. The title is a short
nominalized phrase (e.g. "Budget review", not "We reviewed the budget").
The summary is 1-3 sentences. Respond with the JSON object only.`

// Segmenter turns word streams into topics using an LLM.
type Segmenter struct {
	llm llm.Client
}

// NewSegmenter builds a Segmenter on the given completion client.
func NewSegmenter(client llm.Client) *Segmenter {
	return &Segmenter{llm: client}
}

// Shells splits the word stream into untitled topic shells: ids, contained
// words, and timing, no prose yet. Chunk boundaries become topic
// boundaries; the split is deterministic for a given stream.
func Shells(ws []model.Word) []model.Topic {
	chunks := chunk(splitSentences(ws), chunkWords)
	shells := make([]model.Topic, 0, len(chunks))
	for _, c := range chunks {
		shells = append(shells, newShell(c))
	}
	return shells
}

// Summarize fills in one shell's title and summary. After the retry
// budget it degrades to a placeholder title with the shell's leading
// sentences, returning degraded=true; the only error returned is context
// cancellation.
func (s *Segmenter) Summarize(ctx context.Context, shell model.Topic, language string) (card llm.TopicCard, degraded bool, err error) {
	sentences := splitSentences(shell.Words)
	prompt := shellPrompt(sentences, language)

	var lastErr error
	for attempt := 1; attempt <= summaryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return llm.TopicCard{}, false, err
		}
		completion, err := s.llm.Complete(ctx, llm.Request{
			System:      segmentSystem,
			Prompt:      prompt,
			Temperature: 0.3,
			MaxTokens:   512,
		})
		if err != nil {
			lastErr = err
			continue
		}
		card, err := llm.ParseTopicCard(completion)
		if err != nil {
			lastErr = err
			continue
		}
		return card, false, nil
	}

	log.Error(ctx, fmt.Errorf("topic degraded after %d attempts: %w", summaryAttempts, lastErr),
		log.KV{K: "topic_id", V: shell.ID})
	return llm.TopicCard{
		Title:   DegradedTitle,
		Summary: leadingText(sentences, degradedSentences),
	}, true, nil
}

// Detect runs the full segmentation in-process: shells plus parallel
// summarization. An empty word stream yields no topics and no error.
func (s *Segmenter) Detect(ctx context.Context, ws []model.Word, language string) ([]model.Topic, error) {
	shells := Shells(ws)
	if len(shells) == 0 {
		return nil, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i := range shells {
		g.Go(func() error {
			card, _, err := s.Summarize(gctx, shells[i], language)
			if err != nil {
				return err
			}
			shells[i].Title = card.Title
			shells[i].Summary = card.Summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shells, nil
}

// chunk accumulates sentences until the word budget is reached. Sentences
// are never split, so chunks can run slightly over budget.
func chunk(sentences []Sentence, budget int) [][]Sentence {
	var (
		out   [][]Sentence
		cur   []Sentence
		count int
	)
	for _, s := range sentences {
		if count > 0 && count+len(s.Words) > budget {
			out = append(out, cur)
			cur = nil
			count = 0
		}
		cur = append(cur, s)
		count += len(s.Words)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func newShell(sentences []Sentence) model.Topic {
	var ws []model.Word
	for _, s := range sentences {
		ws = append(ws, s.Words...)
	}
	t := model.Topic{ID: model.NewTopicID(), Words: ws}
	if len(ws) > 0 {
		t.Timestamp = ws[0].Start
		t.Duration = ws[len(ws)-1].End - t.Timestamp
	}
	return t
}

func shellPrompt(sentences []Sentence, language string) string {
	var b strings.Builder
	if language != "" {
		fmt.Fprintf(&b, "Write the title and summary in %s.\n\n", language)
	}
	b.WriteString("Transcript excerpt:\n")
	for _, s := range sentences {
		b.WriteString(s.Text())
		b.WriteByte('\n')
	}
	return b.String()
}

func leadingText(sentences []Sentence, n int) string {
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	parts := make([]string, len(sentences))
	for i, s := range sentences {
		parts[i] = s.Text()
	}
	return strings.Join(parts, " ")
}
