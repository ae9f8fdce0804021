package topics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/internal/llm"
	"github.com/recapd/recapd/internal/model"
)

type fakeLLM struct {
	calls    atomic.Int64
	complete func(req llm.Request) (string, error)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls.Add(1)
	return f.complete(req)
}

func speech(texts ...string) []model.Word {
	ws := make([]model.Word, len(texts))
	for i, t := range texts {
		ws[i] = model.Word{Text: t, Start: float64(i), End: float64(i) + 0.5}
	}
	return ws
}

func TestSplitSentences(t *testing.T) {
	ws := speech("Hello", "there.", "How", "are", "you?", "Fine")
	got := splitSentences(ws)
	require.Len(t, got, 3)
	assert.Equal(t, "Hello there.", got[0].Text())
	assert.Equal(t, "How are you?", got[1].Text())
	assert.Equal(t, "Fine", got[2].Text())
}

func TestSplitSentencesTrailingQuote(t *testing.T) {
	got := splitSentences(speech("He", "said", `"stop."`, "Then", "left."))
	require.Len(t, got, 2)
}

func TestChunkRespectsBudget(t *testing.T) {
	var sentences []Sentence
	for i := 0; i < 10; i++ {
		sentences = append(sentences, Sentence{Words: speech("a", "b", "c", "d.")})
	}
	chunks := chunk(sentences, 10)
	require.Len(t, chunks, 5)
	for _, c := range chunks {
		assert.Len(t, c, 2)
	}
}

func TestChunkNeverSplitsSentences(t *testing.T) {
	long := Sentence{Words: speech("a", "b", "c", "d", "e", "f", "g", "h.")}
	chunks := chunk([]Sentence{long, long}, 5)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 1)
}

func TestShellsTiming(t *testing.T) {
	ws := speech("Hello", "there.", "How", "are", "you?")
	shells := Shells(ws)
	require.Len(t, shells, 1)
	assert.NotEmpty(t, shells[0].ID)
	assert.Empty(t, shells[0].Title)
	assert.Equal(t, float64(0), shells[0].Timestamp)
	assert.InDelta(t, 4.5, shells[0].Duration, 1e-9)
	assert.Len(t, shells[0].Words, 5)
}

func TestShellsEmptyStream(t *testing.T) {
	assert.Empty(t, Shells(nil))
}

func TestSummarize(t *testing.T) {
	client := &fakeLLM{complete: func(llm.Request) (string, error) {
		return `{"title": "Greetings", "summary": "Small talk."}`, nil
	}}
	seg := NewSegmenter(client)

	shells := Shells(speech("Hello", "there."))
	card, degraded, err := seg.Summarize(context.Background(), shells[0], "english")
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "Greetings", card.Title)
	assert.Equal(t, "Small talk.", card.Summary)
}

func TestSummarizeDegradesOnExhaustedRetries(t *testing.T) {
	client := &fakeLLM{complete: func(llm.Request) (string, error) {
		return "", errors.New("provider down")
	}}
	seg := NewSegmenter(client)

	ws := speech("First", "sentence.", "Second", "sentence.", "Third", "sentence.", "Fourth", "sentence.")
	card, degraded, err := seg.Summarize(context.Background(), Shells(ws)[0], "english")
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, DegradedTitle, card.Title)
	assert.Equal(t, "First sentence. Second sentence. Third sentence.", card.Summary)
	assert.Equal(t, int64(summaryAttempts), client.calls.Load())
}

func TestSummarizeRetriesOnInvalidJSON(t *testing.T) {
	var n atomic.Int64
	client := &fakeLLM{complete: func(llm.Request) (string, error) {
		if n.Add(1) == 1 {
			return "not json at all", nil
		}
		return `{"title": "Recovered", "summary": "Second try."}`, nil
	}}
	card, degraded, err := NewSegmenter(client).Summarize(context.Background(), Shells(speech("Hi."))[0], "english")
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "Recovered", card.Title)
}

func TestDetectEmptyStream(t *testing.T) {
	seg := NewSegmenter(&fakeLLM{complete: func(llm.Request) (string, error) {
		t.Error("unexpected LLM call")
		return "", nil
	}})
	got, err := seg.Detect(context.Background(), nil, "english")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectParallelChunksKeepOrder(t *testing.T) {
	client := &fakeLLM{complete: func(req llm.Request) (string, error) {
		// Title echoes the first word of the chunk so order is checkable.
		line := req.Prompt[strings.Index(req.Prompt, "excerpt:\n")+len("excerpt:\n"):]
		first := strings.Fields(line)[0]
		return fmt.Sprintf(`{"title": %q, "summary": "s"}`, first), nil
	}}
	seg := NewSegmenter(client)

	// Three sentences, each over the chunk budget, so each becomes a chunk.
	var ws []model.Word
	for i := 0; i < 3; i++ {
		texts := []string{fmt.Sprintf("c%d", i)}
		for j := 0; j < chunkWords; j++ {
			texts = append(texts, "filler")
		}
		texts = append(texts, "end.")
		for k, w := range speech(texts...) {
			w.Start = float64(i*1000 + k)
			w.End = w.Start + 0.5
			ws = append(ws, w)
		}
	}
	got, err := seg.Detect(context.Background(), ws, "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, topic := range got {
		assert.Equal(t, fmt.Sprintf("c%d", i), topic.Title)
	}
}
