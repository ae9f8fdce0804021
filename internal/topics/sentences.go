package topics

import (
	"strings"

	"github.com/recapd/recapd/internal/model"
)

// Sentence is a run of words ending at terminal punctuation, or the
// trailing run when the stream stops mid-utterance.
type Sentence struct {
	Words []model.Word
}

// Text joins the sentence's words with single spaces.
func (s Sentence) Text() string {
	parts := make([]string, len(s.Words))
	for i, w := range s.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// splitSentences groups the word stream into sentences on terminal
// punctuation. ASR emits punctuation attached to words, so a word ending
// in '.', '?' or '!' closes the current sentence.
func splitSentences(ws []model.Word) []Sentence {
	var (
		out []Sentence
		cur []model.Word
	)
	for _, w := range ws {
		cur = append(cur, w)
		if endsSentence(w.Text) {
			out = append(out, Sentence{Words: cur})
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, Sentence{Words: cur})
	}
	return out
}

func endsSentence(text string) bool {
	t := strings.TrimRight(text, `"')]`)
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}
