package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopicCardCleanJSON(t *testing.T) {
	card, err := ParseTopicCard(`{"title": "Budget Review", "summary": "Discussion of Q3 spend."}`)
	require.NoError(t, err)
	assert.Equal(t, "Budget Review", card.Title)
	assert.Equal(t, "Discussion of Q3 spend.", card.Summary)
}

func TestParseTopicCardFencedJSON(t *testing.T) {
	completion := "Here is the result:\n```json\n{\"title\": \"Hiring Plan\", \"summary\": \"Headcount for next quarter.\"}\n```\nDone."
	card, err := ParseTopicCard(completion)
	require.NoError(t, err)
	assert.Equal(t, "Hiring Plan", card.Title)
}

func TestParseTopicCardMissingFields(t *testing.T) {
	_, err := ParseTopicCard(`{"title": "only a title"}`)
	assert.Error(t, err)
}

func TestParseTopicCardEmptyStrings(t *testing.T) {
	_, err := ParseTopicCard(`{"title": "", "summary": "x"}`)
	assert.Error(t, err)
}

func TestParseTopicCardNoJSON(t *testing.T) {
	_, err := ParseTopicCard("I could not produce a summary.")
	assert.Error(t, err)
}

func TestExtractJSONObjectNested(t *testing.T) {
	s := `noise {"a": {"b": "}"}, "c": 1} trailing`
	assert.Equal(t, `{"a": {"b": "}"}, "c": 1}`, extractJSONObject(s))
}
