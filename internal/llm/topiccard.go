package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// TopicCard is the structured output the segmenter asks the model for:
// a nominalized title and a short summary for one chunk of conversation.
type TopicCard struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

const topicCardSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"summary": {"type": "string", "minLength": 1}
	},
	"required": ["title", "summary"]
}`

var compiledTopicCard = mustCompile(topicCardSchema)

func mustCompile(raw string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("llm: schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("topic_card.json", doc); err != nil {
		panic(fmt.Sprintf("llm: schema: %v", err))
	}
	s, err := c.Compile("topic_card.json")
	if err != nil {
		panic(fmt.Sprintf("llm: schema: %v", err))
	}
	return s
}

// ParseTopicCard extracts and validates the {title, summary} object from a
// completion. Models wrap JSON in prose or code fences often enough that
// the parser scans for the outermost object instead of trusting the raw
// text to be clean JSON.
func ParseTopicCard(completion string) (TopicCard, error) {
	raw := extractJSONObject(completion)
	if raw == "" {
		return TopicCard{}, fmt.Errorf("llm: no JSON object in completion")
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return TopicCard{}, fmt.Errorf("llm: malformed topic card: %w", err)
	}
	if err := compiledTopicCard.Validate(doc); err != nil {
		return TopicCard{}, fmt.Errorf("llm: invalid topic card: %w", err)
	}
	var card TopicCard
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return TopicCard{}, fmt.Errorf("llm: decode topic card: %w", err)
	}
	return card, nil
}

// extractJSONObject returns the first balanced top-level {...} in s, or "".
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
