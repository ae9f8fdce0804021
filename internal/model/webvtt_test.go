package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebVTTTimestampFormatting(t *testing.T) {
	assert.Equal(t, "00:00:00.000", vttTimestamp(0))
	assert.Equal(t, "00:00:01.500", vttTimestamp(1.5))
	assert.Equal(t, "01:01:01.001", vttTimestamp(3661.001))
	assert.Equal(t, "00:00:00.000", vttTimestamp(-3))
}

func TestWebVTTRendersVoiceSpansPerSpeaker(t *testing.T) {
	topics := []Topic{
		{
			ID:        "t1",
			Title:     "Intro",
			Timestamp: 0,
			Duration:  4,
			Words: []Word{
				{Text: "hello", Start: 0, End: 0.5, Speaker: 0},
				{Text: "there", Start: 0.5, End: 1, Speaker: 0},
				{Text: "hi", Start: 1.5, End: 2, Speaker: 1},
			},
		},
	}
	out := WebVTT(topics)
	require.True(t, strings.HasPrefix(out, "WEBVTT\n"))
	assert.Contains(t, out, "00:00:00.000 --> 00:00:04.000")
	assert.Contains(t, out, "<v Speaker 0>hello there")
	assert.Contains(t, out, "<v Speaker 1>hi")
}

func TestWebVTTDeterministic(t *testing.T) {
	topics := []Topic{
		{Timestamp: 1, Duration: 2, Words: []Word{{Text: "a", Start: 1, End: 1.2}}},
		{Timestamp: 4, Duration: 1, Words: []Word{{Text: "b", Start: 4, End: 4.1, Speaker: 1}}},
	}
	first := WebVTT(topics)
	for range 5 {
		assert.Equal(t, first, WebVTT(topics))
	}
}

func TestWebVTTSkipsEmptyTopics(t *testing.T) {
	out := WebVTT([]Topic{{Timestamp: 0, Duration: 10}})
	assert.Equal(t, "WEBVTT\n", out)
}
