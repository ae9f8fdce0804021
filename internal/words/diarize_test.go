package words

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/internal/asr"
	"github.com/recapd/recapd/internal/model"
)

func seg(start, end float64, speaker int) asr.Segment {
	return asr.Segment{Start: start, End: end, Speaker: speaker}
}

func TestAssignSpeakersContainment(t *testing.T) {
	ws := []model.Word{
		w("hello", 0.1, 0.4, 0),
		w("there", 0.5, 0.8, 0),
		w("hi", 5.2, 5.5, 0),
	}
	got := AssignSpeakers(ws, []asr.Segment{seg(0, 4, 0), seg(5, 9, 1)})
	assert.Equal(t, 0, got[0].Speaker)
	assert.Equal(t, 0, got[1].Speaker)
	assert.Equal(t, 1, got[2].Speaker)
}

func TestAssignSpeakersOverlapKeepsLonger(t *testing.T) {
	ws := []model.Word{w("a", 1, 1.2, 0), w("b", 3, 3.2, 0)}
	// The 0-6 span is longer than 0-2, so the overlap resolves to speaker 1.
	got := AssignSpeakers(ws, []asr.Segment{seg(0, 2, 0), seg(0.5, 6, 1)})
	assert.Equal(t, 1, got[0].Speaker)
	assert.Equal(t, 1, got[1].Speaker)
}

func TestAssignSpeakersDropsEmptySegments(t *testing.T) {
	ws := []model.Word{w("a", 0.5, 0.8, 0), w("b", 10.5, 10.8, 0)}
	// The middle segment contains no words and must not influence
	// assignment.
	got := AssignSpeakers(ws, []asr.Segment{seg(0, 1, 0), seg(4, 6, 2), seg(10, 11, 1)})
	assert.Equal(t, 0, got[0].Speaker)
	assert.Equal(t, 1, got[1].Speaker)
}

func TestAssignSpeakersMergesAdjacentSameSpeaker(t *testing.T) {
	ws := []model.Word{w("a", 0.5, 0.8, 9), w("b", 2.5, 2.8, 9)}
	got := AssignSpeakers(ws, []asr.Segment{seg(0, 1, 0), seg(1, 3, 0)})
	assert.Equal(t, 0, got[0].Speaker)
	assert.Equal(t, 0, got[1].Speaker)
}

func TestAssignSpeakersGapHeuristic(t *testing.T) {
	segs := []asr.Segment{seg(0, 2, 0), seg(4, 8, 1)}

	// Mid-sentence continuation stays with the previous speaker.
	ws := []model.Word{
		w("we", 0.5, 0.8, 0),
		w("should", 1.0, 1.3, 0),
		w("continue", 2.5, 2.9, 0), // gap word, lowercase, prev has no punctuation
		w("Sure.", 4.5, 4.9, 0),
	}
	got := AssignSpeakers(ws, segs)
	assert.Equal(t, 0, got[2].Speaker, "continuation inherits previous segment")
	assert.Equal(t, 1, got[3].Speaker)

	// A capitalized word after terminal punctuation flips forward.
	ws = []model.Word{
		w("done.", 0.5, 0.8, 0),
		w("Next", 2.5, 2.9, 0), // gap word, prev ended the sentence
		w("topic", 4.5, 4.9, 0),
	}
	got = AssignSpeakers(ws, segs)
	assert.Equal(t, 1, got[1].Speaker, "new sentence inherits next segment")
}

func TestAssignSpeakersTailInheritsLastSegment(t *testing.T) {
	ws := []model.Word{w("a", 0.5, 0.8, 0), w("bye", 12, 12.3, 0)}
	got := AssignSpeakers(ws, []asr.Segment{seg(0, 1, 3)})
	assert.Equal(t, 3, got[1].Speaker)
}

func TestAssignSpeakersNoSegments(t *testing.T) {
	ws := []model.Word{w("a", 0, 0.3, 7)}
	got := AssignSpeakers(ws, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].Speaker)
}

func TestContinuesUtterance(t *testing.T) {
	assert.True(t, continuesUtterance("and", "then"))
	assert.False(t, continuesUtterance("done.", "then"))
	assert.False(t, continuesUtterance("and", "Then"))
	assert.False(t, continuesUtterance("done!", "Then"))
	assert.True(t, continuesUtterance("", "then"))
}
