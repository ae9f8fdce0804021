package words

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/internal/model"
)

func w(text string, start, end float64, speaker int) model.Word {
	return model.Word{Text: text, Start: start, End: end, Speaker: speaker}
}

func TestMergeTracksInterleavesByStart(t *testing.T) {
	track0 := []model.Word{w("a", 0, 0.5, 0), w("c", 2, 2.5, 0)}
	track1 := []model.Word{w("b", 1, 1.5, 1), w("d", 3, 3.5, 1)}

	merged := MergeTracks([][]model.Word{track0, track1})
	require.Len(t, merged, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, texts(merged))
}

func TestMergeTracksTieBreaksBySpeaker(t *testing.T) {
	track0 := []model.Word{w("zero", 1, 1.5, 0)}
	track1 := []model.Word{w("one", 1, 1.5, 1)}

	merged := MergeTracks([][]model.Word{track1, track0})
	assert.Equal(t, []string{"zero", "one"}, texts(merged))
}

func TestMergeTracksPreservesTrackOrder(t *testing.T) {
	// ASR may emit equal timestamps within a track; their relative order
	// must survive the merge.
	track := []model.Word{w("first", 1, 1, 0), w("second", 1, 1, 0), w("third", 1, 1, 0)}
	merged := MergeTracks([][]model.Word{track})
	assert.Equal(t, []string{"first", "second", "third"}, texts(merged))
}

func TestMergeTracksEmptyInputs(t *testing.T) {
	assert.Empty(t, MergeTracks(nil))
	assert.Empty(t, MergeTracks([][]model.Word{{}, {}}))
}

func TestTagSpeakerDoesNotMutateInput(t *testing.T) {
	orig := []model.Word{w("a", 0, 1, 0)}
	tagged := TagSpeaker(orig, 3)
	assert.Equal(t, 3, tagged[0].Speaker)
	assert.Equal(t, 0, orig[0].Speaker)
}

// Merging an already-merged stream must be the identity modulo
// tie-breaking: the output is sorted and re-merging it changes nothing.
func TestMergeTracksIdempotentProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genTrack := func(speaker int) gopter.Gen {
		return gen.SliceOf(gen.Float64Range(0, 600)).Map(func(starts []float64) []model.Word {
			sort.Float64s(starts)
			ws := make([]model.Word, len(starts))
			for i, s := range starts {
				ws[i] = w("w", s, s+0.3, speaker)
			}
			return ws
		})
	}

	properties.Property("merge output is start-ordered and re-merge is identity", prop.ForAll(
		func(t0, t1, t2 []model.Word) bool {
			merged := MergeTracks([][]model.Word{t0, t1, t2})
			for i := 1; i < len(merged); i++ {
				if merged[i].Start < merged[i-1].Start {
					return false
				}
				if merged[i].Start == merged[i-1].Start && merged[i].Speaker < merged[i-1].Speaker {
					return false
				}
			}
			again := MergeTracks([][]model.Word{merged})
			if len(again) != len(merged) {
				return false
			}
			for i := range merged {
				if again[i] != merged[i] {
					return false
				}
			}
			return true
		},
		genTrack(0), genTrack(1), genTrack(2),
	))

	properties.TestingRun(t)
}

func texts(ws []model.Word) []string {
	out := make([]string, len(ws))
	for i, word := range ws {
		out[i] = word.Text
	}
	return out
}
