// Package words turns per-track ASR output into the single global word
// stream the segmenter consumes: a stable k-way merge for multitrack
// recordings and a diarization-based speaker assignment for single-track
// ones.
package words

import (
	"container/heap"

	"github.com/recapd/recapd/internal/model"
)

// MergeTracks interleaves the per-track streams into one stream ordered by
// Start ascending, ties broken by Speaker ascending. The merge is stable:
// each track's internal order is preserved as the ASR produced it.
func MergeTracks(tracks [][]model.Word) []model.Word {
	total := 0
	for _, t := range tracks {
		total += len(t)
	}
	merged := make([]model.Word, 0, total)

	h := make(mergeHeap, 0, len(tracks))
	for i, t := range tracks {
		if len(t) > 0 {
			h = append(h, cursor{track: i, words: t})
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		c := h[0]
		merged = append(merged, c.words[c.pos])
		c.pos++
		if c.pos == len(c.words) {
			heap.Pop(&h)
		} else {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	return merged
}

type cursor struct {
	track int
	words []model.Word
	pos   int
}

type mergeHeap []cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].words[h[i].pos], h[j].words[h[j].pos]
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.Speaker != b.Speaker {
		return a.Speaker < b.Speaker
	}
	return h[i].track < h[j].track
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// TagSpeaker stamps every word with the originating track index. Used on
// the multitrack path where the track identity is the speaker.
func TagSpeaker(ws []model.Word, speaker int) []model.Word {
	tagged := make([]model.Word, len(ws))
	for i, w := range ws {
		w.Speaker = speaker
		tagged[i] = w
	}
	return tagged
}
