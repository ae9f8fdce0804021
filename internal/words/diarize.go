package words

import (
	"sort"
	"strings"
	"unicode"

	"github.com/recapd/recapd/internal/asr"
	"github.com/recapd/recapd/internal/model"
)

// AssignSpeakers tags the words of a single mixed track using diarization
// segments. The segments are cleaned first: overlapping spans keep the
// longer one, spans containing no words are dropped, and adjacent spans
// with the same speaker are merged. Words are then swept in order:
//
//   - a word inside a segment takes that segment's speaker;
//   - a word in a gap keeps the previous segment's speaker when the
//     preceding word did not end a sentence and the word itself is not
//     capitalized, otherwise it takes the next segment's speaker;
//   - words past the last segment take the last segment's speaker.
//
// With no usable segments the words are returned unchanged.
func AssignSpeakers(ws []model.Word, segs []asr.Segment) []model.Word {
	segs = cleanSegments(segs, ws)
	if len(segs) == 0 {
		return ws
	}

	out := make([]model.Word, len(ws))
	cur := 0
	for i, w := range ws {
		for cur < len(segs)-1 && w.Start >= segs[cur].End && w.Start >= segs[cur+1].Start {
			cur++
		}
		seg := segs[cur]
		switch {
		case w.Start >= seg.Start && w.Start < seg.End:
			w.Speaker = seg.Speaker
		case w.Start >= seg.End && cur == len(segs)-1:
			// Tail words inherit the last segment's speaker.
			w.Speaker = seg.Speaker
		case w.Start >= seg.End:
			// Gap between seg and segs[cur+1].
			if i > 0 && continuesUtterance(ws[i-1].Text, w.Text) {
				w.Speaker = seg.Speaker
			} else {
				w.Speaker = segs[cur+1].Speaker
			}
		default:
			// Before the first segment: attach forward.
			w.Speaker = seg.Speaker
		}
		out[i] = w
	}
	return out
}

// continuesUtterance applies the gap heuristic: the previous word did not
// end with terminal punctuation and the current word does not start with an
// uppercase letter.
func continuesUtterance(prev, cur string) bool {
	prev = strings.TrimSpace(prev)
	if prev != "" && strings.ContainsRune(".?!", rune(prev[len(prev)-1])) {
		return false
	}
	for _, r := range strings.TrimSpace(cur) {
		return !unicode.IsUpper(r)
	}
	return true
}

func cleanSegments(segs []asr.Segment, ws []model.Word) []asr.Segment {
	if len(segs) == 0 {
		return nil
	}
	sorted := make([]asr.Segment, len(segs))
	copy(sorted, segs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	// Overlapping segments keep the longer span.
	kept := sorted[:0]
	for _, s := range sorted {
		if len(kept) == 0 {
			kept = append(kept, s)
			continue
		}
		last := &kept[len(kept)-1]
		if s.Start < last.End {
			if s.End-s.Start > last.End-last.Start {
				*last = s
			}
			continue
		}
		kept = append(kept, s)
	}

	// Drop segments with no words in them.
	withWords := kept[:0]
	for _, s := range kept {
		if segmentHasWords(s, ws) {
			withWords = append(withWords, s)
		}
	}

	// Merge adjacent same-speaker segments.
	var merged []asr.Segment
	for _, s := range withWords {
		if n := len(merged); n > 0 && merged[n-1].Speaker == s.Speaker {
			if s.End > merged[n-1].End {
				merged[n-1].End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func segmentHasWords(s asr.Segment, ws []model.Word) bool {
	for _, w := range ws {
		if w.Start >= s.Start && w.Start < s.End {
			return true
		}
	}
	return false
}
