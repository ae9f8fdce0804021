package model

import (
	"fmt"
	"strings"
)

// WebVTT renders the transcript's topics as a WebVTT document. The output is
// derived state: it is regenerated on every topics update and never accepted
// from callers. Rendering is deterministic so repeated regeneration from the
// same topics yields byte-identical output.
//
// Each topic becomes one cue spanning [Timestamp, Timestamp+Duration] whose
// text is the topic's words grouped by speaker, one voice span per group.
func WebVTT(topics []Topic) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, t := range topics {
		if len(t.Words) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(vttTimestamp(t.Timestamp))
		b.WriteString(" --> ")
		b.WriteString(vttTimestamp(t.Timestamp + t.Duration))
		b.WriteString("\n")
		writeCueText(&b, t.Words)
	}
	return b.String()
}

// TopicWebVTT renders a single topic as a standalone WebVTT document, used
// by the outgoing webhook payload.
func TopicWebVTT(t Topic) string {
	return WebVTT([]Topic{t})
}

// writeCueText emits the words as <v Speaker N> voice spans, starting a new
// span whenever the speaker changes.
func writeCueText(b *strings.Builder, words []Word) {
	speaker := -1
	var line []string
	flush := func() {
		if len(line) == 0 {
			return
		}
		fmt.Fprintf(b, "<v Speaker %d>%s\n", speaker, strings.Join(line, " "))
		line = line[:0]
	}
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if w.Speaker != speaker {
			flush()
			speaker = w.Speaker
		}
		line = append(line, text)
	}
	flush()
}

// vttTimestamp formats meeting-relative seconds as HH:MM:SS.mmm. Negative
// inputs clamp to zero.
func vttTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
