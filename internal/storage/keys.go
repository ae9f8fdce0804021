package storage

import "fmt"

// Object keys are namespaced by transcript id so one listing covers all
// artifacts of a run and retention can delete by prefix.

// AudioKey is the mixed meeting audio.
func AudioKey(transcriptID string) string {
	return fmt.Sprintf("%s/audio.mp3", transcriptID)
}

// PaddedTrackKey is the aligned per-participant track produced by the
// padder.
func PaddedTrackKey(transcriptID string, track int) string {
	return fmt.Sprintf("%s/tracks/padded_%d.webm", transcriptID, track)
}

// WaveformKey is the rendered peak list for the mixed audio.
func WaveformKey(transcriptID string) string {
	return fmt.Sprintf("%s/waveform.json", transcriptID)
}

// Prefix is the root of all objects belonging to a transcript.
func Prefix(transcriptID string) string {
	return transcriptID + "/"
}
