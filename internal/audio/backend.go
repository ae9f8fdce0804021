// Package audio implements the CPU-bound half of the pipeline: aligning
// per-participant tracks onto the meeting timeline, mixing them down, and
// extracting waveform peaks. The work runs behind the Backend capability so
// the same task can exec ffmpeg locally or delegate to a remote CPU
// container depending on configuration.
package audio

import (
	"context"

	"github.com/recapd/recapd/internal/config"
)

// WaveformBuckets is the fixed length of the peaks array consumed by the
// frontend scrubber.
const WaveformBuckets = 255

type (
	// PadRequest asks for offset_i seconds of leading silence to be
	// prepended to the source track so its sample 0 lands on meeting t=0.
	// Both URLs are presigned; the backend never sees credentials.
	PadRequest struct {
		SourceURL string `json:"source_url"`
		UploadURL string `json:"upload_url"`
	}

	// PadResult reports whether a padded object was produced. When the
	// resolved offset is not positive the padder short-circuits, nothing is
	// uploaded, and the caller keeps using the source key.
	PadResult struct {
		Padded        bool    `json:"padded"`
		OffsetSeconds float64 `json:"offset_seconds"`
	}

	// MixdownRequest mixes the inputs into one MP3 uploaded to UploadURL.
	// Delays carries a per-input offset in seconds for the case where
	// padding was skipped; nil means all inputs are already aligned.
	MixdownRequest struct {
		SourceURLs []string  `json:"source_urls"`
		Delays     []float64 `json:"delays,omitempty"`
		UploadURL  string    `json:"upload_url"`
	}

	// MixdownResult reports the realized duration of the mix.
	MixdownResult struct {
		DurationMS int64 `json:"duration_ms"`
	}

	// WaveformRequest downsamples the mixed audio into peak buckets.
	WaveformRequest struct {
		SourceURL string `json:"source_url"`
		Buckets   int    `json:"buckets"`
	}

	// WaveformResult carries the non-negative peaks, normalized to [0,1].
	WaveformResult struct {
		Peaks []float64 `json:"peaks"`
	}

	// Backend executes the audio operations. Implementations must be safe
	// for concurrent use; each invocation works on its own temp files and
	// holds no file handles across uploads.
	Backend interface {
		PadTrack(ctx context.Context, req PadRequest) (PadResult, error)
		Mixdown(ctx context.Context, req MixdownRequest) (MixdownResult, error)
		Waveform(ctx context.Context, req WaveformRequest) (WaveformResult, error)
	}
)

// NewBackend selects the backend from configuration: a remote HTTP offload
// when OffloadURL is set, local ffmpeg execution otherwise.
func NewBackend(cfg config.Audio) Backend {
	if cfg.OffloadURL != "" {
		return NewRemote(cfg.OffloadURL)
	}
	return NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
}
