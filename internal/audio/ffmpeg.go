package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-resty/resty/v2"
)

// FFmpeg is the local Backend: it execs ffmpeg/ffprobe on the worker host.
// Inputs are presigned URLs which ffmpeg reads directly; outputs are staged
// in a temp directory, closed, then uploaded.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	http        *resty.Client
}

var _ Backend = (*FFmpeg)(nil)

// ErrEmptyMix is returned when a mixdown is requested with zero inputs.
var ErrEmptyMix = errors.New("audio: empty mix")

// NewFFmpeg builds the local backend. Empty paths fall back to $PATH lookup.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		http:        resty.New(),
	}
}

// PadTrack probes the source's join offset and, when positive, re-encodes
// the track with leading silence and uploads it. A non-positive offset
// short-circuits without re-encoding.
func (f *FFmpeg) PadTrack(ctx context.Context, req PadRequest) (PadResult, error) {
	offset, err := f.ProbeOffset(ctx, req.SourceURL)
	if err != nil {
		return PadResult{}, err
	}
	if offset <= 0 {
		return PadResult{Padded: false, OffsetSeconds: offset}, nil
	}

	dir, err := os.MkdirTemp("", "recapd-pad-*")
	if err != nil {
		return PadResult{}, fmt.Errorf("audio: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "padded.webm")

	args := padArgs(req.SourceURL, offset, out)
	if err := f.run(ctx, args); err != nil {
		return PadResult{}, err
	}
	if err := f.upload(ctx, req.UploadURL, out); err != nil {
		return PadResult{}, err
	}
	return PadResult{Padded: true, OffsetSeconds: offset}, nil
}

// Mixdown combines the inputs into a single MP3. Tracks that end early stop
// contributing; the mix runs until the last input ends.
func (f *FFmpeg) Mixdown(ctx context.Context, req MixdownRequest) (MixdownResult, error) {
	if len(req.SourceURLs) == 0 {
		return MixdownResult{}, ErrEmptyMix
	}

	dir, err := os.MkdirTemp("", "recapd-mix-*")
	if err != nil {
		return MixdownResult{}, fmt.Errorf("audio: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "audio.mp3")

	args := mixArgs(req.SourceURLs, req.Delays, out)
	if err := f.run(ctx, args); err != nil {
		return MixdownResult{}, err
	}
	dur, err := f.probeDuration(ctx, out)
	if err != nil {
		return MixdownResult{}, err
	}
	if err := f.upload(ctx, req.UploadURL, out); err != nil {
		return MixdownResult{}, err
	}
	return MixdownResult{DurationMS: int64(dur * 1000)}, nil
}

// Waveform decodes the mix to mono PCM and reduces it to peak buckets.
func (f *FFmpeg) Waveform(ctx context.Context, req WaveformRequest) (WaveformResult, error) {
	buckets := req.Buckets
	if buckets <= 0 {
		buckets = WaveformBuckets
	}
	args := []string{
		"-v", "error",
		"-i", req.SourceURL,
		"-f", "s16le",
		"-ac", "1",
		"-ar", "8000",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	pcm, err := cmd.Output()
	if err != nil {
		return WaveformResult{}, ffmpegError(req.SourceURL, err)
	}
	return WaveformResult{Peaks: Peaks(pcm, buckets)}, nil
}

// padArgs builds the ffmpeg invocation that prepends offset seconds of
// silence and normalizes the track to WebM/Opus stereo at 48 kHz.
func padArgs(source string, offset float64, out string) []string {
	delayMS := int64(offset * 1000)
	return []string{
		"-v", "error",
		"-y",
		"-i", source,
		"-af", fmt.Sprintf("aresample=48000,adelay=%d:all=1", delayMS),
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-f", "webm",
		out,
	}
}

// mixArgs builds the mixdown invocation. Each input is resampled to the
// target rate; a per-input delay filter is inserted when alignment was not
// done by the padder. normalize=0 keeps summing free of automatic gain
// reduction. A single input skips amix and only transcodes.
func mixArgs(sources []string, delays []float64, out string) []string {
	args := []string{"-v", "error", "-y"}
	for _, src := range sources {
		args = append(args, "-i", src)
	}

	if len(sources) == 1 {
		filter := "aresample=48000"
		if len(delays) == 1 && delays[0] > 0 {
			filter += fmt.Sprintf(",adelay=%d:all=1", int64(delays[0]*1000))
		}
		args = append(args, "-af", filter)
	} else {
		var fc strings.Builder
		labels := make([]string, len(sources))
		for i := range sources {
			filter := "aresample=48000"
			if i < len(delays) && delays[i] > 0 {
				filter += fmt.Sprintf(",adelay=%d:all=1", int64(delays[i]*1000))
			}
			fmt.Fprintf(&fc, "[%d:a]%s[a%d];", i, filter, i)
			labels[i] = fmt.Sprintf("[a%d]", i)
		}
		fmt.Fprintf(&fc, "%samix=inputs=%d:duration=longest:normalize=0[mix]",
			strings.Join(labels, ""), len(sources))
		args = append(args, "-filter_complex", fc.String(), "-map", "[mix]")
	}

	args = append(args, "-c:a", "libmp3lame", "-q:a", "2", "-f", "mp3", out)
	return args
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ffmpegError(stderr.String(), err)
	}
	return nil
}

func (f *FFmpeg) upload(ctx context.Context, url, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open output: %w", err)
	}
	defer file.Close()
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(file).
		Put(url)
	if err != nil {
		return fmt.Errorf("audio: upload: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("audio: upload: status %d", resp.StatusCode())
	}
	return nil
}

func ffmpegError(detail string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Decode/encode failures are deterministic for the same input.
		return &ContainerError{Input: detail, Err: err}
	}
	return fmt.Errorf("audio: ffmpeg: %w", err)
}
