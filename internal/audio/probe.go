package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type (
	probeStream struct {
		CodecType string `json:"codec_type"`
		StartTime string `json:"start_time"`
	}

	probeFormat struct {
		StartTime string `json:"start_time"`
		Duration  string `json:"duration"`
	}

	probePacket struct {
		DTSTime string `json:"dts_time"`
	}

	probeOutput struct {
		Streams []probeStream `json:"streams"`
		Format  probeFormat   `json:"format"`
		Packets []probePacket `json:"packets"`
	}
)

// resolveOffset extracts the track's join offset from ffprobe output. The
// first positive value wins, in order: audio stream start_time, container
// start_time, first packet DTS. Anything else resolves to 0 (no padding).
func resolveOffset(out probeOutput) float64 {
	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		if v, ok := parseSeconds(s.StartTime); ok && v > 0 {
			return v
		}
	}
	if v, ok := parseSeconds(out.Format.StartTime); ok && v > 0 {
		return v
	}
	if len(out.Packets) > 0 {
		if v, ok := parseSeconds(out.Packets[0].DTSTime); ok && v > 0 {
			return v
		}
	}
	return 0
}

func parseSeconds(s string) (float64, bool) {
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ProbeOffset runs ffprobe against url and resolves the join offset. A probe
// failure means the container is unreadable and is not retried by the
// caller's policy.
func (f *FFmpeg) ProbeOffset(ctx context.Context, url string) (float64, error) {
	out, err := f.probe(ctx, url, true)
	if err != nil {
		return 0, err
	}
	return resolveOffset(out), nil
}

// probeDuration returns the container duration of a local file in seconds.
func (f *FFmpeg) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.probe(ctx, path, false)
	if err != nil {
		return 0, err
	}
	v, ok := parseSeconds(out.Format.Duration)
	if !ok {
		return 0, fmt.Errorf("audio: probe %s: no duration", path)
	}
	return v, nil
}

func (f *FFmpeg) probe(ctx context.Context, input string, withPackets bool) (probeOutput, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
	}
	if withPackets {
		// First packet only; enough for the DTS fallback.
		args = append(args, "-show_packets", "-read_intervals", "%+#1")
	}
	args = append(args, input)

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	raw, err := cmd.Output()
	if err != nil {
		return probeOutput{}, &ContainerError{Input: input, Err: err}
	}
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return probeOutput{}, &ContainerError{Input: input, Err: err}
	}
	return out, nil
}

// ContainerError marks a malformed or unreadable container. It is a
// permanent failure: re-running ffprobe on the same bytes cannot succeed.
type ContainerError struct {
	Input string
	Err   error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("audio: unreadable container %s: %v", e.Input, e.Err)
}

func (e *ContainerError) Unwrap() error { return e.Err }
