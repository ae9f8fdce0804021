package audio

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Remote delegates audio operations to a CPU offload container exposing
// POST /pad, /mixdown, and /waveform with the same request/result shapes as
// the local backend. The container reads and writes through the presigned
// URLs carried in the request, so no audio bytes transit this process.
type Remote struct {
	http *resty.Client
}

var _ Backend = (*Remote)(nil)

// NewRemote builds the offload backend targeting baseURL.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		http: resty.New().SetBaseURL(baseURL),
	}
}

func (r *Remote) PadTrack(ctx context.Context, req PadRequest) (PadResult, error) {
	var res PadResult
	if err := r.post(ctx, "/pad", req, &res); err != nil {
		return PadResult{}, err
	}
	return res, nil
}

func (r *Remote) Mixdown(ctx context.Context, req MixdownRequest) (MixdownResult, error) {
	if len(req.SourceURLs) == 0 {
		return MixdownResult{}, ErrEmptyMix
	}
	var res MixdownResult
	if err := r.post(ctx, "/mixdown", req, &res); err != nil {
		return MixdownResult{}, err
	}
	return res, nil
}

func (r *Remote) Waveform(ctx context.Context, req WaveformRequest) (WaveformResult, error) {
	var res WaveformResult
	if err := r.post(ctx, "/waveform", req, &res); err != nil {
		return WaveformResult{}, err
	}
	return res, nil
}

func (r *Remote) post(ctx context.Context, path string, body, result any) error {
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(result).
		Post(path)
	if err != nil {
		return fmt.Errorf("audio: offload %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("audio: offload %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}
