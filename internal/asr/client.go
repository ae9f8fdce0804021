// Package asr wraps the remote GPU speech services: word-level
// transcription and speaker diarization. Both are plain HTTPS endpoints
// that pull audio through a presigned URL; this process never moves audio
// bytes itself.
package asr

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/recapd/recapd/internal/config"
	"github.com/recapd/recapd/internal/model"
)

type (
	// Segment is one diarization span. Speaker labels are zero-based and
	// stable within a single response.
	Segment struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker int     `json:"speaker"`
	}

	// Client calls the transcription and diarization services.
	Client struct {
		http          *resty.Client
		transcribeURL string
		diarizeURL    string
	}

	transcribeRequest struct {
		AudioURL string `json:"audio_url"`
		Language string `json:"language"`
	}

	transcribeResponse struct {
		Words []model.Word `json:"words"`
	}

	diarizeRequest struct {
		AudioURL string `json:"audio_url"`
	}

	diarizeResponse struct {
		Segments []Segment `json:"segments"`
	}
)

// PermanentError marks a response that retrying cannot fix: a 4xx other
// than 408/429, or a body the service says is malformed.
type PermanentError struct {
	Status int
	Body   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("asr: permanent failure: status %d: %s", e.Status, e.Body)
}

// New builds the client from configuration.
func New(cfg config.ASR) *Client {
	c := resty.New()
	if cfg.APIKey != "" {
		c.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{
		http:          c,
		transcribeURL: cfg.TranscribeURL,
		diarizeURL:    cfg.DiarizeURL,
	}
}

// Transcribe submits the audio URL and language and returns the recognized
// words in service order. Word times are relative to the submitted audio;
// the merge shifts them onto the meeting timeline and tags speakers.
func (c *Client) Transcribe(ctx context.Context, audioURL, language string) ([]model.Word, error) {
	var out transcribeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(transcribeRequest{AudioURL: audioURL, Language: language}).
		SetResult(&out).
		Post(c.transcribeURL)
	if err != nil {
		return nil, fmt.Errorf("asr: transcribe: %w", err)
	}
	if err := classify(resp); err != nil {
		return nil, err
	}
	return out.Words, nil
}

// Diarize returns speaker segments for a single mixed track.
func (c *Client) Diarize(ctx context.Context, audioURL string) ([]Segment, error) {
	var out diarizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(diarizeRequest{AudioURL: audioURL}).
		SetResult(&out).
		Post(c.diarizeURL)
	if err != nil {
		return nil, fmt.Errorf("asr: diarize: %w", err)
	}
	if err := classify(resp); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// classify maps HTTP status codes onto the retry policy: 408, 429 and 5xx
// stay retryable, any other 4xx is permanent.
func classify(resp *resty.Response) error {
	status := resp.StatusCode()
	switch {
	case status < 400:
		return nil
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("asr: transient failure: status %d", status)
	default:
		return &PermanentError{Status: status, Body: resp.String()}
	}
}
