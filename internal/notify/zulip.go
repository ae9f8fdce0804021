package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/recapd/recapd/internal/config"
	"github.com/recapd/recapd/internal/model"
)

// ErrZulipNotConfigured is returned when the deployment carries no Zulip
// credentials. Callers treat it as "skip silently".
var ErrZulipNotConfigured = errors.New("notify: zulip not configured")

// Zulip posts and edits recap messages through the Zulip REST API.
type Zulip struct {
	client *resty.Client
	site   string
}

// NewZulip builds a client from configuration. Returns
// ErrZulipNotConfigured when site or credentials are absent.
func NewZulip(cfg config.Zulip) (*Zulip, error) {
	if cfg.Site == "" || cfg.Email == "" || cfg.APIKey == "" {
		return nil, ErrZulipNotConfigured
	}
	return &Zulip{
		client: resty.New().
			SetBaseURL(cfg.Site).
			SetBasicAuth(cfg.Email, cfg.APIKey).
			SetTimeout(30 * time.Second),
		site: cfg.Site,
	}, nil
}

type zulipResponse struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
	ID     int64  `json:"id"`
}

// PostMessage sends a stream message and returns the Zulip message id.
func (z *Zulip) PostMessage(ctx context.Context, stream, topic, content string) (int64, error) {
	var out zulipResponse
	resp, err := z.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"type":    "stream",
			"to":      stream,
			"topic":   topic,
			"content": content,
		}).
		SetResult(&out).
		Post("/api/v1/messages")
	if err != nil {
		return 0, fmt.Errorf("notify: zulip post: %w", err)
	}
	if resp.IsError() || out.Result != "success" {
		return 0, fmt.Errorf("notify: zulip post failed (status %d): %s", resp.StatusCode(), out.Msg)
	}
	return out.ID, nil
}

// UpdateMessage edits an existing message in place. Re-processed
// transcripts update their original recap instead of posting again.
func (z *Zulip) UpdateMessage(ctx context.Context, messageID int64, content string) error {
	var out zulipResponse
	resp, err := z.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"content": content}).
		SetResult(&out).
		Patch("/api/v1/messages/" + strconv.FormatInt(messageID, 10))
	if err != nil {
		return fmt.Errorf("notify: zulip update: %w", err)
	}
	if resp.IsError() || out.Result != "success" {
		return fmt.Errorf("notify: zulip update failed (status %d): %s", resp.StatusCode(), out.Msg)
	}
	return nil
}

// RecapMessage renders the chat message body for a finished transcript.
func RecapMessage(t model.Transcript, frontendBaseURL string) string {
	title := t.Title
	if title == "" {
		title = "Meeting recap"
	}
	msg := fmt.Sprintf("**%s**", title)
	if t.ShortSummary != "" {
		msg += "\n\n" + t.ShortSummary
	}
	if url := TranscriptURL(frontendBaseURL, t.ID); url != "" {
		msg += fmt.Sprintf("\n\n[Full transcript](%s)", url)
	}
	return msg
}
