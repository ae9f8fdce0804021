// Package notify delivers post-meeting side effects: signed webhooks to
// room integrations, chat posts to Zulip, and consent-driven audio
// deletion. Each sender performs a single attempt; retry schedules belong
// to the workflow's activity options.
package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "recapd-Webhook/1.0"

// WebhookPermanentError marks a delivery the receiver rejected with a 4xx
// status. The caller must not retry it.
type WebhookPermanentError struct {
	Status int
	Body   string
}

func (e *WebhookPermanentError) Error() string {
	return fmt.Sprintf("notify: webhook rejected with status %d: %s", e.Status, e.Body)
}

// WebhookSender posts signed JSON payloads to room webhook endpoints.
type WebhookSender struct {
	client    *resty.Client
	userAgent string
	now       func() time.Time
}

// NewWebhookSender builds a sender. An empty userAgent selects the
// default.
func NewWebhookSender(userAgent string) *WebhookSender {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &WebhookSender{
		client:    resty.New().SetTimeout(30 * time.Second),
		userAgent: userAgent,
		now:       time.Now,
	}
}

// WebhookDelivery is one outbound webhook call.
type WebhookDelivery struct {
	URL     string
	Secret  string
	Event   string
	Attempt int
	Payload any
}

// Send signs and posts the payload. The signature header carries the unix
// timestamp and an HMAC-SHA256 of "<ts>.<body>" keyed by the room secret,
// so receivers can reject replays and tampering in one check.
func (s *WebhookSender) Send(ctx context.Context, d WebhookDelivery) error {
	body, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("notify: marshal webhook payload: %w", err)
	}
	ts := s.now().Unix()
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", s.userAgent).
		SetHeader("X-Webhook-Event", d.Event).
		SetHeader("X-Webhook-Retry", strconv.Itoa(d.Attempt)).
		SetHeader("X-Webhook-Signature", SignatureHeader(d.Secret, ts, body)).
		SetBody(body).
		Post(d.URL)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code >= 400 && code < 500 && code != 408 && code != 429:
		return &WebhookPermanentError{Status: code, Body: resp.String()}
	default:
		return fmt.Errorf("notify: webhook returned status %d", code)
	}
}

// SignatureHeader renders the signature header value "t=<ts>,v1=<hex>".
func SignatureHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, Signature(secret, ts, body))
}

// Signature computes the hex HMAC-SHA256 of "<ts>.<body>".
func Signature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
