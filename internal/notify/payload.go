package notify

import (
	"fmt"
	"strings"

	"github.com/recapd/recapd/internal/model"
)

// WebhookTopic is one topic as delivered to webhook receivers, with its
// caption track rendered per topic.
type WebhookTopic struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
	WebVTT    string  `json:"webvtt"`
}

// WebhookPayload is the body posted to a room's webhook on completion.
type WebhookPayload struct {
	TranscriptID string              `json:"transcript_id"`
	Title        string              `json:"title"`
	ShortSummary string              `json:"short_summary"`
	LongSummary  string              `json:"long_summary"`
	Duration     float64             `json:"duration"`
	Topics       []WebhookTopic      `json:"topics"`
	Participants []model.Participant `json:"participants"`
	URL          string              `json:"url"`
}

// EventTranscriptCompleted names the webhook event sent after finalize.
const EventTranscriptCompleted = "transcript.completed"

// BuildWebhookPayload renders the delivery body for a finished transcript.
func BuildWebhookPayload(t model.Transcript, frontendBaseURL string) WebhookPayload {
	topics := make([]WebhookTopic, len(t.Topics))
	for i, topic := range t.Topics {
		topics[i] = WebhookTopic{
			ID:        topic.ID,
			Title:     topic.Title,
			Summary:   topic.Summary,
			Timestamp: topic.Timestamp,
			Duration:  topic.Duration,
			WebVTT:    model.TopicWebVTT(topic),
		}
	}
	return WebhookPayload{
		TranscriptID: t.ID,
		Title:        t.Title,
		ShortSummary: t.ShortSummary,
		LongSummary:  t.LongSummary,
		Duration:     t.Duration,
		Topics:       topics,
		Participants: t.Participants,
		URL:          TranscriptURL(frontendBaseURL, t.ID),
	}
}

// TranscriptURL returns the frontend link for a transcript.
func TranscriptURL(base, transcriptID string) string {
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/transcripts/%s", strings.TrimRight(base, "/"), transcriptID)
}
