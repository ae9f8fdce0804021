package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/clue/log"

	"github.com/recapd/recapd/internal/model"
)

// Envelope is the wire format on transcript streams. Payload carries the
// event-kind-specific body; for DAG_STATUS it is the full task snapshot.
type Envelope struct {
	Event        string          `json:"event"`
	TranscriptID string          `json:"transcript_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Broadcaster publishes transcript events. Safe for concurrent use.
type Broadcaster struct {
	client Client
}

// NewBroadcaster wraps a Pulse client for publishing.
func NewBroadcaster(client Client) (*Broadcaster, error) {
	if client == nil {
		return nil, errors.New("broadcast: pulse client is required")
	}
	return &Broadcaster{client: client}, nil
}

// Publish sends one event to the transcript's stream.
func (b *Broadcaster) Publish(ctx context.Context, transcriptID string, kind model.EventKind, payload any) error {
	if transcriptID == "" {
		return errors.New("broadcast: transcript id is required")
	}
	handle, err := b.client.Stream(StreamName(transcriptID))
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broadcast: marshal payload: %w", err)
	}
	env := Envelope{
		Event:        string(kind),
		TranscriptID: transcriptID,
		Timestamp:    time.Now().UTC(),
		Payload:      data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("broadcast: marshal envelope: %w", err)
	}
	if _, err := handle.Add(ctx, env.Event, raw); err != nil {
		return err
	}
	return nil
}

// TryPublish publishes and swallows failures. Progress delivery must never
// fail the task that reports it; errors are logged and dropped.
func (b *Broadcaster) TryPublish(ctx context.Context, transcriptID string, kind model.EventKind, payload any) {
	if err := b.Publish(ctx, transcriptID, kind, payload); err != nil {
		log.Error(ctx, err, log.KV{K: "transcript_id", V: transcriptID}, log.KV{K: "event", V: string(kind)})
	}
}
