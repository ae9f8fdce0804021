// Package broadcast moves pipeline progress to live subscribers over Pulse
// streams backed by Redis. One stream per transcript; WebSocket endpoints
// consume through Subscriber, activities publish through Broadcaster.
package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

type (
	// Client exposes the subset of Pulse needed here: open a stream by
	// name. Callers own the Redis connection.
	Client interface {
		Stream(name string) (Stream, error)
	}

	// Stream publishes events and creates consumer groups.
	Stream interface {
		Add(ctx context.Context, event string, payload []byte) (string, error)
		NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (Sink, error)
		Destroy(ctx context.Context) error
	}

	// Sink is a Pulse consumer group on one stream.
	Sink interface {
		Subscribe() <-chan *streaming.Event
		Ack(context.Context, *streaming.Event) error
		Close(context.Context)
	}
)

// streamMaxLen bounds retained entries per transcript stream. Subscribers
// replay history from the event log, not from Redis, so trimming is safe.
const streamMaxLen = 1000

// StreamName returns the Pulse stream carrying one transcript's events.
func StreamName(transcriptID string) string {
	return fmt.Sprintf("transcript/%s", transcriptID)
}

type client struct {
	redis  *redis.Client
	maxLen int
}

// NewClient builds a Pulse client on the given Redis connection.
func NewClient(rdb *redis.Client) (Client, error) {
	if rdb == nil {
		return nil, errors.New("broadcast: redis client is required")
	}
	return &client{redis: rdb, maxLen: streamMaxLen}, nil
}

func (c *client) Stream(name string) (Stream, error) {
	if name == "" {
		return nil, errors.New("broadcast: stream name is required")
	}
	str, err := streaming.NewStream(name, c.redis, streamopts.WithStreamMaxLen(c.maxLen))
	if err != nil {
		return nil, fmt.Errorf("broadcast: create stream: %w", err)
	}
	return &handle{stream: str}, nil
}

type handle struct {
	stream *streaming.Stream
}

func (h *handle) Add(ctx context.Context, event string, payload []byte) (string, error) {
	id, err := h.stream.Add(ctx, event, payload)
	if err != nil {
		return "", fmt.Errorf("broadcast: add: %w", err)
	}
	return id, nil
}

func (h *handle) NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (Sink, error) {
	sink, err := h.stream.NewSink(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return sinkAdapter{Sink: sink}, nil
}

func (h *handle) Destroy(ctx context.Context) error {
	return h.stream.Destroy(ctx)
}

// sinkAdapter narrows streaming.Sink's Close signature to the Sink
// interface.
type sinkAdapter struct {
	*streaming.Sink
}

func (s sinkAdapter) Close(ctx context.Context) {
	s.Sink.Close(ctx)
}
