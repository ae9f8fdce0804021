package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// SubscriberOptions configures a transcript stream consumer.
type SubscriberOptions struct {
	// Client is the Pulse client used to consume events. Required.
	Client Client
	// SinkName identifies the consumer group. Defaults to "recapd_ws".
	SinkName string
	// Buffer is the event channel capacity. Defaults to 64.
	Buffer int
}

// Subscriber consumes transcript streams and emits decoded envelopes.
type Subscriber struct {
	client Client
	name   string
	buffer int
}

// NewSubscriber builds a Subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("broadcast: pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "recapd_ws"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscriber{client: opts.Client, name: name, buffer: buffer}, nil
}

// Subscribe opens a consumer group on the transcript's stream and returns
// channels for envelopes and errors. The cancel function stops consumption
// and closes both channels.
func (s *Subscriber) Subscribe(ctx context.Context, transcriptID string) (<-chan Envelope, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(StreamName(transcriptID))
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name)
	if err != nil {
		return nil, nil, nil, err
	}
	events := make(chan Envelope, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, events, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return events, errs, cancelFunc, nil
}

func (s *Subscriber) consume(ctx context.Context, sink Sink, out chan<- Envelope, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				errs <- fmt.Errorf("broadcast: decode envelope: %w", err)
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
			if err := sink.Ack(ctx, evt); err != nil {
				errs <- fmt.Errorf("broadcast: ack: %w", err)
				return
			}
		}
	}
}
