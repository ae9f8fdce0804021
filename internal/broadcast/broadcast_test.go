package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/recapd/recapd/internal/model"
)

type fakeClient struct {
	streams map[string]*fakeStream
	err     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{streams: map[string]*fakeStream{}}
}

func (c *fakeClient) Stream(name string) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	s, ok := c.streams[name]
	if !ok {
		s = &fakeStream{ch: make(chan *streaming.Event, 16)}
		c.streams[name] = s
	}
	return s, nil
}

type fakeStream struct {
	added []addedEvent
	ch    chan *streaming.Event
	acked int
}

type addedEvent struct {
	name    string
	payload []byte
}

func (s *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	s.added = append(s.added, addedEvent{name: event, payload: payload})
	s.ch <- &streaming.Event{EventName: event, Payload: payload}
	return "1-0", nil
}

func (s *fakeStream) NewSink(context.Context, string, ...streamopts.Sink) (Sink, error) {
	return &fakeSink{stream: s}, nil
}

func (s *fakeStream) Destroy(context.Context) error { return nil }

type fakeSink struct {
	stream *fakeStream
}

func (s *fakeSink) Subscribe() <-chan *streaming.Event { return s.stream.ch }

func (s *fakeSink) Ack(context.Context, *streaming.Event) error {
	s.stream.acked++
	return nil
}

func (s *fakeSink) Close(context.Context) {}

func TestPublishWrapsEnvelope(t *testing.T) {
	client := newFakeClient()
	b, err := NewBroadcaster(client)
	require.NoError(t, err)

	status := model.DagStatus{WorkflowRunID: "run-1", EmittedAt: time.Now().UTC()}
	require.NoError(t, b.Publish(context.Background(), "t-1", model.EventDagStatus, status))

	stream := client.streams["transcript/t-1"]
	require.NotNil(t, stream)
	require.Len(t, stream.added, 1)
	assert.Equal(t, "DAG_STATUS", stream.added[0].name)

	var env Envelope
	require.NoError(t, json.Unmarshal(stream.added[0].payload, &env))
	assert.Equal(t, "DAG_STATUS", env.Event)
	assert.Equal(t, "t-1", env.TranscriptID)
	var got model.DagStatus
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "run-1", got.WorkflowRunID)
}

func TestPublishRequiresTranscriptID(t *testing.T) {
	b, err := NewBroadcaster(newFakeClient())
	require.NoError(t, err)
	assert.Error(t, b.Publish(context.Background(), "", model.EventStatus, nil))
}

func TestTryPublishSwallowsFailure(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("redis down")
	b, err := NewBroadcaster(client)
	require.NoError(t, err)
	// Must not panic or propagate.
	b.TryPublish(context.Background(), "t-1", model.EventStatus, map[string]string{"status": "processing"})
}

func TestSubscribeDecodesAndAcks(t *testing.T) {
	client := newFakeClient()
	b, err := NewBroadcaster(client)
	require.NoError(t, err)
	sub, err := NewSubscriber(SubscriberOptions{Client: client})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(context.Background(), "t-2")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), "t-2", model.EventFinalTitle, "Planning sync"))

	select {
	case env := <-events:
		assert.Equal(t, "FINAL_TITLE", env.Event)
		assert.Equal(t, "t-2", env.TranscriptID)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeMalformedPayloadReportsError(t *testing.T) {
	client := newFakeClient()
	sub, err := NewSubscriber(SubscriberOptions{Client: client})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(context.Background(), "t-3")
	require.NoError(t, err)
	defer cancel()

	stream := client.streams["transcript/t-3"]
	stream.ch <- &streaming.Event{EventName: "STATUS", Payload: []byte("{not json")}

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-events:
		t.Fatal("expected decode error, got event")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "transcript/abc", StreamName("abc"))
}
