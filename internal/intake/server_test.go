package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/internal/broadcast"
	"github.com/recapd/recapd/internal/model"
	"github.com/recapd/recapd/internal/store"
)

const testSecret = "whsec_test"

func init() { gin.SetMode(gin.TestMode) }

type fakeStore struct {
	recordings  map[string]model.Recording
	transcripts []model.Transcript
	meetings    map[string]model.Meeting
	byRoom      map[string]model.Meeting
	statuses    map[string]model.RecordingStatus
	ended       map[string]time.Time
	snapshot    *model.DagStatus
	pingErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recordings: map[string]model.Recording{},
		meetings:   map[string]model.Meeting{},
		byRoom:     map[string]model.Meeting{},
		statuses:   map[string]model.RecordingStatus{},
		ended:      map[string]time.Time{},
	}
}

func (f *fakeStore) UpsertRecording(_ context.Context, r model.Recording) (bool, error) {
	for _, existing := range f.recordings {
		if existing.BucketName == r.BucketName && existing.ObjectKey == r.ObjectKey {
			return false, nil
		}
	}
	f.recordings[r.ID] = r
	return true, nil
}

func (f *fakeStore) SetRecordingStatus(_ context.Context, id string, status model.RecordingStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeStore) CreateTranscript(_ context.Context, t model.Transcript) error {
	f.transcripts = append(f.transcripts, t)
	return nil
}

func (f *fakeStore) LatestMeetingByRoomName(_ context.Context, roomName string) (model.Meeting, error) {
	m, ok := f.byRoom[roomName]
	if !ok {
		return model.Meeting{}, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) UpsertMeeting(_ context.Context, m model.Meeting) error {
	f.meetings[m.ID] = m
	return nil
}

func (f *fakeStore) EndMeeting(_ context.Context, id string, at time.Time) error {
	if _, ok := f.meetings[id]; !ok {
		return store.ErrNotFound
	}
	f.ended[id] = at
	return nil
}

func (f *fakeStore) LastDagStatus(context.Context, string) (*model.DagStatus, error) {
	return f.snapshot, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

type fakeRun struct{ id, runID string }

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return r.runID }

type fakeStarter struct {
	started []string
	err     error
}

func (f *fakeStarter) Start(_ context.Context, transcriptID string, _ bool) (RunHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, transcriptID)
	return fakeRun{id: "transcript-" + transcriptID, runID: "run-1"}, nil
}

type fakeSubscriber struct {
	events chan broadcast.Envelope
	errs   chan error
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, _ string) (<-chan broadcast.Envelope, <-chan error, context.CancelFunc, error) {
	_, cancel := context.WithCancel(ctx)
	return f.events, f.errs, cancel, nil
}

func newTestServer(st *fakeStore, starter *fakeStarter, sub Subscriber) *httptest.Server {
	srv := New(Options{
		Store:         st,
		Starter:       starter,
		Subscriber:    sub,
		WebhookSecret: testSecret,
	})
	return httptest.NewServer(srv.Routes())
}

func postEvent(t *testing.T, url string, event envelope, sign bool) *http.Response {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url+"/v1/webhook/daily", bytes.NewReader(body))
	require.NoError(t, err)
	if sign {
		req.Header.Set(HeaderSignature, Sign(testSecret, body))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func readyEvent(t *testing.T, room string, trackKeys []string) envelope {
	t.Helper()
	payload, err := json.Marshal(recordingReady{
		RecordingID: "rec-1",
		BucketName:  "recordings",
		ObjectKey:   "m/mixed.mp4",
		TrackKeys:   trackKeys,
		RoomName:    room,
		Timestamp:   time.Now().Unix(),
	})
	require.NoError(t, err)
	return envelope{Type: EventRecordingReady, Payload: payload}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, &fakeStarter{}, &fakeSubscriber{})
	defer ts.Close()

	resp := postEvent(t, ts.URL, readyEvent(t, "standup", nil), false)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, st.recordings)
}

func TestWebhookRecordingReadyStartsWorkflow(t *testing.T) {
	st := newFakeStore()
	roomID := "room-1"
	st.byRoom["standup"] = model.Meeting{ID: "meet-1", RoomName: "standup", RoomID: &roomID}
	starter := &fakeStarter{}
	ts := newTestServer(st, starter, &fakeSubscriber{})
	defer ts.Close()

	resp := postEvent(t, ts.URL, readyEvent(t, "standup", []string{"m/t0.webm", "m/t1.webm"}), true)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Len(t, st.transcripts, 1)
	tr := st.transcripts[0]
	require.NotNil(t, tr.RecordingID)
	assert.Equal(t, "rec-1", *tr.RecordingID)
	assert.Equal(t, model.StatusIdle, tr.Status)
	require.NotNil(t, tr.RoomID)
	assert.Equal(t, roomID, *tr.RoomID)
	assert.Equal(t, model.RecordingLinked, st.statuses["rec-1"])
	assert.Equal(t, []string{tr.ID}, starter.started)
}

func TestWebhookRecordingReadyDuplicate(t *testing.T) {
	st := newFakeStore()
	st.byRoom["standup"] = model.Meeting{ID: "meet-1", RoomName: "standup"}
	starter := &fakeStarter{}
	ts := newTestServer(st, starter, &fakeSubscriber{})
	defer ts.Close()

	first := postEvent(t, ts.URL, readyEvent(t, "standup", nil), true)
	first.Body.Close()
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second := postEvent(t, ts.URL, readyEvent(t, "standup", nil), true)
	defer second.Body.Close()
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Len(t, st.transcripts, 1)
	assert.Len(t, starter.started, 1)
}

func TestWebhookRecordingReadyOrphan(t *testing.T) {
	st := newFakeStore()
	starter := &fakeStarter{}
	ts := newTestServer(st, starter, &fakeSubscriber{})
	defer ts.Close()

	resp := postEvent(t, ts.URL, readyEvent(t, "unknown-room", nil), true)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, model.RecordingOrphan, st.statuses["rec-1"])
	assert.Empty(t, st.transcripts)
	assert.Empty(t, starter.started)
}

func TestWebhookParticipantLifecycle(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, &fakeStarter{}, &fakeSubscriber{})
	defer ts.Close()

	joined, err := json.Marshal(roomEvent{
		MeetingID: "meet-1",
		RoomName:  "standup",
		RoomURL:   "https://example.daily.co/standup",
		UserID:    "alice",
		Timestamp: time.Now().Unix(),
	})
	require.NoError(t, err)
	resp := postEvent(t, ts.URL, envelope{Type: EventParticipantJoined, Payload: joined}, true)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, st.meetings, "meet-1")

	left, err := json.Marshal(roomEvent{MeetingID: "meet-1", Timestamp: time.Now().Unix()})
	require.NoError(t, err)
	resp = postEvent(t, ts.URL, envelope{Type: EventParticipantLeft, Payload: left}, true)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, st.ended, "meet-1")
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, &fakeStarter{}, &fakeSubscriber{})
	defer ts.Close()

	resp := postEvent(t, ts.URL, envelope{Type: "meeting.ended", Payload: json.RawMessage(`{}`)}, true)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, &fakeStarter{}, &fakeSubscriber{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	st.pingErr = errors.New("connection refused")
	resp, err = http.Get(ts.URL + "/v1/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
