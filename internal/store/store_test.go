package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/recapd/recapd/internal/model"
	"github.com/recapd/recapd/internal/store"
)

var (
	sharedDSN    string
	containerErr error
	startOnce    sync.Once
)

// testStore returns a migrated store against a shared throwaway database.
// RECAPD_TEST_POSTGRES_DSN bypasses the container (CI); without it a
// testcontainer is started once per package, and the tests skip when
// Docker is unavailable.
func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	if dsn := os.Getenv("RECAPD_TEST_POSTGRES_DSN"); dsn != "" {
		sharedDSN = dsn
	} else {
		startOnce.Do(func() {
			container, err := tcpostgres.Run(ctx,
				"postgres:17-alpine",
				tcpostgres.WithDatabase("recapd_test"),
				tcpostgres.WithUsername("test"),
				tcpostgres.WithPassword("test"),
				testcontainers.WithWaitStrategy(
					wait.ForLog("database system is ready to accept connections").
						WithOccurrence(2).
						WithStartupTimeout(30*time.Second)),
			)
			if err != nil {
				containerErr = err
				return
			}
			sharedDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
		})
		if containerErr != nil {
			t.Skipf("postgres container unavailable: %v", containerErr)
		}
	}

	s, err := store.New(ctx, sharedDSN)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newTranscript(t *testing.T, s *store.Store) model.Transcript {
	t.Helper()
	tr := model.Transcript{
		ID:             model.NewTranscriptID(),
		Status:         model.StatusIdle,
		SourceLanguage: "en",
	}
	require.NoError(t, s.CreateTranscript(context.Background(), tr))
	return tr
}

func TestTranscriptRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tr := newTranscript(t, s)

	got, err := s.Transcript(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)
	assert.Equal(t, model.StatusIdle, got.Status)
	assert.Empty(t, got.Topics)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Transcript(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateTopicsRegeneratesWebVTT(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tr := newTranscript(t, s)

	topics := []model.Topic{{
		ID:        model.NewTopicID(),
		Title:     "Budget",
		Timestamp: 0,
		Duration:  2,
		Words: []model.Word{
			{Text: "hello", Start: 0, End: 1, Speaker: 0},
			{Text: "world.", Start: 1, End: 2, Speaker: 0},
		},
	}}
	require.NoError(t, s.UpdateTopics(ctx, tr.ID, topics))

	got, err := s.Transcript(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, got.Topics, 1)
	assert.Contains(t, got.WebVTT, "WEBVTT")
	assert.Contains(t, got.WebVTT, "hello world.")
	assert.Equal(t, model.WebVTT(topics), got.WebVTT)
}

func TestScalarFieldUpdates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tr := newTranscript(t, s)

	require.NoError(t, s.SetStatus(ctx, tr.ID, model.StatusProcessing))
	require.NoError(t, s.SetWorkflowRunID(ctx, tr.ID, "run-1"))
	require.NoError(t, s.SetTitle(ctx, tr.ID, "Planning"))
	require.NoError(t, s.SetShortSummary(ctx, tr.ID, "short"))
	require.NoError(t, s.SetLongSummary(ctx, tr.ID, "long"))
	require.NoError(t, s.SetDuration(ctx, tr.ID, 123.5))
	require.NoError(t, s.SetWaveform(ctx, tr.ID, []float64{0, 0.5, 1}))
	require.NoError(t, s.SetAudioDeleted(ctx, tr.ID))
	require.NoError(t, s.SetZulipMessageID(ctx, tr.ID, 42))

	got, err := s.Transcript(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	assert.Equal(t, "run-1", got.WorkflowRunID)
	assert.Equal(t, "Planning", got.Title)
	assert.Equal(t, 123.5, got.Duration)
	assert.Equal(t, []float64{0, 0.5, 1}, got.Waveform)
	assert.True(t, got.AudioDeleted)
	require.NotNil(t, got.ZulipMessageID)
	assert.Equal(t, int64(42), *got.ZulipMessageID)

	assert.ErrorIs(t, s.SetTitle(ctx, "missing", "x"), store.ErrNotFound)
}

func TestAppendEventOrderAndRunFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tr := newTranscript(t, s)

	for i := 0; i < 3; i++ {
		e := model.NewEvent(model.EventStatus, "run-a", map[string]int{"seq": i})
		require.NoError(t, s.AppendEvent(ctx, tr.ID, e))
	}
	require.NoError(t, s.AppendEvent(ctx, tr.ID,
		model.NewEvent(model.EventStatus, "run-b", map[string]int{"seq": 99})))

	events, err := s.EventsByRun(ctx, tr.ID, "run-a")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		var data map[string]int
		require.NoError(t, json.Unmarshal(e.Data, &data))
		assert.Equal(t, i, data["seq"])
	}
}

func TestLastDagStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tr := newTranscript(t, s)

	got, err := s.LastDagStatus(ctx, tr.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := model.DagStatus{WorkflowRunID: "run-1", EmittedAt: time.Now().UTC()}
	second := model.DagStatus{WorkflowRunID: "run-1", EmittedAt: first.EmittedAt.Add(time.Second),
		Tasks: []model.TaskState{{Name: "mixdown", Status: model.TaskCompleted}}}
	require.NoError(t, s.AppendEvent(ctx, tr.ID, model.NewEvent(model.EventDagStatus, "run-1", first)))
	require.NoError(t, s.AppendEvent(ctx, tr.ID, model.NewEvent(model.EventDagStatus, "run-1", second)))

	got, err = s.LastDagStatus(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "mixdown", got.Tasks[0].Name)
}

func TestUpsertRecordingIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := model.Recording{
		ID:         model.NewTranscriptID(),
		BucketName: "raw",
		ObjectKey:  fmt.Sprintf("rooms/%s/rec.webm", model.NewTranscriptID()),
		TrackKeys:  []string{"a.webm", "b.webm"},
		RecordedAt: time.Now().UTC(),
		Status:     model.RecordingPending,
	}
	inserted, err := s.UpsertRecording(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Redelivery with a different id but the same (bucket, key) pair.
	dup := rec
	dup.ID = model.NewTranscriptID()
	inserted, err = s.UpsertRecording(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.Recording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.webm", "b.webm"}, got.TrackKeys)
	assert.True(t, got.Multitrack())

	require.NoError(t, s.SetRecordingStatus(ctx, rec.ID, model.RecordingLinked))
	got, err = s.Recording(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordingLinked, got.Status)
}

func TestMeetingRoomConsent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	roomName := "room-" + model.NewTranscriptID()
	m := model.Meeting{
		ID:        model.NewTranscriptID(),
		RoomName:  roomName,
		StartDate: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.UpsertMeeting(ctx, m))
	require.NoError(t, s.UpsertMeeting(ctx, m)) // idempotent

	later := m
	later.ID = model.NewTranscriptID()
	later.StartDate = m.StartDate.Add(time.Hour)
	require.NoError(t, s.UpsertMeeting(ctx, later))

	got, err := s.LatestMeetingByRoomName(ctx, roomName)
	require.NoError(t, err)
	assert.Equal(t, later.ID, got.ID)

	end := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.EndMeeting(ctx, m.ID, end))

	consent := model.MeetingConsent{
		MeetingID:        m.ID,
		UserID:           "u1",
		ConsentGiven:     false,
		ConsentTimestamp: time.Now().UTC(),
	}
	require.NoError(t, s.SaveConsent(ctx, consent))
	consent.ConsentGiven = true
	require.NoError(t, s.SaveConsent(ctx, consent)) // upsert updates

	consents, err := s.Consents(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, consents, 1)
	assert.True(t, consents[0].ConsentGiven)
}

func TestSweepAnonymous(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	anon := newTranscript(t, s)
	user := "u1"
	owned := model.Transcript{ID: model.NewTranscriptID(), Status: model.StatusEnded, UserID: &user}
	require.NoError(t, s.CreateTranscript(ctx, owned))

	// Retention of zero sweeps everything anonymous created before now.
	time.Sleep(10 * time.Millisecond)
	n, err := s.SweepAnonymous(ctx, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = s.Transcript(ctx, anon.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Transcript(ctx, owned.ID)
	assert.NoError(t, err)
}
