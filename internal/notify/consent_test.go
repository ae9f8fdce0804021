package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/internal/model"
	"github.com/recapd/recapd/internal/storage"
)

func TestAnyDenied(t *testing.T) {
	assert.False(t, AnyDenied(nil))
	assert.False(t, AnyDenied([]model.MeetingConsent{{ConsentGiven: true}}))
	assert.True(t, AnyDenied([]model.MeetingConsent{{ConsentGiven: true}, {ConsentGiven: false}}))
}

func TestCleanupAudioDeletesObject(t *testing.T) {
	store := storage.NewMemory("artifacts")
	key := storage.AudioKey("t-1")
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader("mp3 bytes")))

	require.NoError(t, CleanupAudio(context.Background(), store, "t-1"))
	assert.False(t, store.Exists("artifacts", key))

	// Second run is a no-op, not an error.
	require.NoError(t, CleanupAudio(context.Background(), store, "t-1"))
}

func TestBuildWebhookPayload(t *testing.T) {
	speaker := 0
	tr := model.Transcript{
		ID:           "t-9",
		Title:        "Planning",
		ShortSummary: "short",
		LongSummary:  "long",
		Duration:     120.5,
		Topics: []model.Topic{{
			ID:        "topic-1",
			Title:     "Budget",
			Summary:   "Numbers reviewed.",
			Timestamp: 1,
			Duration:  10,
			Words:     []model.Word{{Text: "hello", Start: 1, End: 1.5}},
		}},
		Participants: []model.Participant{{ID: "p1", Name: "Dana", Speaker: &speaker}},
	}
	p := BuildWebhookPayload(tr, "https://app.example.com")
	assert.Equal(t, "t-9", p.TranscriptID)
	require.Len(t, p.Topics, 1)
	assert.Contains(t, p.Topics[0].WebVTT, "WEBVTT")
	assert.Equal(t, "https://app.example.com/transcripts/t-9", p.URL)
	require.Len(t, p.Participants, 1)
}
