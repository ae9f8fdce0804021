// Package model defines the domain records shared across the pipeline:
// transcripts, topics, words, participants, recordings, and the event
// envelopes broadcast to live subscribers. All times are meeting-relative
// seconds unless a field says otherwise.
package model

import (
	"time"

	"github.com/google/uuid"
)

type (
	// TranscriptStatus tracks a transcript through its lifecycle. The status
	// is monotonic (idle -> processing -> ended|error) except for an
	// operator-forced re-process which resets it to processing.
	TranscriptStatus string

	// RecordingStatus tracks an inbound recording from the video platform.
	RecordingStatus string

	// Word is a single recognized word on the shared meeting timeline.
	// Speaker is the zero-based originating track index for multitrack
	// input, or a diarization-assigned label on the single-track path.
	Word struct {
		Text    string  `json:"text"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker int     `json:"speaker"`
	}

	// Topic is a contiguous, titled slice of the word stream. Timestamp and
	// Duration are derived from the first and last contained word.
	Topic struct {
		ID        string  `json:"id"`
		Title     string  `json:"title"`
		Summary   string  `json:"summary"`
		Timestamp float64 `json:"timestamp"`
		Duration  float64 `json:"duration"`
		Words     []Word  `json:"words"`
	}

	// Participant links a display name to a speaker index. Speaker is nil
	// until attribution is known; at most one participant per speaker value.
	Participant struct {
		ID      string `json:"id"`
		Speaker *int   `json:"speaker"`
		Name    string `json:"name"`
	}

	// Transcript is the root aggregate produced by the pipeline. It owns its
	// topics, participants, events, and derived fields; workflow state is
	// owned by the orchestrator and referenced through WorkflowRunID only.
	Transcript struct {
		ID              string           `json:"id"`
		Status          TranscriptStatus `json:"status"`
		SourceLanguage  string           `json:"source_language"`
		TargetLanguage  string           `json:"target_language"`
		Duration        float64          `json:"duration"`
		Title           string           `json:"title"`
		ShortSummary    string           `json:"short_summary"`
		LongSummary     string           `json:"long_summary"`
		WebVTT          string           `json:"webvtt"`
		Waveform        []float64        `json:"waveform"`
		Topics          []Topic          `json:"topics"`
		Participants    []Participant    `json:"participants"`
		Events          []Event          `json:"events"`
		WorkflowRunID   string           `json:"workflow_run_id"`
		AudioDeleted    bool             `json:"audio_deleted"`
		ZulipMessageID  *int64           `json:"zulip_message_id"`
		RecordingID     *string          `json:"recording_id"`
		RoomID          *string          `json:"room_id"`
		UserID          *string          `json:"user_id"`
		CreatedAt       time.Time        `json:"created_at"`
	}

	// Recording is one platform recording, either a single mixed object or a
	// list of per-participant track keys. (BucketName, ObjectKey) is unique.
	Recording struct {
		ID         string          `json:"id"`
		BucketName string          `json:"bucket_name"`
		ObjectKey  string          `json:"object_key"`
		TrackKeys  []string        `json:"track_keys"`
		RecordedAt time.Time       `json:"recorded_at"`
		Status     RecordingStatus `json:"status"`
		MeetingID  *string         `json:"meeting_id"`
	}

	// Meeting is a scheduled or ad-hoc room session.
	Meeting struct {
		ID        string     `json:"id"`
		RoomName  string     `json:"room_name"`
		RoomURL   string     `json:"room_url"`
		StartDate time.Time  `json:"start_date"`
		EndDate   *time.Time `json:"end_date"`
		UserID    *string    `json:"user_id"`
		RoomID    *string    `json:"room_id"`
	}

	// Room holds the per-room integration settings consumed by the
	// notification dispatcher.
	Room struct {
		ID               string  `json:"id"`
		Name             string  `json:"name"`
		UserID           *string `json:"user_id"`
		WebhookURL       string  `json:"webhook_url"`
		WebhookSecret    string  `json:"webhook_secret"`
		IsLocked         bool    `json:"is_locked"`
		RecordingType    string  `json:"recording_type"`
		RecordingTrigger string  `json:"recording_trigger"`
		ZulipAutoPost    bool    `json:"zulip_auto_post"`
		ZulipStream      string  `json:"zulip_stream"`
		ZulipTopic       string  `json:"zulip_topic"`
	}

	// MeetingConsent records one attendee's recording consent decision.
	MeetingConsent struct {
		MeetingID        string    `json:"meeting_id"`
		UserID           string    `json:"user_id"`
		ConsentGiven     bool      `json:"consent_given"`
		ConsentTimestamp time.Time `json:"consent_timestamp"`
	}
)

const (
	StatusIdle       TranscriptStatus = "idle"
	StatusProcessing TranscriptStatus = "processing"
	StatusEnded      TranscriptStatus = "ended"
	StatusError      TranscriptStatus = "error"
)

const (
	RecordingPending RecordingStatus = "pending"
	RecordingOrphan  RecordingStatus = "orphan"
	RecordingLinked  RecordingStatus = "linked"
)

// NewTranscriptID returns a fresh opaque transcript identifier.
func NewTranscriptID() string { return uuid.NewString() }

// NewTopicID returns a fresh topic identifier, stable within a transcript
// for the lifetime of one workflow run.
func NewTopicID() string { return uuid.NewString() }

// Multitrack reports whether the recording carries per-participant tracks.
func (r Recording) Multitrack() bool { return len(r.TrackKeys) > 0 }
