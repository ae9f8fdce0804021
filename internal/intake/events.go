package intake

import "encoding/json"

// Platform webhook event types.
const (
	EventParticipantJoined = "participant.joined"
	EventParticipantLeft   = "participant.left"
	EventRecordingStarted  = "recording.started"
	EventRecordingReady    = "recording.ready-to-download"
	EventRecordingError    = "recording.error"
)

type (
	// envelope is the outer shape of every platform webhook.
	envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}

	// recordingReady announces downloadable tracks. TrackKeys empty means
	// a single mixed object at ObjectKey.
	recordingReady struct {
		RecordingID string   `json:"recording_id"`
		BucketName  string   `json:"bucket_name"`
		ObjectKey   string   `json:"object_key"`
		TrackKeys   []string `json:"track_keys"`
		RoomName    string   `json:"room_name"`
		Timestamp   int64    `json:"timestamp"`
	}

	// roomEvent covers participant and recording lifecycle notifications;
	// they all carry the meeting coordinates.
	roomEvent struct {
		MeetingID string `json:"meeting_id"`
		RoomName  string `json:"room_name"`
		RoomURL   string `json:"room_url"`
		UserID    string `json:"user_id"`
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}
)
