package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recapd/recapd/internal/model"
)

const transcriptColumns = `id, status, title, short_summary, long_summary, webvtt,
duration, source_language, target_language, topics, participants, events,
waveform, recording_id, room_id, user_id, workflow_run_id, zulip_message_id,
audio_deleted, created_at`

// CreateTranscript inserts a new transcript row.
func (s *Store) CreateTranscript(ctx context.Context, t model.Transcript) error {
	topics, participants, events, waveform, err := marshalTranscriptJSON(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO transcript (id, status, title, short_summary, long_summary,
			webvtt, duration, source_language, target_language, topics,
			participants, events, waveform, recording_id, room_id, user_id,
			workflow_run_id, zulip_message_id, audio_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19)`,
		t.ID, string(t.Status), t.Title, t.ShortSummary, t.LongSummary,
		t.WebVTT, t.Duration, t.SourceLanguage, t.TargetLanguage, topics,
		participants, events, waveform, t.RecordingID, t.RoomID, t.UserID,
		t.WorkflowRunID, t.ZulipMessageID, t.AudioDeleted)
	if err != nil {
		return fmt.Errorf("store: create transcript: %w", err)
	}
	return nil
}

// Transcript loads one transcript by id.
func (s *Store) Transcript(ctx context.Context, id string) (model.Transcript, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transcriptColumns+` FROM transcript WHERE id = $1`, id)

	var (
		t                                     model.Transcript
		status                                string
		topics, participants, events, waveform []byte
	)
	err := row.Scan(&t.ID, &status, &t.Title, &t.ShortSummary, &t.LongSummary,
		&t.WebVTT, &t.Duration, &t.SourceLanguage, &t.TargetLanguage, &topics,
		&participants, &events, &waveform, &t.RecordingID, &t.RoomID,
		&t.UserID, &t.WorkflowRunID, &t.ZulipMessageID, &t.AudioDeleted,
		&t.CreatedAt)
	if err != nil {
		return model.Transcript{}, notFound(fmt.Errorf("store: load transcript: %w", err), "transcript", id)
	}
	t.Status = model.TranscriptStatus(status)
	if err := unmarshalTranscriptJSON(&t, topics, participants, events, waveform); err != nil {
		return model.Transcript{}, err
	}
	return t, nil
}

// SetStatus updates the lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id string, status model.TranscriptStatus) error {
	return s.exec(ctx, "set status",
		`UPDATE transcript SET status = $2 WHERE id = $1`, id, string(status))
}

// SetWorkflowRunID records the orchestrator run currently owning the
// transcript.
func (s *Store) SetWorkflowRunID(ctx context.Context, id, runID string) error {
	return s.exec(ctx, "set workflow run",
		`UPDATE transcript SET workflow_run_id = $2 WHERE id = $1`, id, runID)
}

// UpdateTopics replaces the topic list. The caption track is regenerated
// here; callers cannot supply their own webvtt.
func (s *Store) UpdateTopics(ctx context.Context, id string, topics []model.Topic) error {
	data, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("store: marshal topics: %w", err)
	}
	return s.exec(ctx, "update topics",
		`UPDATE transcript SET topics = $2, webvtt = $3 WHERE id = $1`,
		id, data, model.WebVTT(topics))
}

// SetTitle stores the generated meeting title.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	return s.exec(ctx, "set title",
		`UPDATE transcript SET title = $2 WHERE id = $1`, id, title)
}

// SetLongSummary stores the multi-paragraph summary.
func (s *Store) SetLongSummary(ctx context.Context, id, summary string) error {
	return s.exec(ctx, "set long summary",
		`UPDATE transcript SET long_summary = $2 WHERE id = $1`, id, summary)
}

// SetShortSummary stores the one-paragraph recap.
func (s *Store) SetShortSummary(ctx context.Context, id, summary string) error {
	return s.exec(ctx, "set short summary",
		`UPDATE transcript SET short_summary = $2 WHERE id = $1`, id, summary)
}

// SetDuration stores the mixed audio duration in seconds.
func (s *Store) SetDuration(ctx context.Context, id string, seconds float64) error {
	return s.exec(ctx, "set duration",
		`UPDATE transcript SET duration = $2 WHERE id = $1`, id, seconds)
}

// SetWaveform stores the normalized peak list.
func (s *Store) SetWaveform(ctx context.Context, id string, peaks []float64) error {
	data, err := json.Marshal(peaks)
	if err != nil {
		return fmt.Errorf("store: marshal waveform: %w", err)
	}
	return s.exec(ctx, "set waveform",
		`UPDATE transcript SET waveform = $2 WHERE id = $1`, id, data)
}

// SetParticipants stores the hydrated participant list.
func (s *Store) SetParticipants(ctx context.Context, id string, participants []model.Participant) error {
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("store: marshal participants: %w", err)
	}
	return s.exec(ctx, "set participants",
		`UPDATE transcript SET participants = $2 WHERE id = $1`, id, data)
}

// SetAudioDeleted flags the mixed audio as removed for consent reasons.
// The flag is never cleared.
func (s *Store) SetAudioDeleted(ctx context.Context, id string) error {
	return s.exec(ctx, "set audio deleted",
		`UPDATE transcript SET audio_deleted = TRUE WHERE id = $1`, id)
}

// SetZulipMessageID records the chat message backing this transcript's
// recap so later runs edit instead of reposting.
func (s *Store) SetZulipMessageID(ctx context.Context, id string, messageID int64) error {
	return s.exec(ctx, "set zulip message",
		`UPDATE transcript SET zulip_message_id = $2 WHERE id = $1`, id, messageID)
}

// AppendEvent appends one event to the transcript's log. The database
// serializes concurrent appends per row, which is the total order the
// event log promises.
func (s *Store) AppendEvent(ctx context.Context, id string, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	return s.exec(ctx, "append event",
		`UPDATE transcript SET events = events || $2::jsonb WHERE id = $1`,
		id, data)
}

// EventsByRun returns the events one workflow run appended, in append
// order. Used to recover partial task outputs on replay.
func (s *Store) EventsByRun(ctx context.Context, id, runID string) ([]model.Event, error) {
	events, err := s.events(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []model.Event
	for _, e := range events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// LastDagStatus returns the most recent task snapshot from the event log,
// or nil when none was recorded. WebSocket subscribers replay it on
// connect.
func (s *Store) LastDagStatus(ctx context.Context, id string) (*model.DagStatus, error) {
	events, err := s.events(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind != model.EventDagStatus {
			continue
		}
		var status model.DagStatus
		if err := json.Unmarshal(events[i].Data, &status); err != nil {
			return nil, fmt.Errorf("store: decode dag status: %w", err)
		}
		return &status, nil
	}
	return nil, nil
}

// SweepAnonymous deletes anonymous transcripts created before the
// retention window and returns how many rows were removed.
func (s *Store) SweepAnonymous(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transcript WHERE user_id IS NULL AND created_at < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("store: sweep anonymous: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) events(ctx context.Context, id string) ([]model.Event, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT events FROM transcript WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		return nil, notFound(fmt.Errorf("store: load events: %w", err), "transcript", id)
	}
	var events []model.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("store: decode events: %w", err)
	}
	return events, nil
}

func (s *Store) exec(ctx context.Context, what, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("store: %s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: %s: %w", what, ErrNotFound)
	}
	return nil
}

func marshalTranscriptJSON(t model.Transcript) (topics, participants, events, waveform []byte, err error) {
	if topics, err = json.Marshal(orEmptyTopics(t.Topics)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("store: marshal topics: %w", err)
	}
	if participants, err = json.Marshal(orEmptyParticipants(t.Participants)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("store: marshal participants: %w", err)
	}
	if events, err = json.Marshal(orEmptyEvents(t.Events)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("store: marshal events: %w", err)
	}
	if waveform, err = json.Marshal(orEmptyFloats(t.Waveform)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("store: marshal waveform: %w", err)
	}
	return topics, participants, events, waveform, nil
}

func unmarshalTranscriptJSON(t *model.Transcript, topics, participants, events, waveform []byte) error {
	if err := json.Unmarshal(topics, &t.Topics); err != nil {
		return fmt.Errorf("store: decode topics: %w", err)
	}
	if err := json.Unmarshal(participants, &t.Participants); err != nil {
		return fmt.Errorf("store: decode participants: %w", err)
	}
	if err := json.Unmarshal(events, &t.Events); err != nil {
		return fmt.Errorf("store: decode events: %w", err)
	}
	if err := json.Unmarshal(waveform, &t.Waveform); err != nil {
		return fmt.Errorf("store: decode waveform: %w", err)
	}
	return nil
}

func orEmptyTopics(v []model.Topic) []model.Topic {
	if v == nil {
		return []model.Topic{}
	}
	return v
}

func orEmptyParticipants(v []model.Participant) []model.Participant {
	if v == nil {
		return []model.Participant{}
	}
	return v
}

func orEmptyEvents(v []model.Event) []model.Event {
	if v == nil {
		return []model.Event{}
	}
	return v
}

func orEmptyFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
