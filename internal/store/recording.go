package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/recapd/recapd/internal/model"
)

// UpsertRecording inserts a recording and reports whether the row was
// created. A duplicate (bucket_name, object_key) pair is a redelivered
// webhook; the insert is a no-op and inserted is false.
func (s *Store) UpsertRecording(ctx context.Context, r model.Recording) (inserted bool, err error) {
	trackKeys, err := json.Marshal(orEmptyStrings(r.TrackKeys))
	if err != nil {
		return false, fmt.Errorf("store: marshal track keys: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO recording (id, bucket_name, object_key, track_keys,
			recorded_at, status, meeting_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bucket_name, object_key) DO NOTHING`,
		r.ID, r.BucketName, r.ObjectKey, trackKeys, r.RecordedAt,
		string(r.Status), r.MeetingID)
	if err != nil {
		return false, fmt.Errorf("store: upsert recording: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Recording loads one recording by id.
func (s *Store) Recording(ctx context.Context, id string) (model.Recording, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, bucket_name, object_key, track_keys, recorded_at, status,
			meeting_id
		FROM recording WHERE id = $1`, id)

	var (
		r         model.Recording
		status    string
		trackKeys []byte
	)
	err := row.Scan(&r.ID, &r.BucketName, &r.ObjectKey, &trackKeys,
		&r.RecordedAt, &status, &r.MeetingID)
	if err != nil {
		return model.Recording{}, notFound(fmt.Errorf("store: load recording: %w", err), "recording", id)
	}
	r.Status = model.RecordingStatus(status)
	if err := json.Unmarshal(trackKeys, &r.TrackKeys); err != nil {
		return model.Recording{}, fmt.Errorf("store: decode track keys: %w", err)
	}
	return r, nil
}

// SetRecordingStatus moves the recording through its lifecycle.
func (s *Store) SetRecordingStatus(ctx context.Context, id string, status model.RecordingStatus) error {
	return s.exec(ctx, "set recording status",
		`UPDATE recording SET status = $2 WHERE id = $1`, id, string(status))
}

func orEmptyStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
