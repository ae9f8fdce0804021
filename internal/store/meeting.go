package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/recapd/recapd/internal/model"
)

// UpsertMeeting inserts or refreshes a meeting row. Platform webhooks can
// arrive out of order, so the upsert keeps the earliest start date.
func (s *Store) UpsertMeeting(ctx context.Context, m model.Meeting) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meeting (id, room_name, room_url, start_date, end_date,
			user_id, room_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			room_name = EXCLUDED.room_name,
			room_url = EXCLUDED.room_url,
			start_date = LEAST(meeting.start_date, EXCLUDED.start_date),
			end_date = COALESCE(EXCLUDED.end_date, meeting.end_date),
			user_id = COALESCE(EXCLUDED.user_id, meeting.user_id),
			room_id = COALESCE(EXCLUDED.room_id, meeting.room_id)`,
		m.ID, m.RoomName, m.RoomURL, m.StartDate, m.EndDate, m.UserID, m.RoomID)
	if err != nil {
		return fmt.Errorf("store: upsert meeting: %w", err)
	}
	return nil
}

// Meeting loads one meeting by id.
func (s *Store) Meeting(ctx context.Context, id string) (model.Meeting, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, room_name, room_url, start_date, end_date, user_id, room_id
		FROM meeting WHERE id = $1`, id)
	var m model.Meeting
	err := row.Scan(&m.ID, &m.RoomName, &m.RoomURL, &m.StartDate, &m.EndDate,
		&m.UserID, &m.RoomID)
	if err != nil {
		return model.Meeting{}, notFound(fmt.Errorf("store: load meeting: %w", err), "meeting", id)
	}
	return m, nil
}

// LatestMeetingByRoomName returns the most recently started meeting in a
// room, matching inbound recordings to their session.
func (s *Store) LatestMeetingByRoomName(ctx context.Context, roomName string) (model.Meeting, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, room_name, room_url, start_date, end_date, user_id, room_id
		FROM meeting WHERE room_name = $1
		ORDER BY start_date DESC LIMIT 1`, roomName)
	var m model.Meeting
	err := row.Scan(&m.ID, &m.RoomName, &m.RoomURL, &m.StartDate, &m.EndDate,
		&m.UserID, &m.RoomID)
	if err != nil {
		return model.Meeting{}, notFound(fmt.Errorf("store: load meeting by room: %w", err), "meeting", roomName)
	}
	return m, nil
}

// EndMeeting records the session end when the last participant leaves.
func (s *Store) EndMeeting(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, "end meeting",
		`UPDATE meeting SET end_date = $2 WHERE id = $1`, id, at)
}

// Room loads one room by id.
func (s *Store) Room(ctx context.Context, id string) (model.Room, error) {
	return s.room(ctx, `WHERE id = $1`, id)
}

// RoomByName loads one room by its unique name.
func (s *Store) RoomByName(ctx context.Context, name string) (model.Room, error) {
	return s.room(ctx, `WHERE name = $1`, name)
}

func (s *Store) room(ctx context.Context, where, arg string) (model.Room, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, user_id, webhook_url, webhook_secret, is_locked,
			recording_type, recording_trigger, zulip_auto_post, zulip_stream,
			zulip_topic
		FROM room `+where, arg)
	var r model.Room
	err := row.Scan(&r.ID, &r.Name, &r.UserID, &r.WebhookURL,
		&r.WebhookSecret, &r.IsLocked, &r.RecordingType, &r.RecordingTrigger,
		&r.ZulipAutoPost, &r.ZulipStream, &r.ZulipTopic)
	if err != nil {
		return model.Room{}, notFound(fmt.Errorf("store: load room: %w", err), "room", arg)
	}
	return r, nil
}

// SaveConsent records or updates one attendee's consent decision.
func (s *Store) SaveConsent(ctx context.Context, c model.MeetingConsent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO meeting_consent (meeting_id, user_id, consent_given,
			consent_timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			consent_given = EXCLUDED.consent_given,
			consent_timestamp = EXCLUDED.consent_timestamp`,
		c.MeetingID, c.UserID, c.ConsentGiven, c.ConsentTimestamp)
	if err != nil {
		return fmt.Errorf("store: save consent: %w", err)
	}
	return nil
}

// Consents returns every consent decision recorded for a meeting.
func (s *Store) Consents(ctx context.Context, meetingID string) ([]model.MeetingConsent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT meeting_id, user_id, consent_given, consent_timestamp
		FROM meeting_consent WHERE meeting_id = $1
		ORDER BY consent_timestamp`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("store: load consents: %w", err)
	}
	consents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.MeetingConsent, error) {
		var c model.MeetingConsent
		err := row.Scan(&c.MeetingID, &c.UserID, &c.ConsentGiven, &c.ConsentTimestamp)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan consents: %w", err)
	}
	return consents, nil
}
