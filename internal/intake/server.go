// Package intake hosts recapd's inbound HTTP surface: the video platform's
// webhook receiver, the transcript and user event WebSockets, and the
// health probe. Everything user facing beyond this lives in the frontend
// and is out of scope here.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"goa.design/clue/log"

	"github.com/recapd/recapd/internal/broadcast"
	"github.com/recapd/recapd/internal/model"
	"github.com/recapd/recapd/internal/pipeline"
	"github.com/recapd/recapd/internal/store"
)

type (
	// Store is the slice of the persistence layer intake needs.
	Store interface {
		UpsertRecording(ctx context.Context, r model.Recording) (bool, error)
		SetRecordingStatus(ctx context.Context, id string, status model.RecordingStatus) error
		CreateTranscript(ctx context.Context, t model.Transcript) error
		LatestMeetingByRoomName(ctx context.Context, roomName string) (model.Meeting, error)
		UpsertMeeting(ctx context.Context, m model.Meeting) error
		EndMeeting(ctx context.Context, id string, at time.Time) error
		LastDagStatus(ctx context.Context, id string) (*model.DagStatus, error)
		Ping(ctx context.Context) error
	}

	// Starter launches processing workflows; satisfied by *pipeline.Runner.
	Starter interface {
		Start(ctx context.Context, transcriptID string, force bool) (run RunHandle, err error)
	}

	// RunHandle is the part of a started workflow run intake reports back.
	RunHandle interface {
		GetID() string
		GetRunID() string
	}

	// Subscriber delivers live transcript events to WebSocket clients.
	Subscriber interface {
		Subscribe(ctx context.Context, transcriptID string) (<-chan broadcast.Envelope, <-chan error, context.CancelFunc, error)
	}

	// Options wires a Server.
	Options struct {
		Store         Store
		Starter       Starter
		Subscriber    Subscriber
		WebhookSecret string
		// RedisPing verifies the stream backend for the health probe. Nil
		// skips the check.
		RedisPing func(ctx context.Context) error
	}

	// Server is the intake HTTP handler set.
	Server struct {
		store      Store
		starter    Starter
		subscriber Subscriber
		secret     string
		redisPing  func(ctx context.Context) error
	}
)

// runnerStarter adapts *pipeline.Runner to the Starter interface.
type runnerStarter struct{ r *pipeline.Runner }

func (s runnerStarter) Start(ctx context.Context, transcriptID string, force bool) (RunHandle, error) {
	run, err := s.r.Start(ctx, transcriptID, force)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// StarterFromRunner wraps a pipeline Runner for use as a Starter.
func StarterFromRunner(r *pipeline.Runner) Starter { return runnerStarter{r: r} }

// New builds the intake server.
func New(opts Options) *Server {
	return &Server{
		store:      opts.Store,
		starter:    opts.Starter,
		subscriber: opts.Subscriber,
		secret:     opts.WebhookSecret,
		redisPing:  opts.RedisPing,
	}
}

// Routes mounts the intake endpoints on a fresh gin engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/v1/webhook/daily", s.handlePlatformWebhook)
	r.GET("/v1/transcripts/:id/ws", s.handleTranscriptWS)
	r.GET("/v1/events", s.handleUserEvents)
	r.GET("/v1/healthz", s.handleHealthz)
	return r
}

func (s *Server) handlePlatformWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if !VerifySignature(s.secret, body, c.GetHeader(HeaderSignature)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	ctx := c.Request.Context()
	switch env.Type {
	case EventRecordingReady:
		s.handleRecordingReady(c, env.Payload)
	case EventParticipantJoined, EventRecordingStarted:
		var evt roomEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil || evt.MeetingID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}
		err := s.store.UpsertMeeting(ctx, model.Meeting{
			ID:        evt.MeetingID,
			RoomName:  evt.RoomName,
			RoomURL:   evt.RoomURL,
			StartDate: time.Unix(evt.Timestamp, 0).UTC(),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "meeting update failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case EventParticipantLeft:
		var evt roomEvent
		if err := json.Unmarshal(env.Payload, &evt); err != nil || evt.MeetingID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
			return
		}
		err := s.store.EndMeeting(ctx, evt.MeetingID, time.Unix(evt.Timestamp, 0).UTC())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "meeting update failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case EventRecordingError:
		var evt roomEvent
		_ = json.Unmarshal(env.Payload, &evt)
		log.Error(ctx, errors.New("platform recording error"),
			log.KV{K: "room", V: evt.RoomName}, log.KV{K: "message", V: evt.Message})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// handleRecordingReady creates the recording and transcript rows and
// launches processing. Redelivered events hit the recording's unique
// (bucket, key) pair and are acknowledged without a second transcript.
func (s *Server) handleRecordingReady(c *gin.Context, payload json.RawMessage) {
	var evt recordingReady
	if err := json.Unmarshal(payload, &evt); err != nil || evt.RecordingID == "" || evt.BucketName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	ctx := c.Request.Context()

	rec := model.Recording{
		ID:         evt.RecordingID,
		BucketName: evt.BucketName,
		ObjectKey:  evt.ObjectKey,
		TrackKeys:  evt.TrackKeys,
		RecordedAt: time.Unix(evt.Timestamp, 0).UTC(),
		Status:     model.RecordingPending,
	}

	meeting, err := s.store.LatestMeetingByRoomName(ctx, evt.RoomName)
	orphan := errors.Is(err, store.ErrNotFound)
	if err != nil && !orphan {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "meeting lookup failed"})
		return
	}
	if !orphan {
		rec.MeetingID = &meeting.ID
	}

	inserted, err := s.store.UpsertRecording(ctx, rec)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recording insert failed"})
		return
	}
	if !inserted {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	// A recording with no known meeting stays parked until an operator
	// links it; nothing to process yet.
	if orphan {
		if err := s.store.SetRecordingStatus(ctx, rec.ID, model.RecordingOrphan); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recording update failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "orphan", "recording_id": rec.ID})
		return
	}

	t := model.Transcript{
		ID:             model.NewTranscriptID(),
		Status:         model.StatusIdle,
		SourceLanguage: "english",
		RecordingID:    &rec.ID,
		RoomID:         meeting.RoomID,
		UserID:         meeting.UserID,
	}
	if err := s.store.CreateTranscript(ctx, t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transcript insert failed"})
		return
	}
	if err := s.store.SetRecordingStatus(ctx, rec.ID, model.RecordingLinked); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recording update failed"})
		return
	}
	if _, err := s.starter.Start(ctx, t.ID, false); err != nil && !errors.Is(err, pipeline.ErrAlreadyRunning) {
		log.Error(ctx, err, log.KV{K: "transcript_id", V: t.ID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workflow start failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transcript_id": t.ID})
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "postgres": err.Error()})
		return
	}
	if s.redisPing != nil {
		if err := s.redisPing(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "redis": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
