package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	// EventKind names a live update pushed to transcript subscribers. The
	// set mirrors what the frontend consumes; user-scoped streams reuse the
	// same kinds.
	EventKind string

	// Event is one entry of a transcript's append-only event log. Consumers
	// tolerate duplicates by ID; appends are totally ordered per transcript
	// through the database.
	Event struct {
		ID        string          `json:"id"`
		Kind      EventKind       `json:"event"`
		RunID     string          `json:"run_id,omitempty"`
		Timestamp time.Time       `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}

	// TaskStatus is the lifecycle of one DAG task.
	TaskStatus string

	// TaskState describes one task inside a DagStatus snapshot. Fan-out
	// nodes additionally report child progress counts.
	TaskState struct {
		Name              string     `json:"name"`
		Status            TaskStatus `json:"status"`
		QueuedAt          *time.Time `json:"queued_at,omitempty"`
		StartedAt         *time.Time `json:"started_at,omitempty"`
		FinishedAt        *time.Time `json:"finished_at,omitempty"`
		Parents           []string   `json:"parents,omitempty"`
		Error             string     `json:"error,omitempty"`
		ChildrenTotal     int        `json:"children_total,omitempty"`
		ChildrenCompleted int        `json:"children_completed,omitempty"`
	}

	// DagStatus is the authoritative snapshot of a workflow run's task
	// states. Every broadcast carries the full snapshot, never a delta, so
	// late or reordered deliveries overwrite correctly by EmittedAt.
	DagStatus struct {
		WorkflowRunID string      `json:"workflow_run_id"`
		Tasks         []TaskState `json:"tasks"`
		EmittedAt     time.Time   `json:"emitted_at"`
	}
)

const (
	EventTranscript       EventKind = "TRANSCRIPT"
	EventTopic            EventKind = "TOPIC"
	EventStatus           EventKind = "STATUS"
	EventFinalTitle       EventKind = "FINAL_TITLE"
	EventFinalLongSummary EventKind = "FINAL_LONG_SUMMARY"
	EventFinalShortSum    EventKind = "FINAL_SHORT_SUMMARY"
	EventActionItems      EventKind = "ACTION_ITEMS"
	EventDuration         EventKind = "DURATION"
	EventWaveform         EventKind = "WAVEFORM"
	EventDagStatus        EventKind = "DAG_STATUS"

	// Partial task outputs recorded in the event log for replay and
	// debugging. Never broadcast to subscribers.
	EventTrackWords  EventKind = "TRACK_WORDS"
	EventMergedWords EventKind = "MERGED_WORDS"
)

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// NewEvent builds an event with a fresh id and the given JSON-encodable
// payload. Marshal errors are impossible for the payload types used by the
// pipeline; a nil Data is stored on failure rather than aborting the caller.
func NewEvent(kind EventKind, runID string, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
