package pipeline

import (
	"time"

	"github.com/recapd/recapd/internal/model"
)

// tracker maintains the DAG snapshot published alongside the workflow.
// Fan-out tasks are tracked as one aggregate node with child progress
// counts. All methods run on the workflow goroutine; no locking.
type tracker struct {
	runID string
	order []string
	tasks map[string]*model.TaskState
}

func newTracker(runID string) *tracker {
	t := &tracker{runID: runID, tasks: make(map[string]*model.TaskState)}
	t.add(TaskGetRecording)
	return t
}

// plan registers the full task graph once the recording's shape is known.
// The topic_summary fan-out is sized later by fanOut.
func (t *tracker) plan(tracks int, single bool) {
	t.add(TaskGetParticipants, TaskGetRecording)
	t.add(TaskPadTrack, TaskGetRecording)
	t.add(TaskTranscribeTrack, TaskGetRecording)
	t.tasks[TaskPadTrack].ChildrenTotal = tracks
	t.tasks[TaskTranscribeTrack].ChildrenTotal = tracks

	t.add(TaskMixdown, TaskPadTrack)
	t.add(TaskWaveform, TaskMixdown)
	mergeParents := []string{TaskTranscribeTrack}
	if single {
		mergeParents = append(mergeParents, TaskMixdown)
	}
	t.add(TaskMergeWords, mergeParents...)
	t.add(TaskDetectTopics, TaskMergeWords)
	t.add(TaskTopicSummary, TaskDetectTopics)
	t.add(TaskStoreTopics, TaskTopicSummary)
	t.add(TaskTitle, TaskStoreTopics)
	t.add(TaskLongSummary, TaskStoreTopics)
	t.add(TaskShortSummary, TaskStoreTopics)
	t.add(TaskConsentCleanup, TaskTitle, TaskLongSummary, TaskShortSummary)
	t.add(TaskFinalize, TaskConsentCleanup)
	t.add(TaskChatPost, TaskFinalize)
	t.add(TaskWebhook, TaskFinalize)
}

func (t *tracker) add(name string, parents ...string) {
	if _, ok := t.tasks[name]; ok {
		return
	}
	t.order = append(t.order, name)
	t.tasks[name] = &model.TaskState{
		Name:    name,
		Status:  model.TaskQueued,
		Parents: parents,
	}
}

// fanOut sizes a dynamic fan-out node.
func (t *tracker) fanOut(name string, total int) {
	t.tasks[name].ChildrenTotal = total
}

// started marks a task running. Repeated calls from fan-out elements keep
// the first start time.
func (t *tracker) started(name string, now time.Time) {
	s := t.state(name)
	if s.StartedAt != nil {
		return
	}
	at := now
	s.Status = model.TaskRunning
	s.StartedAt = &at
}

func (t *tracker) completed(name string, now time.Time) {
	s := t.state(name)
	at := now
	s.Status = model.TaskCompleted
	s.FinishedAt = &at
}

// childCompleted bumps a fan-out aggregate; the node completes when the
// last child does.
func (t *tracker) childCompleted(name string, now time.Time) {
	s := t.state(name)
	s.ChildrenCompleted++
	if s.ChildrenCompleted >= s.ChildrenTotal {
		t.completed(name, now)
	}
}

func (t *tracker) failed(name string, now time.Time, err error) {
	s := t.state(name)
	at := now
	s.Status = model.TaskFailed
	s.FinishedAt = &at
	s.Error = err.Error()
}

func (t *tracker) state(name string) *model.TaskState {
	if s, ok := t.tasks[name]; ok {
		return s
	}
	t.add(name)
	return t.tasks[name]
}

// snapshot copies the task states into a DagStatus. Consumers overwrite
// by EmittedAt, so every snapshot carries the full graph.
func (t *tracker) snapshot(now time.Time) model.DagStatus {
	states := make([]model.TaskState, len(t.order))
	for i, name := range t.order {
		states[i] = *t.tasks[name]
	}
	return model.DagStatus{
		WorkflowRunID: t.runID,
		Tasks:         states,
		EmittedAt:     now,
	}
}
