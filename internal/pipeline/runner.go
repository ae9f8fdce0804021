package pipeline

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/recapd/recapd/internal/model"
)

// ErrAlreadyRunning reports a start attempt against a transcript whose
// workflow is still executing and force was not set.
var ErrAlreadyRunning = errors.New("pipeline: workflow already running")

// WorkflowID derives the stable workflow identifier for a transcript. One
// transcript maps to at most one running workflow.
func WorkflowID(transcriptID string) string {
	return "transcript-" + transcriptID
}

// Runner starts and observes processing workflows on behalf of intake and
// the operator CLI.
type Runner struct {
	temporal  client.Client
	taskQueue string
}

// NewRunner builds a Runner bound to the given task queue.
func NewRunner(c client.Client, taskQueue string) *Runner {
	return &Runner{temporal: c, taskQueue: taskQueue}
}

// Start launches processing for a transcript. With force set, a running
// workflow for the same transcript is terminated and replaced; without
// it, a running workflow is left alone and ErrAlreadyRunning is returned.
// A finished workflow can always be re-run.
func (r *Runner) Start(ctx context.Context, transcriptID string, force bool) (client.WorkflowRun, error) {
	conflict := enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL
	if force {
		conflict = enumspb.WORKFLOW_ID_CONFLICT_POLICY_TERMINATE_EXISTING
	}
	opts := client.StartWorkflowOptions{
		ID:                       WorkflowID(transcriptID),
		TaskQueue:                r.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: conflict,
	}
	run, err := r.temporal.ExecuteWorkflow(ctx, opts, WorkflowName, ProcessInput{TranscriptID: transcriptID})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("start workflow: %w", err)
	}
	return run, nil
}

// Wait blocks until the transcript's workflow run completes and returns
// its terminal error, if any.
func (r *Runner) Wait(ctx context.Context, transcriptID, runID string) error {
	var res ProcessResult
	return r.temporal.GetWorkflow(ctx, WorkflowID(transcriptID), runID).Get(ctx, &res)
}

// DagStatus queries the live snapshot of a running workflow.
func (r *Runner) DagStatus(ctx context.Context, transcriptID string) (model.DagStatus, error) {
	var status model.DagStatus
	resp, err := r.temporal.QueryWorkflow(ctx, WorkflowID(transcriptID), "", QueryDagStatus)
	if err != nil {
		return model.DagStatus{}, fmt.Errorf("query workflow: %w", err)
	}
	if err := resp.Get(&status); err != nil {
		return model.DagStatus{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return status, nil
}

// NewWorker registers the workflow and every task implementation on a
// worker for the pipeline task queue. The caller runs and stops it.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(ProcessRecording, workflow.RegisterOptions{Name: WorkflowName})

	register := func(name string, fn any) {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
	register(TaskGetRecording, acts.GetRecording)
	register(TaskGetParticipants, acts.GetParticipants)
	register(TaskPadTrack, acts.PadTrack)
	register(TaskMixdown, acts.Mixdown)
	register(TaskWaveform, acts.Waveform)
	register(TaskTranscribeTrack, acts.TranscribeTrack)
	register(TaskMergeWords, acts.MergeWords)
	register(TaskDetectTopics, acts.DetectTopics)
	register(TaskTopicSummary, acts.TopicSummary)
	register(TaskStoreTopics, acts.StoreTopics)
	register(TaskTitle, acts.Title)
	register(TaskLongSummary, acts.LongSummary)
	register(TaskShortSummary, acts.ShortSummary)
	register(TaskFinalize, acts.Finalize)
	register(TaskConsentCleanup, acts.ConsentCleanup)
	register(TaskChatPost, acts.ChatPost)
	register(TaskWebhook, acts.WebhookDispatch)
	register(TaskPublishStatus, acts.PublishStatus)
	register(TaskSetErrorStatus, acts.SetErrorStatus)
	return w
}
