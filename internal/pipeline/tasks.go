// Package pipeline owns the durable processing DAG: the Temporal workflow
// driving a recording from raw tracks to a finished transcript, the
// activities it dispatches, and the client-side runner used by intake and
// the operator CLI.
package pipeline

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// WorkflowName identifies the transcript processing workflow.
const WorkflowName = "ProcessRecording"

// Task names. Workflow code schedules activities by these names and the
// DAG_STATUS snapshots report them; they are part of the operator-visible
// contract and must stay stable.
const (
	TaskGetRecording    = "get_recording"
	TaskGetParticipants = "get_participants"
	TaskPadTrack        = "pad_track"
	TaskMixdown         = "mixdown"
	TaskWaveform        = "waveform"
	TaskTranscribeTrack = "transcribe_track"
	TaskMergeWords      = "merge_words"
	TaskDetectTopics    = "detect_topics"
	TaskTopicSummary    = "topic_summary"
	TaskStoreTopics     = "store_topics"
	TaskTitle           = "title"
	TaskLongSummary     = "long_summary"
	TaskShortSummary    = "short_summary"
	TaskFinalize        = "finalize"
	TaskConsentCleanup  = "consent_cleanup"
	TaskChatPost        = "chat_post"
	TaskWebhook         = "webhook"
	TaskPublishStatus   = "publish_status"
	TaskSetErrorStatus  = "set_error_status"
)

// errTypePermanent is the application error type activities attach to
// failures that retrying cannot fix. The retry policies below also list it
// as non-retryable so a mislabeled error cannot loop.
const errTypePermanent = "PermanentError"

// taskPolicy is one row of the retry table.
type taskPolicy struct {
	timeout     time.Duration // start-to-close
	response    time.Duration // schedule-to-start
	attempts    int32
	maxInterval time.Duration
}

var taskPolicies = map[string]taskPolicy{
	TaskGetRecording:    {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskGetParticipants: {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskPadTrack:        {timeout: 300 * time.Second, response: 120 * time.Second, attempts: 3},
	TaskMixdown:         {timeout: 600 * time.Second, response: 300 * time.Second, attempts: 3},
	TaskWaveform:        {timeout: 120 * time.Second, response: 60 * time.Second, attempts: 3},
	TaskTranscribeTrack: {timeout: 1800 * time.Second, response: 900 * time.Second, attempts: 3},
	TaskMergeWords:      {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskDetectTopics:    {timeout: 300 * time.Second, response: 120 * time.Second, attempts: 3},
	TaskTopicSummary:    {timeout: 300 * time.Second, response: 120 * time.Second, attempts: 3},
	TaskStoreTopics:     {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskTitle:           {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskShortSummary:    {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskLongSummary:     {timeout: 300 * time.Second, response: 120 * time.Second, attempts: 3},
	TaskFinalize:        {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 5},
	TaskConsentCleanup:  {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 5},
	TaskChatPost:        {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
	TaskWebhook:         {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 30, maxInterval: time.Hour},
	TaskPublishStatus:   {timeout: 10 * time.Second, response: 10 * time.Second, attempts: 1},
	TaskSetErrorStatus:  {timeout: 60 * time.Second, response: 30 * time.Second, attempts: 3},
}

// withTaskOptions applies the task's row of the retry table to the
// workflow context.
func withTaskOptions(ctx workflow.Context, task string) workflow.Context {
	p := taskPolicies[task]
	opts := workflow.ActivityOptions{
		StartToCloseTimeout:    p.timeout,
		ScheduleToStartTimeout: p.response,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        p.maxInterval,
			MaximumAttempts:        p.attempts,
			NonRetryableErrorTypes: []string{errTypePermanent},
		},
	}
	return workflow.WithActivityOptions(ctx, opts)
}

// permanent wraps err as a non-retryable application error.
func permanent(msg string, err error) error {
	return temporal.NewNonRetryableApplicationError(msg, errTypePermanent, err)
}
