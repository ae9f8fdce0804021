package pipeline

import (
	"go.temporal.io/sdk/workflow"

	"github.com/recapd/recapd/internal/model"
)

// QueryDagStatus is the query name returning the current DagStatus
// snapshot of a running workflow.
const QueryDagStatus = "dag_status"

type (
	// ProcessInput starts a transcript processing run.
	ProcessInput struct {
		TranscriptID string `json:"transcript_id"`
	}

	// ProcessResult summarizes a finished run.
	ProcessResult struct {
		TranscriptID string `json:"transcript_id"`
		Topics       int    `json:"topics"`
		Words        int    `json:"words"`
	}
)

// ProcessRecording drives one recording from raw tracks to a finished
// transcript: alignment and mixdown, waveform, parallel transcription,
// merge, topic segmentation with a per-topic summary fan-out, final texts,
// and the post-completion side effects. Every task transition publishes a
// full DAG_STATUS snapshot; queries answer with the same snapshot.
func ProcessRecording(ctx workflow.Context, in ProcessInput) (ProcessResult, error) {
	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	tr := newTracker(runID)
	if err := workflow.SetQueryHandler(ctx, QueryDagStatus, func() (model.DagStatus, error) {
		return tr.snapshot(workflow.Now(ctx)), nil
	}); err != nil {
		return ProcessResult{}, err
	}
	w := &run{tracker: tr, transcriptID: in.TranscriptID, runID: runID}

	res, err := w.process(ctx)
	if err != nil {
		// The error path runs on a disconnected context so status still
		// lands when the workflow context is cancelled.
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		w.exec(dctx, TaskSetErrorStatus, SetErrorStatusInput{
			TranscriptID: in.TranscriptID,
			RunID:        runID,
			Reason:       err.Error(),
		}, nil)
		return ProcessResult{}, err
	}
	return res, nil
}

// run carries the per-execution state shared by the workflow helpers.
type run struct {
	tracker      *tracker
	transcriptID string
	runID        string
}

func (w *run) process(ctx workflow.Context) (ProcessResult, error) {
	var rec RecordingInfo
	if err := w.exec(ctx, TaskGetRecording, RecordingInput{TranscriptID: w.transcriptID}, &rec); err != nil {
		return ProcessResult{}, err
	}

	// A recording without per-participant tracks is a single mixed object.
	sources := rec.TrackKeys
	single := len(sources) == 0
	if single {
		sources = []string{rec.ObjectKey}
	}
	w.tracker.plan(len(sources), single)
	w.publish(ctx)

	participantsFut := w.start(ctx, TaskGetParticipants, ParticipantsInput{
		TranscriptID: w.transcriptID,
		MeetingID:    rec.MeetingID,
		Tracks:       len(sources),
	})

	// Padding and transcription fan out per track in parallel; both read
	// the raw objects, so neither waits for the other.
	padFuts := make([]workflow.Future, len(sources))
	asrFuts := make([]workflow.Future, len(sources))
	for i, key := range sources {
		padFuts[i] = w.startChild(ctx, TaskPadTrack, PadTrackInput{
			TranscriptID: w.transcriptID,
			Track:        i,
			SourceBucket: rec.BucketName,
			SourceKey:    key,
		})
		asrFuts[i] = w.startChild(ctx, TaskTranscribeTrack, TranscribeTrackInput{
			TranscriptID: w.transcriptID,
			RunID:        w.runID,
			Track:        i,
			Bucket:       rec.BucketName,
			Key:          key,
			Language:     rec.Language,
		})
	}

	pads := make([]PadTrackOutput, len(sources))
	for i, fut := range padFuts {
		if err := w.awaitChild(ctx, TaskPadTrack, fut, &pads[i]); err != nil {
			return ProcessResult{}, err
		}
	}

	mix := MixdownInput{TranscriptID: w.transcriptID, RunID: w.runID}
	offsets := make([]float64, len(pads))
	for i, p := range pads {
		// A padded artifact already carries its leading silence; only an
		// unpadded source still needs the delay applied at mix time. The
		// word shift in merge_words always uses the probed offset because
		// transcription reads the raw track either way.
		delay := p.OffsetSeconds
		if p.Padded {
			delay = 0
		}
		mix.Sources = append(mix.Sources, MixSource{
			Bucket:       p.Bucket,
			Key:          p.Key,
			DelaySeconds: delay,
		})
		offsets[i] = p.OffsetSeconds
	}
	var mixed MixdownOutput
	if err := w.exec(ctx, TaskMixdown, mix, &mixed); err != nil {
		return ProcessResult{}, err
	}

	waveformFut := w.start(ctx, TaskWaveform, WaveformInput{
		TranscriptID: w.transcriptID,
		RunID:        w.runID,
	})

	for _, fut := range asrFuts {
		var out TranscribeTrackOutput
		if err := w.awaitChild(ctx, TaskTranscribeTrack, fut, &out); err != nil {
			return ProcessResult{}, err
		}
	}

	var merged MergeWordsOutput
	err := w.exec(ctx, TaskMergeWords, MergeWordsInput{
		TranscriptID: w.transcriptID,
		RunID:        w.runID,
		Tracks:       len(sources),
		Offsets:      offsets,
		SingleTrack:  single,
	}, &merged)
	if err != nil {
		return ProcessResult{}, err
	}

	var detected DetectTopicsOutput
	err = w.exec(ctx, TaskDetectTopics, DetectTopicsInput{
		TranscriptID: w.transcriptID,
		RunID:        w.runID,
	}, &detected)
	if err != nil {
		return ProcessResult{}, err
	}

	w.tracker.fanOut(TaskTopicSummary, detected.TopicCount)
	if detected.TopicCount == 0 {
		// Nothing to summarize; the node completes vacuously.
		w.tracker.completed(TaskTopicSummary, workflow.Now(ctx))
	}
	w.publish(ctx)
	cardFuts := make([]workflow.Future, detected.TopicCount)
	for i := range cardFuts {
		cardFuts[i] = w.startChild(ctx, TaskTopicSummary, TopicSummaryInput{
			TranscriptID: w.transcriptID,
			Index:        i,
		})
	}
	cards := make([]TopicSummaryOutput, len(cardFuts))
	for i, fut := range cardFuts {
		if err := w.awaitChild(ctx, TaskTopicSummary, fut, &cards[i]); err != nil {
			return ProcessResult{}, err
		}
	}
	err = w.exec(ctx, TaskStoreTopics, StoreTopicsInput{
		TranscriptID: w.transcriptID,
		RunID:        w.runID,
		Cards:        cards,
	}, nil)
	if err != nil {
		return ProcessResult{}, err
	}

	// Final texts run in parallel. A failed generator leaves its field
	// empty; the transcript still ends.
	text := TextInput{TranscriptID: w.transcriptID, RunID: w.runID}
	titleFut := w.start(ctx, TaskTitle, text)
	longFut := w.start(ctx, TaskLongSummary, text)
	shortFut := w.start(ctx, TaskShortSummary, text)
	w.awaitOptional(ctx, TaskTitle, titleFut)
	w.awaitOptional(ctx, TaskLongSummary, longFut)
	w.awaitOptional(ctx, TaskShortSummary, shortFut)

	if err := w.waitFor(ctx, TaskWaveform, waveformFut, nil); err != nil {
		return ProcessResult{}, err
	}
	if err := w.waitFor(ctx, TaskGetParticipants, participantsFut, nil); err != nil {
		return ProcessResult{}, err
	}

	// Audio deletion is the consent promise; it must hold before the
	// transcript is announced anywhere.
	err = w.exec(ctx, TaskConsentCleanup, ConsentCleanupInput{
		TranscriptID: w.transcriptID,
		MeetingID:    rec.MeetingID,
	}, nil)
	if err != nil {
		return ProcessResult{}, err
	}
	err = w.exec(ctx, TaskFinalize, FinalizeInput{
		TranscriptID: w.transcriptID,
		RunID:        w.runID,
	}, nil)
	if err != nil {
		return ProcessResult{}, err
	}

	chatFut := w.start(ctx, TaskChatPost, ChatPostInput{TranscriptID: w.transcriptID})
	hookFut := w.start(ctx, TaskWebhook, WebhookDispatchInput{TranscriptID: w.transcriptID})
	w.awaitOptional(ctx, TaskChatPost, chatFut)
	w.awaitOptional(ctx, TaskWebhook, hookFut)

	return ProcessResult{
		TranscriptID: w.transcriptID,
		Topics:       detected.TopicCount,
		Words:        merged.WordCount,
	}, nil
}

// exec runs one task to completion, tracking its transitions.
func (w *run) exec(ctx workflow.Context, task string, in, out any) error {
	return w.waitFor(ctx, task, w.start(ctx, task, in), out)
}

// start schedules a task and marks it running.
func (w *run) start(ctx workflow.Context, task string, in any) workflow.Future {
	w.tracker.started(task, workflow.Now(ctx))
	w.publish(ctx)
	return workflow.ExecuteActivity(withTaskOptions(ctx, task), task, in)
}

// startChild schedules one element of a fan-out without re-marking the
// aggregate node.
func (w *run) startChild(ctx workflow.Context, task string, in any) workflow.Future {
	w.tracker.started(task, workflow.Now(ctx))
	return workflow.ExecuteActivity(withTaskOptions(ctx, task), task, in)
}

// waitFor resolves a task future and records the outcome.
func (w *run) waitFor(ctx workflow.Context, task string, fut workflow.Future, out any) error {
	err := fut.Get(ctx, out)
	if err != nil {
		w.tracker.failed(task, workflow.Now(ctx), err)
	} else {
		w.tracker.completed(task, workflow.Now(ctx))
	}
	w.publish(ctx)
	return err
}

// awaitChild resolves one fan-out element, bumping the aggregate's child
// counter on success.
func (w *run) awaitChild(ctx workflow.Context, task string, fut workflow.Future, out any) error {
	err := fut.Get(ctx, out)
	if err != nil {
		w.tracker.failed(task, workflow.Now(ctx), err)
	} else {
		w.tracker.childCompleted(task, workflow.Now(ctx))
	}
	w.publish(ctx)
	return err
}

// awaitOptional resolves a task whose failure does not fail the run.
func (w *run) awaitOptional(ctx workflow.Context, task string, fut workflow.Future) {
	if err := w.waitFor(ctx, task, fut, nil); err != nil {
		workflow.GetLogger(ctx).Warn("optional task failed", "task", task, "error", err)
	}
}

// publish pushes the current snapshot through the publish_status activity.
// Failures are ignored; the next transition carries a fresh snapshot.
func (w *run) publish(ctx workflow.Context) {
	snap := w.tracker.snapshot(workflow.Now(ctx))
	pctx := withTaskOptions(ctx, TaskPublishStatus)
	if err := workflow.ExecuteActivity(pctx, TaskPublishStatus, PublishStatusInput{
		TranscriptID: w.transcriptID,
		Status:       snap,
	}).Get(pctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("status publish failed", "error", err)
	}
}
