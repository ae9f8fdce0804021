package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/recapd/recapd/internal/asr"
	"github.com/recapd/recapd/internal/audio"
	"github.com/recapd/recapd/internal/broadcast"
	"github.com/recapd/recapd/internal/model"
	"github.com/recapd/recapd/internal/notify"
	"github.com/recapd/recapd/internal/storage"
	"github.com/recapd/recapd/internal/store"
	"github.com/recapd/recapd/internal/summary"
	"github.com/recapd/recapd/internal/topics"
	"github.com/recapd/recapd/internal/words"
)

type (
	// ActivityConfig carries the deployment settings activities need
	// beyond their injected clients.
	ActivityConfig struct {
		RecordingBucket string
		PresignTTL      time.Duration
		FrontendBaseURL string
	}

	// Activities bundles every pipeline task implementation with its
	// dependencies. All inputs and outputs are small; bulk data moves
	// through object storage and the transcript's event log.
	Activities struct {
		store       *store.Store
		objects     storage.Store
		audio       audio.Backend
		asr         *asr.Client
		segmenter   *topics.Segmenter
		summarizer  *summary.Generator
		broadcaster *broadcast.Broadcaster
		zulip       *notify.Zulip
		webhook     *notify.WebhookSender
		cfg         ActivityConfig
	}
)

// NewActivities wires the task implementations. zulip may be nil when the
// chat integration is not configured; chat_post then skips silently.
func NewActivities(
	st *store.Store,
	objects storage.Store,
	backend audio.Backend,
	asrClient *asr.Client,
	segmenter *topics.Segmenter,
	summarizer *summary.Generator,
	broadcaster *broadcast.Broadcaster,
	zulip *notify.Zulip,
	webhook *notify.WebhookSender,
	cfg ActivityConfig,
) *Activities {
	return &Activities{
		store:       st,
		objects:     objects,
		audio:       backend,
		asr:         asrClient,
		segmenter:   segmenter,
		summarizer:  summarizer,
		broadcaster: broadcaster,
		zulip:       zulip,
		webhook:     webhook,
		cfg:         cfg,
	}
}

// emit appends an event to the transcript's log and publishes it to live
// subscribers. Both halves are best effort relative to the calling task.
func (a *Activities) emit(ctx context.Context, transcriptID, runID string, kind model.EventKind, payload any) {
	if err := a.store.AppendEvent(ctx, transcriptID, model.NewEvent(kind, runID, payload)); err != nil {
		activity.GetLogger(ctx).Warn("append event failed", "event", string(kind), "error", err)
	}
	a.broadcaster.TryPublish(ctx, transcriptID, kind, payload)
}

type (
	// RecordingInput identifies the transcript whose recording to load.
	RecordingInput struct {
		TranscriptID string `json:"transcript_id"`
	}

	// RecordingInfo is the thin recording description the workflow plans
	// its fan-out from.
	RecordingInfo struct {
		RecordingID string   `json:"recording_id"`
		BucketName  string   `json:"bucket_name"`
		ObjectKey   string   `json:"object_key"`
		TrackKeys   []string `json:"track_keys"`
		MeetingID   *string  `json:"meeting_id,omitempty"`
		Language    string   `json:"language,omitempty"`
	}
)

// GetRecording resolves the transcript's recording, moves the transcript
// to processing, and records the owning workflow run.
func (a *Activities) GetRecording(ctx context.Context, in RecordingInput) (RecordingInfo, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return RecordingInfo{}, classifyStoreErr("load transcript", err)
	}
	if t.RecordingID == nil {
		return RecordingInfo{}, permanent("transcript has no recording", nil)
	}
	rec, err := a.store.Recording(ctx, *t.RecordingID)
	if err != nil {
		return RecordingInfo{}, classifyStoreErr("load recording", err)
	}
	if rec.ObjectKey == "" && len(rec.TrackKeys) == 0 {
		return RecordingInfo{}, permanent("recording has no audio objects", nil)
	}

	runID := activity.GetInfo(ctx).WorkflowExecution.RunID
	if err := a.store.SetWorkflowRunID(ctx, in.TranscriptID, runID); err != nil {
		return RecordingInfo{}, err
	}
	if err := a.store.SetStatus(ctx, in.TranscriptID, model.StatusProcessing); err != nil {
		return RecordingInfo{}, err
	}
	a.emit(ctx, in.TranscriptID, runID, model.EventStatus, map[string]string{"status": string(model.StatusProcessing)})

	return RecordingInfo{
		RecordingID: rec.ID,
		BucketName:  a.sourceBucket(rec),
		ObjectKey:   rec.ObjectKey,
		TrackKeys:   rec.TrackKeys,
		MeetingID:   rec.MeetingID,
		Language:    t.SourceLanguage,
	}, nil
}

// sourceBucket resolves where a recording's raw objects live. Rows ingested
// without a bucket, such as manually registered recordings, fall back to the
// configured platform drop bucket.
func (a *Activities) sourceBucket(rec model.Recording) string {
	if rec.BucketName != "" {
		return rec.BucketName
	}
	return a.cfg.RecordingBucket
}

type (
	// ParticipantsInput hydrates the participant list for a transcript.
	ParticipantsInput struct {
		TranscriptID string  `json:"transcript_id"`
		MeetingID    *string `json:"meeting_id,omitempty"`
		Tracks       int     `json:"tracks"`
	}

	// ParticipantsOutput reports how many participants were stored.
	ParticipantsOutput struct {
		Count int `json:"count"`
	}
)

// GetParticipants builds the participant list: one entry per track, named
// from the meeting's consent records when available and falling back to
// positional speaker names.
func (a *Activities) GetParticipants(ctx context.Context, in ParticipantsInput) (ParticipantsOutput, error) {
	var names []string
	if in.MeetingID != nil {
		consents, err := a.store.Consents(ctx, *in.MeetingID)
		if err != nil {
			return ParticipantsOutput{}, err
		}
		for _, c := range consents {
			names = append(names, c.UserID)
		}
	}

	participants := make([]model.Participant, in.Tracks)
	for i := range participants {
		speaker := i
		name := fmt.Sprintf("Speaker %d", i+1)
		if i < len(names) {
			name = names[i]
		}
		participants[i] = model.Participant{
			ID:      model.NewTopicID(),
			Speaker: &speaker,
			Name:    name,
		}
	}
	if err := a.store.SetParticipants(ctx, in.TranscriptID, participants); err != nil {
		return ParticipantsOutput{}, err
	}
	return ParticipantsOutput{Count: len(participants)}, nil
}

type (
	// PadTrackInput aligns one raw track onto the meeting timeline.
	PadTrackInput struct {
		TranscriptID string `json:"transcript_id"`
		Track        int    `json:"track"`
		SourceBucket string `json:"source_bucket"`
		SourceKey    string `json:"source_key"`
	}

	// PadTrackOutput names the object the downstream mix should read:
	// the padded artifact, or the untouched source when no padding was
	// needed. OffsetSeconds always carries the probed join offset;
	// transcription runs on the raw track, so its word times need the
	// shift regardless of whether a padded object was produced.
	PadTrackOutput struct {
		Track         int     `json:"track"`
		Bucket        string  `json:"bucket"`
		Key           string  `json:"key"`
		OffsetSeconds float64 `json:"offset_seconds"`
		Padded        bool    `json:"padded"`
	}
)

// PadTrack probes the track's start offset and prepends that much silence,
// uploading the result as a produced artifact. Non-positive offsets leave
// the source untouched.
func (a *Activities) PadTrack(ctx context.Context, in PadTrackInput) (PadTrackOutput, error) {
	sourceURL, err := a.objects.PresignGet(ctx, in.SourceKey, a.cfg.PresignTTL, storage.WithBucket(in.SourceBucket))
	if err != nil {
		return PadTrackOutput{}, err
	}
	paddedKey := storage.PaddedTrackKey(in.TranscriptID, in.Track)
	uploadURL, err := a.objects.PresignPut(ctx, paddedKey, a.cfg.PresignTTL)
	if err != nil {
		return PadTrackOutput{}, err
	}

	res, err := a.audio.PadTrack(ctx, audio.PadRequest{SourceURL: sourceURL, UploadURL: uploadURL})
	if err != nil {
		return PadTrackOutput{}, classifyAudioErr(err)
	}
	out := PadTrackOutput{
		Track:         in.Track,
		Bucket:        in.SourceBucket,
		Key:           in.SourceKey,
		OffsetSeconds: res.OffsetSeconds,
		Padded:        res.Padded,
	}
	if res.Padded {
		out.Bucket = ""
		out.Key = paddedKey
	}
	return out, nil
}

type (
	// MixSource is one input of the mixdown.
	MixSource struct {
		Bucket       string  `json:"bucket,omitempty"`
		Key          string  `json:"key"`
		DelaySeconds float64 `json:"delay_seconds,omitempty"`
	}

	// MixdownInput mixes the aligned tracks into <tid>/audio.mp3.
	MixdownInput struct {
		TranscriptID string      `json:"transcript_id"`
		RunID        string      `json:"run_id"`
		Sources      []MixSource `json:"sources"`
	}

	// MixdownOutput reports the realized meeting duration.
	MixdownOutput struct {
		DurationSeconds float64 `json:"duration_seconds"`
	}
)

// Mixdown renders the mixed MP3, stores its duration, and emits a
// DURATION event. Zero inputs fail permanently.
func (a *Activities) Mixdown(ctx context.Context, in MixdownInput) (MixdownOutput, error) {
	if len(in.Sources) == 0 {
		return MixdownOutput{}, permanent("mixdown with zero inputs", audio.ErrEmptyMix)
	}
	req := audio.MixdownRequest{
		SourceURLs: make([]string, len(in.Sources)),
		Delays:     make([]float64, len(in.Sources)),
	}
	for i, src := range in.Sources {
		var opts []storage.Option
		if src.Bucket != "" {
			opts = append(opts, storage.WithBucket(src.Bucket))
		}
		url, err := a.objects.PresignGet(ctx, src.Key, a.cfg.PresignTTL, opts...)
		if err != nil {
			return MixdownOutput{}, err
		}
		req.SourceURLs[i] = url
		req.Delays[i] = src.DelaySeconds
	}
	uploadURL, err := a.objects.PresignPut(ctx, storage.AudioKey(in.TranscriptID), a.cfg.PresignTTL)
	if err != nil {
		return MixdownOutput{}, err
	}
	req.UploadURL = uploadURL

	res, err := a.audio.Mixdown(ctx, req)
	if err != nil {
		return MixdownOutput{}, classifyAudioErr(err)
	}
	seconds := float64(res.DurationMS) / 1000
	if seconds < 0 {
		return MixdownOutput{}, permanent("negative mix duration", nil)
	}
	if err := a.store.SetDuration(ctx, in.TranscriptID, seconds); err != nil {
		return MixdownOutput{}, err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventDuration, map[string]float64{"duration": seconds})
	return MixdownOutput{DurationSeconds: seconds}, nil
}

type (
	// WaveformInput renders the scrubber peaks for the mixed audio.
	WaveformInput struct {
		TranscriptID string `json:"transcript_id"`
		RunID        string `json:"run_id"`
	}

	// WaveformOutput reports how many peak buckets were produced.
	WaveformOutput struct {
		Buckets int `json:"buckets"`
	}
)

// Waveform extracts the fixed-length peak list from the mix, stores it on
// the transcript, uploads <tid>/waveform.json, and emits a WAVEFORM event.
func (a *Activities) Waveform(ctx context.Context, in WaveformInput) (WaveformOutput, error) {
	sourceURL, err := a.objects.PresignGet(ctx, storage.AudioKey(in.TranscriptID), a.cfg.PresignTTL)
	if err != nil {
		return WaveformOutput{}, err
	}
	res, err := a.audio.Waveform(ctx, audio.WaveformRequest{
		SourceURL: sourceURL,
		Buckets:   audio.WaveformBuckets,
	})
	if err != nil {
		return WaveformOutput{}, classifyAudioErr(err)
	}
	if err := a.store.SetWaveform(ctx, in.TranscriptID, res.Peaks); err != nil {
		return WaveformOutput{}, err
	}
	data, err := json.Marshal(res.Peaks)
	if err != nil {
		return WaveformOutput{}, fmt.Errorf("marshal waveform: %w", err)
	}
	if err := a.objects.Put(ctx, storage.WaveformKey(in.TranscriptID), bytes.NewReader(data)); err != nil {
		return WaveformOutput{}, err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventWaveform, res.Peaks)
	return WaveformOutput{Buckets: len(res.Peaks)}, nil
}

type (
	// TranscribeTrackInput sends one track to the ASR service.
	TranscribeTrackInput struct {
		TranscriptID string `json:"transcript_id"`
		RunID        string `json:"run_id"`
		Track        int    `json:"track"`
		Bucket       string `json:"bucket"`
		Key          string `json:"key"`
		Language     string `json:"language"`
	}

	// TranscribeTrackOutput reports the recognized word count; the words
	// themselves land in the event log.
	TranscribeTrackOutput struct {
		Track     int `json:"track"`
		WordCount int `json:"word_count"`
	}

	// trackWords is the TRACK_WORDS event payload.
	trackWords struct {
		Track int          `json:"track"`
		Words []model.Word `json:"words"`
	}

	// mergedWords is the MERGED_WORDS event payload.
	mergedWords struct {
		Words []model.Word `json:"words"`
	}
)

// TranscribeTrack runs ASR on one raw track and records the words as a
// TRACK_WORDS partial output keyed by the workflow run.
func (a *Activities) TranscribeTrack(ctx context.Context, in TranscribeTrackInput) (TranscribeTrackOutput, error) {
	audioURL, err := a.objects.PresignGet(ctx, in.Key, a.cfg.PresignTTL, storage.WithBucket(in.Bucket))
	if err != nil {
		return TranscribeTrackOutput{}, err
	}
	ws, err := a.asr.Transcribe(ctx, audioURL, in.Language)
	if err != nil {
		var perm *asr.PermanentError
		if errors.As(err, &perm) {
			return TranscribeTrackOutput{}, permanent("transcription rejected", err)
		}
		return TranscribeTrackOutput{}, err
	}
	event := model.NewEvent(model.EventTrackWords, in.RunID, trackWords{Track: in.Track, Words: ws})
	if err := a.store.AppendEvent(ctx, in.TranscriptID, event); err != nil {
		return TranscribeTrackOutput{}, err
	}
	return TranscribeTrackOutput{Track: in.Track, WordCount: len(ws)}, nil
}

type (
	// MergeWordsInput fans the per-track word lists back in. Offsets
	// holds the probed join offset per track; word times come from the
	// raw tracks and must be shifted by it. SingleTrack switches on
	// diarization.
	MergeWordsInput struct {
		TranscriptID string    `json:"transcript_id"`
		RunID        string    `json:"run_id"`
		Tracks       int       `json:"tracks"`
		Offsets      []float64 `json:"offsets"`
		SingleTrack  bool      `json:"single_track"`
	}

	// MergeWordsOutput reports the merged stream length.
	MergeWordsOutput struct {
		WordCount int `json:"word_count"`
	}
)

// MergeWords reloads the TRACK_WORDS outputs of this run, shifts each
// track onto the meeting timeline by its join offset, tags speakers (by
// track index, or by diarization on the single-track path), merges into
// one ordered stream, and records it as MERGED_WORDS.
func (a *Activities) MergeWords(ctx context.Context, in MergeWordsInput) (MergeWordsOutput, error) {
	events, err := a.store.EventsByRun(ctx, in.TranscriptID, in.RunID)
	if err != nil {
		return MergeWordsOutput{}, err
	}
	tracks := make([][]model.Word, in.Tracks)
	for _, e := range events {
		if e.Kind != model.EventTrackWords {
			continue
		}
		var tw trackWords
		if err := json.Unmarshal(e.Data, &tw); err != nil {
			return MergeWordsOutput{}, permanent("malformed track words", err)
		}
		if tw.Track < 0 || tw.Track >= in.Tracks {
			return MergeWordsOutput{}, permanent("track index out of range", nil)
		}
		// Retries can duplicate an event; the latest append wins.
		tracks[tw.Track] = tw.Words
	}
	for i, ws := range tracks {
		if ws == nil {
			return MergeWordsOutput{}, permanent(fmt.Sprintf("missing words for track %d", i), nil)
		}
	}

	merged := words.MergeTracks(alignTracks(tracks, in.Offsets, in.SingleTrack))
	if in.SingleTrack {
		audioURL, err := a.objects.PresignGet(ctx, storage.AudioKey(in.TranscriptID), a.cfg.PresignTTL)
		if err != nil {
			return MergeWordsOutput{}, err
		}
		segments, err := a.asr.Diarize(ctx, audioURL)
		if err != nil {
			var perm *asr.PermanentError
			if errors.As(err, &perm) {
				return MergeWordsOutput{}, permanent("diarization rejected", err)
			}
			return MergeWordsOutput{}, err
		}
		merged = words.AssignSpeakers(merged, segments)
	}
	if err := checkOrdered(merged); err != nil {
		return MergeWordsOutput{}, permanent("merged words out of order", err)
	}

	event := model.NewEvent(model.EventMergedWords, in.RunID, mergedWords{Words: merged})
	if err := a.store.AppendEvent(ctx, in.TranscriptID, event); err != nil {
		return MergeWordsOutput{}, err
	}
	return MergeWordsOutput{WordCount: len(merged)}, nil
}

type (
	// DetectTopicsInput chunks the merged stream into topic shells.
	DetectTopicsInput struct {
		TranscriptID string `json:"transcript_id"`
		RunID        string `json:"run_id"`
	}

	// DetectTopicsOutput sizes the topic_summary fan-out.
	DetectTopicsOutput struct {
		TopicCount int `json:"topic_count"`
	}
)

// DetectTopics loads this run's merged words and stores the untitled
// topic shells the summary fan-out will fill in.
func (a *Activities) DetectTopics(ctx context.Context, in DetectTopicsInput) (DetectTopicsOutput, error) {
	merged, err := a.loadMergedWords(ctx, in.TranscriptID, in.RunID)
	if err != nil {
		return DetectTopicsOutput{}, err
	}
	shells := topics.Shells(merged)
	if err := a.store.UpdateTopics(ctx, in.TranscriptID, shells); err != nil {
		return DetectTopicsOutput{}, err
	}
	return DetectTopicsOutput{TopicCount: len(shells)}, nil
}

func (a *Activities) loadMergedWords(ctx context.Context, transcriptID, runID string) ([]model.Word, error) {
	events, err := a.store.EventsByRun(ctx, transcriptID, runID)
	if err != nil {
		return nil, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind != model.EventMergedWords {
			continue
		}
		var mw mergedWords
		if err := json.Unmarshal(events[i].Data, &mw); err != nil {
			return nil, permanent("malformed merged words", err)
		}
		return mw.Words, nil
	}
	return nil, permanent("no merged words recorded for run", nil)
}

type (
	// TopicSummaryInput summarizes one topic shell by index.
	TopicSummaryInput struct {
		TranscriptID string `json:"transcript_id"`
		Index        int    `json:"index"`
	}

	// TopicSummaryOutput is one fan-out result, applied by store_topics.
	TopicSummaryOutput struct {
		Index    int    `json:"index"`
		Title    string `json:"title"`
		Summary  string `json:"summary"`
		Degraded bool   `json:"degraded"`
	}
)

// TopicSummary titles and summarizes one shell. Exhausted LLM retries
// degrade to a placeholder rather than failing the run.
func (a *Activities) TopicSummary(ctx context.Context, in TopicSummaryInput) (TopicSummaryOutput, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return TopicSummaryOutput{}, classifyStoreErr("load transcript", err)
	}
	if in.Index < 0 || in.Index >= len(t.Topics) {
		return TopicSummaryOutput{}, permanent("topic index out of range", nil)
	}
	card, degraded, err := a.segmenter.Summarize(ctx, t.Topics[in.Index], language(t))
	if err != nil {
		return TopicSummaryOutput{}, err
	}
	return TopicSummaryOutput{
		Index:    in.Index,
		Title:    card.Title,
		Summary:  card.Summary,
		Degraded: degraded,
	}, nil
}

type (
	// StoreTopicsInput applies the fan-out results in one write.
	StoreTopicsInput struct {
		TranscriptID string               `json:"transcript_id"`
		RunID        string               `json:"run_id"`
		Cards        []TopicSummaryOutput `json:"cards"`
	}

	// StoreTopicsOutput reports the stored topic count.
	StoreTopicsOutput struct {
		TopicCount int `json:"topic_count"`
	}
)

// StoreTopics merges titles and summaries into the stored shells, rewrites
// the topic list (regenerating captions), and emits one TOPIC event per
// topic.
func (a *Activities) StoreTopics(ctx context.Context, in StoreTopicsInput) (StoreTopicsOutput, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return StoreTopicsOutput{}, classifyStoreErr("load transcript", err)
	}
	for _, card := range in.Cards {
		if card.Index < 0 || card.Index >= len(t.Topics) {
			return StoreTopicsOutput{}, permanent("topic index out of range", nil)
		}
		t.Topics[card.Index].Title = card.Title
		t.Topics[card.Index].Summary = card.Summary
	}
	if err := a.store.UpdateTopics(ctx, in.TranscriptID, t.Topics); err != nil {
		return StoreTopicsOutput{}, err
	}
	for _, topic := range t.Topics {
		a.emit(ctx, in.TranscriptID, in.RunID, model.EventTopic, topic)
	}
	return StoreTopicsOutput{TopicCount: len(t.Topics)}, nil
}

type (
	// TextInput drives the title and summary generators.
	TextInput struct {
		TranscriptID string `json:"transcript_id"`
		RunID        string `json:"run_id"`
	}

	// TextOutput carries the generated text.
	TextOutput struct {
		Value string `json:"value"`
	}
)

// Title combines the topic titles into the meeting title.
func (a *Activities) Title(ctx context.Context, in TextInput) (TextOutput, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return TextOutput{}, classifyStoreErr("load transcript", err)
	}
	title, err := a.summarizer.Title(ctx, t.Topics, language(t))
	if err != nil {
		return TextOutput{}, err
	}
	if err := a.store.SetTitle(ctx, in.TranscriptID, title); err != nil {
		return TextOutput{}, err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventFinalTitle, map[string]string{"title": title})
	return TextOutput{Value: title}, nil
}

// LongSummary produces and stores the multi-paragraph summary.
func (a *Activities) LongSummary(ctx context.Context, in TextInput) (TextOutput, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return TextOutput{}, classifyStoreErr("load transcript", err)
	}
	text, err := a.summarizer.Long(ctx, t.Topics, language(t))
	if err != nil {
		return TextOutput{}, err
	}
	if err := a.store.SetLongSummary(ctx, in.TranscriptID, text); err != nil {
		return TextOutput{}, err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventFinalLongSummary, map[string]string{"summary": text})
	return TextOutput{Value: text}, nil
}

// ShortSummary produces and stores the single-paragraph recap.
func (a *Activities) ShortSummary(ctx context.Context, in TextInput) (TextOutput, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return TextOutput{}, classifyStoreErr("load transcript", err)
	}
	text, err := a.summarizer.Short(ctx, t.Topics, language(t))
	if err != nil {
		return TextOutput{}, err
	}
	if err := a.store.SetShortSummary(ctx, in.TranscriptID, text); err != nil {
		return TextOutput{}, err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventFinalShortSum, map[string]string{"summary": text})
	return TextOutput{Value: text}, nil
}

type (
	// FinalizeInput closes out the run.
	FinalizeInput struct {
		TranscriptID string `json:"transcript_id"`
		RunID        string `json:"run_id"`
	}
)

// Finalize moves the transcript to ended and announces the finished
// record. Missing summaries stay empty; ended-with-empty-fields is the
// visible degraded state, not error.
func (a *Activities) Finalize(ctx context.Context, in FinalizeInput) error {
	if err := a.store.SetStatus(ctx, in.TranscriptID, model.StatusEnded); err != nil {
		return err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventStatus, map[string]string{"status": string(model.StatusEnded)})

	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return classifyStoreErr("load transcript", err)
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventTranscript, map[string]any{
		"id":       t.ID,
		"status":   t.Status,
		"title":    t.Title,
		"duration": t.Duration,
		"topics":   len(t.Topics),
	})
	return nil
}

type (
	// ConsentCleanupInput checks the meeting's consent decisions.
	ConsentCleanupInput struct {
		TranscriptID string  `json:"transcript_id"`
		MeetingID    *string `json:"meeting_id,omitempty"`
	}

	// ConsentCleanupOutput reports whether the audio was removed.
	ConsentCleanupOutput struct {
		AudioDeleted bool `json:"audio_deleted"`
	}
)

// ConsentCleanup deletes the mixed audio when any attendee denied
// recording consent. The deletion is one way; nothing re-creates the
// object.
func (a *Activities) ConsentCleanup(ctx context.Context, in ConsentCleanupInput) (ConsentCleanupOutput, error) {
	if in.MeetingID == nil {
		return ConsentCleanupOutput{}, nil
	}
	consents, err := a.store.Consents(ctx, *in.MeetingID)
	if err != nil {
		return ConsentCleanupOutput{}, err
	}
	if !notify.AnyDenied(consents) {
		return ConsentCleanupOutput{}, nil
	}
	if err := notify.CleanupAudio(ctx, a.objects, in.TranscriptID); err != nil {
		return ConsentCleanupOutput{}, err
	}
	if err := a.store.SetAudioDeleted(ctx, in.TranscriptID); err != nil {
		return ConsentCleanupOutput{}, err
	}
	return ConsentCleanupOutput{AudioDeleted: true}, nil
}

type (
	// ChatPostInput posts or edits the recap chat message.
	ChatPostInput struct {
		TranscriptID string `json:"transcript_id"`
	}

	// ChatPostOutput reports the message id when a post happened.
	ChatPostOutput struct {
		Posted    bool  `json:"posted"`
		MessageID int64 `json:"message_id,omitempty"`
	}
)

// ChatPost renders the recap into the room's chat stream. Missing
// integration config skips silently; a transcript that already posted a
// message edits it in place.
func (a *Activities) ChatPost(ctx context.Context, in ChatPostInput) (ChatPostOutput, error) {
	if a.zulip == nil {
		return ChatPostOutput{}, nil
	}
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return ChatPostOutput{}, classifyStoreErr("load transcript", err)
	}
	if t.RoomID == nil {
		return ChatPostOutput{}, nil
	}
	room, err := a.store.Room(ctx, *t.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ChatPostOutput{}, nil
		}
		return ChatPostOutput{}, err
	}
	if !room.ZulipAutoPost || room.ZulipStream == "" {
		return ChatPostOutput{}, nil
	}

	content := notify.RecapMessage(t, a.cfg.FrontendBaseURL)
	if t.ZulipMessageID != nil {
		if err := a.zulip.UpdateMessage(ctx, *t.ZulipMessageID, content); err != nil {
			return ChatPostOutput{}, err
		}
		return ChatPostOutput{Posted: true, MessageID: *t.ZulipMessageID}, nil
	}
	topic := room.ZulipTopic
	if topic == "" {
		topic = room.Name
	}
	id, err := a.zulip.PostMessage(ctx, room.ZulipStream, topic, content)
	if err != nil {
		return ChatPostOutput{}, err
	}
	if err := a.store.SetZulipMessageID(ctx, in.TranscriptID, id); err != nil {
		return ChatPostOutput{}, err
	}
	return ChatPostOutput{Posted: true, MessageID: id}, nil
}

type (
	// WebhookDispatchInput delivers the completion webhook.
	WebhookDispatchInput struct {
		TranscriptID string `json:"transcript_id"`
	}

	// WebhookDispatchOutput reports whether a delivery was attempted.
	WebhookDispatchOutput struct {
		Delivered bool `json:"delivered"`
	}
)

// WebhookDispatch signs and posts the completion payload to the room's
// webhook. Rooms without one skip silently; 4xx responses fail
// permanently while the retry schedule handles the rest.
func (a *Activities) WebhookDispatch(ctx context.Context, in WebhookDispatchInput) (WebhookDispatchOutput, error) {
	t, err := a.store.Transcript(ctx, in.TranscriptID)
	if err != nil {
		return WebhookDispatchOutput{}, classifyStoreErr("load transcript", err)
	}
	if t.RoomID == nil {
		return WebhookDispatchOutput{}, nil
	}
	room, err := a.store.Room(ctx, *t.RoomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return WebhookDispatchOutput{}, nil
		}
		return WebhookDispatchOutput{}, err
	}
	if room.WebhookURL == "" {
		return WebhookDispatchOutput{}, nil
	}

	err = a.webhook.Send(ctx, notify.WebhookDelivery{
		URL:     room.WebhookURL,
		Secret:  room.WebhookSecret,
		Event:   notify.EventTranscriptCompleted,
		Attempt: int(activity.GetInfo(ctx).Attempt),
		Payload: notify.BuildWebhookPayload(t, a.cfg.FrontendBaseURL),
	})
	if err != nil {
		var perm *notify.WebhookPermanentError
		if errors.As(err, &perm) {
			return WebhookDispatchOutput{}, permanent("webhook rejected", err)
		}
		return WebhookDispatchOutput{}, err
	}
	return WebhookDispatchOutput{Delivered: true}, nil
}

type (
	// PublishStatusInput broadcasts one DAG snapshot.
	PublishStatusInput struct {
		TranscriptID string          `json:"transcript_id"`
		Status       model.DagStatus `json:"status"`
	}

	// SetErrorStatusInput marks the transcript failed.
	SetErrorStatusInput struct {
		TranscriptID string `json:"transcript_id"`
		RunID        string `json:"run_id"`
		Reason       string `json:"reason"`
	}
)

// PublishStatus appends the snapshot to the event log and pushes it to
// subscribers. Both halves are best effort; the workflow ignores this
// activity's result.
func (a *Activities) PublishStatus(ctx context.Context, in PublishStatusInput) error {
	a.emit(ctx, in.TranscriptID, in.Status.WorkflowRunID, model.EventDagStatus, in.Status)
	return nil
}

// SetErrorStatus records the failed run on the transcript. Partial topics
// and events stay in place for inspection and force-replay.
func (a *Activities) SetErrorStatus(ctx context.Context, in SetErrorStatusInput) error {
	if err := a.store.SetStatus(ctx, in.TranscriptID, model.StatusError); err != nil {
		return err
	}
	a.emit(ctx, in.TranscriptID, in.RunID, model.EventStatus, map[string]string{
		"status": string(model.StatusError),
		"reason": in.Reason,
	})
	return nil
}

func language(t model.Transcript) string {
	if t.TargetLanguage != "" {
		return t.TargetLanguage
	}
	return t.SourceLanguage
}

func shiftWords(ws []model.Word, offset float64) []model.Word {
	out := make([]model.Word, len(ws))
	for i, w := range ws {
		w.Start += offset
		w.End += offset
		out[i] = w
	}
	return out
}

// alignTracks moves each track's words onto the meeting timeline by its
// positive join offset and, on the multitrack path, tags every word with
// its track index as the speaker.
func alignTracks(tracks [][]model.Word, offsets []float64, single bool) [][]model.Word {
	out := make([][]model.Word, len(tracks))
	for i, ws := range tracks {
		out[i] = ws
		if i < len(offsets) && offsets[i] > 0 {
			out[i] = shiftWords(out[i], offsets[i])
		}
		if !single {
			out[i] = words.TagSpeaker(out[i], i)
		}
	}
	return out
}

func checkOrdered(ws []model.Word) error {
	for i := 1; i < len(ws); i++ {
		if ws[i].Start < ws[i-1].Start {
			return fmt.Errorf("word %d starts at %f before %f", i, ws[i].Start, ws[i-1].Start)
		}
	}
	return nil
}

/// classifyAudioErr maps backend failures onto the retry policy: malformed
// containers and empty mixes cannot succeed on retry.
func classifyAudioErr(err error) error {
	var container *audio.ContainerError
	if errors.As(err, &container) {
		return permanent("malformed container", err)
	}
	if errors.Is(err, audio.ErrEmptyMix) {
		return permanent("mixdown with zero inputs", err)
	}
	return err
}

// classifyStoreErr keeps missing-row failures from retrying; the row will
// not appear by waiting.
func classifyStoreErr(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return permanent(what+": not found", err)
	}
	return err
}
