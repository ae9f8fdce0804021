package notify

import (
	"context"
	"fmt"

	"github.com/recapd/recapd/internal/model"
	"github.com/recapd/recapd/internal/storage"
)

// AnyDenied reports whether at least one attendee withheld consent.
func AnyDenied(consents []model.MeetingConsent) bool {
	for _, c := range consents {
		if !c.ConsentGiven {
			return true
		}
	}
	return false
}

// CleanupAudio deletes the transcript's mixed audio object. Deleting an
// already-absent object is a no-op, so the call is idempotent; the audio
// is never re-created once removed.
func CleanupAudio(ctx context.Context, store storage.Store, transcriptID string) error {
	key := storage.AudioKey(transcriptID)
	if err := store.Delete(ctx, key); err != nil {
		return fmt.Errorf("notify: delete audio %s: %w", key, err)
	}
	return nil
}
