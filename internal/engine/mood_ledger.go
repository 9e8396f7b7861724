package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/pkg/types"
)

// MoodLedger is the append-only emotion log. Observations are validated
// before any store access and never mutated after the fact.
type MoodLedger struct {
	store storage.IdentityStore
	now   func() time.Time
}

// NewMoodLedger creates a mood ledger over the given store.
func NewMoodLedger(store storage.IdentityStore) *MoodLedger {
	return &MoodLedger{store: store, now: time.Now}
}

// Append records an observation. Confidence is optional; when absent it is
// stored as absent, never substituted with a default. Returns
// ErrInvalidEmotion for labels outside the closed set and
// ErrInvalidConfidence for values outside [0,1].
func (l *MoodLedger) Append(ctx context.Context, identityID, emotion string, confidence *float64, noteCtx string) (*types.MoodObservation, error) {
	if !types.IsValidEmotion(emotion) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmotion, emotion)
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfidence, *confidence)
	}

	obs := &types.MoodObservation{
		ID:         "obs:" + uuid.New().String()[:8],
		IdentityID: identityID,
		Emotion:    emotion,
		Confidence: confidence,
		Context:    noteCtx,
		Timestamp:  l.now().UTC(),
	}
	if err := l.store.AppendMood(ctx, obs); err != nil {
		return nil, fmt.Errorf("append mood: %w", err)
	}
	return obs, nil
}

// Query returns the identity's observations recorded at or after since, in
// insertion order.
func (l *MoodLedger) Query(ctx context.Context, identityID string, since time.Time) ([]types.MoodObservation, error) {
	return l.store.ListMoods(ctx, identityID, since)
}

// MostCommonEmotion returns the plurality emotion over the identity's full
// ledger, or "" when the ledger is empty. Count ties resolve to the label
// that comes first in the canonical emotion order.
func (l *MoodLedger) MostCommonEmotion(ctx context.Context, identityID string) (string, error) {
	moods, err := l.store.ListMoods(ctx, identityID, time.Time{})
	if err != nil {
		return "", err
	}
	return mostCommonEmotion(moods), nil
}
