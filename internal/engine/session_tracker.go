package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/pkg/types"
)

// SessionTracker manages login sessions. Every successful verification
// opens a new session; overlapping open sessions are legal and closing
// always addresses the most recent open one.
type SessionTracker struct {
	store storage.IdentityStore
	now   func() time.Time
}

// NewSessionTracker creates a session tracker over the given store.
func NewSessionTracker(store storage.IdentityStore) *SessionTracker {
	return &SessionTracker{store: store, now: time.Now}
}

// Open starts a new session for the identity. It never reuses or closes
// an existing open session.
func (t *SessionTracker) Open(ctx context.Context, identityID string) (*types.SessionRecord, error) {
	session := &types.SessionRecord{
		ID:         "ses:" + uuid.New().String()[:8],
		IdentityID: identityID,
		LoginTime:  t.now().UTC(),
	}
	if err := t.store.AppendSession(ctx, session); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return session, nil
}

// Close ends the identity's most recent open session, recording its
// duration in whole minutes (rounded half up, clamped to zero). When no
// open session exists Close is a no-op and returns (nil, nil).
func (t *SessionTracker) Close(ctx context.Context, identityID string) (*types.SessionRecord, error) {
	session, err := t.store.LatestOpenSession(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	logout := t.now().UTC()
	session.LogoutTime = &logout
	session.DurationMinutes = durationMinutes(session.LoginTime, logout)

	if err := t.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	return session, nil
}

// RecordVoiceInteraction appends a voice command to the identity's most
// recent session. Dropped silently when the identity has no sessions.
func (t *SessionTracker) RecordVoiceInteraction(ctx context.Context, identityID, command string) error {
	session, err := t.store.LatestSession(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("record voice interaction: %w", err)
	}

	session.VoiceInteractions = append(session.VoiceInteractions, command)
	if err := t.store.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("record voice interaction: %w", err)
	}
	return nil
}

// RecordEmotion adds an emotion to the most recent session's detected set.
// Duplicates within a session are ignored; sessionless identities drop the
// record silently.
func (t *SessionTracker) RecordEmotion(ctx context.Context, identityID, emotion string) error {
	if !types.IsValidEmotion(emotion) {
		return fmt.Errorf("%w: %q", ErrInvalidEmotion, emotion)
	}

	session, err := t.store.LatestSession(ctx, identityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("record emotion: %w", err)
	}
	if session.HasEmotion(emotion) {
		return nil
	}

	session.EmotionsDetected = append(session.EmotionsDetected, emotion)
	if err := t.store.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("record emotion: %w", err)
	}
	return nil
}

// durationMinutes converts a session span to whole minutes, rounded to the
// nearest minute and clamped so clock skew can never produce a negative
// duration.
func durationMinutes(login, logout time.Time) int {
	minutes := int(math.Round(logout.Sub(login).Minutes()))
	if minutes < 0 {
		return 0
	}
	return minutes
}
