// Package engine implements the core identity semantics: vector matching,
// session lifecycle, the append-only mood ledger, and windowed analytics.
//
// IdentityEngine is the orchestrator the transport layer talks to. All
// mutations for one identity are serialized through a per-identity lock,
// and cached identity stats are recomputed from full history after every
// mutation so they can never drift.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/pkg/types"
)

// Preference keys accepted by ApplyPreferences. Unknown keys are ignored.
const (
	PrefVoiceEnabled    = "voice_enabled"
	PrefAutoGreeting    = "auto_greeting"
	PrefAmbientAudio    = "ambient_audio"
	PrefEmotionTracking = "emotion_tracking"
)

// AuthResult is a successful verification: the matched identity with
// refreshed stats plus the raw match confidence.
type AuthResult struct {
	Identity   *types.Identity
	Confidence float64
}

// EventHandler receives engine events after telemetry mutations commit.
// Handlers run on the mutating goroutine and must not block.
type EventHandler func(EngineEvent)

// IdentityEngine orchestrates matching, sessions, moods, and analytics
// over a single identity store.
type IdentityEngine struct {
	store     storage.IdentityStore
	matcher   *MatchEngine
	sessions  *SessionTracker
	moods     *MoodLedger
	analytics *AnalyticsAggregator

	locks   *keyedMutex
	onEvent EventHandler
	now     func() time.Time
}

// New creates an identity engine over the given store.
func New(store storage.IdentityStore, cfg Config) (*IdentityEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &IdentityEngine{
		store:     store,
		matcher:   NewMatchEngine(store, cfg),
		sessions:  NewSessionTracker(store),
		moods:     NewMoodLedger(store),
		analytics: NewAnalyticsAggregator(store),
		locks:     newKeyedMutex(),
		now:       time.Now,
	}, nil
}

// SetEventHandler registers the event callback. Call before serving
// traffic; the handler is not guarded against concurrent replacement.
func (e *IdentityEngine) SetEventHandler(h EventHandler) {
	e.onEvent = h
}

// Enroll registers a new identity. The vector must not already match an
// enrolled identity (ErrDuplicateIdentity) and the contact handle must be
// unused (storage.ErrDuplicateHandle). Enrollment opens the identity's
// first session immediately.
func (e *IdentityEngine) Enroll(ctx context.Context, displayName, contactHandle string, vector []float64) (*types.Identity, error) {
	displayName = strings.TrimSpace(displayName)
	contactHandle = strings.ToLower(strings.TrimSpace(contactHandle))
	if displayName == "" || contactHandle == "" {
		return nil, fmt.Errorf("%w: display name and contact handle are required", storage.ErrInvalidInput)
	}
	if len(vector) != types.VectorDim {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVectorShape, len(vector))
	}

	if err := e.matcher.EnsureUnenrolled(ctx, vector); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	identity := &types.Identity{
		ID:            "idt:" + uuid.New().String()[:8],
		DisplayName:   displayName,
		ContactHandle: contactHandle,
		CreatedAt:     now,
		UpdatedAt:     now,
		Vector:        append([]float64(nil), vector...),
		Preferences:   types.DefaultPreferences(),
	}
	if err := e.store.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}

	e.locks.Lock(identity.ID)
	defer e.locks.Unlock(identity.ID)

	if _, err := e.sessions.Open(ctx, identity.ID); err != nil {
		return nil, err
	}
	if err := e.recomputeStats(ctx, identity.ID); err != nil {
		return nil, err
	}

	e.emit(EngineEvent{Type: EventEnrolled, IdentityID: identity.ID, Timestamp: e.now().UTC()})
	return e.store.GetIdentity(ctx, identity.ID)
}

// Authenticate identifies the caller by face vector. On a match it opens a
// new session, optionally logs the detected login emotion with the match
// confidence attached, and refreshes stats. Returns ErrNoMatch when no
// enrolled identity is close enough.
func (e *IdentityEngine) Authenticate(ctx context.Context, vector []float64, emotion string) (*AuthResult, error) {
	if emotion != "" && !types.IsValidEmotion(emotion) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmotion, emotion)
	}

	match, err := e.matcher.Identify(ctx, vector)
	if err != nil {
		return nil, err
	}

	e.locks.Lock(match.IdentityID)
	defer e.locks.Unlock(match.IdentityID)

	if emotion != "" {
		confidence := match.Confidence
		if _, err := e.moods.Append(ctx, match.IdentityID, emotion, &confidence, "login authentication"); err != nil {
			return nil, err
		}
	}
	if _, err := e.sessions.Open(ctx, match.IdentityID); err != nil {
		return nil, err
	}
	if err := e.recomputeStats(ctx, match.IdentityID); err != nil {
		return nil, err
	}

	identity, err := e.store.GetIdentity(ctx, match.IdentityID)
	if err != nil {
		return nil, err
	}

	e.emit(EngineEvent{Type: EventVerified, IdentityID: identity.ID, Emotion: emotion, Timestamp: e.now().UTC()})
	return &AuthResult{Identity: identity, Confidence: match.Confidence}, nil
}

// LogTelemetry records in-session signals: an observed emotion (appended
// to the mood ledger and the current session's detected set) and/or a
// voice command (appended to the current session). Inputs are validated
// before any store write. Returns storage.ErrNotFound for unknown
// identities.
func (e *IdentityEngine) LogTelemetry(ctx context.Context, identityID, emotion string, confidence *float64, voiceCommand, noteCtx string) error {
	if emotion != "" && !types.IsValidEmotion(emotion) {
		return fmt.Errorf("%w: %q", ErrInvalidEmotion, emotion)
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, *confidence)
	}

	e.locks.Lock(identityID)
	defer e.locks.Unlock(identityID)

	if _, err := e.store.GetIdentity(ctx, identityID); err != nil {
		return err
	}

	if emotion != "" {
		if _, err := e.moods.Append(ctx, identityID, emotion, confidence, noteCtx); err != nil {
			return err
		}
		if err := e.sessions.RecordEmotion(ctx, identityID, emotion); err != nil {
			return err
		}
	}
	if voiceCommand != "" {
		if err := e.sessions.RecordVoiceInteraction(ctx, identityID, voiceCommand); err != nil {
			return err
		}
	}

	if err := e.recomputeStats(ctx, identityID); err != nil {
		return err
	}
	if emotion != "" {
		e.emit(EngineEvent{Type: EventMoodLogged, IdentityID: identityID, Emotion: emotion, Timestamp: e.now().UTC()})
	}
	return nil
}

// EndSession closes the identity's most recent open session. A no-op when
// nothing is open; returns storage.ErrNotFound for unknown identities.
func (e *IdentityEngine) EndSession(ctx context.Context, identityID string) error {
	e.locks.Lock(identityID)
	defer e.locks.Unlock(identityID)

	if _, err := e.store.GetIdentity(ctx, identityID); err != nil {
		return err
	}

	session, err := e.sessions.Close(ctx, identityID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	if err := e.recomputeStats(ctx, identityID); err != nil {
		return err
	}
	e.emit(EngineEvent{Type: EventSessionClosed, IdentityID: identityID, Timestamp: e.now().UTC()})
	return nil
}

// Report builds a windowed analytics report for the identity.
func (e *IdentityEngine) Report(ctx context.Context, identityID string, windowDays int) (*types.AnalyticsReport, error) {
	return e.analytics.Report(ctx, identityID, windowDays)
}

// Profile returns the identity with its recent mood and session history.
func (e *IdentityEngine) Profile(ctx context.Context, identityID string) (*storage.ProfileView, error) {
	return e.store.Profile(ctx, identityID)
}

// ApplyPreferences merges the recognized preference keys from updates into
// the identity's toggles and persists the result. Unknown keys are
// ignored, untouched toggles keep their values.
func (e *IdentityEngine) ApplyPreferences(ctx context.Context, identityID string, updates map[string]bool) (*types.Preferences, error) {
	e.locks.Lock(identityID)
	defer e.locks.Unlock(identityID)

	identity, err := e.store.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	prefs := identity.Preferences
	if v, ok := updates[PrefVoiceEnabled]; ok {
		prefs.VoiceEnabled = v
	}
	if v, ok := updates[PrefAutoGreeting]; ok {
		prefs.AutoGreeting = v
	}
	if v, ok := updates[PrefAmbientAudio]; ok {
		prefs.AmbientAudio = v
	}
	if v, ok := updates[PrefEmotionTracking]; ok {
		prefs.EmotionTracking = v
	}

	if err := e.store.UpdatePreferences(ctx, identityID, prefs); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// DeleteIdentity removes the identity and all of its moods and sessions.
func (e *IdentityEngine) DeleteIdentity(ctx context.Context, identityID string) error {
	e.locks.Lock(identityID)
	defer e.locks.Unlock(identityID)

	if err := e.store.DeleteIdentity(ctx, identityID); err != nil {
		return err
	}
	e.emit(EngineEvent{Type: EventIdentityDeleted, IdentityID: identityID, Timestamp: e.now().UTC()})
	return nil
}

// HasIdentities reports whether at least one identity is enrolled. The
// kiosk frontend uses it to choose between enrollment and login flows.
func (e *IdentityEngine) HasIdentities(ctx context.Context) (bool, error) {
	n, err := e.store.CountIdentities(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// recomputeStats rebuilds the identity's cached stats from full history.
// Callers must hold the identity lock.
func (e *IdentityEngine) recomputeStats(ctx context.Context, identityID string) error {
	moods, err := e.store.ListMoods(ctx, identityID, time.Time{})
	if err != nil {
		return err
	}
	sessions, err := e.store.ListSessions(ctx, identityID, time.Time{})
	if err != nil {
		return err
	}
	return e.store.UpdateStats(ctx, identityID, ComputeStats(moods, sessions))
}

func (e *IdentityEngine) emit(ev EngineEvent) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}
