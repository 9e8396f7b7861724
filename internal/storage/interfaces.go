// Package storage provides composable storage interfaces for the Visage
// identity system.
//
// The storage layer is deliberately small: one IdentityStore interface that
// both the SQLite and PostgreSQL backends implement. Matching, session
// lifecycle, and analytics semantics live in internal/engine; the store
// only provides durable primitives with per-row atomicity.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/visage/pkg/types"
)

// IdentityStore provides durable storage for identities and their owned
// mood observations and session records.
//
// Ownership invariants the implementations must uphold:
//   - contact handles are unique across identities (ErrDuplicateHandle);
//   - a new identity becomes visible to concurrent vector scans atomically,
//     fully formed or not at all;
//   - deleting an identity cascades to all of its moods and sessions.
type IdentityStore interface {
	// CreateIdentity inserts a fully formed identity in one transaction.
	// Returns ErrDuplicateHandle when the contact handle is taken.
	CreateIdentity(ctx context.Context, identity *types.Identity) error

	// GetIdentity retrieves an identity (including its enrolled vector and
	// cached stats). Returns ErrNotFound if it doesn't exist.
	GetIdentity(ctx context.Context, id string) (*types.Identity, error)

	// DeleteIdentity hard-deletes an identity and cascades to its moods
	// and sessions. Returns ErrNotFound if it doesn't exist.
	DeleteIdentity(ctx context.Context, id string) error

	// CountIdentities returns the number of enrolled identities.
	CountIdentities(ctx context.Context) (int, error)

	// VectorCandidates returns the enrolled vectors in stable enrollment
	// order for a match scan.
	VectorCandidates(ctx context.Context) ([]VectorCandidate, error)

	// UpdatePreferences replaces the identity's preference toggles.
	UpdatePreferences(ctx context.Context, id string, prefs types.Preferences) error

	// UpdateStats replaces the identity's cached derived stats.
	UpdateStats(ctx context.Context, id string, stats types.IdentityStats) error

	// AppendMood appends an observation to the identity's mood log.
	AppendMood(ctx context.Context, obs *types.MoodObservation) error

	// ListMoods returns the identity's observations with timestamp >= since
	// in insertion order. A zero since means the full log.
	ListMoods(ctx context.Context, identityID string, since time.Time) ([]types.MoodObservation, error)

	// AppendSession appends a new session record.
	AppendSession(ctx context.Context, session *types.SessionRecord) error

	// LatestSession returns the most recently created session for the
	// identity, open or closed. Returns ErrNotFound when there are none.
	LatestSession(ctx context.Context, identityID string) (*types.SessionRecord, error)

	// LatestOpenSession returns the most recently created session that has
	// no logout time. Returns ErrNotFound when no session is open.
	LatestOpenSession(ctx context.Context, identityID string) (*types.SessionRecord, error)

	// UpdateSession persists logout time, duration, emotions, and voice
	// interactions for an existing session record.
	UpdateSession(ctx context.Context, session *types.SessionRecord) error

	// ListSessions returns the identity's sessions with loginTime >= since
	// in insertion order. A zero since means all sessions.
	ListSessions(ctx context.Context, identityID string, since time.Time) ([]types.SessionRecord, error)

	// Profile returns the identity plus its recent history (last 10 moods,
	// last 5 sessions, newest first). Returns ErrNotFound if the identity
	// doesn't exist.
	Profile(ctx context.Context, identityID string) (*ProfileView, error)

	// Close releases any resources held by the store.
	Close() error
}
