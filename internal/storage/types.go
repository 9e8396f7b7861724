package storage

import (
	"errors"

	"github.com/scrypster/visage/pkg/types"
)

var (
	// ErrNotFound indicates that the requested identity or record was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateHandle indicates that the contact handle is already
	// enrolled under another identity.
	ErrDuplicateHandle = errors.New("contact handle already registered")

	// ErrUnavailable indicates the backing store could not be reached.
	// Callers surface it unchanged; retry policy belongs to the transport
	// layer, not the core.
	ErrUnavailable = errors.New("store unavailable")
)

// VectorCandidate pairs an identity ID with its enrolled feature vector.
// Candidates are what the match engine scans; iteration order is the
// store's stable enrollment order (creation time, then ID) so equal-distance
// ties resolve deterministically.
type VectorCandidate struct {
	IdentityID string
	Vector     []float64
}

// ProfileView bundles an identity with its most recent history for
// profile reads. Moods and sessions are newest-first.
type ProfileView struct {
	Identity       *types.Identity
	RecentMoods    []types.MoodObservation
	RecentSessions []types.SessionRecord
}
