package engine

import (
	"fmt"
	"time"
)

// Config holds tunables for the identity engine.
type Config struct {
	// MatchThreshold is the maximum acceptable Euclidean distance for
	// declaring a match. A candidate matches only when its distance is
	// strictly below the threshold.
	MatchThreshold float64

	// IdentifyTimeout bounds a single identify scan when the caller's
	// context carries no deadline of its own.
	IdentifyTimeout time.Duration

	// MaxPopulation is the documented boundary for the linear match scan.
	// The scan stays correct beyond it but latency grows linearly; larger
	// deployments should run the postgres backend, whose pgvector index
	// pre-orders candidates with identical acceptance semantics.
	MaxPopulation int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MatchThreshold:  0.6,
		IdentifyTimeout: 2 * time.Second,
		MaxPopulation:   10_000,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.MatchThreshold <= 0 {
		return fmt.Errorf("match threshold must be positive, got %v", c.MatchThreshold)
	}
	if c.IdentifyTimeout < 0 {
		return fmt.Errorf("identify timeout must not be negative, got %v", c.IdentifyTimeout)
	}
	if c.MaxPopulation < 1 {
		return fmt.Errorf("max population must be at least 1, got %d", c.MaxPopulation)
	}
	return nil
}

// Match is a successful identification result.
type Match struct {
	// IdentityID is the matched identity.
	IdentityID string

	// Distance is the Euclidean distance between the query vector and the
	// matched enrollment vector.
	Distance float64

	// Confidence is 1 - Distance, returned raw. It can be negative when
	// the distance exceeds 1; display clamping is the caller's concern.
	Confidence float64
}

// EngineEvent is broadcast to listeners (e.g. the dashboard websocket hub)
// after telemetry mutations.
type EngineEvent struct {
	Type       string    `json:"type"`
	IdentityID string    `json:"identity_id"`
	Emotion    string    `json:"emotion,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Engine event types.
const (
	EventEnrolled        = "identity.enrolled"
	EventVerified        = "identity.verified"
	EventMoodLogged      = "mood.logged"
	EventSessionClosed   = "session.closed"
	EventIdentityDeleted = "identity.deleted"
)
