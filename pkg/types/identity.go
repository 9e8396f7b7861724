// Package types defines the core data structures for the Visage identity
// system: enrolled identities with their face embeddings, mood observations,
// session records, and the derived analytics views built from them.
package types

import "time"

// VectorDim is the required length of an enrolled face feature vector.
// Face embeddings from the capture pipeline are dense 128-dimensional
// descriptors; any other length is rejected before the store is touched.
const VectorDim = 128

// Identity represents one enrolled user.
type Identity struct {
	ID            string    `json:"id"`             // Unique identifier (format: idt:uuid8)
	DisplayName   string    `json:"display_name"`   // Mutable display name
	ContactHandle string    `json:"contact_handle"` // Unique contact handle (e.g. email), lowercased
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Vector is the enrolled face embedding. Immutable after enrollment;
	// never exposed through profile reads.
	Vector []float64 `json:"-"`

	Preferences Preferences   `json:"preferences"`
	Stats       IdentityStats `json:"stats"`
}

// Preferences holds the recognized per-identity boolean toggles.
// Unknown keys submitted by clients are ignored, not stored.
type Preferences struct {
	VoiceEnabled    bool `json:"voice_enabled"`
	AutoGreeting    bool `json:"auto_greeting"`
	AmbientAudio    bool `json:"ambient_audio"`
	EmotionTracking bool `json:"emotion_tracking"`
}

// DefaultPreferences returns the preference set assigned at enrollment.
func DefaultPreferences() Preferences {
	return Preferences{
		VoiceEnabled:    true,
		AutoGreeting:    true,
		AmbientAudio:    true,
		EmotionTracking: true,
	}
}

// IdentityStats is the cached summary derived from an identity's moods and
// sessions. It is recomputed from the owned collections after every
// mutation and is never independently authoritative.
type IdentityStats struct {
	TotalSessions          int        `json:"total_sessions"`
	TotalTimeSpent         int        `json:"total_time_spent"` // minutes, closed sessions only
	MostCommonEmotion      string     `json:"most_common_emotion,omitempty"`
	LastSeen               *time.Time `json:"last_seen,omitempty"`
	AverageSessionDuration int        `json:"average_session_duration"` // minutes, mean over closed sessions
}

// MoodObservation is a single timestamped emotion reading belonging to
// exactly one identity. Insertion order matters for recency queries.
type MoodObservation struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Emotion    string    `json:"emotion"`
	// Confidence is in [0,1] when present. Nil means "unspecified" and is
	// stored as NULL — distinct from zero confidence, never defaulted.
	Confidence *float64  `json:"confidence,omitempty"`
	Context    string    `json:"context,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionRecord is one bounded interval of system use by an identity.
// A nil LogoutTime means the session is still open.
type SessionRecord struct {
	ID         string     `json:"id"`
	IdentityID string     `json:"identity_id"`
	LoginTime  time.Time  `json:"login_time"`
	LogoutTime *time.Time `json:"logout_time,omitempty"`

	// DurationMinutes is derived at close: round((logout-login) in minutes),
	// clamped at 0 when the clock regressed. Zero while open.
	DurationMinutes int `json:"duration_minutes"`

	// EmotionsDetected holds the distinct emotion labels observed during
	// the session. Values are unique; order is not significant.
	EmotionsDetected []string `json:"emotions_detected"`

	// VoiceInteractions is the ordered sequence of raw command strings
	// issued during the session. Commands are stored verbatim; parsing and
	// dispatch live outside the core.
	VoiceInteractions []string `json:"voice_interactions"`
}

// Closed reports whether the session has been closed.
func (s *SessionRecord) Closed() bool {
	return s.LogoutTime != nil
}

// HasEmotion reports whether the session already recorded the given label.
func (s *SessionRecord) HasEmotion(emotion string) bool {
	for _, e := range s.EmotionsDetected {
		if e == emotion {
			return true
		}
	}
	return false
}

// AnalyticsReport is the read-side composition of mood and session history
// over a trailing window.
type AnalyticsReport struct {
	Timeframe           string              `json:"timeframe"` // e.g. "7 days"
	EmotionDistribution map[string]int      `json:"emotion_distribution"`
	DailyEmotions       map[string][]string `json:"daily_emotions"` // "2006-01-02" → ordered labels
	SessionStats        SessionStats        `json:"session_stats"`
	TotalMoodsLogged    int                 `json:"total_moods_logged"`
	MostCommonEmotion   string              `json:"most_common_emotion,omitempty"`
}

// SessionStats summarizes sessions opened within a report window.
type SessionStats struct {
	TotalSessions   int     `json:"total_sessions"`
	AverageDuration float64 `json:"average_duration"` // minutes; 0 when no sessions
	TotalTimeSpent  int     `json:"total_time_spent"` // minutes
}
