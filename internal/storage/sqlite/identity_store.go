// Package sqlite provides a SQLite implementation of the identity store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/visage/internal/storage"
	"github.com/scrypster/visage/pkg/types"
)

// Ensure *IdentityStore implements storage.IdentityStore at compile time.
var _ storage.IdentityStore = (*IdentityStore)(nil)

// IdentityStore implements storage.IdentityStore using SQLite.
type IdentityStore struct {
	db *sql.DB
}

// NewIdentityStore opens a SQLite database, configures WAL mode, and
// creates the schema.
func NewIdentityStore(dsn string) (*IdentityStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode allows readers to proceed without blocking
	// the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of returning an immediate SQLITE_BUSY error when the
	// connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Foreign keys drive the delete cascade from identities to their
	// moods and sessions.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &IdentityStore{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *IdentityStore) GetDB() *sql.DB {
	return s.db
}

// Close releases any resources held by the store.
func (s *IdentityStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateIdentity inserts a fully formed identity in a single statement so
// concurrent vector scans either see the whole row or none of it.
func (s *IdentityStore) CreateIdentity(ctx context.Context, identity *types.Identity) error {
	if identity == nil {
		return storage.ErrInvalidInput
	}
	if identity.ID == "" {
		return fmt.Errorf("%w: identity ID is required", storage.ErrInvalidInput)
	}
	if identity.ContactHandle == "" {
		return fmt.Errorf("%w: contact handle is required", storage.ErrInvalidInput)
	}
	if len(identity.Vector) == 0 {
		return fmt.Errorf("%w: feature vector is required", storage.ErrInvalidInput)
	}

	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = identity.CreatedAt
	}

	const query = `
		INSERT INTO identities (
			id, display_name, contact_handle, vector,
			created_at, updated_at,
			pref_voice_enabled, pref_auto_greeting, pref_ambient_audio, pref_emotion_tracking,
			stat_total_sessions, stat_total_time_spent, stat_most_common_emotion,
			stat_last_seen, stat_avg_session_duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		identity.ID,
		identity.DisplayName,
		identity.ContactHandle,
		serializeVector(identity.Vector),
		identity.CreatedAt,
		identity.UpdatedAt,
		boolToInt(identity.Preferences.VoiceEnabled),
		boolToInt(identity.Preferences.AutoGreeting),
		boolToInt(identity.Preferences.AmbientAudio),
		boolToInt(identity.Preferences.EmotionTracking),
		identity.Stats.TotalSessions,
		identity.Stats.TotalTimeSpent,
		nullString(identity.Stats.MostCommonEmotion),
		nullTime(identity.Stats.LastSeen),
		identity.Stats.AverageSessionDuration,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateHandle
		}
		return fmt.Errorf("sqlite: failed to create identity: %w", err)
	}

	return nil
}

// identitySelectColumns is the canonical SELECT column list for the
// identities table. It must match the scan order in scanIdentity.
const identitySelectColumns = `
	id, display_name, contact_handle, vector,
	created_at, updated_at,
	pref_voice_enabled, pref_auto_greeting, pref_ambient_audio, pref_emotion_tracking,
	stat_total_sessions, stat_total_time_spent, stat_most_common_emotion,
	stat_last_seen, stat_avg_session_duration
`

// GetIdentity retrieves an identity by ID.
func (s *IdentityStore) GetIdentity(ctx context.Context, id string) (*types.Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: identity ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+identitySelectColumns+` FROM identities WHERE id = ?`, id)

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get identity: %w", err)
	}

	return identity, nil
}

// DeleteIdentity hard-deletes an identity. The foreign-key cascade removes
// its mood observations and sessions in the same statement.
func (s *IdentityStore) DeleteIdentity(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: identity ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// CountIdentities returns the number of enrolled identities.
func (s *IdentityStore) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count identities: %w", err)
	}
	return count, nil
}

// VectorCandidates returns every enrolled vector in enrollment order
// (created_at, then id) so match scans iterate deterministically.
func (s *IdentityStore) VectorCandidates(ctx context.Context) ([]storage.VectorCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []storage.VectorCandidate
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan vector row: %w", err)
		}
		vector, err := deserializeVector(blob, len(blob)/8)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt vector for %s: %w", id, err)
		}
		candidates = append(candidates, storage.VectorCandidate{IdentityID: id, Vector: vector})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector rows error: %w", err)
	}

	return candidates, nil
}

// UpdatePreferences replaces the identity's preference toggles.
func (s *IdentityStore) UpdatePreferences(ctx context.Context, id string, prefs types.Preferences) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET
			pref_voice_enabled = ?,
			pref_auto_greeting = ?,
			pref_ambient_audio = ?,
			pref_emotion_tracking = ?,
			updated_at = ?
		WHERE id = ?
	`,
		boolToInt(prefs.VoiceEnabled),
		boolToInt(prefs.AutoGreeting),
		boolToInt(prefs.AmbientAudio),
		boolToInt(prefs.EmotionTracking),
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update preferences: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// UpdateStats replaces the identity's cached derived stats.
func (s *IdentityStore) UpdateStats(ctx context.Context, id string, stats types.IdentityStats) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET
			stat_total_sessions = ?,
			stat_total_time_spent = ?,
			stat_most_common_emotion = ?,
			stat_last_seen = ?,
			stat_avg_session_duration = ?,
			updated_at = ?
		WHERE id = ?
	`,
		stats.TotalSessions,
		stats.TotalTimeSpent,
		nullString(stats.MostCommonEmotion),
		nullTime(stats.LastSeen),
		stats.AverageSessionDuration,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update stats: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// AppendMood appends an observation to the identity's mood log.
func (s *IdentityStore) AppendMood(ctx context.Context, obs *types.MoodObservation) error {
	if obs == nil {
		return storage.ErrInvalidInput
	}
	if obs.ID == "" || obs.IdentityID == "" {
		return fmt.Errorf("%w: observation ID and identity ID are required", storage.ErrInvalidInput)
	}

	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}

	var confidence sql.NullFloat64
	if obs.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *obs.Confidence, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mood_observations (id, identity_id, emotion, confidence, context, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, obs.ID, obs.IdentityID, obs.Emotion, confidence, nullString(obs.Context), obs.Timestamp)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("sqlite: failed to append mood: %w", err)
	}

	return nil
}

// ListMoods returns the identity's observations with timestamp >= since in
// insertion order.
func (s *IdentityStore) ListMoods(ctx context.Context, identityID string, since time.Time) ([]types.MoodObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, emotion, confidence, context, timestamp
		FROM mood_observations
		WHERE identity_id = ? AND timestamp >= ?
		ORDER BY seq
	`, identityID, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list moods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanMoods(rows)
}

// AppendSession appends a new session record.
func (s *IdentityStore) AppendSession(ctx context.Context, session *types.SessionRecord) error {
	if session == nil {
		return storage.ErrInvalidInput
	}
	if session.ID == "" || session.IdentityID == "" {
		return fmt.Errorf("%w: session ID and identity ID are required", storage.ErrInvalidInput)
	}

	if session.LoginTime.IsZero() {
		session.LoginTime = time.Now()
	}

	emotionsJSON, voiceJSON, err := marshalSessionArrays(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, identity_id, login_time, logout_time, duration_minutes, emotions_detected, voice_interactions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.IdentityID, session.LoginTime, nullTime(session.LogoutTime),
		session.DurationMinutes, emotionsJSON, voiceJSON)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("sqlite: failed to append session: %w", err)
	}

	return nil
}

// LatestSession returns the most recently created session for the identity.
func (s *IdentityStore) LatestSession(ctx context.Context, identityID string) (*types.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identity_id, login_time, logout_time, duration_minutes, emotions_detected, voice_interactions
		FROM sessions
		WHERE identity_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, identityID)

	return scanSessionRow(row)
}

// LatestOpenSession returns the most recently created session with no
// logout time.
func (s *IdentityStore) LatestOpenSession(ctx context.Context, identityID string) (*types.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, identity_id, login_time, logout_time, duration_minutes, emotions_detected, voice_interactions
		FROM sessions
		WHERE identity_id = ? AND logout_time IS NULL
		ORDER BY seq DESC
		LIMIT 1
	`, identityID)

	return scanSessionRow(row)
}

// UpdateSession persists the mutable session fields.
func (s *IdentityStore) UpdateSession(ctx context.Context, session *types.SessionRecord) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidInput)
	}

	emotionsJSON, voiceJSON, err := marshalSessionArrays(session)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			logout_time = ?,
			duration_minutes = ?,
			emotions_detected = ?,
			voice_interactions = ?
		WHERE id = ?
	`, nullTime(session.LogoutTime), session.DurationMinutes, emotionsJSON, voiceJSON, session.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListSessions returns the identity's sessions with loginTime >= since in
// insertion order.
func (s *IdentityStore) ListSessions(ctx context.Context, identityID string, since time.Time) ([]types.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, login_time, logout_time, duration_minutes, emotions_detected, voice_interactions
		FROM sessions
		WHERE identity_id = ? AND login_time >= ?
		ORDER BY seq
	`, identityID, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

// Profile returns the identity plus its recent history.
func (s *IdentityStore) Profile(ctx context.Context, identityID string) (*storage.ProfileView, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}

	moodRows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, emotion, confidence, context, timestamp
		FROM mood_observations
		WHERE identity_id = ?
		ORDER BY seq DESC
		LIMIT 10
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load recent moods: %w", err)
	}
	defer func() { _ = moodRows.Close() }()

	recentMoods, err := scanMoods(moodRows)
	if err != nil {
		return nil, err
	}

	sessionRows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, login_time, logout_time, duration_minutes, emotions_detected, voice_interactions
		FROM sessions
		WHERE identity_id = ?
		ORDER BY seq DESC
		LIMIT 5
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load recent sessions: %w", err)
	}
	defer func() { _ = sessionRows.Close() }()

	recentSessions, err := scanSessions(sessionRows)
	if err != nil {
		return nil, err
	}

	return &storage.ProfileView{
		Identity:       identity,
		RecentMoods:    recentMoods,
		RecentSessions: recentSessions,
	}, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanIdentity reads one identity row. Column order must match
// identitySelectColumns.
func scanIdentity(row scanner) (*types.Identity, error) {
	var identity types.Identity
	var blob []byte
	var voiceEnabled, autoGreeting, ambientAudio, emotionTracking int
	var mostCommon sql.NullString
	var lastSeen sql.NullTime

	err := row.Scan(
		&identity.ID,
		&identity.DisplayName,
		&identity.ContactHandle,
		&blob,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&voiceEnabled,
		&autoGreeting,
		&ambientAudio,
		&emotionTracking,
		&identity.Stats.TotalSessions,
		&identity.Stats.TotalTimeSpent,
		&mostCommon,
		&lastSeen,
		&identity.Stats.AverageSessionDuration,
	)
	if err != nil {
		return nil, err
	}

	vector, err := deserializeVector(blob, len(blob)/8)
	if err != nil {
		return nil, fmt.Errorf("corrupt vector for %s: %w", identity.ID, err)
	}
	identity.Vector = vector

	identity.Preferences = types.Preferences{
		VoiceEnabled:    voiceEnabled != 0,
		AutoGreeting:    autoGreeting != 0,
		AmbientAudio:    ambientAudio != 0,
		EmotionTracking: emotionTracking != 0,
	}

	if mostCommon.Valid {
		identity.Stats.MostCommonEmotion = mostCommon.String
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		identity.Stats.LastSeen = &t
	}

	return &identity, nil
}

// scanMoods reads all mood observation rows.
func scanMoods(rows *sql.Rows) ([]types.MoodObservation, error) {
	var moods []types.MoodObservation
	for rows.Next() {
		var obs types.MoodObservation
		var confidence sql.NullFloat64
		var context sql.NullString

		if err := rows.Scan(&obs.ID, &obs.IdentityID, &obs.Emotion, &confidence, &context, &obs.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scan mood row: %w", err)
		}
		if confidence.Valid {
			c := confidence.Float64
			obs.Confidence = &c
		}
		if context.Valid {
			obs.Context = context.String
		}

		moods = append(moods, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: mood rows error: %w", err)
	}
	return moods, nil
}

// scanSessions reads all session rows.
func scanSessions(rows *sql.Rows) ([]types.SessionRecord, error) {
	var sessions []types.SessionRecord
	for rows.Next() {
		session, err := scanSessionFields(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: session rows error: %w", err)
	}
	return sessions, nil
}

// scanSessionRow reads a single session row, mapping sql.ErrNoRows to
// storage.ErrNotFound.
func scanSessionRow(row scanner) (*types.SessionRecord, error) {
	session, err := scanSessionFields(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func scanSessionFields(row scanner) (*types.SessionRecord, error) {
	var session types.SessionRecord
	var logout sql.NullTime
	var emotionsJSON, voiceJSON sql.NullString

	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.LoginTime,
		&logout,
		&session.DurationMinutes,
		&emotionsJSON,
		&voiceJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: scan session row: %w", err)
	}

	if logout.Valid {
		t := logout.Time
		session.LogoutTime = &t
	}
	if emotionsJSON.Valid && emotionsJSON.String != "" {
		if err := json.Unmarshal([]byte(emotionsJSON.String), &session.EmotionsDetected); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal emotions_detected: %w", err)
		}
	}
	if voiceJSON.Valid && voiceJSON.String != "" {
		if err := json.Unmarshal([]byte(voiceJSON.String), &session.VoiceInteractions); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal voice_interactions: %w", err)
		}
	}

	return &session, nil
}

// marshalSessionArrays serializes the session's JSON array fields.
func marshalSessionArrays(session *types.SessionRecord) (emotions, voice []byte, err error) {
	if len(session.EmotionsDetected) > 0 {
		emotions, err = json.Marshal(session.EmotionsDetected)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal emotions_detected: %w", err)
		}
	}
	if len(session.VoiceInteractions) > 0 {
		voice, err = json.Marshal(session.VoiceInteractions)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal voice_interactions: %w", err)
		}
	}
	return emotions, voice, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation reports whether the error is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether the error is a FOREIGN KEY failure
// (appending history for an identity that does not exist).
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
