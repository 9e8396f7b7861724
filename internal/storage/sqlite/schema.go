package sqlite

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be
// applied on every open.
const Schema = `
-- Identities table: enrolled users with their face embedding, preference
-- toggles, and cached derived stats. The stats columns are a cache only;
-- the engine recomputes them from the owned mood/session rows after every
-- mutation.
CREATE TABLE IF NOT EXISTS identities (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    contact_handle TEXT NOT NULL UNIQUE,

    -- Face embedding, serialized as packed little-endian float64
    vector BLOB NOT NULL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    -- Preference toggles
    pref_voice_enabled INTEGER NOT NULL DEFAULT 1,
    pref_auto_greeting INTEGER NOT NULL DEFAULT 1,
    pref_ambient_audio INTEGER NOT NULL DEFAULT 1,
    pref_emotion_tracking INTEGER NOT NULL DEFAULT 1,

    -- Cached derived stats
    stat_total_sessions INTEGER NOT NULL DEFAULT 0,
    stat_total_time_spent INTEGER NOT NULL DEFAULT 0,
    stat_most_common_emotion TEXT,
    stat_last_seen TIMESTAMP,
    stat_avg_session_duration INTEGER NOT NULL DEFAULT 0
);

-- Mood observations: append-only per-identity emotion log. The seq rowid
-- preserves insertion order for recency queries.
CREATE TABLE IF NOT EXISTS mood_observations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    identity_id TEXT NOT NULL,
    emotion TEXT NOT NULL,
    confidence REAL,
    context TEXT,
    timestamp TIMESTAMP NOT NULL,

    FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
);

-- Sessions: one row per login. logout_time IS NULL means the session is
-- still open. Array fields are stored as JSON.
CREATE TABLE IF NOT EXISTS sessions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    identity_id TEXT NOT NULL,
    login_time TIMESTAMP NOT NULL,
    logout_time TIMESTAMP,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    emotions_detected TEXT,
    voice_interactions TEXT,

    FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
);

-- Indexes for per-identity history queries
CREATE INDEX IF NOT EXISTS idx_identities_created_at ON identities(created_at);
CREATE INDEX IF NOT EXISTS idx_moods_identity ON mood_observations(identity_id, seq);
CREATE INDEX IF NOT EXISTS idx_moods_timestamp ON mood_observations(timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions(identity_id, seq);
CREATE INDEX IF NOT EXISTS idx_sessions_login_time ON sessions(login_time);
CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(identity_id) WHERE logout_time IS NULL;
`
