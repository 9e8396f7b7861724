// Package postgres provides a PostgreSQL implementation of the identity store.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. All statements are idempotent (IF NOT EXISTS).
//
// Feature vectors are always stored as packed little-endian float64 BYTEA
// so the store works on servers without pgvector. When the pgvector
// extension is available, MigrationPgvector adds a parallel vector(128)
// column that accelerates nearest-candidate ordering.
const Schema = `
-- Identities table: enrolled users with face embedding, preferences, and
-- cached derived stats.
CREATE TABLE IF NOT EXISTS identities (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    contact_handle TEXT NOT NULL UNIQUE,

    vector_blob BYTEA NOT NULL,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    pref_voice_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    pref_auto_greeting BOOLEAN NOT NULL DEFAULT TRUE,
    pref_ambient_audio BOOLEAN NOT NULL DEFAULT TRUE,
    pref_emotion_tracking BOOLEAN NOT NULL DEFAULT TRUE,

    stat_total_sessions INTEGER NOT NULL DEFAULT 0,
    stat_total_time_spent INTEGER NOT NULL DEFAULT 0,
    stat_most_common_emotion TEXT,
    stat_last_seen TIMESTAMP,
    stat_avg_session_duration INTEGER NOT NULL DEFAULT 0
);

-- Mood observations: append-only per-identity emotion log. The seq column
-- preserves insertion order for recency queries.
CREATE TABLE IF NOT EXISTS mood_observations (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    identity_id TEXT NOT NULL,
    emotion TEXT NOT NULL,
    confidence REAL,
    context TEXT,
    timestamp TIMESTAMP NOT NULL,

    FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
);

-- Sessions: one row per login; logout_time IS NULL means still open.
CREATE TABLE IF NOT EXISTS sessions (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    identity_id TEXT NOT NULL,
    login_time TIMESTAMP NOT NULL,
    logout_time TIMESTAMP,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    emotions_detected JSONB,
    voice_interactions JSONB,

    FOREIGN KEY (identity_id) REFERENCES identities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_identities_created_at ON identities(created_at);
CREATE INDEX IF NOT EXISTS idx_moods_identity ON mood_observations(identity_id, seq);
CREATE INDEX IF NOT EXISTS idx_moods_timestamp ON mood_observations(timestamp);
CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions(identity_id, seq);
CREATE INDEX IF NOT EXISTS idx_sessions_login_time ON sessions(login_time);
CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(identity_id) WHERE logout_time IS NULL;
`

// MigrationPgvector adds the pgvector column used to pre-order match
// candidates. Only applied when the vector extension is available.
// Safe to run multiple times.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'identities' AND column_name = 'vector_vec'
    ) THEN
        ALTER TABLE identities ADD COLUMN vector_vec vector(128);
    END IF;
END
$$;

-- ivfflat index for approximate nearest-neighbor candidate ordering.
-- ivfflat requires at least one row to exist; guard with a DO block.
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_identities_vec_l2'
  ) THEN
    IF EXISTS (SELECT 1 FROM identities LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_identities_vec_l2 ON identities USING ivfflat (vector_vec vector_l2_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
