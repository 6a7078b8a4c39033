package repos

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"starterkit/internal/domain"
)

// OpenDB connects, creates the schema and seeds default flags.
// driver is "sqlite" or "postgres".
func OpenDB(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// One connection: keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			return nil, err
		}
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if err := seedFlags(db); err != nil {
		return nil, fmt.Errorf("seed flags: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	ts := "TIMESTAMP"
	if db.DriverName() == "postgres" {
		ts = "TIMESTAMPTZ"
	}
	schema := strings.ReplaceAll(`
-- Users & Sessions
CREATE TABLE IF NOT EXISTS users(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('USER','ADMIN')),
  created_at {{ts}} NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(LOWER(email));

CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,               -- same value as the 'sid' cookie
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at {{ts}} NOT NULL,
  last_seen  {{ts}} NOT NULL,
  expires_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

-- Invitations (only the SHA-256 of the token is kept)
CREATE TABLE IF NOT EXISTS invitations(
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  role TEXT NOT NULL CHECK (role IN ('USER','ADMIN')),
  token_hash TEXT NOT NULL UNIQUE,
  invited_by TEXT NOT NULL,
  created_at {{ts}} NOT NULL,
  expires_at {{ts}} NOT NULL,
  accepted_at {{ts}} NULL,
  revoked_at  {{ts}} NULL
);
CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email);

-- Feature flags
CREATE TABLE IF NOT EXISTS feature_flags(
  flag_key TEXT PRIMARY KEY,
  description TEXT NOT NULL DEFAULT '',
  enabled BOOLEAN NOT NULL DEFAULT FALSE,
  rollout_percent INTEGER NOT NULL DEFAULT 100 CHECK (rollout_percent BETWEEN 0 AND 100),
  updated_at {{ts}} NOT NULL
);

-- Contact form
CREATE TABLE IF NOT EXISTS contact_submissions(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  ip_hash TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW','HANDLED')),
  created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contact_status ON contact_submissions(status);

-- Uploads
CREATE TABLE IF NOT EXISTS uploads(
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  storage_key TEXT NOT NULL UNIQUE,
  filename TEXT NOT NULL,
  content_type TEXT NOT NULL,
  size BIGINT NOT NULL CHECK (size >= 0),
  checksum TEXT NOT NULL,
  created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_owner ON uploads(owner_id);

-- Cookie consent audit trail
CREATE TABLE IF NOT EXISTS consent_records(
  id TEXT PRIMARY KEY,
  subject_id TEXT NOT NULL,
  user_id TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
  categories TEXT NOT NULL,
  version TEXT NOT NULL,
  created_at {{ts}} NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consent_subject ON consent_records(subject_id);
`, "{{ts}}", ts)

	// Split so drivers that reject multi-statement Exec still work.
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isComment(stmt) {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

func isComment(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

// seedFlags inserts the flags the app checks for; existing rows are left alone.
func seedFlags(db *sqlx.DB) error {
	flags := []domain.FeatureFlag{
		{Key: "signup", Description: "Public self-service registration", Enabled: true, RolloutPercent: 100},
		{Key: "uploads", Description: "File uploads from the dashboard", Enabled: true, RolloutPercent: 100},
	}
	now := time.Now().UTC()
	for _, f := range flags {
		if _, err := db.Exec(db.Rebind(`
			INSERT INTO feature_flags(flag_key, description, enabled, rollout_percent, updated_at)
			VALUES(?,?,?,?,?)
			ON CONFLICT(flag_key) DO NOTHING
		`), f.Key, f.Description, f.Enabled, f.RolloutPercent, now); err != nil {
			return err
		}
	}
	return nil
}
