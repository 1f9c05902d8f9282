package store

// migration is one schema step. Versions are sequential from 1.
type migration struct {
	version int
	sql     string
}

// The schema uses types understood by both SQLite and Postgres.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS credentials (
	user_id       TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	display_name  TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at    TIMESTAMP NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credentials_access_token ON credentials (access_token);

CREATE TABLE IF NOT EXISTS rules (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	target_folder_id   TEXT NOT NULL,
	target_folder_name TEXT NOT NULL DEFAULT '',
	keywords           TEXT NOT NULL DEFAULT '[]',
	criteria           TEXT NOT NULL DEFAULT '',
	is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rules_user ON rules (user_id);

CREATE TABLE IF NOT EXISTS records (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	message_id         TEXT NOT NULL,
	subject            TEXT NOT NULL DEFAULT '',
	from_address       TEXT NOT NULL DEFAULT '',
	from_name          TEXT NOT NULL DEFAULT '',
	original_folder    TEXT NOT NULL DEFAULT '',
	target_folder      TEXT NOT NULL,
	target_folder_name TEXT NOT NULL DEFAULT '',
	rule_name          TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL,
	classified_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_user_time ON records (user_id, classified_at);
`,
	},
}
