package sqlstore

const schemaVersion = 1

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL DEFAULT '',
		external_id TEXT UNIQUE,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS habits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'General',
		color TEXT NOT NULL,
		reminder_time TEXT,
		streak INTEGER NOT NULL DEFAULT 0,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS habits_by_user ON habits(user_id)`,
	`CREATE TABLE IF NOT EXISTS habit_completions (
		habit_id INTEGER NOT NULL REFERENCES habits(id),
		completed_on TEXT NOT NULL,
		PRIMARY KEY (habit_id, completed_on)
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		key_hash TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at INTEGER NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL DEFAULT '',
		external_id TEXT UNIQUE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS habits (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'General',
		color TEXT NOT NULL,
		reminder_time TEXT,
		streak INTEGER NOT NULL DEFAULT 0,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS habits_by_user ON habits(user_id)`,
	`CREATE TABLE IF NOT EXISTS habit_completions (
		habit_id BIGINT NOT NULL REFERENCES habits(id),
		completed_on DATE NOT NULL,
		PRIMARY KEY (habit_id, completed_on)
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		key_hash TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		created_at BIGINT NOT NULL
	)`,
}
