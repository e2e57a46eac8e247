package model

// SQLiteSchema creates the tables behind Snippet and User.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS snippets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	code        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	owner_token TEXT NOT NULL,
	user_id     INTEGER REFERENCES users(id),
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	deleted_at  DATETIME
);
CREATE INDEX IF NOT EXISTS idx_snippets_created_at ON snippets(created_at);

CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	login      TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL DEFAULT '',
	password   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`
