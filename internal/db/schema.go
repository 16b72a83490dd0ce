package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    quantity    INTEGER NOT NULL DEFAULT 0,
    price       TEXT NOT NULL DEFAULT '0',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_visibility (
    item_id  INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    username TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (item_id, username)
);

CREATE INDEX IF NOT EXISTS idx_item_visibility_username
    ON item_visibility(username);

CREATE TABLE IF NOT EXISTS item_history (
    id              INTEGER PRIMARY KEY,
    item_id         INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    price_before    TEXT NOT NULL,
    price_after     TEXT NOT NULL,
    quantity_before INTEGER NOT NULL,
    quantity_after  INTEGER NOT NULL,
    changed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_item_history_item
    ON item_history(item_id, changed_at);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations run after the schema, in order. Each must be idempotent.
// Append new ones at the end.
var migrations = []string{
	// At most one owner per item.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_item_visibility_owner
	     ON item_visibility(item_id) WHERE position = 0`,
}

// EnsureSchema creates all tables and indexes if they don't already exist and
// applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
