package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

// pragmas are applied to every pooled connection through the DSN, so
// foreign key cascades hold no matter which connection runs a statement.
var pragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// Open opens a SQLite database. The special path ":memory:" opens a private
// in-memory database limited to a single connection.
func Open(path string) (*sql.DB, error) {
	memory := path == ":memory:"

	params := url.Values{}
	for _, p := range pragmas {
		params.Add("_pragma", p)
	}
	if !memory {
		params.Add("_pragma", "journal_mode(WAL)")
	}

	dsn := "file:" + path
	if memory {
		dsn = "file::memory:"
	}
	dsn += "?" + params.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every new connection to :memory: would see an empty database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}

	return db, nil
}
