// Package repotest provides an in-memory SQLite database carrying the
// service schema, for tests of code that talks to the repositories.
package repotest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite mirror of migrations/001_init.sql. JSON columns are BLOBs so they
// scan into json.RawMessage.
const schema = `
CREATE TABLE subscriptions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid       TEXT NOT NULL UNIQUE,
    scope      TEXT NOT NULL,
    url        TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE TABLE subscription_topics (
    subscription_id INTEGER NOT NULL,
    topic           TEXT NOT NULL,
    UNIQUE (subscription_id, topic)
);
CREATE TABLE subscription_secrets (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    subscription_id INTEGER NOT NULL,
    token           TEXT NOT NULL,
    created_at      DATETIME NOT NULL
);
CREATE TABLE webhook_deliveries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    subscription_id INTEGER NULL,
    scope           TEXT NOT NULL DEFAULT '',
    delivery_id     TEXT NOT NULL,
    payload         BLOB NOT NULL,
    status          TEXT NOT NULL,
    url             TEXT NOT NULL,
    topic           TEXT NOT NULL,
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT NULL,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);
CREATE TABLE activity_log (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    scope          TEXT NOT NULL,
    action_type    TEXT NOT NULL,
    content_type   TEXT NOT NULL DEFAULT '',
    object_id      TEXT NOT NULL DEFAULT '',
    actor_code     TEXT NULL,
    actor_name     TEXT NULL,
    is_orga_action BOOLEAN NOT NULL DEFAULT 0,
    data           BLOB NULL,
    timestamp      DATETIME NOT NULL
);
`

// NewSQLite opens a fresh in-memory database with the schema applied and
// closes it when the test ends.
func NewSQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one connection keeps the in-memory database alive and shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
