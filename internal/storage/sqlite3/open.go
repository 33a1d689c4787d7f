// Package sqlite3 implements storage.Store against a SQLite durable
// store, mirroring the postgres package's layout.
package sqlite3

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

type store struct {
	db         *sql.DB
	documents  *documentsStatements
	shares     *sharesStatements
	shareLinks *shareLinksStatements
	versions   *versionsStatements
}

// schema is applied with CREATE TABLE IF NOT EXISTS on Open. Unlike
// Postgres (which in production already has these tables from the
// out-of-scope CRUD service's own migrations), SQLite deployments are
// typically single-file/dev/test setups where no other component has
// created the schema, so Open is also responsible for making sure it
// exists. This is a convenience, not a migration framework; the relay
// otherwise stays out of the schema-migration business.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS shares (
	document_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	permission TEXT NOT NULL,
	PRIMARY KEY (document_id, user_id)
);
CREATE TABLE IF NOT EXISTS share_links (
	document_id TEXT NOT NULL,
	token TEXT NOT NULL,
	permission TEXT NOT NULL,
	expires_at DATETIME,
	PRIMARY KEY (document_id, token)
);
CREATE TABLE IF NOT EXISTS versions (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	snapshot BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_versions_document_created
	ON versions (document_id, created_at DESC);
`

// Open connects to (and, if needed, initializes) a SQLite durable store
// at dsn, e.g. "file:relay.db?_busy_timeout=5000".
func Open(dsn string) (storage.Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite3: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite3: migrate: %w", err)
	}
	return &store{
		db:         db,
		documents:  &documentsStatements{db: db},
		shares:     &sharesStatements{db: db},
		shareLinks: &shareLinksStatements{db: db},
		versions:   &versionsStatements{db: db},
	}, nil
}

func (s *store) Close() error { return s.db.Close() }
