// Package postgres implements storage.Store against a Postgres durable
// store, one statements struct per table.
package postgres

import (
	"database/sql"
	"fmt"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

type store struct {
	db         *sql.DB
	documents  *documentsStatements
	shares     *sharesStatements
	shareLinks *shareLinksStatements
	versions   *versionsStatements
}

// Open connects to a Postgres durable store at dsn. Schema migrations
// are the (out-of-scope) CRUD service's responsibility; Open assumes the
// documents/shares/share_links/versions tables already exist.
func Open(dsn string) (storage.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
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
