package sqlite3

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

type versionsStatements struct {
	db *sql.DB
}

func (s *versionsStatements) findLatest(ctx context.Context, documentID string) (storage.Version, error) {
	var v storage.Version
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, author_id, summary, snapshot, created_at
		FROM versions
		WHERE document_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, documentID).Scan(&v.ID, &v.DocumentID, &v.AuthorID, &v.Summary, &v.Snapshot, &v.CreatedAt)
	if err != nil {
		return storage.Version{}, err
	}
	return v, nil
}

func (s *versionsStatements) create(ctx context.Context, documentID, authorID, summary string, snapshot []byte) (storage.Version, error) {
	v := storage.Version{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		AuthorID:   authorID,
		Summary:    summary,
		Snapshot:   snapshot,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO versions (id, document_id, author_id, summary, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.DocumentID, v.AuthorID, v.Summary, v.Snapshot, v.CreatedAt)
	if err != nil {
		return storage.Version{}, err
	}
	return v, nil
}

func (s *store) FindLatestVersion(ctx context.Context, documentID string) (storage.Version, error) {
	return s.versions.findLatest(ctx, documentID)
}

func (s *store) CreateVersion(ctx context.Context, documentID, authorID, summary string, snapshot []byte) (storage.Version, error) {
	return s.versions.create(ctx, documentID, authorID, summary, snapshot)
}
