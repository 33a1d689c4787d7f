package sqlite3

import (
	"context"
	"database/sql"
	"time"

	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

type documentsStatements struct {
	db *sql.DB
}

func (s *documentsStatements) findByID(ctx context.Context, documentID string) (storage.Document, error) {
	var d storage.Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id FROM documents WHERE id = ?
	`, documentID).Scan(&d.ID, &d.OwnerID)
	if err != nil {
		return storage.Document{}, err
	}
	return d, nil
}

func (s *store) FindDocumentByID(ctx context.Context, documentID string) (storage.Document, error) {
	return s.documents.findByID(ctx, documentID)
}

type sharesStatements struct {
	db *sql.DB
}

func (s *sharesStatements) findByDocumentAndUser(ctx context.Context, documentID, userID string) (storage.Share, error) {
	var sh storage.Share
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, user_id, permission
		FROM shares
		WHERE document_id = ? AND user_id = ?
	`, documentID, userID).Scan(&sh.DocumentID, &sh.UserID, &sh.Permission)
	if err != nil {
		return storage.Share{}, err
	}
	return sh, nil
}

func (s *store) FindShareByDocumentAndUser(ctx context.Context, documentID, userID string) (storage.Share, error) {
	return s.shares.findByDocumentAndUser(ctx, documentID, userID)
}

type shareLinksStatements struct {
	db *sql.DB
}

func (s *shareLinksStatements) findValid(ctx context.Context, documentID, token string, now time.Time) (storage.ShareLink, error) {
	var (
		link      storage.ShareLink
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, token, permission, expires_at
		FROM share_links
		WHERE document_id = ? AND token = ? AND (expires_at IS NULL OR expires_at > ?)
	`, documentID, token, now).Scan(&link.DocumentID, &link.Token, &link.Permission, &expiresAt)
	if err != nil {
		return storage.ShareLink{}, err
	}
	if expiresAt.Valid {
		link.ExpiresAt = &expiresAt.Time
	}
	return link, nil
}

func (s *store) FindValidShareLink(ctx context.Context, documentID, token string, now time.Time) (storage.ShareLink, error) {
	return s.shareLinks.findValid(ctx, documentID, token, now)
}
