// Package storage defines the durable-store queries the relay consumes
// and provides Postgres/SQLite implementations: a shared interface
// package plus one statements package per backend.
package storage

import (
	"context"
	"database/sql"
	"time"
)

// Permission is a resolved access level. Zero value is never valid on
// its own; callers distinguish "no permission" via the resolver's error
// return, not via a Permission value.
type Permission string

const (
	PermissionOwner  Permission = "owner"
	PermissionEditor Permission = "editor"
	PermissionViewer Permission = "viewer"
)

// Document is the subset of document metadata the relay ever reads. It
// never mutates title/owner/timestamps — those belong to the (out of
// scope) CRUD surface.
type Document struct {
	ID      string
	OwnerID string
}

// Share is an explicit (documentId, userId) grant.
type Share struct {
	DocumentID string
	UserID     string
	Permission Permission
}

// ShareLink is a shared, optionally-expiring token granting a role
// without a pre-existing user share row.
type ShareLink struct {
	DocumentID string
	Token      string
	Permission Permission
	ExpiresAt  *time.Time
}

// Version is one immutable, append-only snapshot row.
type Version struct {
	ID         string
	DocumentID string
	AuthorID   string
	Summary    string
	Snapshot   []byte
	CreatedAt  time.Time
}

// Store is everything the relay needs from the durable store: the three
// read queries behind the Access Resolver, plus the two Snapshot Store
// queries. A single interface keeps Room/Resolver code backend-agnostic;
// Postgres and SQLite each provide their own implementation.
type Store interface {
	// FindDocumentByID returns the document, or sql.ErrNoRows if absent.
	FindDocumentByID(ctx context.Context, documentID string) (Document, error)

	// FindShareByDocumentAndUser returns the explicit share row, or
	// sql.ErrNoRows if none exists.
	FindShareByDocumentAndUser(ctx context.Context, documentID, userID string) (Share, error)

	// FindValidShareLink returns a share-link row matching the token
	// whose ExpiresAt is nil or strictly after now, or sql.ErrNoRows.
	FindValidShareLink(ctx context.Context, documentID, token string, now time.Time) (ShareLink, error)

	// FindLatestVersion returns the most recent version by CreatedAt, or
	// sql.ErrNoRows if the document has never been snapshotted.
	FindLatestVersion(ctx context.Context, documentID string) (Version, error)

	// CreateVersion appends an immutable snapshot row.
	CreateVersion(ctx context.Context, documentID, authorID, summary string, snapshot []byte) (Version, error)

	Close() error
}

// IsNotFound reports whether err is the "no row matched" sentinel every
// Store method uses for a missing row.
func IsNotFound(err error) bool {
	return err == sql.ErrNoRows
}
