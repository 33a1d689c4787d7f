// Package storagetest provides an in-memory storage.Store for tests,
// standing in for a real database in internal/access and internal/snapshot
// unit tests without bringing up Postgres or SQLite.
package storagetest

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tanvirul-I/Collab-Notes/internal/storage"
)

// Store is a minimal, mutex-guarded in-memory storage.Store.
type Store struct {
	mu         sync.Mutex
	documents  map[string]storage.Document
	shares     map[string]storage.Share // key: documentID+"/"+userID
	shareLinks map[string]storage.ShareLink // key: documentID+"/"+token
	versions   map[string][]storage.Version // key: documentID, newest last
	CreateErr  error
	LoadErr    error
}

// New returns an empty fake store.
func New() *Store {
	return &Store{
		documents:  make(map[string]storage.Document),
		shares:     make(map[string]storage.Share),
		shareLinks: make(map[string]storage.ShareLink),
		versions:   make(map[string][]storage.Version),
	}
}

// PutDocument seeds a document row.
func (s *Store) PutDocument(d storage.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
}

// PutShare seeds an explicit share row.
func (s *Store) PutShare(sh storage.Share) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[sh.DocumentID+"/"+sh.UserID] = sh
}

// PutShareLink seeds a share-link row.
func (s *Store) PutShareLink(l storage.ShareLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shareLinks[l.DocumentID+"/"+l.Token] = l
}

func (s *Store) FindDocumentByID(_ context.Context, documentID string) (storage.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return storage.Document{}, s.LoadErr
	}
	d, ok := s.documents[documentID]
	if !ok {
		return storage.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (s *Store) FindShareByDocumentAndUser(_ context.Context, documentID, userID string) (storage.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shares[documentID+"/"+userID]
	if !ok {
		return storage.Share{}, sql.ErrNoRows
	}
	return sh, nil
}

func (s *Store) FindValidShareLink(_ context.Context, documentID, token string, now time.Time) (storage.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.shareLinks[documentID+"/"+token]
	if !ok {
		return storage.ShareLink{}, sql.ErrNoRows
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return storage.ShareLink{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) FindLatestVersion(_ context.Context, documentID string) (storage.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[documentID]
	if len(vs) == 0 {
		return storage.Version{}, sql.ErrNoRows
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].CreatedAt.Before(vs[j].CreatedAt) })
	return vs[len(vs)-1], nil
}

func (s *Store) CreateVersion(_ context.Context, documentID, authorID, summary string, snapshot []byte) (storage.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return storage.Version{}, s.CreateErr
	}
	v := storage.Version{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		AuthorID:   authorID,
		Summary:    summary,
		Snapshot:   snapshot,
		CreatedAt:  time.Now(),
	}
	s.versions[documentID] = append(s.versions[documentID], v)
	return v, nil
}

// Versions returns a copy of every version stored for documentID, oldest
// first, for assertions in tests.
func (s *Store) Versions(documentID string) []storage.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Version, len(s.versions[documentID]))
	copy(out, s.versions[documentID])
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Close() error { return nil }
