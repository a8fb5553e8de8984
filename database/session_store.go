package database

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/princinho/userdirectory/models"
)

// sweepInterval bounds how often Create scans the whole store for dead sessions.
const sweepInterval = time.Minute

// MemorySessionStore keeps sessions in process memory. It is the default store.
// Revoked and expired records stay readable until the next prune, which runs
// for the owning user on every Create and for the whole store at most once per
// sweepInterval.
type MemorySessionStore struct {
	mu        sync.Mutex
	byID      map[string]*models.SessionRecord
	byRefresh map[string]string
	byUser    map[int64]map[string]struct{}
	lastSweep time.Time
	now       func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byID:      make(map[string]*models.SessionRecord),
		byRefresh: make(map[string]string),
		byUser:    make(map[int64]map[string]struct{}),
		now:       time.Now,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, session models.SessionRecord) error {
	if strings.TrimSpace(session.ID) == "" || session.RefreshHash == "" || session.UserID <= 0 {
		return models.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweepLocked(now)
		s.lastSweep = now
	} else {
		s.pruneUserLocked(session.UserID, now)
	}

	rec := session
	s.byID[rec.ID] = &rec
	s.byRefresh[rec.RefreshHash] = rec.ID
	ids, ok := s.byUser[rec.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[rec.UserID] = ids
	}
	ids[rec.ID] = struct{}{}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}
	return *rec, nil
}

func (s *MemorySessionStore) GetByRefreshHash(_ context.Context, refreshHash string) (models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRefresh[refreshHash]
	if !ok {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}
	return *s.byID[id], nil
}

// Rotate swaps the refresh hash of a session. The old hash must still be the
// current one, so two concurrent refreshes with the same token cannot both win.
func (s *MemorySessionStore) Rotate(_ context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[sessionID]
	if !ok || rec.RefreshHash != oldHash || rec.RevokedAt != nil {
		return models.ErrSessionNotFound
	}
	delete(s.byRefresh, oldHash)
	rec.RefreshHash = newHash
	rec.ExpiresAt = expiresAt
	s.byRefresh[newHash] = sessionID
	return nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[sessionID]
	if !ok {
		return nil
	}
	s.revokeLocked(rec)
	return nil
}

func (s *MemorySessionStore) RevokeAllForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.byUser[userID] {
		s.revokeLocked(s.byID[id])
	}
	return nil
}

func (s *MemorySessionStore) revokeLocked(rec *models.SessionRecord) {
	if rec.RevokedAt == nil {
		now := s.now().UTC()
		rec.RevokedAt = &now
	}
	delete(s.byRefresh, rec.RefreshHash)
}

func (s *MemorySessionStore) pruneUserLocked(userID int64, now time.Time) {
	for id := range s.byUser[userID] {
		if rec := s.byID[id]; !rec.Active(now) {
			s.deleteLocked(rec)
		}
	}
}

func (s *MemorySessionStore) sweepLocked(now time.Time) {
	for _, rec := range s.byID {
		if !rec.Active(now) {
			s.deleteLocked(rec)
		}
	}
}

func (s *MemorySessionStore) deleteLocked(rec *models.SessionRecord) {
	delete(s.byID, rec.ID)
	if s.byRefresh[rec.RefreshHash] == rec.ID {
		delete(s.byRefresh, rec.RefreshHash)
	}
	if ids := s.byUser[rec.UserID]; ids != nil {
		delete(ids, rec.ID)
		if len(ids) == 0 {
			delete(s.byUser, rec.UserID)
		}
	}
}
