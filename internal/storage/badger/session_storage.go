package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) StoreSession(ctx context.Context, session *models.AuthSession) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if session.CapturedAt.IsZero() {
		return fmt.Errorf("session capture timestamp is required")
	}

	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Debug().
		Str("session_id", session.ID).
		Msg("Auth session stored")

	return nil
}

func (s *SessionStorage) GetSession(ctx context.Context, id string) (*models.AuthSession, error) {
	var session models.AuthSession
	if err := s.db.Store().Get(id, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// LatestSession returns the most recently captured session, or nil when the
// store is empty
func (s *SessionStorage) LatestSession(ctx context.Context) (*models.AuthSession, error) {
	var sessions []models.AuthSession
	if err := s.db.Store().Find(&sessions, nil); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	latest := &sessions[0]
	for i := range sessions[1:] {
		if sessions[i+1].CapturedAt.After(latest.CapturedAt) {
			latest = &sessions[i+1]
		}
	}
	return latest, nil
}

func (s *SessionStorage) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.AuthSession{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
