package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
)

// Manager owns the Badger connection and the typed stores built on it
type Manager struct {
	db             *BadgerDB
	sessionStorage interfaces.SessionStorage
	resultStorage  interfaces.ResultStorage
	logger         arbor.ILogger
}

// NewManager opens the database and wires the typed stores
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:             db,
		sessionStorage: NewSessionStorage(db, logger),
		resultStorage:  NewResultStorage(db, logger),
		logger:         logger,
	}, nil
}

// SessionStorage returns the AuthSession store
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.sessionStorage
}

// ResultStorage returns the run/suite/result store
func (m *Manager) ResultStorage() interfaces.ResultStorage {
	return m.resultStorage
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
