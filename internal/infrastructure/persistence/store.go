package persistence

import (
	"sync"

	"gorm.io/gorm"

	"github.com/evalgate/evalgate/internal/domain/repository"
)

// Store is the single transactional gateway to the relational store.
// Model workers write concurrently; a store-level mutex serializes writes so
// SQLite never sees competing write transactions. Reads go straight to the
// WAL-journaled database and do not take the lock.
type Store struct {
	db *gorm.DB
	mu sync.Mutex // serializes write transactions
}

var _ repository.EngineStore = (*Store)(nil)

// NewStore wraps an open database connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// write runs fn under the write lock.
func (s *Store) write(fn func(db *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db)
}

// writeTx runs fn in a transaction under the write lock.
func (s *Store) writeTx(fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Transaction(fn)
}

// cascadeTx runs fn in a transaction with foreign-key enforcement disabled
// for the duration. Re-enabling is deferred so it happens on every exit
// path, including rollback and panic. Postgres deployments rely on the
// explicit child-first delete order instead of the pragma.
func (s *Store) cascadeTx(fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqliteDialect := s.db.Dialector.Name() == "sqlite"
	if sqliteDialect {
		if err := s.db.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
			return err
		}
		defer s.db.Exec("PRAGMA foreign_keys = ON")
	}

	return s.db.Transaction(fn)
}
