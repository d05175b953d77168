// Package store provides the gorm-backed persistence layer for subsidy
// rules, conditions, audit logs, and subsidy records. It implements
// engine.RuleSource and the administrative operations the HTTP layer
// needs.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// Sentinel errors returned by lookup and mutation operations. Callers
// test them with errors.Is.
var (
	ErrRuleNotFound      = errors.New("store: rule not found")
	ErrConditionNotFound = errors.New("store: condition not found")
	ErrDuplicateRuleCode = errors.New("store: rule code already exists")
	ErrRecordNotFound    = errors.New("store: subsidy record not found")
	ErrRecordReversed    = errors.New("store: subsidy record already reversed")
)

// Store is the single persistence handle shared by the engine and the
// HTTP layer. It is safe for concurrent use; gorm manages the
// underlying connection pool.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}
