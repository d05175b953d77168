// Package balance mutates consume accounts. All mutations run inside a
// transaction with the account row locked, so concurrent settlements
// of the same user serialize at the database.
package balance

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// Errors returned by balance operations.
var (
	ErrAccountNotFound     = errors.New("balance: account not found")
	ErrAccountFrozen       = errors.New("balance: account frozen")
	ErrInsufficientBalance = errors.New("balance: insufficient balance")
	ErrInvalidAmount       = errors.New("balance: invalid amount")
)

// Service mutates a user's spendable balance.
type Service interface {
	// Deduct removes amount from the user's balance.
	Deduct(ctx context.Context, userID uint64, amount float64) error
	// Refund returns amount to the user's balance, annotated with a
	// human-readable reason for the audit trail.
	Refund(ctx context.Context, userID uint64, amount float64, reason string) error
	// Balance returns the user's current balance.
	Balance(ctx context.Context, userID uint64) (float64, error)
}

// GormService is the database-backed Service.
type GormService struct {
	db *gorm.DB
}

// NewGormService wraps an open gorm handle.
func NewGormService(db *gorm.DB) *GormService {
	return &GormService{db: db}
}

// Deduct removes amount from the user's balance. A zero amount is a
// no-op; negative amounts are rejected.
func (s *GormService) Deduct(ctx context.Context, userID uint64, amount float64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrInsufficientBalance
		}
		account.Balance -= amount
		if errSave := tx.Save(account).Error; errSave != nil {
			return fmt.Errorf("balance: save account: %w", errSave)
		}
		return nil
	})
}

// Refund returns amount to the user's balance. A zero amount is a
// no-op; negative amounts are rejected.
func (s *GormService) Refund(ctx context.Context, userID uint64, amount float64, reason string) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		account.Balance += amount
		if errSave := tx.Save(account).Error; errSave != nil {
			return fmt.Errorf("balance: save account: %w", errSave)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  amount,
		"reason":  reason,
	}).Info("balance refunded")
	return nil
}

// Balance returns the user's current balance without locking.
func (s *GormService) Balance(ctx context.Context, userID uint64) (float64, error) {
	var account models.Account
	err := s.db.WithContext(ctx).First(&account, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("balance: load account: %w", err)
	}
	return account.Balance, nil
}

// lockAccount loads the account row under FOR UPDATE and rejects
// frozen accounts.
func lockAccount(tx *gorm.DB, userID uint64) (*models.Account, error) {
	var account models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("balance: lock account: %w", err)
	}
	if account.Status != models.AccountStatusNormal {
		return nil, ErrAccountFrozen
	}
	return &account, nil
}
