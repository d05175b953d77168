package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/campuspay/subsidy-engine/internal/db"
	"github.com/campuspay/subsidy-engine/internal/models"
)

func openTestService(t *testing.T) (*GormService, *gorm.DB) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormService(conn), conn
}

func seedAccount(t *testing.T, conn *gorm.DB, userID uint64, amount float64, status models.AccountStatus) {
	t.Helper()
	account := models.Account{UserID: userID, Balance: amount, Status: status}
	if errCreate := conn.Create(&account).Error; errCreate != nil {
		t.Fatalf("seed account: %v", errCreate)
	}
}

func TestDeductAndRefund(t *testing.T) {
	service, conn := openTestService(t)
	seedAccount(t, conn, 1001, 100, models.AccountStatusNormal)

	if err := service.Deduct(context.Background(), 1001, 30); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	got, err := service.Balance(context.Background(), 1001)
	if err != nil || got != 70 {
		t.Fatalf("balance = %v (%v), want 70", got, err)
	}

	if err = service.Refund(context.Background(), 1001, 10, "consumption refund"); err != nil {
		t.Fatalf("refund: %v", err)
	}
	got, _ = service.Balance(context.Background(), 1001)
	if got != 80 {
		t.Fatalf("balance = %v, want 80", got)
	}
}

func TestDeductInsufficientBalance(t *testing.T) {
	service, conn := openTestService(t)
	seedAccount(t, conn, 1001, 10, models.AccountStatusNormal)

	err := service.Deduct(context.Background(), 1001, 30)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	got, _ := service.Balance(context.Background(), 1001)
	if got != 10 {
		t.Fatalf("balance mutated on failed deduct: %v", got)
	}
}

func TestDeductFrozenAccount(t *testing.T) {
	service, conn := openTestService(t)
	seedAccount(t, conn, 1001, 100, models.AccountStatusFrozen)

	if err := service.Deduct(context.Background(), 1001, 10); !errors.Is(err, ErrAccountFrozen) {
		t.Fatalf("err = %v, want ErrAccountFrozen", err)
	}
}

func TestDeductMissingAccount(t *testing.T) {
	service, _ := openTestService(t)

	if err := service.Deduct(context.Background(), 9999, 10); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestDeductInvalidAndZeroAmounts(t *testing.T) {
	service, conn := openTestService(t)
	seedAccount(t, conn, 1001, 100, models.AccountStatusNormal)

	if err := service.Deduct(context.Background(), 1001, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if err := service.Deduct(context.Background(), 1001, 0); err != nil {
		t.Fatalf("zero deduct must be a no-op, got %v", err)
	}
	got, _ := service.Balance(context.Background(), 1001)
	if got != 100 {
		t.Fatalf("balance = %v, want 100", got)
	}
}
