package models

import "time"

// AccountStatus defines whether an account can be charged.
type AccountStatus int

// AccountStatus constants.
const (
	// AccountStatusFrozen blocks all balance mutations.
	AccountStatusFrozen AccountStatus = 0
	// AccountStatusNormal allows balance mutations.
	AccountStatusNormal AccountStatus = 1
)

// Account holds a user's spendable balance. The rule engine never
// touches this table; only the balance service does.
type Account struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	UserID uint64 `gorm:"not null;uniqueIndex"`     // Owning user.

	Balance float64 `gorm:"type:decimal(12,2);not null;default:0"` // Spendable balance.

	Status AccountStatus `gorm:"not null;default:1"` // Frozen/normal flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Account) TableName() string { return "consume_account" }
