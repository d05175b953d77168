package models

import "time"

// RecordStatus marks the ledger state of a granted subsidy.
type RecordStatus int

// RecordStatus constants.
const (
	// RecordStatusGranted means the subsidy was granted.
	RecordStatusGranted RecordStatus = 1
	// RecordStatusReversed means the grant was later reversed.
	RecordStatusReversed RecordStatus = 2
)

// UserSubsidyRecord is a ledger row created only when a rule matched
// and computed a positive subsidy. The engine appends rows; the only
// later mutation is a grant reversal flipping Status to reversed.
type UserSubsidyRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	RecordUUID string `gorm:"size:36;not null;uniqueIndex"` // External identifier.

	UserID      uint64 `gorm:"not null;index"` // Subsidized user.
	SubsidyType int    `gorm:"not null;index"` // Subsidy category.

	SubsidyAmount float64 `gorm:"type:decimal(12,2);not null"` // Granted amount.
	ConsumeAmount float64 `gorm:"type:decimal(12,2);not null"` // Original consume amount.

	RuleID   uint64 `gorm:"not null;index"` // Rule that produced the grant.
	RuleCode string `gorm:"size:64"`        // Rule code snapshot.

	ConsumeID uint64 `gorm:"not null;index"` // Consumption event.
	DeviceID  uint64 `gorm:"not null"`       // Device the consumption happened on.
	MealType  int    `gorm:"not null"`       // Meal-type code of the event.

	SubsidyDate time.Time `gorm:"not null;index"` // Calendar date of the grant.
	ConsumeTime time.Time `gorm:"not null"`       // Event timestamp.

	Status RecordStatus `gorm:"not null;default:1"` // Ledger state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (UserSubsidyRecord) TableName() string { return "user_subsidy_record" }
