package models

import "time"

// ExecutionStatus marks the outcome of one ExecuteRule call.
type ExecutionStatus int

// ExecutionStatus constants.
const (
	// ExecutionSuccess means the calculation completed without error.
	ExecutionSuccess ExecutionStatus = 1
	// ExecutionFailed means the calculation produced an error result.
	ExecutionFailed ExecutionStatus = 2
)

// SubsidyRuleLog is an append-only audit row written for every
// ExecuteRule call, matched or not, successful or not. Rows are
// created once and never mutated.
type SubsidyRuleLog struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	LogUUID string `gorm:"size:36;not null;uniqueIndex"` // External identifier.

	RuleID   *uint64 `gorm:"index"`    // Matched rule; nil when no rule matched.
	RuleCode string  `gorm:"size:64"`  // Matched rule code.
	RuleName string  `gorm:"size:128"` // Matched rule name.

	ConsumeID uint64 `gorm:"not null;index"` // Consumption event the call was made for.
	UserID    uint64 `gorm:"not null;index"` // Consuming user.
	DeviceID  uint64 `gorm:"not null"`       // Device the consumption happened on.

	ConsumeAmount float64   `gorm:"type:decimal(12,2);not null"` // Input amount.
	ConsumeTime   time.Time `gorm:"not null"`                    // Input event time.

	SubsidyAmount     float64 `gorm:"type:decimal(12,2);not null"` // Computed subsidy.
	CalculationDetail string  `gorm:"size:512"`                    // Human-readable trace.

	ExecutionStatus ExecutionStatus `gorm:"not null"` // Success/failed marker.
	ErrorMessage    string          `gorm:"size:512"` // Failure description, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (SubsidyRuleLog) TableName() string { return "subsidy_rule_log" }
