package models

import (
	"time"

	"gorm.io/datatypes"
)

// RuleType defines how a subsidy amount is calculated.
type RuleType int

// RuleType constants define calculation strategies.
const (
	// RuleTypeFixed grants a fixed amount.
	RuleTypeFixed RuleType = 1
	// RuleTypeRatePercentage grants a fraction of the consume amount.
	RuleTypeRatePercentage RuleType = 2
	// RuleTypeTiered grants a rate depending on amount thresholds.
	RuleTypeTiered RuleType = 3
	// RuleTypeTimeLimited grants a fixed amount inside a daily time window.
	RuleTypeTimeLimited RuleType = 4
)

// RuleStatus defines whether a rule participates in matching.
type RuleStatus int

// RuleStatus constants.
const (
	// RuleStatusInactive excludes the rule from matching.
	RuleStatusInactive RuleStatus = 0
	// RuleStatusActive includes the rule in matching.
	RuleStatusActive RuleStatus = 1
)

// ApplyTimeType restricts which days a rule applies to.
type ApplyTimeType int

// ApplyTimeType constants.
const (
	// ApplyTimeAll applies every day.
	ApplyTimeAll ApplyTimeType = 1
	// ApplyTimeWeekday applies Monday through Friday.
	ApplyTimeWeekday ApplyTimeType = 2
	// ApplyTimeWeekend applies Saturday and Sunday.
	ApplyTimeWeekend ApplyTimeType = 3
	// ApplyTimeCustom applies on the weekdays listed in ApplyDays.
	ApplyTimeCustom ApplyTimeType = 4
)

// Tier is one step of a tiered rate schedule. Tiers are stored in the
// order administrators configure them; evaluation picks the first tier
// whose MinAmount is met, so the list must be kept in descending
// MinAmount order for "highest qualifying tier" behavior.
type Tier struct {
	MinAmount float64 `json:"minAmount"` // Inclusive qualifying threshold.
	Rate      float64 `json:"rate"`      // Subsidy rate applied to the full amount.
}

// SubsidyRule is a configured subsidy policy.
type SubsidyRule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RuleCode string `gorm:"size:64;not null;uniqueIndex"` // Unique rule code.
	RuleName string `gorm:"size:128;not null"`            // Display name.

	SubsidyType int        `gorm:"not null;index"`          // Subsidy category the rule belongs to.
	RuleType    RuleType   `gorm:"not null"`                // Calculation strategy.
	Status      RuleStatus `gorm:"not null;default:1"`      // Active/inactive flag.
	Priority    int        `gorm:"not null;default:0;index"` // Higher priority is evaluated first.

	EffectiveDate time.Time  `gorm:"not null"` // Start of the validity window.
	ExpireDate    *time.Time // End of the validity window; nil means never expires.

	ApplyTimeType  ApplyTimeType `gorm:"not null;default:1"` // Day restriction mode.
	ApplyDays      string        `gorm:"size:32"`            // CSV of ISO weekday numbers, Custom mode only.
	ApplyStartTime *string       `gorm:"size:8"`             // Daily window start "HH:MM"; nil means unrestricted.
	ApplyEndTime   *string       `gorm:"size:8"`             // Daily window end "HH:MM"; nil means unrestricted.
	ApplyMealTypes string        `gorm:"size:64"`            // CSV of meal-type codes; empty means unrestricted.

	SubsidyAmount    *float64       `gorm:"type:decimal(12,2)"` // Fixed/TimeLimited amount.
	SubsidyRate      *float64       `gorm:"type:decimal(8,4)"`  // RatePercentage fraction.
	MaxSubsidyAmount *float64       `gorm:"type:decimal(12,2)"` // Cap; nil means uncapped.
	TierConfig       datatypes.JSON `gorm:"type:json"`          // Ordered []Tier for Tiered rules.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (SubsidyRule) TableName() string { return "subsidy_rule" }
