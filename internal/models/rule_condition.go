package models

import "time"

// Condition type names understood by the evaluator. Unknown types
// evaluate permissively so a missing implementation can never lock
// subsidies out.
const (
	// ConditionUserGroup requires the user to belong to one of the listed groups.
	ConditionUserGroup = "user_group"
	// ConditionDepartment requires the user's department to be listed.
	ConditionDepartment = "department"
	// ConditionArea requires the device's area to be listed.
	ConditionArea = "area"
	// ConditionDevice requires the device itself to be listed.
	ConditionDevice = "device"
	// ConditionAmountRange requires the consume amount to fall in a range.
	ConditionAmountRange = "amount_range"
	// ConditionExpression evaluates a boolean expression over the input.
	ConditionExpression = "expression"
)

// SubsidyRuleCondition is an auxiliary predicate attached to a rule.
// All active conditions of a rule must hold for the rule to match.
type SubsidyRuleCondition struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.
	RuleID uint64 `gorm:"not null;index"`           // Owning rule.

	ConditionType  string `gorm:"size:32;not null"`   // Predicate type, see Condition* constants.
	ConditionValue string `gorm:"size:1024;not null"` // Comparison payload; format depends on the type.

	Status RuleStatus `gorm:"not null;default:1"` // Inactive conditions are ignored.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (SubsidyRuleCondition) TableName() string { return "subsidy_rule_condition" }
