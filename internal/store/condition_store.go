package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// ActiveConditions returns the active conditions of a rule in insertion
// order.
func (s *Store) ActiveConditions(ctx context.Context, ruleID uint64) ([]models.SubsidyRuleCondition, error) {
	var conditions []models.SubsidyRuleCondition
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND status = ?", ruleID, models.RuleStatusActive).
		Order("id ASC").
		Find(&conditions).Error
	if err != nil {
		return nil, fmt.Errorf("store: list active conditions: %w", err)
	}
	return conditions, nil
}

// RuleConditions returns every condition of a rule, active or not.
func (s *Store) RuleConditions(ctx context.Context, ruleID uint64) ([]models.SubsidyRuleCondition, error) {
	var conditions []models.SubsidyRuleCondition
	err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("id ASC").
		Find(&conditions).Error
	if err != nil {
		return nil, fmt.Errorf("store: list conditions: %w", err)
	}
	return conditions, nil
}

// CreateCondition attaches a condition to a rule. The rule must exist.
func (s *Store) CreateCondition(ctx context.Context, condition *models.SubsidyRuleCondition) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SubsidyRule{}).
		Where("id = ?", condition.RuleID).Count(&count).Error; err != nil {
		return fmt.Errorf("store: check rule: %w", err)
	}
	if count == 0 {
		return ErrRuleNotFound
	}
	if err := s.db.WithContext(ctx).Create(condition).Error; err != nil {
		return fmt.Errorf("store: create condition: %w", err)
	}
	return nil
}

// Condition returns a single condition by ID.
func (s *Store) Condition(ctx context.Context, conditionID uint64) (*models.SubsidyRuleCondition, error) {
	var condition models.SubsidyRuleCondition
	err := s.db.WithContext(ctx).First(&condition, "id = ?", conditionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConditionNotFound
		}
		return nil, fmt.Errorf("store: load condition: %w", err)
	}
	return &condition, nil
}

// SaveCondition persists every field of an existing condition.
func (s *Store) SaveCondition(ctx context.Context, condition *models.SubsidyRuleCondition) error {
	if err := s.db.WithContext(ctx).Save(condition).Error; err != nil {
		return fmt.Errorf("store: save condition: %w", err)
	}
	return nil
}

// DeleteCondition removes a condition.
func (s *Store) DeleteCondition(ctx context.Context, conditionID uint64) error {
	result := s.db.WithContext(ctx).Delete(&models.SubsidyRuleCondition{}, "id = ?", conditionID)
	if result.Error != nil {
		return fmt.Errorf("store: delete condition: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConditionNotFound
	}
	return nil
}
