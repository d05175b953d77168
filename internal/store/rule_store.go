package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/campuspay/subsidy-engine/internal/db"
	"github.com/campuspay/subsidy-engine/internal/models"
)

// RuleFilter narrows ListRules. Zero values mean "no restriction".
type RuleFilter struct {
	SubsidyType *int
	Status      *models.RuleStatus
	RuleType    *models.RuleType
	Keyword     string // Matches rule code or rule name, case-insensitive.
}

// EffectiveRulesBySubsidyType returns active rules of a subsidy type
// whose validity window contains now, highest priority first. Ties
// break on ascending ID so the ordering is deterministic.
func (s *Store) EffectiveRulesBySubsidyType(ctx context.Context, subsidyType int, now time.Time) ([]models.SubsidyRule, error) {
	var rules []models.SubsidyRule
	err := s.db.WithContext(ctx).
		Where("subsidy_type = ? AND status = ?", subsidyType, models.RuleStatusActive).
		Where("effective_date <= ?", now).
		Where("expire_date IS NULL OR expire_date >= ?", now).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("store: list effective rules: %w", err)
	}
	return rules, nil
}

// EffectiveRules returns all active rules valid at now, highest
// priority first.
func (s *Store) EffectiveRules(ctx context.Context, now time.Time) ([]models.SubsidyRule, error) {
	var rules []models.SubsidyRule
	err := s.db.WithContext(ctx).
		Where("status = ?", models.RuleStatusActive).
		Where("effective_date <= ?", now).
		Where("expire_date IS NULL OR expire_date >= ?", now).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("store: list effective rules: %w", err)
	}
	return rules, nil
}

// RulesBySubsidyType returns every rule of a subsidy type regardless of
// status or validity, highest priority first.
func (s *Store) RulesBySubsidyType(ctx context.Context, subsidyType int) ([]models.SubsidyRule, error) {
	var rules []models.SubsidyRule
	err := s.db.WithContext(ctx).
		Where("subsidy_type = ?", subsidyType).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("store: list rules by type: %w", err)
	}
	return rules, nil
}

// ListRules returns rules matching the filter, highest priority first.
func (s *Store) ListRules(ctx context.Context, filter RuleFilter) ([]models.SubsidyRule, error) {
	query := s.db.WithContext(ctx).Model(&models.SubsidyRule{})
	if filter.SubsidyType != nil {
		query = query.Where("subsidy_type = ?", *filter.SubsidyType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RuleType != nil {
		query = query.Where("rule_type = ?", *filter.RuleType)
	}
	if filter.Keyword != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+filter.Keyword+"%")
		query = query.Where(
			fmt.Sprintf("%s OR %s",
				db.CaseInsensitiveLikeExpr(s.db, "rule_code"),
				db.CaseInsensitiveLikeExpr(s.db, "rule_name")),
			pattern, pattern,
		)
	}

	var rules []models.SubsidyRule
	if err := query.Order("priority DESC, id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("store: list rules: %w", err)
	}
	return rules, nil
}

// Rule returns a single rule by ID.
func (s *Store) Rule(ctx context.Context, ruleID uint64) (*models.SubsidyRule, error) {
	var rule models.SubsidyRule
	err := s.db.WithContext(ctx).First(&rule, "id = ?", ruleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("store: load rule: %w", err)
	}
	return &rule, nil
}

// RuleByCode returns a single rule by its unique code.
func (s *Store) RuleByCode(ctx context.Context, ruleCode string) (*models.SubsidyRule, error) {
	var rule models.SubsidyRule
	err := s.db.WithContext(ctx).First(&rule, "rule_code = ?", ruleCode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("store: load rule by code: %w", err)
	}
	return &rule, nil
}

// CreateRule inserts a new rule. Rule codes are unique; a duplicate
// returns ErrDuplicateRuleCode.
func (s *Store) CreateRule(ctx context.Context, rule *models.SubsidyRule) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SubsidyRule{}).
		Where("rule_code = ?", rule.RuleCode).Count(&count).Error; err != nil {
		return fmt.Errorf("store: check rule code: %w", err)
	}
	if count > 0 {
		return ErrDuplicateRuleCode
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("store: create rule: %w", err)
	}
	return nil
}

// SaveRule persists every field of an existing rule.
func (s *Store) SaveRule(ctx context.Context, rule *models.SubsidyRule) error {
	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return fmt.Errorf("store: save rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule and its conditions. Audit logs and subsidy
// records keep their rule references; history is never rewritten.
func (s *Store) DeleteRule(ctx context.Context, ruleID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.SubsidyRule{}, "id = ?", ruleID)
		if result.Error != nil {
			return fmt.Errorf("store: delete rule: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrRuleNotFound
		}
		if err := tx.Delete(&models.SubsidyRuleCondition{}, "rule_id = ?", ruleID).Error; err != nil {
			return fmt.Errorf("store: delete rule conditions: %w", err)
		}
		return nil
	})
}

// SetRuleStatus updates a rule's status; found is false when no row
// matched the ID.
func (s *Store) SetRuleStatus(ctx context.Context, ruleID uint64, status models.RuleStatus) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.SubsidyRule{}).
		Where("id = ?", ruleID).
		Update("status", status)
	if result.Error != nil {
		return false, fmt.Errorf("store: set rule status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// SetRulePriority updates a rule's priority; found is false when no
// row matched the ID.
func (s *Store) SetRulePriority(ctx context.Context, ruleID uint64, priority int) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.SubsidyRule{}).
		Where("id = ?", ruleID).
		Update("priority", priority)
	if result.Error != nil {
		return false, fmt.Errorf("store: set rule priority: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
