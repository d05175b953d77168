package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// LogFilter narrows ListLogs. Nil fields mean "no restriction".
type LogFilter struct {
	UserID    *uint64
	RuleID    *uint64
	ConsumeID *uint64
	Status    *models.ExecutionStatus
	Since     *time.Time
	Until     *time.Time
}

// RecordFilter narrows ListRecords. Nil fields mean "no restriction".
type RecordFilter struct {
	UserID      *uint64
	SubsidyType *int
	RuleID      *uint64
	Since       *time.Time
	Until       *time.Time
}

// CreateLog appends an execution log row.
func (s *Store) CreateLog(ctx context.Context, row *models.SubsidyRuleLog) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("store: create execution log: %w", err)
	}
	return nil
}

// ListLogs returns execution logs matching the filter, newest first,
// at most limit rows with the given offset. limit <= 0 selects a
// default page size of 50.
func (s *Store) ListLogs(ctx context.Context, filter LogFilter, limit, offset int) ([]models.SubsidyRuleLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.SubsidyRuleLog{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.RuleID != nil {
		query = query.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.ConsumeID != nil {
		query = query.Where("consume_id = ?", *filter.ConsumeID)
	}
	if filter.Status != nil {
		query = query.Where("execution_status = ?", *filter.Status)
	}
	if filter.Since != nil {
		query = query.Where("consume_time >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("consume_time <= ?", *filter.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count execution logs: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	var rows []models.SubsidyRuleLog
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list execution logs: %w", err)
	}
	return rows, total, nil
}

// CreateRecord appends a subsidy ledger row.
func (s *Store) CreateRecord(ctx context.Context, row *models.UserSubsidyRecord) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("store: create subsidy record: %w", err)
	}
	return nil
}

// ListRecords returns subsidy records matching the filter, newest
// first, at most limit rows with the given offset. limit <= 0 selects
// a default page size of 50.
func (s *Store) ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]models.UserSubsidyRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.UserSubsidyRecord{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.SubsidyType != nil {
		query = query.Where("subsidy_type = ?", *filter.SubsidyType)
	}
	if filter.RuleID != nil {
		query = query.Where("rule_id = ?", *filter.RuleID)
	}
	if filter.Since != nil {
		query = query.Where("consume_time >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("consume_time <= ?", *filter.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count subsidy records: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	var rows []models.UserSubsidyRecord
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list subsidy records: %w", err)
	}
	return rows, total, nil
}

// Record fetches a subsidy record by ID.
func (s *Store) Record(ctx context.Context, recordID uint64) (*models.UserSubsidyRecord, error) {
	var record models.UserSubsidyRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", recordID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("store: load subsidy record: %w", err)
	}
	return &record, nil
}

// ReverseRecord flips a granted subsidy record to reversed and returns
// the updated row. Records that are already reversed come back as
// ErrRecordReversed so reversals stay idempotent-safe.
func (s *Store) ReverseRecord(ctx context.Context, recordID uint64) (*models.UserSubsidyRecord, error) {
	var record models.UserSubsidyRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errLoad := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&record, "id = ?", recordID).Error; errLoad != nil {
			if errors.Is(errLoad, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("store: lock subsidy record: %w", errLoad)
		}
		if record.Status == models.RecordStatusReversed {
			return ErrRecordReversed
		}
		record.Status = models.RecordStatusReversed
		if errSave := tx.Model(&models.UserSubsidyRecord{}).
			Where("id = ?", record.ID).
			Update("status", models.RecordStatusReversed).Error; errSave != nil {
			return fmt.Errorf("store: reverse subsidy record: %w", errSave)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UserSubsidyTotal sums the granted subsidy amounts of a user within a
// day range. Reversed records are excluded.
func (s *Store) UserSubsidyTotal(ctx context.Context, userID uint64, since, until time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&models.UserSubsidyRecord{}).
		Where("user_id = ? AND status = ?", userID, models.RecordStatusGranted).
		Where("subsidy_date >= ? AND subsidy_date <= ?", since, until).
		Select("COALESCE(SUM(subsidy_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("store: sum subsidy records: %w", err)
	}
	return total, nil
}
