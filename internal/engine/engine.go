package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/campuspay/subsidy-engine/internal/models"
	"github.com/gofrs/uuid/v5"
	log "github.com/sirupsen/logrus"
)

// RuleSource is the durable catalog behind the engine. The gorm-backed
// implementation lives in internal/store; tests substitute fakes.
type RuleSource interface {
	// EffectiveRulesBySubsidyType returns active rules of a subsidy type
	// whose validity window contains now, ordered by priority descending.
	EffectiveRulesBySubsidyType(ctx context.Context, subsidyType int, now time.Time) ([]models.SubsidyRule, error)
	// EffectiveRules returns all active rules valid at now, priority descending.
	EffectiveRules(ctx context.Context, now time.Time) ([]models.SubsidyRule, error)
	// RulesBySubsidyType returns all rules of a subsidy type regardless of state.
	RulesBySubsidyType(ctx context.Context, subsidyType int) ([]models.SubsidyRule, error)
	// ActiveConditions returns the active conditions attached to a rule.
	ActiveConditions(ctx context.Context, ruleID uint64) ([]models.SubsidyRuleCondition, error)
	// SetRuleStatus updates a rule's status; found is false when the rule does not exist.
	SetRuleStatus(ctx context.Context, ruleID uint64, status models.RuleStatus) (found bool, err error)
	// SetRulePriority updates a rule's priority; found is false when the rule does not exist.
	SetRulePriority(ctx context.Context, ruleID uint64, priority int) (found bool, err error)
	// CreateLog appends an execution log row.
	CreateLog(ctx context.Context, row *models.SubsidyRuleLog) error
	// CreateRecord appends a subsidy ledger row.
	CreateRecord(ctx context.Context, row *models.UserSubsidyRecord) error
}

// Engine matches subsidy rules against consumption events and computes
// subsidy amounts. One Engine serves all callers; it holds no
// per-request state and is safe for concurrent use. The cache strategy
// is pluggable: NoopRuleCache gives the uncached behavior,
// MemoryRuleCache the lookaside-cached one.
type Engine struct {
	source    RuleSource
	cache     RuleCache
	evaluator *ConditionEvaluator

	now func() time.Time
}

// New constructs an Engine. cache may be nil (no caching); evaluator
// may be nil (a permissive evaluator without a directory is used).
func New(source RuleSource, cache RuleCache, evaluator *ConditionEvaluator) *Engine {
	if cache == nil {
		cache = NoopRuleCache{}
	}
	if evaluator == nil {
		evaluator = NewConditionEvaluator(nil)
	}
	return &Engine{
		source:    source,
		cache:     cache,
		evaluator: evaluator,
		now:       time.Now,
	}
}

// CalculateSubsidy evaluates the input on the read path: match, pick
// the highest-priority rule, calculate. It has no side effects beyond
// cache population and always returns a well-formed result; store
// failures surface as failure results, not errors.
func (e *Engine) CalculateSubsidy(ctx context.Context, input CalculationInput) CalculationResult {
	if input.ConsumeAmount < 0 {
		return Failure("invalid consume amount")
	}

	matched, err := e.MatchRules(ctx, input)
	if err != nil {
		log.WithError(err).Error("subsidy calculation: rule lookup failed")
		return Failure(fmt.Sprintf("rule lookup failed: %v", err))
	}
	if len(matched) == 0 {
		return NoMatch()
	}

	// Priority order from the store is authoritative; the first
	// survivor is the winner.
	rule := matched[0]
	log.WithFields(log.Fields{
		"rule_code": rule.RuleCode,
		"priority":  rule.Priority,
	}).Debug("matched subsidy rule")

	return calculateByRule(&rule, input)
}

// ExecuteRule evaluates the input on the write path: calculate, append
// an execution log unconditionally, and append a subsidy record when a
// rule matched and produced a positive amount. Audit writes are
// best-effort; their failure never alters the returned result.
func (e *Engine) ExecuteRule(ctx context.Context, input CalculationInput) CalculationResult {
	result := e.CalculateSubsidy(ctx, input)

	e.recordExecutionLog(ctx, input, result)
	if result.Matched && result.Success && result.SubsidyAmount > 0 {
		e.saveSubsidyRecord(ctx, input, result)
	}
	return result
}

// EffectiveRules returns all currently valid active rules.
func (e *Engine) EffectiveRules(ctx context.Context) ([]models.SubsidyRule, error) {
	return e.source.EffectiveRules(ctx, e.now())
}

// RulesBySubsidyType returns every rule of a subsidy type, including
// inactive and expired ones.
func (e *Engine) RulesBySubsidyType(ctx context.Context, subsidyType int) ([]models.SubsidyRule, error) {
	return e.source.RulesBySubsidyType(ctx, subsidyType)
}

// EnableRule activates a rule. Unknown rule IDs are a logged no-op.
// The cache is invalidated only after the store write commits, so
// readers never observe a rule that is enabled in cache but not in the
// store; invalidation completes before this call returns.
func (e *Engine) EnableRule(ctx context.Context, ruleID uint64) error {
	return e.setStatus(ctx, ruleID, models.RuleStatusActive, "enable")
}

// DisableRule deactivates a rule. Unknown rule IDs are a logged no-op.
func (e *Engine) DisableRule(ctx context.Context, ruleID uint64) error {
	return e.setStatus(ctx, ruleID, models.RuleStatusInactive, "disable")
}

// AdjustPriority changes a rule's priority. Unknown rule IDs are a
// logged no-op.
func (e *Engine) AdjustPriority(ctx context.Context, ruleID uint64, priority int) error {
	found, err := e.source.SetRulePriority(ctx, ruleID, priority)
	if err != nil {
		return fmt.Errorf("engine: adjust priority: %w", err)
	}
	if !found {
		log.WithField("rule_id", ruleID).Warn("adjust priority: rule not found")
		return nil
	}
	e.cache.InvalidateRule(ruleID)
	log.WithFields(log.Fields{"rule_id": ruleID, "priority": priority}).Info("rule priority adjusted")
	return nil
}

// RefreshCache drops every cached rule and condition entry.
func (e *Engine) RefreshCache() {
	e.cache.InvalidateAll()
	log.Debug("rule cache refreshed")
}

// setStatus applies a status change with write-then-invalidate ordering.
func (e *Engine) setStatus(ctx context.Context, ruleID uint64, status models.RuleStatus, action string) error {
	found, err := e.source.SetRuleStatus(ctx, ruleID, status)
	if err != nil {
		return fmt.Errorf("engine: %s rule: %w", action, err)
	}
	if !found {
		log.WithField("rule_id", ruleID).Warnf("%s rule: rule not found", action)
		return nil
	}
	e.cache.InvalidateRule(ruleID)
	log.WithField("rule_id", ruleID).Infof("rule %sd", action)
	return nil
}

// effectiveRulesByType loads the effective rule list through the cache.
func (e *Engine) effectiveRulesByType(ctx context.Context, subsidyType int) ([]models.SubsidyRule, error) {
	if rules, ok := e.cache.Rules(subsidyType); ok {
		return rules, nil
	}
	rules, err := e.source.EffectiveRulesBySubsidyType(ctx, subsidyType, e.now())
	if err != nil {
		return nil, err
	}
	e.cache.StoreRules(subsidyType, rules)
	return rules, nil
}

// ruleConditions loads a rule's active conditions through the cache.
func (e *Engine) ruleConditions(ctx context.Context, ruleID uint64) ([]models.SubsidyRuleCondition, error) {
	if conditions, ok := e.cache.Conditions(ruleID); ok {
		return conditions, nil
	}
	conditions, err := e.source.ActiveConditions(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	e.cache.StoreConditions(ruleID, conditions)
	return conditions, nil
}

// recordExecutionLog appends the audit row for one ExecuteRule call.
// Failures are logged and swallowed.
func (e *Engine) recordExecutionLog(ctx context.Context, input CalculationInput, result CalculationResult) {
	status := models.ExecutionSuccess
	if !result.Success {
		status = models.ExecutionFailed
	}
	row := models.SubsidyRuleLog{
		LogUUID:           newUUID(),
		RuleID:            result.RuleID,
		RuleCode:          result.RuleCode,
		RuleName:          result.RuleName,
		ConsumeID:         input.ConsumeID,
		UserID:            input.UserID,
		DeviceID:          input.DeviceID,
		ConsumeAmount:     input.ConsumeAmount,
		ConsumeTime:       input.ConsumeTime,
		SubsidyAmount:     result.SubsidyAmount,
		CalculationDetail: result.CalculationDetail,
		ExecutionStatus:   status,
		ErrorMessage:      result.ErrorMessage,
	}
	if errCreate := e.source.CreateLog(ctx, &row); errCreate != nil {
		log.WithError(errCreate).Warn("failed to persist execution log")
	}
}

// saveSubsidyRecord appends the ledger row for a successful grant.
// Failures are logged and swallowed.
func (e *Engine) saveSubsidyRecord(ctx context.Context, input CalculationInput, result CalculationResult) {
	var ruleID uint64
	if result.RuleID != nil {
		ruleID = *result.RuleID
	}
	day := input.ConsumeTime.UTC().Truncate(24 * time.Hour)
	row := models.UserSubsidyRecord{
		RecordUUID:    newUUID(),
		UserID:        input.UserID,
		SubsidyType:   input.SubsidyType,
		SubsidyAmount: result.SubsidyAmount,
		ConsumeAmount: input.ConsumeAmount,
		RuleID:        ruleID,
		RuleCode:      result.RuleCode,
		ConsumeID:     input.ConsumeID,
		DeviceID:      input.DeviceID,
		MealType:      input.MealType,
		SubsidyDate:   day,
		ConsumeTime:   input.ConsumeTime,
		Status:        models.RecordStatusGranted,
	}
	if errCreate := e.source.CreateRecord(ctx, &row); errCreate != nil {
		log.WithError(errCreate).Warn("failed to persist subsidy record")
	}
}

// newUUID returns a random UUID string.
func newUUID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return id.String()
}
