package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/campuspay/subsidy-engine/internal/models"
	log "github.com/sirupsen/logrus"
)

// MatchRules returns the rules applicable to the input, ordered by
// descending priority. Two clocks are involved: rule validity windows
// are checked against wall-clock now, while day/time/meal
// applicability is checked against input.ConsumeTime.
func (e *Engine) MatchRules(ctx context.Context, input CalculationInput) ([]models.SubsidyRule, error) {
	rules, err := e.effectiveRulesByType(ctx, input.SubsidyType)
	if err != nil {
		return nil, err
	}

	now := e.now()

	// Fast structural filter: no condition lookups.
	candidates := make([]models.SubsidyRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Status != models.RuleStatusActive {
			continue
		}
		if !ruleWindowContains(&rule, now) {
			continue
		}
		if !ruleAppliesToTime(&rule, input.ConsumeTime) {
			continue
		}
		if !ruleAppliesToMeal(&rule, input.MealType) {
			continue
		}
		candidates = append(candidates, rule)
	}

	// Detailed filter: every active condition of a rule must hold.
	// Evaluation errors exclude only the offending rule.
	matched := make([]models.SubsidyRule, 0, len(candidates))
	for _, rule := range candidates {
		ok, errConditions := e.ruleConditionsHold(ctx, rule.ID, input)
		if errConditions != nil {
			log.WithError(errConditions).WithField("rule_code", rule.RuleCode).
				Debug("rule excluded: condition evaluation failed")
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}

	log.WithFields(log.Fields{
		"subsidy_type": input.SubsidyType,
		"total":        len(rules),
		"matched":      len(matched),
	}).Debug("rule matching complete")
	return matched, nil
}

// ValidateRule reports whether a single rule applies to the input.
// Any evaluation problem counts as a non-match.
func (e *Engine) ValidateRule(ctx context.Context, rule *models.SubsidyRule, input CalculationInput) bool {
	if rule == nil {
		return false
	}
	if rule.Status != models.RuleStatusActive {
		return false
	}
	if !ruleWindowContains(rule, e.now()) {
		return false
	}
	if !ruleAppliesToTime(rule, input.ConsumeTime) {
		return false
	}
	if !ruleAppliesToMeal(rule, input.MealType) {
		return false
	}
	ok, err := e.ruleConditionsHold(ctx, rule.ID, input)
	if err != nil {
		log.WithError(err).WithField("rule_code", rule.RuleCode).
			Debug("rule validation failed")
		return false
	}
	return ok
}

// ruleConditionsHold evaluates all active conditions of a rule.
func (e *Engine) ruleConditionsHold(ctx context.Context, ruleID uint64, input CalculationInput) (bool, error) {
	conditions, err := e.ruleConditions(ctx, ruleID)
	if err != nil {
		return false, err
	}
	for _, condition := range conditions {
		ok, errEvaluate := e.evaluator.Evaluate(ctx, condition, input)
		if errEvaluate != nil {
			return false, errEvaluate
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ruleWindowContains reports whether the rule's validity window
// contains the given instant.
func ruleWindowContains(rule *models.SubsidyRule, t time.Time) bool {
	if t.Before(rule.EffectiveDate) {
		return false
	}
	if rule.ExpireDate != nil && t.After(*rule.ExpireDate) {
		return false
	}
	return true
}

// ruleAppliesToTime checks the rule's day restriction and, in Custom
// mode, the optional daily time window against the event time.
func ruleAppliesToTime(rule *models.SubsidyRule, consumeTime time.Time) bool {
	switch rule.ApplyTimeType {
	case models.ApplyTimeAll:
		return true
	case models.ApplyTimeWeekday:
		wd := consumeTime.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case models.ApplyTimeWeekend:
		wd := consumeTime.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	case models.ApplyTimeCustom:
		days := parseIntSet(rule.ApplyDays)
		if len(days) == 0 {
			return false
		}
		if _, ok := days[isoWeekday(consumeTime)]; !ok {
			return false
		}
		if rule.ApplyStartTime != nil && rule.ApplyEndTime != nil {
			return clockWithinWindow(consumeTime, *rule.ApplyStartTime, *rule.ApplyEndTime)
		}
		return true
	default:
		return true
	}
}

// ruleAppliesToMeal checks the rule's meal-type restriction; an empty
// list means unrestricted.
func ruleAppliesToMeal(rule *models.SubsidyRule, mealType int) bool {
	allowed := parseIntSet(rule.ApplyMealTypes)
	if len(allowed) == 0 {
		return true
	}
	_, ok := allowed[mealType]
	return ok
}

// clockWithinWindow reports whether t's time of day falls inside the
// inclusive [start, end] window given as "HH:MM" strings. Comparison
// is at second precision, so an event at 12:00:59 is outside an end
// bound of "12:00". Malformed window bounds fail closed.
func clockWithinWindow(t time.Time, start, end string) bool {
	startMinutes, errStart := parseClock(start)
	if errStart != nil {
		return false
	}
	endMinutes, errEnd := parseClock(end)
	if errEnd != nil {
		return false
	}
	seconds := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return seconds >= startMinutes*60 && seconds <= endMinutes*60
}

// parseClock parses an "HH:MM" clock string into minutes past midnight.
func parseClock(value string) (int, error) {
	var hours, minutes int
	if _, errScan := fmt.Sscanf(value, "%d:%d", &hours, &minutes); errScan != nil {
		return 0, fmt.Errorf("engine: parse clock %q: %w", value, errScan)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("engine: clock out of range: %q", value)
	}
	return hours*60 + minutes, nil
}

// isoWeekday returns the ISO-8601 weekday number (Monday=1 … Sunday=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
