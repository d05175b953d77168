package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// calculateByRule applies the rule's calculation strategy to the input
// and returns a bounded result. Validation problems come back as
// failure results, never as panics or errors.
func calculateByRule(rule *models.SubsidyRule, input CalculationInput) CalculationResult {
	consumeAmount := input.ConsumeAmount
	if consumeAmount < 0 || math.IsNaN(consumeAmount) || math.IsInf(consumeAmount, 0) {
		return Failure("invalid consume amount")
	}

	var subsidyAmount float64
	switch rule.RuleType {
	case models.RuleTypeFixed:
		subsidyAmount = calculateFixedAmount(rule)
	case models.RuleTypeRatePercentage:
		subsidyAmount = calculateRateSubsidy(rule, consumeAmount)
	case models.RuleTypeTiered:
		tierAmount, errTier := calculateTierSubsidy(rule, consumeAmount)
		if errTier != nil {
			return Failure(errTier.Error())
		}
		subsidyAmount = tierAmount
	case models.RuleTypeTimeLimited:
		subsidyAmount = calculateTimeLimitedSubsidy(rule, input)
	default:
		return Failure(fmt.Sprintf("unsupported rule type: %d", rule.RuleType))
	}

	// A subsidy never exceeds the transaction amount and never goes
	// negative.
	if subsidyAmount > consumeAmount {
		subsidyAmount = consumeAmount
	}
	if subsidyAmount < 0 {
		subsidyAmount = 0
	}

	detail := fmt.Sprintf("rule: %s, consume: %.2f, subsidy: %.2f, type: %s",
		rule.RuleName, consumeAmount, subsidyAmount, ruleTypeName(rule.RuleType))
	return MatchedResult(rule.ID, rule.RuleCode, rule.RuleName, subsidyAmount, detail)
}

// calculateFixedAmount returns the configured fixed amount, 0 if unset.
func calculateFixedAmount(rule *models.SubsidyRule) float64 {
	if rule.SubsidyAmount == nil {
		return 0
	}
	return *rule.SubsidyAmount
}

// calculateRateSubsidy multiplies the consume amount by the configured
// rate, rounding half-up to 2 decimals, then applies the cap when set
// and positive.
func calculateRateSubsidy(rule *models.SubsidyRule, consumeAmount float64) float64 {
	if rule.SubsidyRate == nil || *rule.SubsidyRate <= 0 {
		return 0
	}
	subsidyAmount := round2(consumeAmount * *rule.SubsidyRate)
	if rule.MaxSubsidyAmount != nil && *rule.MaxSubsidyAmount > 0 && subsidyAmount > *rule.MaxSubsidyAmount {
		subsidyAmount = *rule.MaxSubsidyAmount
	}
	return subsidyAmount
}

// calculateTierSubsidy walks the stored tier list in order and applies
// the first tier whose threshold the amount meets. The scan stops at
// the first qualifying tier; administrators must keep tiers in
// descending MinAmount order for the highest tier to win.
func calculateTierSubsidy(rule *models.SubsidyRule, consumeAmount float64) (float64, error) {
	if len(rule.TierConfig) == 0 {
		return 0, nil
	}
	var tiers []models.Tier
	if errUnmarshal := json.Unmarshal(rule.TierConfig, &tiers); errUnmarshal != nil {
		return 0, fmt.Errorf("unparseable tier config: %v", errUnmarshal)
	}

	for _, tier := range tiers {
		if consumeAmount >= tier.MinAmount {
			subsidyAmount := round2(consumeAmount * tier.Rate)
			if rule.MaxSubsidyAmount != nil && subsidyAmount > *rule.MaxSubsidyAmount {
				subsidyAmount = *rule.MaxSubsidyAmount
			}
			return subsidyAmount, nil
		}
	}
	return 0, nil
}

// calculateTimeLimitedSubsidy returns the fixed amount when the event
// falls inside the daily window, 0 otherwise. The matcher should have
// rejected out-of-window events already; the re-check keeps direct
// calculator calls consistent.
func calculateTimeLimitedSubsidy(rule *models.SubsidyRule, input CalculationInput) float64 {
	if rule.SubsidyAmount == nil {
		return 0
	}
	if rule.ApplyStartTime != nil && rule.ApplyEndTime != nil {
		if !clockWithinWindow(input.ConsumeTime, *rule.ApplyStartTime, *rule.ApplyEndTime) {
			return 0
		}
	}
	return *rule.SubsidyAmount
}

// ruleTypeName returns a display name for a rule type.
func ruleTypeName(ruleType models.RuleType) string {
	switch ruleType {
	case models.RuleTypeFixed:
		return "fixed"
	case models.RuleTypeRatePercentage:
		return "rate"
	case models.RuleTypeTiered:
		return "tiered"
	case models.RuleTypeTimeLimited:
		return "time_limited"
	default:
		return "unknown"
	}
}
