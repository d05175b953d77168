package engine

import "math"

// CalculationResult is the outcome of one evaluation. Exactly one of
// three shapes is produced: a match (Matched && Success), a clean
// no-match (!Matched && Success), or a failure (!Matched && !Success,
// ErrorMessage set). Results are immutable snapshots; evaluation
// failures are carried here, never raised as errors.
type CalculationResult struct {
	Matched bool `json:"matched"` // A rule matched the input.
	Success bool `json:"success"` // The calculation completed without error.

	RuleID   *uint64 `json:"rule_id,omitempty"`   // Matched rule; nil when unmatched.
	RuleCode string  `json:"rule_code,omitempty"` // Matched rule code.
	RuleName string  `json:"rule_name,omitempty"` // Matched rule name.

	SubsidyAmount     float64 `json:"subsidy_amount"`     // Computed subsidy, 0 ≤ v ≤ consume amount.
	CalculationDetail string  `json:"calculation_detail"` // Human-readable trace.

	ErrorMessage string `json:"error_message,omitempty"` // Failure description.
}

// NoMatch returns the sentinel result for an input no rule applies to.
func NoMatch() CalculationResult {
	return CalculationResult{
		Matched:           false,
		Success:           true,
		CalculationDetail: "no matching rule",
	}
}

// Failure returns a result describing a calculation error.
func Failure(message string) CalculationResult {
	return CalculationResult{
		Matched:      false,
		Success:      false,
		ErrorMessage: message,
	}
}

// MatchedResult returns a successful result for a matched rule.
func MatchedResult(ruleID uint64, ruleCode, ruleName string, amount float64, detail string) CalculationResult {
	id := ruleID
	return CalculationResult{
		Matched:           true,
		Success:           true,
		RuleID:            &id,
		RuleCode:          ruleCode,
		RuleName:          ruleName,
		SubsidyAmount:     amount,
		CalculationDetail: detail,
	}
}

// round2 rounds half-up to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
