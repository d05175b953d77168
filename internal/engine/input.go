package engine

import "time"

// CalculationInput describes one consumption event to evaluate. It is
// a value object; the engine never mutates it.
type CalculationInput struct {
	UserID        uint64    `json:"user_id"`        // Consuming user.
	ConsumeID     uint64    `json:"consume_id"`     // Consumption event identifier.
	DeviceID      uint64    `json:"device_id"`      // Device the consumption happened on.
	SubsidyType   int       `json:"subsidy_type"`   // Subsidy category to evaluate.
	MealType      int       `json:"meal_type"`      // Meal-type code of the event.
	ConsumeAmount float64   `json:"consume_amount"` // Non-negative transaction amount.
	ConsumeTime   time.Time `json:"consume_time"`   // Event timestamp.
}
