package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuspay/subsidy-engine/internal/engine"
	"github.com/campuspay/subsidy-engine/internal/grant"
	"github.com/campuspay/subsidy-engine/internal/store"
)

// EvaluateHandler exposes subsidy calculation and settlement.
type EvaluateHandler struct {
	engine  *engine.Engine
	manager *grant.Manager
}

// NewEvaluateHandler constructs an evaluate handler. manager may be
// nil when settlement is not configured.
func NewEvaluateHandler(eng *engine.Engine, mgr *grant.Manager) *EvaluateHandler {
	return &EvaluateHandler{engine: eng, manager: mgr}
}

// evaluateRequest captures a consumption event.
type evaluateRequest struct {
	UserID        uint64    `json:"user_id"`        // Consuming user.
	ConsumeID     uint64    `json:"consume_id"`     // Consumption event ID.
	DeviceID      uint64    `json:"device_id"`      // Device the event happened on.
	SubsidyType   int       `json:"subsidy_type"`   // Subsidy category to evaluate.
	MealType      int       `json:"meal_type"`      // Meal-type code of the event.
	ConsumeAmount float64   `json:"consume_amount"` // Transaction amount.
	ConsumeTime   time.Time `json:"consume_time"`   // Event timestamp; zero means now.
}

// toInput converts the request into a calculation input.
func (r *evaluateRequest) toInput() engine.CalculationInput {
	consumeTime := r.ConsumeTime
	if consumeTime.IsZero() {
		consumeTime = time.Now()
	}
	return engine.CalculationInput{
		UserID:        r.UserID,
		ConsumeID:     r.ConsumeID,
		DeviceID:      r.DeviceID,
		SubsidyType:   r.SubsidyType,
		MealType:      r.MealType,
		ConsumeAmount: r.ConsumeAmount,
		ConsumeTime:   consumeTime,
	}
}

// Calculate computes the subsidy without writing audit rows.
func (h *EvaluateHandler) Calculate(c *gin.Context) {
	var body evaluateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result := h.engine.CalculateSubsidy(c.Request.Context(), body.toInput())
	c.JSON(http.StatusOK, result)
}

// Execute computes the subsidy and writes the audit rows.
func (h *EvaluateHandler) Execute(c *gin.Context) {
	var body evaluateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	result := h.engine.ExecuteRule(c.Request.Context(), body.toInput())
	c.JSON(http.StatusOK, result)
}

// Settle executes the rules and charges the net amount to the user's
// account.
func (h *EvaluateHandler) Settle(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement not configured"})
		return
	}
	var body evaluateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	settlement, errSettle := h.manager.Settle(c.Request.Context(), body.toInput())
	if errSettle != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      errSettle.Error(),
			"settlement": settlement,
		})
		return
	}
	c.JSON(http.StatusOK, settlement)
}

// reverseRequest captures the optional reason for a grant reversal.
type reverseRequest struct {
	Reason string `json:"reason"` // Annotation for the refund audit trail.
}

// Reverse revokes a granted subsidy record and refunds the net amount
// the user paid.
func (h *EvaluateHandler) Reverse(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement not configured"})
		return
	}
	recordID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body reverseRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "consumption refund"
	}

	reversal, errReverse := h.manager.Reverse(c.Request.Context(), recordID, reason)
	if errReverse != nil {
		switch {
		case errors.Is(errReverse, store.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		case errors.Is(errReverse, store.ErrRecordReversed):
			c.JSON(http.StatusConflict, gin.H{"error": "record already reversed"})
		default:
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    errReverse.Error(),
				"reversal": reversal,
			})
		}
		return
	}
	c.JSON(http.StatusOK, reversal)
}

// RefreshCache drops the engine's rule caches.
func (h *EvaluateHandler) RefreshCache(c *gin.Context) {
	h.engine.RefreshCache()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
