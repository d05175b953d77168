package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuspay/subsidy-engine/internal/engine"
	"github.com/campuspay/subsidy-engine/internal/models"
	"github.com/campuspay/subsidy-engine/internal/store"
)

// ConditionHandler manages admin endpoints for rule conditions.
type ConditionHandler struct {
	store  *store.Store
	engine *engine.Engine
}

// NewConditionHandler constructs a condition handler.
func NewConditionHandler(st *store.Store, eng *engine.Engine) *ConditionHandler {
	return &ConditionHandler{store: st, engine: eng}
}

// knownConditionTypes lists the condition types the evaluator
// implements. Unknown types are accepted by the engine but rejected at
// the admin surface to catch typos.
var knownConditionTypes = map[string]bool{
	models.ConditionUserGroup:   true,
	models.ConditionDepartment:  true,
	models.ConditionArea:        true,
	models.ConditionDevice:      true,
	models.ConditionAmountRange: true,
	models.ConditionExpression:  true,
}

// List returns every condition of a rule.
func (h *ConditionHandler) List(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	conditions, errList := h.store.RuleConditions(c.Request.Context(), ruleID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list conditions failed"})
		return
	}
	out := make([]gin.H, 0, len(conditions))
	for _, condition := range conditions {
		out = append(out, formatCondition(&condition))
	}
	c.JSON(http.StatusOK, gin.H{"conditions": out})
}

// createConditionRequest captures the payload for attaching a condition.
type createConditionRequest struct {
	ConditionType  string `json:"condition_type"`  // Predicate type.
	ConditionValue string `json:"condition_value"` // Comparison payload.
	Enabled        *bool  `json:"enabled"`         // Initial status; nil means enabled.
}

// Create attaches a condition to a rule.
func (h *ConditionHandler) Create(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body createConditionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	conditionType := strings.TrimSpace(body.ConditionType)
	if !knownConditionTypes[conditionType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown condition_type"})
		return
	}
	conditionValue := strings.TrimSpace(body.ConditionValue)
	if conditionValue == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "condition_value is required"})
		return
	}

	status := models.RuleStatusActive
	if body.Enabled != nil && !*body.Enabled {
		status = models.RuleStatusInactive
	}
	condition := models.SubsidyRuleCondition{
		RuleID:         ruleID,
		ConditionType:  conditionType,
		ConditionValue: conditionValue,
		Status:         status,
	}
	if errCreate := h.store.CreateCondition(c.Request.Context(), &condition); errCreate != nil {
		if errors.Is(errCreate, store.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create condition failed"})
		return
	}
	h.engine.RefreshCache()
	c.JSON(http.StatusCreated, formatCondition(&condition))
}

// updateConditionRequest captures optional fields for condition updates.
type updateConditionRequest struct {
	ConditionType  *string `json:"condition_type"`  // Optional predicate type.
	ConditionValue *string `json:"condition_value"` // Optional payload.
	Enabled        *bool   `json:"enabled"`         // Optional status toggle.
}

// Update applies condition changes.
func (h *ConditionHandler) Update(c *gin.Context) {
	conditionID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body updateConditionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	existing, errLoad := h.store.Condition(c.Request.Context(), conditionID)
	if errLoad != nil {
		if errors.Is(errLoad, store.ErrConditionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if body.ConditionType != nil {
		conditionType := strings.TrimSpace(*body.ConditionType)
		if !knownConditionTypes[conditionType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown condition_type"})
			return
		}
		existing.ConditionType = conditionType
	}
	if body.ConditionValue != nil {
		conditionValue := strings.TrimSpace(*body.ConditionValue)
		if conditionValue == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "condition_value cannot be empty"})
			return
		}
		existing.ConditionValue = conditionValue
	}
	if body.Enabled != nil {
		if *body.Enabled {
			existing.Status = models.RuleStatusActive
		} else {
			existing.Status = models.RuleStatusInactive
		}
	}

	if errSave := h.store.SaveCondition(c.Request.Context(), existing); errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.engine.RefreshCache()
	c.JSON(http.StatusOK, formatCondition(existing))
}

// Delete removes a condition.
func (h *ConditionHandler) Delete(c *gin.Context) {
	conditionID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if errDelete := h.store.DeleteCondition(c.Request.Context(), conditionID); errDelete != nil {
		if errors.Is(errDelete, store.ErrConditionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.engine.RefreshCache()
	c.Status(http.StatusNoContent)
}

// formatCondition converts a condition into a response payload.
func formatCondition(condition *models.SubsidyRuleCondition) gin.H {
	return gin.H{
		"id":              condition.ID,
		"rule_id":         condition.RuleID,
		"condition_type":  condition.ConditionType,
		"condition_value": condition.ConditionValue,
		"status":          condition.Status,
		"created_at":      condition.CreatedAt,
		"updated_at":      condition.UpdatedAt,
	}
}
