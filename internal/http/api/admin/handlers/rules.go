package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/campuspay/subsidy-engine/internal/engine"
	"github.com/campuspay/subsidy-engine/internal/models"
	"github.com/campuspay/subsidy-engine/internal/store"
)

// RuleHandler manages admin CRUD endpoints for subsidy rules.
type RuleHandler struct {
	store  *store.Store
	engine *engine.Engine
}

// NewRuleHandler constructs a rule handler.
func NewRuleHandler(st *store.Store, eng *engine.Engine) *RuleHandler {
	return &RuleHandler{store: st, engine: eng}
}

// createRuleRequest captures the payload for creating a subsidy rule.
type createRuleRequest struct {
	RuleCode string `json:"rule_code"` // Unique rule code.
	RuleName string `json:"rule_name"` // Display name.

	SubsidyType int `json:"subsidy_type"` // Subsidy category.
	RuleType    int `json:"rule_type"`    // Calculation strategy.
	Priority    int `json:"priority"`     // Matching priority.

	EffectiveDate time.Time  `json:"effective_date"` // Validity window start.
	ExpireDate    *time.Time `json:"expire_date"`    // Validity window end.

	ApplyTimeType  int     `json:"apply_time_type"`  // Day restriction mode.
	ApplyDays      string  `json:"apply_days"`       // CSV of ISO weekdays.
	ApplyStartTime *string `json:"apply_start_time"` // Daily window start "HH:MM".
	ApplyEndTime   *string `json:"apply_end_time"`   // Daily window end "HH:MM".
	ApplyMealTypes string  `json:"apply_meal_types"` // CSV of meal-type codes.

	SubsidyAmount    *float64      `json:"subsidy_amount"`     // Fixed/TimeLimited amount.
	SubsidyRate      *float64      `json:"subsidy_rate"`       // Rate fraction.
	MaxSubsidyAmount *float64      `json:"max_subsidy_amount"` // Optional cap.
	Tiers            []models.Tier `json:"tiers"`              // Tier schedule, Tiered rules only.

	Enabled *bool `json:"enabled"` // Initial status; nil means enabled.
}

// Create validates input and inserts a subsidy rule.
func (h *RuleHandler) Create(c *gin.Context) {
	var body createRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ruleCode := strings.TrimSpace(body.RuleCode)
	if ruleCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule_code is required"})
		return
	}
	ruleName := strings.TrimSpace(body.RuleName)
	if ruleName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule_name is required"})
		return
	}
	if body.SubsidyType <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subsidy_type is required"})
		return
	}
	if body.EffectiveDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "effective_date is required"})
		return
	}
	if body.ExpireDate != nil && body.ExpireDate.Before(body.EffectiveDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expire_date must not precede effective_date"})
		return
	}

	ruleType := models.RuleType(body.RuleType)
	if errMsg := validateRuleTypeFields(ruleType, body.SubsidyAmount, body.SubsidyRate, body.Tiers, body.ApplyStartTime, body.ApplyEndTime); errMsg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg})
		return
	}

	applyTimeType := models.ApplyTimeType(body.ApplyTimeType)
	if body.ApplyTimeType == 0 {
		applyTimeType = models.ApplyTimeAll
	}
	if errMsg := validateApplyTime(applyTimeType, body.ApplyDays, body.ApplyStartTime, body.ApplyEndTime); errMsg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg})
		return
	}

	var tierConfig datatypes.JSON
	if ruleType == models.RuleTypeTiered {
		raw, errMarshal := json.Marshal(body.Tiers)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tiers"})
			return
		}
		tierConfig = datatypes.JSON(raw)
	}

	status := models.RuleStatusActive
	if body.Enabled != nil && !*body.Enabled {
		status = models.RuleStatusInactive
	}

	rule := models.SubsidyRule{
		RuleCode:         ruleCode,
		RuleName:         ruleName,
		SubsidyType:      body.SubsidyType,
		RuleType:         ruleType,
		Status:           status,
		Priority:         body.Priority,
		EffectiveDate:    body.EffectiveDate,
		ExpireDate:       body.ExpireDate,
		ApplyTimeType:    applyTimeType,
		ApplyDays:        strings.TrimSpace(body.ApplyDays),
		ApplyStartTime:   body.ApplyStartTime,
		ApplyEndTime:     body.ApplyEndTime,
		ApplyMealTypes:   strings.TrimSpace(body.ApplyMealTypes),
		SubsidyAmount:    body.SubsidyAmount,
		SubsidyRate:      body.SubsidyRate,
		MaxSubsidyAmount: body.MaxSubsidyAmount,
		TierConfig:       tierConfig,
	}

	if errCreate := h.store.CreateRule(c.Request.Context(), &rule); errCreate != nil {
		if errors.Is(errCreate, store.ErrDuplicateRuleCode) {
			c.JSON(http.StatusConflict, gin.H{"error": "rule_code already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create rule failed"})
		return
	}
	h.engine.RefreshCache()
	c.JSON(http.StatusCreated, formatRule(&rule))
}

// List returns rules filtered by query parameters.
func (h *RuleHandler) List(c *gin.Context) {
	var filter store.RuleFilter
	if v := strings.TrimSpace(c.Query("subsidy_type")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil {
			filter.SubsidyType = &parsed
		}
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil {
			status := models.RuleStatus(parsed)
			filter.Status = &status
		}
	}
	if v := strings.TrimSpace(c.Query("rule_type")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil {
			ruleType := models.RuleType(parsed)
			filter.RuleType = &ruleType
		}
	}
	filter.Keyword = strings.TrimSpace(c.Query("keyword"))

	rules, errList := h.store.ListRules(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rules))
	for _, rule := range rules {
		out = append(out, formatRule(&rule))
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// ListEffective returns the currently valid active rules in matching
// order.
func (h *RuleHandler) ListEffective(c *gin.Context) {
	rules, errList := h.engine.EffectiveRules(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list effective rules failed"})
		return
	}
	out := make([]gin.H, 0, len(rules))
	for _, rule := range rules {
		out = append(out, formatRule(&rule))
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

// Get fetches a rule by ID.
func (h *RuleHandler) Get(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	rule, errLoad := h.store.Rule(c.Request.Context(), ruleID)
	if errLoad != nil {
		if errors.Is(errLoad, store.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatRule(rule))
}

// updateRuleRequest captures optional fields for rule updates.
type updateRuleRequest struct {
	RuleName *string `json:"rule_name"` // Optional display name.
	Priority *int    `json:"priority"`  // Optional matching priority.

	EffectiveDate *time.Time `json:"effective_date"` // Optional window start.
	ExpireDate    *time.Time `json:"expire_date"`    // Optional window end.

	ApplyTimeType  *int    `json:"apply_time_type"`  // Optional day restriction mode.
	ApplyDays      *string `json:"apply_days"`       // Optional CSV of ISO weekdays.
	ApplyStartTime *string `json:"apply_start_time"` // Optional daily window start.
	ApplyEndTime   *string `json:"apply_end_time"`   // Optional daily window end.
	ApplyMealTypes *string `json:"apply_meal_types"` // Optional CSV of meal types.

	SubsidyAmount    *float64      `json:"subsidy_amount"`     // Optional amount.
	SubsidyRate      *float64      `json:"subsidy_rate"`       // Optional rate.
	MaxSubsidyAmount *float64      `json:"max_subsidy_amount"` // Optional cap.
	Tiers            []models.Tier `json:"tiers"`              // Optional tier schedule.
}

// Update validates and applies rule changes. Rule code, subsidy type,
// and rule type are immutable; disable the rule and create a new one
// to change them.
func (h *RuleHandler) Update(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body updateRuleRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	existing, errLoad := h.store.Rule(c.Request.Context(), ruleID)
	if errLoad != nil {
		if errors.Is(errLoad, store.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if body.RuleName != nil {
		name := strings.TrimSpace(*body.RuleName)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rule_name cannot be empty"})
			return
		}
		existing.RuleName = name
	}
	if body.Priority != nil {
		existing.Priority = *body.Priority
	}
	if body.EffectiveDate != nil {
		existing.EffectiveDate = *body.EffectiveDate
	}
	if body.ExpireDate != nil {
		existing.ExpireDate = body.ExpireDate
	}
	if existing.ExpireDate != nil && existing.ExpireDate.Before(existing.EffectiveDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expire_date must not precede effective_date"})
		return
	}

	if body.ApplyTimeType != nil {
		existing.ApplyTimeType = models.ApplyTimeType(*body.ApplyTimeType)
	}
	if body.ApplyDays != nil {
		existing.ApplyDays = strings.TrimSpace(*body.ApplyDays)
	}
	if body.ApplyStartTime != nil {
		existing.ApplyStartTime = body.ApplyStartTime
	}
	if body.ApplyEndTime != nil {
		existing.ApplyEndTime = body.ApplyEndTime
	}
	if body.ApplyMealTypes != nil {
		existing.ApplyMealTypes = strings.TrimSpace(*body.ApplyMealTypes)
	}
	if errMsg := validateApplyTime(existing.ApplyTimeType, existing.ApplyDays, existing.ApplyStartTime, existing.ApplyEndTime); errMsg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg})
		return
	}

	if body.SubsidyAmount != nil {
		existing.SubsidyAmount = body.SubsidyAmount
	}
	if body.SubsidyRate != nil {
		existing.SubsidyRate = body.SubsidyRate
	}
	if body.MaxSubsidyAmount != nil {
		existing.MaxSubsidyAmount = body.MaxSubsidyAmount
	}

	tiers := body.Tiers
	if tiers == nil && existing.RuleType == models.RuleTypeTiered {
		if errUnmarshal := json.Unmarshal(existing.TierConfig, &tiers); errUnmarshal != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored tier config unreadable"})
			return
		}
	}
	if errMsg := validateRuleTypeFields(existing.RuleType, existing.SubsidyAmount, existing.SubsidyRate, tiers, existing.ApplyStartTime, existing.ApplyEndTime); errMsg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMsg})
		return
	}
	if body.Tiers != nil {
		raw, errMarshal := json.Marshal(body.Tiers)
		if errMarshal != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tiers"})
			return
		}
		existing.TierConfig = datatypes.JSON(raw)
	}

	if errSave := h.store.SaveRule(c.Request.Context(), existing); errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.engine.RefreshCache()
	c.JSON(http.StatusOK, formatRule(existing))
}

// Delete removes a rule and its conditions.
func (h *RuleHandler) Delete(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if errDelete := h.store.DeleteRule(c.Request.Context(), ruleID); errDelete != nil {
		if errors.Is(errDelete, store.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	h.engine.RefreshCache()
	c.Status(http.StatusNoContent)
}

// Enable activates a rule.
func (h *RuleHandler) Enable(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if errEnable := h.engine.EnableRule(c.Request.Context(), ruleID); errEnable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Disable deactivates a rule.
func (h *RuleHandler) Disable(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	if errDisable := h.engine.DisableRule(c.Request.Context(), ruleID); errDisable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// setPriorityRequest captures the new priority for a rule.
type setPriorityRequest struct {
	Priority int `json:"priority"` // Desired matching priority.
}

// SetPriority changes a rule's matching priority.
func (h *RuleHandler) SetPriority(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}
	var body setPriorityRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errAdjust := h.engine.AdjustPriority(c.Request.Context(), ruleID, body.Priority); errAdjust != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "priority update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// validateRuleTypeFields checks the calculation fields a rule type
// requires. Tier lists must be in descending MinAmount order because
// evaluation picks the first qualifying tier.
func validateRuleTypeFields(ruleType models.RuleType, amount, rate *float64, tiers []models.Tier, startTime, endTime *string) string {
	switch ruleType {
	case models.RuleTypeFixed:
		if amount == nil || *amount <= 0 {
			return "subsidy_amount must be positive for fixed rules"
		}
	case models.RuleTypeRatePercentage:
		if rate == nil || *rate <= 0 || *rate > 1 {
			return "subsidy_rate must be in (0, 1] for rate rules"
		}
	case models.RuleTypeTiered:
		if len(tiers) == 0 {
			return "tiers are required for tiered rules"
		}
		for i, tier := range tiers {
			if tier.MinAmount < 0 || tier.Rate < 0 {
				return "tier amounts and rates must be non-negative"
			}
			if i > 0 && tier.MinAmount >= tiers[i-1].MinAmount {
				return "tiers must be in descending min_amount order"
			}
		}
	case models.RuleTypeTimeLimited:
		if amount == nil || *amount <= 0 {
			return "subsidy_amount must be positive for time-limited rules"
		}
		if startTime == nil || endTime == nil {
			return "apply_start_time and apply_end_time are required for time-limited rules"
		}
	default:
		return "rule_type must be 1 (fixed), 2 (rate), 3 (tiered), or 4 (time_limited)"
	}
	return ""
}

// validateApplyTime checks day restriction fields.
func validateApplyTime(applyTimeType models.ApplyTimeType, applyDays string, startTime, endTime *string) string {
	switch applyTimeType {
	case models.ApplyTimeAll, models.ApplyTimeWeekday, models.ApplyTimeWeekend:
	case models.ApplyTimeCustom:
		if strings.TrimSpace(applyDays) == "" {
			return "apply_days is required for custom apply time"
		}
	default:
		return "apply_time_type must be 1 (all), 2 (weekday), 3 (weekend), or 4 (custom)"
	}
	if startTime != nil && !validClock(*startTime) {
		return "apply_start_time must be HH:MM"
	}
	if endTime != nil && !validClock(*endTime) {
		return "apply_end_time must be HH:MM"
	}
	if (startTime == nil) != (endTime == nil) {
		return "apply_start_time and apply_end_time must be set together"
	}
	return ""
}

// validClock reports whether value parses as a 24h "HH:MM" clock.
func validClock(value string) bool {
	_, err := time.Parse("15:04", value)
	return err == nil
}

// parseIDParam parses the :id path parameter, responding on failure.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// formatRule converts a rule into a response payload.
func formatRule(rule *models.SubsidyRule) gin.H {
	out := gin.H{
		"id":                 rule.ID,
		"rule_code":          rule.RuleCode,
		"rule_name":          rule.RuleName,
		"subsidy_type":       rule.SubsidyType,
		"rule_type":          rule.RuleType,
		"status":             rule.Status,
		"priority":           rule.Priority,
		"effective_date":     rule.EffectiveDate,
		"expire_date":        rule.ExpireDate,
		"apply_time_type":    rule.ApplyTimeType,
		"apply_days":         rule.ApplyDays,
		"apply_start_time":   rule.ApplyStartTime,
		"apply_end_time":     rule.ApplyEndTime,
		"apply_meal_types":   rule.ApplyMealTypes,
		"subsidy_amount":     rule.SubsidyAmount,
		"subsidy_rate":       rule.SubsidyRate,
		"max_subsidy_amount": rule.MaxSubsidyAmount,
		"created_at":         rule.CreatedAt,
		"updated_at":         rule.UpdatedAt,
	}
	if len(rule.TierConfig) > 0 {
		var tiers []models.Tier
		if errUnmarshal := json.Unmarshal(rule.TierConfig, &tiers); errUnmarshal == nil {
			out["tiers"] = tiers
		}
	}
	return out
}
