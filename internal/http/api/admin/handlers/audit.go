package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuspay/subsidy-engine/internal/models"
	"github.com/campuspay/subsidy-engine/internal/store"
)

// AuditHandler exposes execution logs and subsidy records.
type AuditHandler struct {
	store *store.Store
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(st *store.Store) *AuditHandler {
	return &AuditHandler{store: st}
}

// ListLogs returns execution logs filtered by query parameters.
func (h *AuditHandler) ListLogs(c *gin.Context) {
	var filter store.LogFilter
	filter.UserID = parseUint64Query(c, "user_id")
	filter.RuleID = parseUint64Query(c, "rule_id")
	filter.ConsumeID = parseUint64Query(c, "consume_id")
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil {
			status := models.ExecutionStatus(parsed)
			filter.Status = &status
		}
	}
	filter.Since = parseTimeQuery(c, "since")
	filter.Until = parseTimeQuery(c, "until")
	limit, offset := parsePageQuery(c)

	rows, total, errList := h.store.ListLogs(c.Request.Context(), filter, limit, offset)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list logs failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":                 row.ID,
			"log_uuid":           row.LogUUID,
			"rule_id":            row.RuleID,
			"rule_code":          row.RuleCode,
			"rule_name":          row.RuleName,
			"consume_id":         row.ConsumeID,
			"user_id":            row.UserID,
			"device_id":          row.DeviceID,
			"consume_amount":     row.ConsumeAmount,
			"consume_time":       row.ConsumeTime,
			"subsidy_amount":     row.SubsidyAmount,
			"calculation_detail": row.CalculationDetail,
			"execution_status":   row.ExecutionStatus,
			"error_message":      row.ErrorMessage,
			"created_at":         row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": out, "total": total})
}

// ListRecords returns subsidy records filtered by query parameters.
func (h *AuditHandler) ListRecords(c *gin.Context) {
	var filter store.RecordFilter
	filter.UserID = parseUint64Query(c, "user_id")
	filter.RuleID = parseUint64Query(c, "rule_id")
	if v := strings.TrimSpace(c.Query("subsidy_type")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil {
			filter.SubsidyType = &parsed
		}
	}
	filter.Since = parseTimeQuery(c, "since")
	filter.Until = parseTimeQuery(c, "until")
	limit, offset := parsePageQuery(c)

	rows, total, errList := h.store.ListRecords(c.Request.Context(), filter, limit, offset)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list records failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":             row.ID,
			"record_uuid":    row.RecordUUID,
			"user_id":        row.UserID,
			"subsidy_type":   row.SubsidyType,
			"subsidy_amount": row.SubsidyAmount,
			"consume_amount": row.ConsumeAmount,
			"rule_id":        row.RuleID,
			"rule_code":      row.RuleCode,
			"consume_id":     row.ConsumeID,
			"device_id":      row.DeviceID,
			"meal_type":      row.MealType,
			"subsidy_date":   row.SubsidyDate,
			"consume_time":   row.ConsumeTime,
			"status":         row.Status,
			"created_at":     row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"records": out, "total": total})
}

// UserSummary sums a user's granted subsidies over a day range.
func (h *AuditHandler) UserSummary(c *gin.Context) {
	userID := parseUint64Query(c, "user_id")
	if userID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	since := parseTimeQuery(c, "since")
	until := parseTimeQuery(c, "until")
	now := time.Now().UTC()
	if since == nil {
		start := now.Truncate(24 * time.Hour)
		since = &start
	}
	if until == nil {
		until = &now
	}

	total, errSum := h.store.UserSubsidyTotal(c.Request.Context(), *userID, *since, *until)
	if errSum != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": *userID,
		"since":   *since,
		"until":   *until,
		"total":   total,
	})
}

// parseUint64Query parses an optional unsigned query parameter.
func parseUint64Query(c *gin.Context, name string) *uint64 {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil
	}
	parsed, errParse := strconv.ParseUint(v, 10, 64)
	if errParse != nil {
		return nil
	}
	return &parsed
}

// parseTimeQuery parses an optional RFC 3339 query parameter.
func parseTimeQuery(c *gin.Context, name string) *time.Time {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return nil
	}
	parsed, errParse := time.Parse(time.RFC3339, v)
	if errParse != nil {
		return nil
	}
	return &parsed
}

// parsePageQuery parses limit/offset query parameters.
func parsePageQuery(c *gin.Context) (int, int) {
	limit := 0
	offset := 0
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if parsed, errParse := strconv.Atoi(v); errParse == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
