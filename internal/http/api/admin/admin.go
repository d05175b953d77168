// Package admin wires the administrative HTTP API: authentication,
// rule and condition management, subsidy evaluation, and audit
// queries.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuspay/subsidy-engine/internal/config"
	"github.com/campuspay/subsidy-engine/internal/engine"
	"github.com/campuspay/subsidy-engine/internal/grant"
	"github.com/campuspay/subsidy-engine/internal/http/api/admin/handlers"
	"github.com/campuspay/subsidy-engine/internal/security"
	"github.com/campuspay/subsidy-engine/internal/store"
)

// RegisterAdminRoutes registers all admin routes on the router.
func RegisterAdminRoutes(r *gin.Engine, st *store.Store, eng *engine.Engine, mgr *grant.Manager, authCfg config.AuthConfig) {
	if r == nil || st == nil || eng == nil {
		return
	}

	api := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(authCfg)
	api.POST("/login", authHandler.Login)
	api.GET("/health", handlers.Health)

	authed := api.Group("")
	authed.Use(adminAuthMiddleware(authCfg))

	ruleHandler := handlers.NewRuleHandler(st, eng)
	authed.POST("/rules", ruleHandler.Create)
	authed.GET("/rules", ruleHandler.List)
	authed.GET("/rules/effective", ruleHandler.ListEffective)
	authed.GET("/rules/:id", ruleHandler.Get)
	authed.PUT("/rules/:id", ruleHandler.Update)
	authed.DELETE("/rules/:id", ruleHandler.Delete)
	authed.POST("/rules/:id/enable", ruleHandler.Enable)
	authed.POST("/rules/:id/disable", ruleHandler.Disable)
	authed.POST("/rules/:id/priority", ruleHandler.SetPriority)

	conditionHandler := handlers.NewConditionHandler(st, eng)
	authed.GET("/rules/:id/conditions", conditionHandler.List)
	authed.POST("/rules/:id/conditions", conditionHandler.Create)
	authed.PUT("/conditions/:id", conditionHandler.Update)
	authed.DELETE("/conditions/:id", conditionHandler.Delete)

	evaluateHandler := handlers.NewEvaluateHandler(eng, mgr)
	authed.POST("/subsidy/calculate", evaluateHandler.Calculate)
	authed.POST("/subsidy/execute", evaluateHandler.Execute)
	authed.POST("/subsidy/settle", evaluateHandler.Settle)
	authed.POST("/cache/refresh", evaluateHandler.RefreshCache)

	auditHandler := handlers.NewAuditHandler(st)
	authed.GET("/logs", auditHandler.ListLogs)
	authed.GET("/records", auditHandler.ListRecords)
	authed.GET("/records/summary", auditHandler.UserSummary)
	authed.POST("/records/:id/reverse", evaluateHandler.Reverse)
}

// adminAuthMiddleware validates admin JWTs from the Authorization header.
func adminAuthMiddleware(authCfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(authCfg.JWTSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("adminUsername", claims.Username)
		c.Next()
	}
}
