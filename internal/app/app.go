// Package app boots the subsidy engine: configuration, database,
// engine, and the admin HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/campuspay/subsidy-engine/internal/balance"
	"github.com/campuspay/subsidy-engine/internal/config"
	"github.com/campuspay/subsidy-engine/internal/db"
	"github.com/campuspay/subsidy-engine/internal/engine"
	"github.com/campuspay/subsidy-engine/internal/grant"
	adminapi "github.com/campuspay/subsidy-engine/internal/http/api/admin"
	"github.com/campuspay/subsidy-engine/internal/logging"
	"github.com/campuspay/subsidy-engine/internal/store"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, appCfg config.AppConfig) error {
	cfg, err := config.Load(config.ResolveConfigPath(appCfg.ConfigPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the admin API server and blocks until ctx is
// cancelled.
func RunServer(ctx context.Context, appCfg config.AppConfig) error {
	cfg, err := config.Load(config.ResolveConfigPath(appCfg.ConfigPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	st := store.New(conn)

	var cache engine.RuleCache
	if cfg.Cache.Enabled {
		cache = engine.NewMemoryRuleCache(cfg.Cache.TTL.Std())
	}
	eng := engine.New(st, cache, engine.NewConditionEvaluator(nil))

	var refresher *engine.CacheRefresher
	if cfg.Cache.Enabled {
		refresher, err = engine.StartCacheRefresher(eng, cfg.Cache.RefreshSpec)
		if err != nil {
			return err
		}
		defer refresher.Stop()
	}

	balanceService := balance.NewGormService(conn)
	manager := grant.NewManager(eng, balanceService, st)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	adminapi.RegisterAdminRoutes(router, st, eng, manager, cfg.Auth)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("admin API listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("server shutdown failed")
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}
