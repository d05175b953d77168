package engine

import (
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// CacheRefresher periodically drops the engine's caches so rules
// crossing their validity boundaries are picked up without an
// administrative trigger.
type CacheRefresher struct {
	cron *cron.Cron
}

// StartCacheRefresher schedules RefreshCache on the given cron spec
// (e.g. "@every 5m") and starts the scheduler.
func StartCacheRefresher(e *Engine, spec string) (*CacheRefresher, error) {
	c := cron.New()
	if _, errAdd := c.AddFunc(spec, func() {
		e.RefreshCache()
	}); errAdd != nil {
		return nil, fmt.Errorf("engine: schedule cache refresh: %w", errAdd)
	}
	c.Start()
	log.WithField("spec", spec).Info("rule cache refresher started")
	return &CacheRefresher{cron: c}, nil
}

// Stop halts the scheduler; a running refresh completes first.
func (r *CacheRefresher) Stop() {
	if r == nil || r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
