package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/campuspay/subsidy-engine/internal/app"
	"github.com/campuspay/subsidy-engine/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := config.AppConfig{ConfigPath: *configPath}

	if *migrateOnly {
		if err := app.Migrate(ctx, appCfg); err != nil {
			log.WithError(err).Error("migration failed")
			os.Exit(1)
		}
		return
	}

	if err := app.RunServer(ctx, appCfg); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}
