package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"MiniCart/internal/config"
	"MiniCart/internal/inventory"
	"MiniCart/pkg/kit"
)

func main() {
	service := "inventory"

	cfg, err := config.Load()
	if err != nil {
		kit.NewLogger(service, "info").Fatal("load config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.App.LogLevel)
	defer func() { _ = log.Sync() }()

	var store inventory.Store
	switch cfg.Catalog.Driver {
	case "postgres":
		pg, err := inventory.OpenPostgres(cfg.Catalog.DSN)
		if err != nil {
			log.Fatal("open postgres", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		store = pg
	default:
		store = inventory.NewMemStore()
	}
	log.Info("inventory store ready", zap.String("driver", cfg.Catalog.Driver))

	h := inventory.NewHandler(&inventory.Server{Store: store, Log: log}, inventory.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})

	if err := kit.RunHTTPServer(context.Background(), ":"+cfg.Catalog.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
