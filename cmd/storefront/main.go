package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"MiniCart/internal/cart"
	"MiniCart/internal/config"
	"MiniCart/internal/storage"
	"MiniCart/internal/storefront"
	"MiniCart/pkg/kit"
)

func main() {
	service := "storefront"

	cfg, err := config.Load()
	if err != nil {
		kit.NewLogger(service, "info").Fatal("load config", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.App.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		shutdown, err := kit.InitTracing(service, os.Stdout)
		if err != nil {
			log.Fatal("init tracing", zap.Error(err))
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		log.Fatal("open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := cart.New(ctx, cart.Deps{
		Inventory: cart.NewInventoryClient(cfg.Inventory.URL, cfg.Inventory.Timeout),
		Storage:   store,
		Log:       log,
		Registry:  reg,
	})
	if err != nil {
		log.Fatal("init cart", zap.Error(err))
	}
	log.Info("cart ready",
		zap.String("session_id", m.SessionID()),
		zap.Int("lines", len(m.Cart())),
		zap.String("inventory_url", cfg.Inventory.URL),
	)

	h := storefront.NewHandler(&storefront.Server{Cart: m, Storage: store, Log: log}, storefront.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsToken:   cfg.Metrics.Token,
	})

	if err := kit.RunHTTPServer(ctx, ":"+cfg.App.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
