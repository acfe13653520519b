package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	cartapp "github.com/dwikikusuma/shoping-fulfillment/internal/cart/app"
	carthttp "github.com/dwikikusuma/shoping-fulfillment/internal/cart/http"
	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/infra/orderclient"
	cartpg "github.com/dwikikusuma/shoping-fulfillment/internal/cart/infra/postgres"
	cartredis "github.com/dwikikusuma/shoping-fulfillment/internal/cart/infra/redis"
	"github.com/dwikikusuma/shoping-fulfillment/internal/inventory"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/config"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/health"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/httpx"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/logger"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/metrics"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/postgres"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/shutdown"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/tracing"
)

const service = "cart"

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: service, Env: cfg.AppEnv, Level: cfg.LogLevel, AddSource: true})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		log.Error("tracing setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := postgres.Migrate(cfg.Postgres, cartpg.Migrations, cartpg.MigrationsDir, cartpg.MigrationsTable); err != nil {
		log.Error("migrate failed", slog.Any("err", err))
		os.Exit(1)
	}
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("db open failed", slog.Any("err", err))
		os.Exit(1)
	}

	m := metrics.New(service)
	repo := cartpg.NewCartRepo(db)
	opts := []cartapp.Option{cartapp.WithMetrics(m)}

	var ledger *cartredis.Ledger
	if cfg.RedisAddr != "" {
		ledger = cartredis.NewLedger(cartredis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cartredis.DefaultTTL)
		opts = append(opts, cartapp.WithLedger(ledger))
	} else {
		log.Info("redis not configured, checkout ledger disabled")
	}

	svc := cartapp.NewService(
		repo,
		inventory.NewClient(cfg.InventoryBaseURL, cfg.InventoryTimeout),
		orderclient.New(cfg.OrderBaseURL, cfg.OrderTimeout),
		opts...,
	)

	r := httpx.NewRouter(log, m)
	r.Use(tracing.Extract)
	httpx.Probes(r, m, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return repo.Ping(pingCtx)
	})
	carthttp.NewHandler(svc).Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	hs := health.NewServer(cfg.GRPCPort, service)

	err = shutdown.Run(ctx, log, 10*time.Second,
		shutdown.Component{
			Name: "http",
			Start: func() error {
				log.Info("http server starting", slog.String("addr", addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			},
			Stop: server.Shutdown,
		},
		shutdown.Component{Name: "grpc-health", Start: hs.ListenAndServe, Stop: hs.Stop},
	)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := shutdownTracing(stopCtx); err != nil {
		log.Warn("tracing shutdown", slog.Any("err", err))
	}
	if ledger != nil {
		_ = ledger.Close()
	}
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
