package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dwikikusuma/shoping-fulfillment/internal/inventory"
	orderapp "github.com/dwikikusuma/shoping-fulfillment/internal/order/app"
	orderhttp "github.com/dwikikusuma/shoping-fulfillment/internal/order/http"
	orderpg "github.com/dwikikusuma/shoping-fulfillment/internal/order/infra/postgres"
	"github.com/dwikikusuma/shoping-fulfillment/internal/order/worker"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/config"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/health"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/httpx"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/kafka"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/logger"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/metrics"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/postgres"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/shutdown"
	"github.com/dwikikusuma/shoping-fulfillment/pkg/tracing"
)

const service = "order"

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

	if err := postgres.Migrate(cfg.Postgres, orderpg.Migrations, orderpg.MigrationsDir, orderpg.MigrationsTable); err != nil {
		log.Error("migrate failed", slog.Any("err", err))
		os.Exit(1)
	}
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("db open failed", slog.Any("err", err))
		os.Exit(1)
	}

	m := metrics.New(service)
	repo := orderpg.NewOrderRepo(db)
	inv := inventory.NewClient(cfg.InventoryBaseURL, cfg.InventoryTimeout)
	svc := orderapp.NewService(repo, inv, orderapp.WithMetrics(m))

	var pub worker.Publisher
	publisher := kafka.NewPublisher(cfg.KafkaBrokers)
	if publisher != nil {
		pub = publisher
	} else {
		log.Info("kafka disabled, outbox events stay pending")
	}
	relay := worker.NewRelay(svc, pub, worker.Config{
		Interval:    cfg.RelayInterval,
		Batch:       cfg.RelayBatch,
		MaxAttempts: cfg.RelayMaxAttempts,
	}, log)

	r := httpx.NewRouter(log, m)
	r.Use(tracing.Extract)
	httpx.Probes(r, m, func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return repo.Ping(pingCtx)
	})
	orderhttp.NewHandler(svc).Routes(r)

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
		shutdown.Component{Name: "relay", Start: relay.Start, Stop: relay.Stop},
	)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := shutdownTracing(stopCtx); err != nil {
		log.Warn("tracing shutdown", slog.Any("err", err))
	}
	if err := publisher.Close(); err != nil {
		log.Warn("kafka close", slog.Any("err", err))
	}
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
