package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketledger-backend/internal/cron"
	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/internal/settlement"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/instance"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/redis"
)

const lockKeyFormat = "ml:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	locker, err := redisClient.Locker()
	if err != nil {
		logg.Error(context.Background(), "failed to create redis locker", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	clock := func() time.Time { return time.Now().UTC() }
	events := outbox.NewService(outbox.NewRepository(conn), logg)
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), dbClient, logg, cfg.Orders.DefaultCurrency(), clock)
	requireResource(logg, "ledger service", err)
	walletSvc, err := wallets.NewService(wallets.NewRepository(conn), ledgerSvc, logg)
	requireResource(logg, "wallet service", err)
	queue, err := reconciliation.NewService(reconciliation.NewRepository(conn), dbClient, events, logg, settlementMetrics, clock)
	requireResource(logg, "reconciliation service", err)

	settlementSvc, err := settlement.NewService(settlement.Params{
		Repo:           settlement.NewRepository(conn),
		Tx:             dbClient,
		Outbox:         events,
		Ledger:         ledgerSvc,
		Wallets:        walletSvc,
		Reconciliation: queue,
		Metrics:        settlementMetrics,
		Logger:         logg,
		HoldPeriod:     cfg.Settlement.HoldPeriod,
		CommissionRate: cfg.Settlement.CommissionRate,
		Clock:          clock,
	})
	requireResource(logg, "settlement service", err)
	scheduler, err := settlement.NewScheduler(settlement.SchedulerParams{
		Processor:   settlementSvc,
		Lock:        locker,
		Logger:      logg,
		Concurrency: cfg.Settlement.VendorConcurrency,
		LockTTL:     cfg.Settlement.LockTTL,
	})
	requireResource(logg, "settlement scheduler", err)

	settlementJob, err := cron.NewSettlementJob(cron.SettlementJobParams{
		Logger:    logg,
		Scheduler: scheduler,
		Clock:     clock,
	})
	requireResource(logg, "settlement job", err)
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outbox.NewRepository(conn),
		Retention:   cfg.Outbox.Retention,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Clock:       clock,
	})
	requireResource(logg, "outbox retention job", err)

	lock, err := cron.NewRedisLock(locker, lockKey(cfg.App.Env), 0)
	requireResource(logg, "cron lock", err)

	registry := cron.NewRegistry(settlementJob)
	registry.Every(cfg.Outbox.RetentionEvery, retentionJob)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Settlement.Interval,
		Clock:    clock,
	})
	requireResource(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID("cron-worker-0"),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	defer func() {
		_ = metricsServer.Shutdown(context.WithoutCancel(ctx))
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
