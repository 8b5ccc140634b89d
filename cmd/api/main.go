package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/marketledger-backend/api/controllers/health"
	"github.com/angelmondragon/marketledger-backend/api/routes"
	"github.com/angelmondragon/marketledger-backend/internal/inventory"
	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/internal/reports"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	paymentwebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	stripewebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/idempotency"
	"github.com/angelmondragon/marketledger-backend/pkg/instance"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/marketledger-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	var stripeClient *pkgstripe.Client
	if cfg.Stripe.Enabled() {
		stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe credentials missing, stripe webhook and payouts disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	settlementMetrics := metrics.NewSettlementMetrics(reg)

	conn := dbClient.DB()
	clock := func() time.Time { return time.Now().UTC() }
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), dbClient, logg, cfg.Orders.DefaultCurrency(), clock)
	requireService(logg, "ledger", err)
	walletSvc, err := wallets.NewService(wallets.NewRepository(conn), ledgerSvc, logg)
	requireService(logg, "wallets", err)
	queue, err := reconciliation.NewService(reconciliation.NewRepository(conn), dbClient, events, logg, settlementMetrics, clock)
	requireService(logg, "reconciliation", err)

	inventoryParams := inventory.Params{
		Repo:   inventory.NewRepository(conn),
		Tx:     dbClient,
		Outbox: events,
		Logger: logg,
		Clock:  clock,
	}
	stock, err := inventory.NewLedgerService(inventoryParams)
	requireService(logg, "inventory ledger", err)
	recorder, err := inventory.NewRecorder(inventoryParams)
	requireService(logg, "inventory recorder", err)

	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(orders.Params{
		Repo:      ordersRepo,
		Tx:        dbClient,
		Outbox:    events,
		Allocator: recorder,
		Ledger:    ledgerSvc,
		Wallets:   walletSvc,
		Logger:    logg,
		Policy:    cfg.Orders.AllocationPolicy(),
		Strategy:  cfg.Orders.Strategy(),
		Currency:  cfg.Orders.DefaultCurrency(),
		Clock:     clock,
	})
	requireService(logg, "orders", err)

	var gateway payouts.PayoutGateway = payouts.ManualGateway{}
	if cfg.FeatureFlags.StripePayouts && stripeClient != nil {
		stripeGateway, err := payouts.NewStripeGateway(stripeClient)
		requireService(logg, "stripe payout gateway", err)
		gateway = stripeGateway
	}
	payoutSvc, err := payouts.NewService(payouts.Params{
		Repo:           payouts.NewRepository(conn),
		Tx:             dbClient,
		Outbox:         events,
		Ledger:         ledgerSvc,
		Wallets:        walletSvc,
		Banks:          payouts.NewBankAccountResolver(conn),
		Gateway:        gateway,
		Reconciliation: queue,
		Logger:         logg,
		MinAmount:      cfg.Payouts.MinAmount,
		Clock:          clock,
	})
	requireService(logg, "payouts", err)

	reportsSvc, err := reports.NewService(reports.NewRepository(conn), logg, clock)
	requireService(logg, "reports", err)

	guard, err := idempotency.NewManager(redisClient, cfg.Webhooks.IdempotencyTTL)
	requireService(logg, "webhook idempotency", err)
	callbacks, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Ledger:         ledgerSvc,
		Payouts:        payoutSvc,
		Orders:         ordersRepo,
		Reconciliation: queue,
		Idempotency:    guard,
		Metrics:        metrics.NewWebhookMetrics(reg),
		Logger:         logg,
	})
	requireService(logg, "payment webhooks", err)

	params := routes.Params{
		Env:         cfg.App.Env,
		CORSOrigins: cfg.App.CORSOrigins,
		Logger:      logg,
		Metrics:     metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
		Idempotency: redisClient,
		Pingers: map[string]health.Pinger{
			"postgres": dbClient,
			"redis":    redisClient,
		},
		Orders:         ordersSvc,
		Stock:          stock,
		Movements:      recorder,
		Wallets:        walletSvc,
		Cashouts:       payoutSvc,
		Reports:        reportsSvc,
		Reconciliation: queue,
		Callbacks:      callbacks,
	}
	if stripeClient != nil {
		stripeEvents, err := stripewebhook.NewService(callbacks)
		requireService(logg, "stripe webhooks", err)
		params.StripeEvents = stripeEvents
		params.Stripe = stripeClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := instance.GetID("local")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name+" service", err)
	os.Exit(1)
}
