package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cashoutcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/cashouts"
	"github.com/angelmondragon/marketledger-backend/api/controllers/health"
	inventorycontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/orders"
	reconciliationcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/reconciliation"
	reportcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/reports"
	walletcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/wallets"
	webhookcontrollers "github.com/angelmondragon/marketledger-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
)

type stripeSigner interface {
	SigningSecret() string
}

// Params carries everything the HTTP surface depends on.
type Params struct {
	Env         string
	CORSOrigins []string
	Logger      *logger.Logger
	Metrics     *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Idempotency middleware.ResponseStore
	Pingers     map[string]health.Pinger

	Orders         orders.Service
	Stock          inventorycontrollers.StockLedger
	Movements      inventorycontrollers.MovementRecorder
	Wallets        walletcontrollers.WalletService
	Cashouts       cashoutcontrollers.Service
	Reports        reportcontrollers.Service
	Reconciliation reconciliationcontrollers.Queue
	Callbacks      webhookcontrollers.CallbackService
	StripeEvents   webhookcontrollers.StripeEventService
	Stripe         stripeSigner
}

func NewRouter(p Params) http.Handler {
	logg := p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.Metrics),
		middleware.CORS(p.CORSOrigins...),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", health.Live(p.Env))
		r.Get("/ready", health.Ready(p.Env, logg, p.Pingers))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	// Gateways authenticate with their own signatures, not actor headers.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.Payments(p.Callbacks, logg))
		r.Post("/payouts", webhookcontrollers.Payouts(p.Callbacks, logg))
		if p.StripeEvents != nil && p.Stripe != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeEvents, p.Stripe, logg))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		if p.Idempotency != nil {
			r.Use(middleware.Idempotency(p.Idempotency, logg))
		}

		operatorOnly := middleware.RequireRole(logg, middleware.RoleOperator)
		vendorOrOperator := middleware.RequireRole(logg, middleware.RoleVendor, middleware.RoleOperator)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Get(p.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(p.Orders, logg))
				r.Patch("/lines/{detailId}", ordercontrollers.UpdateLine(p.Orders, logg))
				r.With(vendorOrOperator).Post("/confirm", ordercontrollers.Confirm(p.Orders, logg))
				r.With(vendorOrOperator).Post("/transition", ordercontrollers.Transition(p.Orders, logg))
				r.With(vendorOrOperator).Post("/refund", ordercontrollers.Refund(p.Orders, logg))
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/products/{productId}/availability", inventorycontrollers.Availability(p.Stock, logg))
			r.Group(func(r chi.Router) {
				r.Use(vendorOrOperator)
				r.Post("/batches", inventorycontrollers.ReceiveBatch(p.Stock, logg))
				r.Get("/batches/{batchId}", inventorycontrollers.GetBatch(p.Stock, logg))
				r.Post("/batches/{batchId}/quality-check", inventorycontrollers.QualityCheck(p.Stock, logg))
				r.Post("/movements", inventorycontrollers.RecordMovement(p.Movements, logg))
				r.Post("/movements/{movementId}/refund", inventorycontrollers.RefundMovement(p.Movements, logg))
			})
		})

		r.Route("/wallets", func(r chi.Router) {
			r.Use(vendorOrOperator)
			r.With(operatorOnly).Post("/", walletcontrollers.Open(p.Wallets, logg))
			r.Get("/{vendorId}", walletcontrollers.Get(p.Wallets, logg))
			r.Get("/{vendorId}/entries", walletcontrollers.Entries(p.Wallets, logg))
		})

		r.Route("/cashouts", func(r chi.Router) {
			r.Use(vendorOrOperator)
			r.Post("/", cashoutcontrollers.Request(p.Cashouts, logg))
			r.Get("/", cashoutcontrollers.List(p.Cashouts, logg))
			r.Get("/{cashoutId}", cashoutcontrollers.Get(p.Cashouts, logg))
			r.Post("/{cashoutId}/cancel", cashoutcontrollers.Cancel(p.Cashouts, logg))
			r.With(operatorOnly).Post("/{cashoutId}/execute", cashoutcontrollers.Execute(p.Cashouts, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(vendorOrOperator)
			r.Get("/vendors/{vendorId}/revenue", reportcontrollers.VendorRevenue(p.Reports, logg))
			r.Get("/products/{productId}/stock", reportcontrollers.StockSummary(p.Reports, logg))
			r.With(operatorOnly).Get("/cashouts/queue", reportcontrollers.CashoutQueue(p.Reports, logg))
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Use(operatorOnly)
			r.Get("/items", reconciliationcontrollers.ListOpen(p.Reconciliation, logg))
			r.Post("/items/{itemId}/resolve", reconciliationcontrollers.Resolve(p.Reconciliation, logg))
		})
	})

	return r
}
