package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/pfm-staging-go/internal/domain"
	"github.com/boddenberg/pfm-staging-go/internal/infra/observability"
	"github.com/boddenberg/pfm-staging-go/internal/port"
	"github.com/boddenberg/pfm-staging-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the router serves. Routes backed by a nil service
// answer 503.
type Deps struct {
	Directory port.Directory
	Staging   *service.StagingService
	Approval  *service.ApprovalService
	Recurring *service.RecurringService
	Webhooks  *service.WebhookService
	BankFeed  *service.BankFeedService
	Tokens    TokenValidator
	Database  Pinger

	CORSAllowedOrigins  []string
	WebhookMaxBodyBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps Deps, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	if len(deps.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps.Database))
	r.Get("/readyz", readyzHandler(deps.Database))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- Inbound webhooks (authenticated by signature) ---
	r.With(requireService(deps.Webhooks != nil, "webhooks")).
		Post("/webhooks/{webhookId}", deliverWebhookHandler(deps.Webhooks, deps.WebhookMaxBodyBytes, logger))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if deps.Tokens == nil {
			r.Handle("/*", unavailable("api"))
			return
		}
		r.Use(JWTAuthMiddleware(deps.Tokens, logger))

		// =============================================
		// Accounts & categories
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(requireService(deps.Directory != nil, "directory"))
			r.Get("/accounts", listAccountsHandler(deps.Directory, logger))
			r.Get("/categories", listCategoriesHandler(deps.Directory, logger))
		})

		// =============================================
		// Staging
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(requireService(deps.Staging != nil, "staging"))
			r.Get("/staging", listStagingHandler(deps.Staging, logger))
			r.Post("/accounts/{accountId}/staging", stageCandidatesHandler(deps.Staging, logger))
			r.Post("/staging/bulk-dismiss", bulkDismissHandler(deps.Staging, logger))
			r.Post("/staging/bulk-delete", bulkDeleteHandler(deps.Staging, logger))
			r.Put("/staging/{id}/dismiss", dismissHandler(deps.Staging, logger))
			r.Put("/staging/{id}/restore", restoreHandler(deps.Staging, logger))
			r.Delete("/staging/{id}", deleteStagingHandler(deps.Staging, logger))
		})
		r.Group(func(r chi.Router) {
			r.Use(requireService(deps.Approval != nil, "approval"))
			r.Post("/staging/bulk-approve", bulkApproveHandler(deps.Approval, logger))
			r.Post("/staging/{id}/approve", approveHandler(deps.Approval, logger))
		})

		// =============================================
		// Recurring expenses
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(requireService(deps.Recurring != nil, "recurring"))
			r.Get("/recurring", listRecurringHandler(deps.Recurring, logger))
			r.Post("/recurring", createRecurringHandler(deps.Recurring, logger))
			r.Get("/recurring/checks", recurringChecksHandler(deps.Recurring, logger))
		})

		// =============================================
		// Webhook management
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(requireService(deps.Webhooks != nil, "webhooks"))
			r.Get("/webhooks", listWebhooksHandler(deps.Webhooks, logger))
			r.Post("/webhooks", createWebhookHandler(deps.Webhooks, logger))
			r.Put("/webhooks/{webhookId}/active", setWebhookActiveHandler(deps.Webhooks, logger))
			r.Get("/webhooks/{webhookId}/logs", webhookLogsHandler(deps.Webhooks, logger))
		})

		// =============================================
		// Bank feed & pipeline metrics
		// =============================================
		r.With(requireService(deps.BankFeed != nil, "bank feed")).
			Post("/bank-feed/sync", bankFeedSyncHandler(deps.BankFeed, logger))
		r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "pfm-api", Status: "healthy", LastChecked: now},
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			start := time.Now()
			status := "healthy"
			if err := db.Ping(ctx); err != nil {
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "database", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPipelineSnapshot())
	}
}

// requireService answers 503 in place of routes whose service is not wired.
func requireService(configured bool, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if configured {
			return next
		}
		return unavailable(name)
	}
}

func unavailable(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusServiceUnavailable, name+" unavailable: not configured")
	}
}
