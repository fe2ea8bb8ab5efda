package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the router settings that come from configuration.
type Options struct {
	JWTSecret      string
	DevAuth        bool
	AllowedOrigins []string
	// Dependencies probed by /healthz, keyed by name.
	Dependencies map[string]Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	leadSvc *service.LeadService,
	notifSvc *service.NotificationService,
	events port.ChangeSubscriber,
	metrics *observability.Metrics,
	opts Options,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(opts.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", devActorHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(opts.Dependencies))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(ActorMiddleware(opts.JWTSecret, opts.DevAuth, logger))

		// =============================================
		// Leads
		// =============================================
		r.Get("/leads", listLeadsHandler(leadSvc, logger))
		r.Post("/leads", createLeadHandler(leadSvc, logger))
		r.Route("/leads/{leadId}", func(r chi.Router) {
			r.Get("/", getLeadHandler(leadSvc, logger))
			r.Put("/assignment", assignLeadHandler(leadSvc, logger))

			// Pipeline
			r.Post("/transition", transitionHandler(leadSvc, logger))
			r.Get("/quality-gate", qualityGateStatusHandler(leadSvc, logger))
			r.Post("/quality-gate", evaluateQualityGateHandler(leadSvc, logger))
			r.Put("/qualification", qualificationHandler(leadSvc, logger))

			// Follow-ups
			r.Get("/follow-up", getFollowUpHandler(leadSvc, logger))
			r.Put("/follow-up", scheduleFollowUpHandler(leadSvc, logger))
			r.Post("/follow-up/complete", completeFollowUpHandler(leadSvc, logger))

			// Cadence
			r.Post("/cadence", startCadenceHandler(leadSvc, logger))
			r.Get("/cadence/tasks", cadenceTasksHandler(leadSvc, logger))
			r.Post("/cadence/touches/{index}/complete", completeTouchHandler(leadSvc, logger))
		})

		r.Get("/cadences/templates", cadenceTemplatesHandler())
		r.Get("/follow-ups", followUpQueueHandler(leadSvc, logger))

		// =============================================
		// Notifications & realtime
		// =============================================
		r.Get("/notifications", listNotificationsHandler(notifSvc, logger))
		r.Post("/notifications/open", openNotificationsHandler(notifSvc, logger))
		r.Get("/events", eventsHandler(events, logger))

		// =============================================
		// Metrics
		// =============================================
		r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))
	})

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		services := []domain.ServiceHealth{{Name: "crm-api", Status: "healthy"}}
		for name, dep := range deps {
			start := time.Now()
			err := dep.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: name, Status: status, LatencyMs: time.Since(start).Milliseconds(),
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
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

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.PipelineSnapshot())
	}
}
