package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jspohr/tollbook/internal/auth"
	"github.com/jspohr/tollbook/internal/catalog"
	"github.com/jspohr/tollbook/internal/hub"
	"github.com/jspohr/tollbook/internal/metrics"
	"github.com/jspohr/tollbook/internal/ratelimit"
	"github.com/jspohr/tollbook/internal/task"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	TaskStore      *task.Store
	Hub            *hub.Hub
	Catalog        *catalog.Service
	Metrics        *metrics.Metrics
	Limiter        *ratelimit.Limiter
	IngestKeyHash  string
	AdminKeyHash   string
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	tasks := newTasksHandler(deps.TaskStore)
	ledgers := newLedgerHandler(deps.Hub, deps.Catalog, deps.Metrics)
	models := newModelsHandler(deps.Catalog)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Well-known manifest.
	r.Get("/.well-known/tollbook.json", WellKnownHandler)

	// Prometheus exposition.
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Ingest and per-task read routes (require the producer key).
	r.Route("/api/v1/tasks", func(tr chi.Router) {
		tr.Use(auth.IngestAuthMiddleware(deps.IngestKeyHash, authObserver(deps.Metrics, "ingest")...))

		tr.Post("/", tasks.CreateTask)
		tr.Get("/", tasks.ListTasks)

		tr.Route("/{taskID}", func(ir chi.Router) {
			if deps.Limiter != nil {
				var onReject []func()
				if deps.Metrics != nil {
					onReject = append(onReject, deps.Metrics.IncRateLimitRejection)
				}
				ir.Use(ratelimit.Middleware(deps.Limiter, onReject...))
			}

			ir.Get("/", tasks.GetTask)
			ir.Post("/switches", ledgers.RecordSwitch)
			ir.Post("/reports/immediate", ledgers.ApplyImmediate)
			ir.Post("/reports/delayed", ledgers.ApplyDelayed)
			ir.Get("/usage", ledgers.GetUsage)
			ir.Get("/usage/models", ledgers.GetUsageByModel)
			ir.Get("/periods", ledgers.ListPeriods)
			ir.Post("/messages/tags", ledgers.TagMessages)
		})
	})

	// Admin routes (require admin key).
	r.Route("/api/v1/admin", func(ar chi.Router) {
		ar.Use(auth.AdminAuthMiddleware(deps.AdminKeyHash, authObserver(deps.Metrics, "admin")...))

		ar.Put("/models", models.UpsertModel)
		ar.Get("/models", models.ListModels)
		ar.Get("/models/{provider}/{modelID}", models.GetModel)
		ar.Delete("/models/{provider}/{modelID}", models.DeleteModel)

		if deps.Metrics != nil {
			ar.Get("/metrics", deps.Metrics.Handler())
		}
	})

	return r
}

// authObserver bridges auth outcomes onto the auth metrics counters.
func authObserver(m *metrics.Metrics, authType string) []auth.Observer {
	if m == nil {
		return nil
	}
	return []auth.Observer{func(success bool) {
		if success {
			m.IncAuthSuccess(authType)
		} else {
			m.IncAuthFailure(authType)
		}
	}}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records request counts and latencies labeled by the
// matched route pattern, not the raw path, to bound cardinality.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			kind := "ledger"
			if strings.HasPrefix(pattern, "/api/v1/admin") {
				kind = "admin"
			}

			m.HTTPRequestsTotal.WithLabelValues(kind, r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
			m.HTTPRequestDuration.WithLabelValues(kind, r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
