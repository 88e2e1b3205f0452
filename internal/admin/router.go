// Package admin exposes the internal operational HTTP surface: liveness,
// readiness of the store and queue, Prometheus metrics, and an on-demand
// health-monitor report. It is never exposed publicly.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/occasionhook/anniversary-notify/internal/healthmonitor"
	"github.com/occasionhook/anniversary-notify/internal/obslog"
	"github.com/occasionhook/anniversary-notify/internal/queue"
	"github.com/occasionhook/anniversary-notify/internal/sentryinit"
)

// Deps carries everything the admin router serves from. Pool, Queue, and
// Monitor are each optional: an absent Pool or Queue is reported as
// "skipped" by readiness, and without a Monitor /health/report returns 404.
type Deps struct {
	Log      *slog.Logger
	Registry *prometheus.Registry
	Pool     *pgxpool.Pool
	Queue    *queue.Client
	Monitor  *healthmonitor.Monitor
	Sentry   *sentryinit.Reporter
}

// NewRouter assembles the chi router for the admin surface.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(deps.Sentry.Middleware())

	r.Get("/healthz", handleLiveness)
	r.Get("/readyz", handleReadiness(deps))
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	if deps.Monitor != nil {
		r.Get("/health/report", handleHealthReport(deps.Monitor))
	}

	return r
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadiness(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if deps.Pool != nil {
			if err := deps.Pool.Ping(ctx); err != nil {
				checks["postgres"] = "down: " + err.Error()
				healthy = false
			} else {
				checks["postgres"] = "up"
			}
		} else {
			checks["postgres"] = "skipped"
		}

		if deps.Queue != nil {
			if deps.Queue.IsConnected() {
				checks["nats"] = "up"
			} else {
				checks["nats"] = "down"
				healthy = false
			}
		} else {
			checks["nats"] = "skipped"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"status": map[bool]string{true: "ready", false: "not_ready"}[healthy],
			"checks": checks,
		})
	}
}

func handleHealthReport(monitor *healthmonitor.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := monitor.Run(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger scopes the context to the request and logs the outcome with
// the shared scope fields, so anything a handler triggers (the on-demand
// health report included) logs under the same request id.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := obslog.ContextWithScope(r.Context(), obslog.Scope{
				RequestID: middleware.GetReqID(r.Context()),
			})

			rw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r.WithContext(ctx))

			obslog.For(ctx, base).Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", strings.TrimSpace(r.RemoteAddr)),
				slog.Int("status", rw.Status()),
				slog.Int("bytes", rw.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
