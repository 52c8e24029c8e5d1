package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medilink/session-booking/internal/metrics"
	redisclient "github.com/medilink/session-booking/internal/redis"
)

type RouterConfig struct {
	Service BookingService
	Limiter redisclient.Limiter
	Metrics *metrics.BookingMetrics
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Booking endpoints, each throttled per IP+action before the core runs
	r.Route("/bookings", func(r chi.Router) {
		r.With(RateLimitMiddleware(cfg.Limiter, "create_booking")).
			Post("/", createBookingHandler(cfg.Service, cfg.Metrics))
		r.With(RateLimitMiddleware(cfg.Limiter, "update_booking")).
			Patch("/{number}", updateBookingHandler(cfg.Service))
		r.With(RateLimitMiddleware(cfg.Limiter, "cancel_booking")).
			Post("/{number}/cancel", cancelBookingHandler(cfg.Service))
		r.With(RateLimitMiddleware(cfg.Limiter, "complete_payment")).
			Post("/{number}/payment", completePaymentHandler(cfg.Service, cfg.Metrics))
	})

	r.With(RateLimitMiddleware(cfg.Limiter, "running_status")).
		Get("/running-status", runningStatusHandler(cfg.Service))

	return r
}
