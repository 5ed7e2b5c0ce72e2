package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

// HealthChecker reports failing dependencies by name.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(cfg *config.Config, authHandler *AuthHandler, limiter TrafficLimiter, health HealthChecker, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	// Middleware stack
	router.Use(middleware.RequestID)
	if cfg.Server.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"legal-auth"}`))
	})

	router.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		failures := health.HealthCheck(r.Context())
		if len(failures) == 0 {
			respondWithJSON(logger, w, http.StatusOK, successResponse(map[string]string{"status": "ready"}, ""))
			return
		}
		details := make(map[string]string, len(failures))
		for name, err := range failures {
			details[name] = err.Error()
		}
		logger.Warn("Readiness check failed", zap.Any("dependencies", details))
		respondWithJSON(logger, w, http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    details,
			Error:   "not ready",
		})
	})

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter, logger))
		authHandler.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}
