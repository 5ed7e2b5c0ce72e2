package handler

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/ratelimit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/service"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenVerifier is satisfied by token.Service.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// TrafficLimiter is satisfied by ratelimit.Limiter.
type TrafficLimiter interface {
	Check(ctx context.Context, category, identifier string) (ratelimit.Result, error)
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RateLimitMiddleware applies the api category per client IP. A limiter
// store failure lets the request through.
func RateLimitMiddleware(limiter TrafficLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			res, err := limiter.Check(r.Context(), config.RateLimitAPI, ip)
			if err != nil {
				logger.Warn("API rate limit unavailable, allowing request", util.String("ip", ip), util.ErrorField(err))
			}
			if !res.Allowed {
				respondWithError(logger, w, &service.RateLimitError{RetryAfter: res.RetryAfter}, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuth verifies the Authorization header and stores the claims in the
// request context.
func BearerAuth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				respondWithError(logger, w, token.ErrMalformedToken, "Missing bearer token")
				return
			}
			claims, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				respondWithError(logger, w, err, "Invalid session")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// ClaimsFromContext returns the claims stored by BearerAuth.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// clientIP is the peer address, or the forwarded one when the router trusts
// proxy headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
