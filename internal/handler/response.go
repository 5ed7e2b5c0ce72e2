package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/hashing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/service"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

var errInternal = errors.New("internal error")

func respondWithJSON(logger *zap.Logger, w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError maps err to a status and writes the envelope. Server-side
// failures are logged in full and reported generically.
func respondWithError(logger *zap.Logger, w http.ResponseWriter, err error, message string) {
	statusCode := getStatusCode(err)

	var rl *service.RateLimitError
	if errors.As(err, &rl) && !rl.RetryAfter.IsZero() {
		w.Header().Set("Retry-After", retryAfterSeconds(rl.RetryAfter))
	}

	if statusCode >= http.StatusInternalServerError {
		logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
		err = errInternal
		if statusCode == http.StatusServiceUnavailable {
			err = service.ErrDependencyUnavailable
		}
	} else {
		logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message),
		)
	}
	respondWithJSON(logger, w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, token.ErrMalformedToken),
		errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrAccountDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, service.ErrDependencyUnavailable),
		errors.Is(err, hashing.ErrSecretUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(at time.Time) string {
	secs := int(math.Ceil(time.Until(at).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
