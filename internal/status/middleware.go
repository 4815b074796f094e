// internal/status/middleware.go
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"clinicsync/internal/logger"
)

// Request context keys
type contextKey string

const RequestIDKey contextKey = "request_id"

// Standard API error response
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id"`
}

// Standard API success response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id"`
}

// APIMiddleware is the chain for status API endpoints.
func APIMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return RequestID(Logging(ErrorHandling(next)))
}

// RequestID middleware adds a unique request ID to each request.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// Logging middleware logs all API requests with a consistent format.
func Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := getRequestID(r.Context())

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		logger.LogInfo("API %s %s -> %d in %v (request %s, client %s)",
			r.Method, r.URL.Path, rw.statusCode, time.Since(start), requestID, logger.GetClientIP(r))
	}
}

// ErrorHandling middleware provides panic recovery and consistent error responses.
func ErrorHandling(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.LogError("Panic in API handler %s %s (request %s): %v",
					r.Method, r.URL.Path, getRequestID(r.Context()), err)
				WriteAPIError(w, r, http.StatusInternalServerError, "internal_error",
					"An internal error occurred", "")
			}
		}()
		next.ServeHTTP(w, r)
	}
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WriteAPIError writes a standardized error response.
func WriteAPIError(w http.ResponseWriter, r *http.Request, statusCode int, code, message, details string) {
	response := APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: getRequestID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// WriteAPISuccess writes a standardized success response.
func WriteAPISuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	response := APIResponse{
		Success:   true,
		Data:      data,
		RequestID: getRequestID(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
