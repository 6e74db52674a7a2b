package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/julienbonastre/produce-shipping/internal/auth"
	"github.com/julienbonastre/produce-shipping/internal/logging"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withRequestID tags the request with an id and a logger carrying it
func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		logger := h.logger.With(zap.String("request_id", requestID))
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
	})
}

// instrument counts and times requests under the route pattern, not the raw path
func (h *Handler) instrument(pattern string, next http.Handler) http.Handler {
	path := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		path = pattern[i+1:]
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		h.metrics.IncrementHTTPRequestsInFlight()
		defer h.metrics.DecrementHTTPRequestsInFlight()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.metrics.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}

// requireTenant rejects requests without a signed-in tenant and scopes the rest to it
func (h *Handler) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := h.auth.CurrentTenant(r)
		if !ok {
			errorResponse(w, http.StatusUnauthorized, CodeUnauthenticated, "sign in required", nil)
			return
		}

		ctx := auth.WithTenant(r.Context(), tenantID)
		logger := logging.FromContext(ctx, h.logger).With(zap.Int64("tenant_id", tenantID))
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(ctx, logger)))
	})
}
