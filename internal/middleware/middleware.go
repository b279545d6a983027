package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"binwatch/internal/logger"
	"binwatch/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status and size
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.status = status
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// endpoint returns the matched chi route pattern so path parameters
// do not explode metric cardinality
func endpoint(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Logging middleware logs all HTTP requests with structured logging
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			r.Header.Set(RequestIDHeader, requestID)
		}
		w.Header().Set(RequestIDHeader, requestID)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		log := logger.WithRequestID(requestID).With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		log.Debug().
			Int64("content_length", r.ContentLength).
			Str("user_agent", r.UserAgent()).
			Msg("request received")

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Info().
			Int("status", rw.status).
			Int("response_size", rw.size).
			Dur("duration_ms", duration).
			Msg("request completed")

		route := endpoint(r)
		status := strconv.Itoa(rw.status)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(duration.Seconds())

		if rw.size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.size))
		}
	})
}

// Recovery middleware recovers from panics and logs them
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.Logger.Error().
					Str("request_id", r.Header.Get(RequestIDHeader)).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				metrics.PanicsRecovered.WithLabelValues("http_handler").Inc()

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Stack is the service middleware: logging outermost so recovered panics are
// logged with their 500 status
func Stack(next http.Handler) http.Handler {
	return Chain(next, Logging, Recovery)
}

// Chain applies middlewares in order
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
