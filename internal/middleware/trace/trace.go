// Package trace tags each request with an id, a request-scoped logger and
// latency counters.
package trace

import (
	"context"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"matador/internal/log"
)

const (
	// HeaderRequestID carries the request id in and out of the service.
	HeaderRequestID = "X-Request-ID"
	// HeaderTwilioIdempotency is sent by Twilio on every webhook call and
	// kept across its retries.
	HeaderTwilioIdempotency = "I-Twilio-Idempotency-Token"
)

type ctxKey struct{}

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,64}$`)

type Middleware struct {
	extractIP    func(*http.Request) string
	requests     atomic.Int64
	serverErrors atomic.Int64
	totalMicros  atomic.Int64
}

type Metrics struct {
	TotalRequests int64
	// ServerErrors counts 5xx responses.
	ServerErrors int64
	// AverageResponseTime is in microseconds.
	AverageResponseTime int64
}

// NewMiddleware takes the client IP resolver used in request logs; nil
// leaves the address out.
func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		id := requestID(r)
		w.Header().Set(HeaderRequestID, id)

		logger := log.FromContext(r.Context()).With(log.FieldRequestID, id)
		ctx := log.NewContext(context.WithValue(r.Context(), ctxKey{}, id), logger)
		r = r.WithContext(ctx)

		sl := log.NewStructuredLogger(logger)
		sl.LogHTTPStart(ctx, r, clientIP)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		m.requests.Add(1)
		m.totalMicros.Add(elapsed.Microseconds())
		if sw.status >= http.StatusInternalServerError {
			m.serverErrors.Add(1)
		}
		sl.LogHTTPEnd(ctx, r, sw.status, elapsed.Milliseconds(), clientIP)
	})
}

// requestID prefers a well-formed caller id, then Twilio's idempotency
// token so retries of one webhook share an id, then a fresh UUID.
func requestID(r *http.Request) string {
	for _, h := range []string{HeaderRequestID, HeaderTwilioIdempotency} {
		if v := r.Header.Get(h); validRequestID.MatchString(v) {
			return v
		}
	}
	return uuid.NewString()
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// GetRequestID returns the id assigned by Middleware, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	n := m.requests.Load()
	var avg int64
	if n > 0 {
		avg = m.totalMicros.Load() / n
	}
	return Metrics{TotalRequests: n, ServerErrors: m.serverErrors.Load(), AverageResponseTime: avg}
}
