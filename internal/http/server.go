// Package http exposes the agent-facing report API.
package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"fintel/internal/core"
	"fintel/internal/llm"
)

// ReportComputer computes insight reports for one user and period.
type ReportComputer interface {
	MonthlyReport(ctx context.Context, userID string, month core.Month, includeCompare bool) (*core.Insights, error)
	WeeklyReport(ctx context.Context, userID string, start, end time.Time) (*core.Insights, error)
}

// NarrationProvider returns the narration for a report, or (nil, nil)
// when none is available.
type NarrationProvider interface {
	Narrate(ctx context.Context, userID string, ins *core.Insights) (*llm.Narration, error)
}

// ReportPublisher announces computed reports for background processing.
type ReportPublisher interface {
	PublishReportGenerated(ctx context.Context, userID, period, periodKey, fingerprint string) error
}

type Server struct {
	http.Server
	reports    ReportComputer
	narrations NarrationProvider
	publisher  ReportPublisher
	apiKey     string
	throttle   *ipThrottle
}

// NewServer configures routes, returning a ready-to-run http.Server.
// publisher may be nil when no broker is configured.
func NewServer(addr, apiKey string, reports ReportComputer, narrations NarrationProvider, publisher ReportPublisher) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		reports:    reports,
		narrations: narrations,
		publisher:  publisher,
		apiKey:     apiKey,
		throttle:   newIPThrottle(60, time.Minute),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/agent/monthly", s.withSecurityHeaders(s.withAgentAuth(s.handleAgentMonthly)))
	mux.HandleFunc("/agent/weekly", s.withSecurityHeaders(s.withAgentAuth(s.handleAgentWeekly)))

	return s
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Report computation is the expensive path, so only POSTs are
		// rate limited.
		if r.Method == http.MethodPost && !s.throttle.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// withAgentAuth rejects requests lacking the shared agent API key.
func (s *Server) withAgentAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-agent-api-key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			slog.WarnContext(r.Context(), "Unauthorized agent request", "url", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
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

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
