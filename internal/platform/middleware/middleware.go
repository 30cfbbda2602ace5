// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package middleware provides the cross-cutting HTTP processing chain.

It acts as a series of decorators around the standard http.Handler, injecting
traceability, safety, and security into every request lifecycle.

Standard Stack:

  - Trace: RequestID generation for log correlation.
  - Log: Structured Activity logging (slog).
  - Guard: Per-IP flood guard and CORS validation.
  - Safe: Panic recovery to prevent server crashes.
  - Identity: Lenient cookie authentication and role guards.

The role-aware admission gate lives in its own package and runs after
[Authenticate], so it can see the caller's role.
*/
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/authgate/internal/platform/constants"
	"github.com/taibuivan/authgate/internal/platform/ctxutil"
	"github.com/taibuivan/authgate/pkg/uuidv7"
)

// # Request Tracing

// RequestID attaches a correlation ID to every request for log tracing.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Reuse the client's ID when present
			requestID := request.Header.Get(constants.HeaderXRequestID)
			if requestID == "" {
				requestID = uuidv7.New()
			}

			// 2. Inject into context and response headers
			ctx := ctxutil.WithRequestID(request.Context(), requestID)
			writer.Header().Set(constants.HeaderXRequestID, requestID)

			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// # Activity Logging

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(code int) {
	recorder.status = code
	recorder.ResponseWriter.WriteHeader(code)
}

// StructuredLogger logs every request status and latency.
// It also injects a request-specific logger into the context.
func StructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			startTime := time.Now()

			// 1. Create a sub-logger for this specific request
			requestLogger := logger.With(
				slog.String("request_id", ctxutil.GetRequestID(request.Context())),
				slog.String("method", request.Method),
				slog.String("path", request.URL.Path),
				slog.String("ip", RealIP(request)),
			)

			// 2. Inject this logger into the context for downstream use
			ctx := ctxutil.WithLogger(request.Context(), requestLogger)
			wrappedWriter := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}

			// Authenticate runs further down the chain; this slot lets it report
			// the account back up for the final log line.
			identity := &loggedIdentity{}
			ctx = context.WithValue(ctx, loggedIdentityKey{}, identity)

			next.ServeHTTP(wrappedWriter, request.WithContext(ctx))

			// 3. Final log entry after the request is finished
			logLevel := slog.LevelInfo
			if wrappedWriter.status >= 500 {
				logLevel = slog.LevelError
			} else if wrappedWriter.status >= 400 {
				logLevel = slog.LevelWarn
			}

			logAttrs := []any{
				slog.Int("status", wrappedWriter.status),
				slog.Int64("latency_ms", time.Since(startTime).Milliseconds()),
				slog.String("user_agent", request.UserAgent()),
			}
			if identity.accountID != "" {
				logAttrs = append(logAttrs, slog.String("user_id", identity.accountID))
			}

			requestLogger.Log(ctx, logLevel, "http_request_finished", logAttrs...)
		})
	}
}

type loggedIdentityKey struct{}

type loggedIdentity struct {
	accountID string
}

// recordIdentity tells an enclosing [StructuredLogger] who made the request.
func recordIdentity(ctx context.Context, accountID string) {
	if identity, ok := ctx.Value(loggedIdentityKey{}).(*loggedIdentity); ok {
		identity.accountID = accountID
	}
}

// # Flood Guard

type floodClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// FloodGuard is a coarse per-IP token bucket that sheds floods before any
// authentication or admission work is done.
type FloodGuard struct {
	mu      sync.Mutex
	clients map[string]*floodClient
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewFloodGuard creates a guard allowing rps sustained requests with the
// given burst per IP. Idle entries are swept until ctx is cancelled.
func NewFloodGuard(ctx context.Context, rps float64, burst int) *FloodGuard {
	guard := &FloodGuard{
		clients: make(map[string]*floodClient),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}

	go guard.sweep(ctx)
	return guard
}

func (guard *FloodGuard) sweep(ctx context.Context) {
	ticker := time.NewTicker(constants.FloodGuardCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			guard.mu.Lock()
			for ip, client := range guard.clients {
				if guard.now().Sub(client.lastSeen) > constants.FloodGuardClientTTL {
					delete(guard.clients, ip)
				}
			}
			guard.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Allow reports whether the IP still has budget.
func (guard *FloodGuard) Allow(ip string) bool {
	guard.mu.Lock()
	defer guard.mu.Unlock()

	client, found := guard.clients[ip]
	if !found {
		client = &floodClient{limiter: rate.NewLimiter(guard.limit, guard.burst)}
		guard.clients[ip] = client
	}
	client.lastSeen = guard.now()

	return client.limiter.Allow()
}

// Middleware rejects requests from IPs that exhausted their bucket.
func (guard *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !guard.Allow(RealIP(request)) {
			writeError(writer, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too Many Requests")
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// # Reliability & Safety

// PanicRecovery recovers from panics, logs stack trace, and returns 500.
func PanicRecovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					stackTrace := make([]byte, 2048)
					length := runtime.Stack(stackTrace, false)

					ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "panic_recovered",
						slog.Any("error", err),
						slog.String("stack", string(stackTrace[:length])),
					)

					writeError(writer, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
			}()

			next.ServeHTTP(writer, request)
		})
	}
}

// # Cross-Origin Resource Sharing

// CORSConfig defines the behavior needed by the CORS middleware.
type CORSConfig interface {
	IsDevelopment() bool
}

// CORS reflects allowed origins with credentials enabled so the session
// cookie travels on cross-origin calls. Development allows any origin.
func CORS(cfg CORSConfig, allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" {
				next.ServeHTTP(writer, request)
				return
			}

			if cfg.IsDevelopment() || slices.Contains(allowedOrigins, origin) {
				header := writer.Header()
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				header.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, X-Request-ID")
				header.Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID, Retry-After")
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Max-Age", "300")
				header.Add("Vary", constants.HeaderOrigin)
			}

			// Pre-flight requests end here
			if request.Method == http.MethodOptions {
				writer.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// # Middleware Helpers

// writeError outputs a simple JSON error payload.
func writeError(writer http.ResponseWriter, status int, code, message string) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(map[string]string{
		constants.FieldCode:  code,
		constants.FieldError: message,
	})
}
