package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/metrics"
)

const callerKey contextKey = "caller"

// caller lets the outer logging layer see who the inner auth layer admitted.
type caller struct {
	userID string
}

func withCaller(ctx context.Context) (context.Context, *caller) {
	c := &caller{}
	return context.WithValue(ctx, callerKey, c), c
}

func recordCaller(ctx context.Context, userID string) {
	if c, ok := ctx.Value(callerKey).(*caller); ok {
		c.userID = userID
	}
}

// LoggingInterceptor returns a Connect interceptor that logs every RPC call.
// It logs the procedure name, user ID, duration, and any error codes/messages.
func LoggingInterceptor(m *metrics.Metrics) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure
			ctx, c := withCaller(ctx)

			resp, err := next(ctx, req)

			elapsed := time.Since(start)
			duration := elapsed.Milliseconds()
			status := http.StatusOK
			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					status = connectStatus(connectErr.Code())
					slog.Warn("RPC error",
						"procedure", procedure,
						"code", connectErr.Code(),
						"error", connectErr.Message(),
						"user_id", c.userID,
						"duration_ms", duration,
					)
				} else {
					status = http.StatusInternalServerError
					slog.Error("RPC error",
						"procedure", procedure,
						"error", err,
						"user_id", c.userID,
						"duration_ms", duration,
					)
				}
			} else {
				slog.Info("RPC ok",
					"procedure", procedure,
					"user_id", c.userID,
					"duration_ms", duration,
				)
			}
			m.ObserveRequest("connect", procedure, status, elapsed)

			return resp, err
		}
	}
}

// ConnectInterceptors returns the interceptor chain for Connect handlers,
// outermost first. Logging wraps auth so rejected calls are logged and
// admitted callers are attributed.
func ConnectInterceptors(jwtManager *auth.JWTManager, m *metrics.Metrics) []connect.Interceptor {
	return []connect.Interceptor{
		LoggingInterceptor(m),
		RequireAuth(jwtManager),
	}
}

// RequestLogger logs every HTTP request once the response is written and
// records its latency under the matched chi route pattern.
func RequestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, c := withCaller(r.Context())
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"user_id", c.userID,
				"request_id", chimw.GetReqID(r.Context()),
				"duration_ms", elapsed.Milliseconds(),
			}
			switch {
			case status >= 500:
				slog.Error("HTTP error", attrs...)
			case status >= 400:
				slog.Warn("HTTP error", attrs...)
			default:
				slog.Info("HTTP ok", attrs...)
			}
			m.ObserveRequest("http", route, status, elapsed)
		})
	}
}

// connectStatus is the HTTP status Connect's protocol uses for code.
func connectStatus(code connect.Code) int {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeFailedPrecondition:
		return http.StatusBadRequest
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
