package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"directchat/internal/domain"
	"directchat/internal/service"
)

type contextKey string

const userContextKey contextKey = "currentUser"

const sessionCookie = "token"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

func sessionToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if tok := strings.TrimSpace(authHeader[len("Bearer "):]); tok != "" {
			return tok
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// AuthMiddleware resolves the session from the Bearer header or the token
// cookie and attaches the user to the context.
func AuthMiddleware(auth *service.AuthService, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := sessionToken(r)
			if tok == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized - No Token Provided", Code: "unauthorized"})
				return
			}
			user, err := auth.Authenticate(r.Context(), tok)
			if err != nil {
				writeError(w, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

var sensitiveHeaders = map[string]struct{}{
	"authorization":          {},
	"cookie":                 {},
	"set-cookie":             {},
	"sec-websocket-protocol": {},
}

func safeHeaders(h http.Header) []any {
	out := make([]any, 0, len(h)*2)
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		val := v[0]
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			val = "<redacted>"
		}
		out = append(out, k, val)
	}
	return out
}

// requestLogger logs one line per request; headers are included at debug
// level with credentials redacted.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"dur", time.Since(start),
					"req_id", middleware.GetReqID(r.Context()),
				}
				if log.Enabled(r.Context(), slog.LevelDebug) {
					attrs = append(attrs, slog.Group("headers", safeHeaders(r.Header)...))
				}
				log.Info("http_request", attrs...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
