package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/aukilabs/compute-node/internal/httputil"
)

type Middleware func(http.Handler) http.Handler

// BodyLimitMiddleware returns middleware that limits request body size.
// Reads past maxBytes fail with *http.MaxBytesError; the middleware writes
// no status itself, so the response is up to the wrapped handler.
func BodyLimitMiddleware(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength != 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	wrapped := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](wrapped)
	}
	return wrapped
}

func Recoverer(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.Error("panic", "error", recovered)
					httputil.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
