package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/render"
)

// NotFoundHandler answers unknown routes with a JSON 404.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	render.Error(w, r, apperror.NotFound("route not found"))
}

// MethodNotAllowedHandler answers known routes hit with the wrong method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	render.Error(w, r, &apperror.Error{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
		Status:  http.StatusMethodNotAllowed,
	})
}

// RecoverMiddleware catches panics and answers with a JSON 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				render.Error(w, r, apperror.ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
