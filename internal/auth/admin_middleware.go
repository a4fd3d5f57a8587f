package auth

import (
	"net/http"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/render"
)

// RequireAdmin rejects non-admin users with 403. It expects RequireAuth to
// have run first.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r)
			if user == nil {
				render.Error(w, r, apperror.ErrUnauthorized)
				return
			}

			if !user.IsAdmin {
				render.Error(w, r, apperror.Forbidden("admin access required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
