package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/render"
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"
)

type contextKey string

const UserContextKey contextKey = "user"

// RequireAuth loads the active user named by the session and rejects the
// request with 401 otherwise. sm.LoadAndSave must run first.
func RequireAuth(db *gorm.DB, sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt(r.Context(), SessionUserKey)
			if userID <= 0 {
				render.Error(w, r, apperror.ErrUnauthorized)
				return
			}

			var user models.User
			err := db.WithContext(r.Context()).Where("is_active = ?", true).First(&user, userID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				render.Error(w, r, apperror.ErrUnauthorized)
				return
			}
			if err != nil {
				logger.Error("failed to load session user", "user_id", userID, "error", err)
				render.Error(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &user)))
		})
	}
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func GetUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(UserContextKey).(*models.User)
	return user
}
