package auth

import (
	"net/http"
	"time"

	"github.com/agjmills/clientvault/internal/config"
	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"gorm.io/gorm"
)

// SessionUserKey is the session field holding the signed-in user's id. It is
// written by the portal's sign-in flow and read by RequireAuth.
const SessionUserKey = "user_id"

// NewSessionManager creates an scs session manager backed by the application database.
func NewSessionManager(db *gorm.DB, cfg *config.Config) (*scs.SessionManager, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	lifetime, err := time.ParseDuration(cfg.SessionDuration)
	if err != nil {
		lifetime = 168 * time.Hour
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = lifetime
	sessionManager.Cookie.Name = "clientvault_session"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = cfg.Env == "production"

	switch cfg.DBType {
	case "postgres":
		sessionManager.Store = postgresstore.New(sqlDB)
	case "sqlite":
		sessionManager.Store = sqlite3store.New(sqlDB)
	default:
		// scs.New() already installed the in-memory store
	}

	return sessionManager, nil
}
