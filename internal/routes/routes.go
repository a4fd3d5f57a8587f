package routes

import (
	"net"
	"net/http"
	"strings"

	csrf "filippo.io/csrf/gorilla"
	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/auth"
	"github.com/agjmills/clientvault/internal/config"
	"github.com/agjmills/clientvault/internal/files"
	"github.com/agjmills/clientvault/internal/handlers"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/middleware"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/render"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// parseTrustedCIDRs parses a list of CIDR strings into net.IPNet objects.
// Invalid CIDRs are logged and skipped.
func parseTrustedCIDRs(cidrs []string) []*net.IPNet {
	var result []*net.IPNet
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			// Try parsing as a single IP (e.g., "127.0.0.1" without mask)
			ip := net.ParseIP(cidr)
			if ip != nil {
				if ip.To4() != nil {
					_, ipNet, _ = net.ParseCIDR(cidr + "/32")
				} else {
					_, ipNet, _ = net.ParseCIDR(cidr + "/128")
				}
				if ipNet != nil {
					result = append(result, ipNet)
					continue
				}
			}
			logger.Warn("invalid trusted proxy CIDR, skipping", "cidr", cidr, "error", err)
			continue
		}
		result = append(result, ipNet)
	}
	return result
}

// isIPInCIDRs checks if the given IP string is contained in any of the CIDR ranges.
func isIPInCIDRs(ipStr string, cidrs []*net.IPNet) bool {
	// Handle host:port format from RemoteAddr
	host, _, err := net.SplitHostPort(ipStr)
	if err != nil {
		host = ipStr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, cidr := range cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// getClientIP extracts the client IP, preferring X-Real-IP or the leftmost
// X-Forwarded-For entry if from a trusted proxy.
func getClientIP(r *http.Request, trustedCIDRs []*net.IPNet) string {
	if len(trustedCIDRs) > 0 && isIPInCIDRs(r.RemoteAddr, trustedCIDRs) {
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
		// Format: X-Forwarded-For: client, proxy1, proxy2
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			if len(ips) > 0 {
				clientIP := strings.TrimSpace(ips[0])
				if clientIP != "" {
					return clientIP
				}
			}
		}
	}
	return r.RemoteAddr
}

// clientIP rewrites RemoteAddr to the address reported by a trusted proxy so
// that logging and rate limiting see the real client. Forwarding headers from
// anyone else are ignored.
func clientIP(trustedCIDRs []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.RemoteAddr = getClientIP(r, trustedCIDRs)
			next.ServeHTTP(w, r)
		})
	}
}

// csrfProtection returns filippo.io/csrf's Fetch Metadata check, or a no-op
// when disabled. Cross-site browser requests are rejected; non-browser API
// clients without Sec-Fetch-Site or Origin headers pass through and still
// need a session cookie.
func csrfProtection(cfg *config.Config) func(http.Handler) http.Handler {
	if !cfg.CSRFEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return csrf.Protect(
		[]byte(cfg.SessionSecret),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf validation failed",
				"reason", csrf.FailureReason(r),
				"method", r.Method,
				"path", r.URL.Path,
			)
			render.Error(w, r, apperror.Forbidden("cross-origin request rejected"))
		})),
	)
}

// Setup configures the JSON API on r: health and metrics, the signed-in
// user's file scopes, and the admin routes that act on behalf of a portal
// user. It must be called before any routes are registered on r.
//
// Sessions are issued elsewhere; every /api route reads the caller from the
// session cookie.
func Setup(r chi.Router, db *gorm.DB, cfg *config.Config, svc *files.Service, accountant *quota.Accountant, store storage.BlobStore, sessionManager *scs.SessionManager, version string) {
	fileHandler := handlers.NewFileHandler(db, svc)
	accountHandler := handlers.NewAccountHandler(db, accountant)
	adminHandler := handlers.NewAdminHandler(accountant)
	healthHandler := handlers.NewHealthHandler(db, store, version)

	csrfMiddleware := csrfProtection(cfg)
	uploadLimit := middleware.RateLimit(cfg.UploadRateLimitPerMin)

	r.Use(clientIP(parseTrustedCIDRs(cfg.TrustedProxyCIDRs)))

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(middleware.NotFoundHandler)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(sessionManager.LoadAndSave)
		r.Use(auth.RequireAuth(db, sessionManager))
		r.Use(csrfMiddleware)

		r.Get("/quota", accountHandler.Quota)
		r.Get("/notifications", accountHandler.Notifications)

		r.Route("/files/{scope}", func(r chi.Router) {
			fileHandler.Routes(r)
			r.With(uploadLimit).Group(fileHandler.UploadRoutes)
		})

		// Admin routes - require admin privileges
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(auth.RequireAdmin())
			r.Post("/{userID}/quota", adminHandler.UpdateUserQuota)
			r.Route("/{userID}/files/{scope}", func(r chi.Router) {
				fileHandler.Routes(r)
				r.With(uploadLimit).Group(fileHandler.UploadRoutes)
			})
		})
	})
}
