package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agjmills/clientvault/internal/auth"
	"github.com/agjmills/clientvault/internal/cleanup"
	"github.com/agjmills/clientvault/internal/config"
	"github.com/agjmills/clientvault/internal/database/dbtest"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/files"
	"github.com/agjmills/clientvault/internal/notify/notifytest"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// testIPCounter is used to generate unique IP addresses for tests to avoid rate limiting
var testIPCounter atomic.Uint64

// uniqueTestIP generates a unique IP address for each test to avoid rate limiting
func uniqueTestIP() string {
	counter := testIPCounter.Add(1)
	return fmt.Sprintf("192.168.%d.%d:12345", (counter/256)%256, counter%256)
}

// routeTestApp encapsulates all dependencies for route integration tests
type routeTestApp struct {
	db             *gorm.DB
	cfg            *config.Config
	sessionManager *scs.SessionManager
	storage        *storage.MemoryBackend
	router         chi.Router
}

func newRouteTestApp(t *testing.T, mutate func(*config.Config)) *routeTestApp {
	t.Helper()

	db := dbtest.Open(t)
	cfg := &config.Config{
		SessionSecret:         "0123456789abcdef0123456789abcdef",
		Env:                   "test",
		CSRFEnabled:           false,
		UploadRateLimitPerMin: 1000,
	}
	if mutate != nil {
		mutate(cfg)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = 24 * time.Hour

	mem := storage.NewMemoryBackend()
	rec := &notifytest.Recorder{}
	accountant := quota.NewAccountant(db, rec, rec)
	svc := files.NewService(db, mem, accountant, rec, cleanup.NewOutbox(db, mem, 3), files.Options{})

	router := chi.NewRouter()
	Setup(router, db, cfg, svc, accountant, mem, sessionManager, "test-version")

	// Sessions are issued outside this service; tests mint them directly.
	router.With(sessionManager.LoadAndSave).Post("/test/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(chi.URLParam(r, "id"))
		sessionManager.Put(r.Context(), auth.SessionUserKey, id)
		w.WriteHeader(http.StatusNoContent)
	})

	return &routeTestApp{
		db:             db,
		cfg:            cfg,
		sessionManager: sessionManager,
		storage:        mem,
		router:         router,
	}
}

// login returns a session cookie for user.
func (app *routeTestApp) login(t *testing.T, user *models.User) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/test/session/%d", user.ID), nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == app.sessionManager.Cookie.Name {
			return c
		}
	}
	t.Fatal("No session cookie returned")
	return nil
}

// request sends a JSON request with a fresh client IP.
func (app *routeTestApp) request(method, path string, cookie *http.Cookie, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = uniqueTestIP()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	app := newRouteTestApp(t, nil)

	w := app.request(http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"test-version"`) {
		t.Errorf("Expected version in health response, got %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newRouteTestApp(t, nil)

	w := app.request(http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("Expected Prometheus exposition format")
	}
}

func TestNotFoundHandler(t *testing.T) {
	app := newRouteTestApp(t, nil)

	w := app.request(http.MethodGet, "/nonexistent", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"NOT_FOUND"`) {
		t.Errorf("Expected JSON error envelope, got %s", w.Body.String())
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	app := newRouteTestApp(t, nil)

	protectedRoutes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/files/sent"},
		{http.MethodPost, "/api/files/sent/folders"},
		{http.MethodPost, "/api/files/sent/uploads"},
		{http.MethodGet, "/api/files/sent/1/download"},
		{http.MethodDelete, "/api/files/sent/1"},
		{http.MethodGet, "/api/quota"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodPost, "/api/admin/users/1/quota"},
	}

	for _, route := range protectedRoutes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := app.request(route.method, route.path, nil, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestAuthenticatedSession(t *testing.T) {
	app := newRouteTestApp(t, nil)
	user := dbtest.CreateUser(t, app.db, "client@example.com", false, 0, 0)
	cookie := app.login(t, user)

	w := app.request(http.MethodPost, "/api/files/sent/folders", cookie, map[string]any{"name": "Payroll"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = app.request(http.MethodGet, "/api/files/sent", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"Payroll"`) {
		t.Errorf("Expected folder in listing, got %s", w.Body.String())
	}

	w = app.request(http.MethodGet, "/api/quota", cookie, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestUserIsolation(t *testing.T) {
	app := newRouteTestApp(t, nil)
	alice := dbtest.CreateUser(t, app.db, "alice@example.com", false, 0, 0)
	bob := dbtest.CreateUser(t, app.db, "bob@example.com", false, 0, 0)

	w := app.request(http.MethodPost, "/api/files/sent/folders", app.login(t, alice), map[string]any{"name": "Alice only"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var created struct {
		Data models.File `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	bobCookie := app.login(t, bob)
	w = app.request(http.MethodPost, fmt.Sprintf("/api/files/sent/%d/rename", created.Data.ID), bobCookie, map[string]any{"name": "mine"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for another user's folder, got %d", w.Code)
	}

	w = app.request(http.MethodGet, "/api/files/sent", bobCookie, nil)
	if strings.Contains(w.Body.String(), "Alice only") {
		t.Error("Bob should not see Alice's folder")
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newRouteTestApp(t, nil)
	client := dbtest.CreateUser(t, app.db, "client@example.com", false, 0, 0)
	admin := dbtest.CreateUser(t, app.db, "admin@example.com", true, 0, 0)
	base := fmt.Sprintf("/api/admin/users/%d", client.ID)

	w := app.request(http.MethodGet, base+"/files/private", app.login(t, client), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a non-admin, got %d", w.Code)
	}

	adminCookie := app.login(t, admin)
	w = app.request(http.MethodPost, base+"/files/private/folders", adminCookie, map[string]any{"name": "Engagement letters"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = app.request(http.MethodPost, base+"/quota", adminCookie, map[string]any{"limit": "1 GB"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated models.User
	app.db.First(&updated, client.ID)
	if updated.MaxStorageLimit != 1024*1024 {
		t.Errorf("Expected limit of 1 GB in KB, got %d", updated.MaxStorageLimit)
	}
}

func TestUploadRateLimiting(t *testing.T) {
	app := newRouteTestApp(t, func(cfg *config.Config) { cfg.UploadRateLimitPerMin = 2 })
	user := dbtest.CreateUser(t, app.db, "client@example.com", false, 0, 0)
	cookie := app.login(t, user)

	send := func() int {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(map[string]any{"name": "scan.pdf", "size_bytes": 10})
		req := httptest.NewRequest(http.MethodPost, "/api/files/sent/uploads", &buf)
		req.RemoteAddr = "203.0.113.9:4000"
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(); code != http.StatusOK {
			t.Fatalf("Request %d: expected status 200, got %d", i+1, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 after the limit, got %d", code)
	}

	// Other endpoints are not limited.
	if w := app.request(http.MethodGet, "/api/files/sent", cookie, nil); w.Code != http.StatusOK {
		t.Errorf("Listing should not be rate limited, got %d", w.Code)
	}
}

func TestCSRFProtection(t *testing.T) {
	app := newRouteTestApp(t, func(cfg *config.Config) { cfg.CSRFEnabled = true })
	user := dbtest.CreateUser(t, app.db, "client@example.com", false, 0, 0)
	cookie := app.login(t, user)

	tests := []struct {
		name          string
		secFetchSite  string
		expectedCodes int
	}{
		{"cross-site browser request blocked", "cross-site", http.StatusForbidden},
		{"same-origin browser request allowed", "same-origin", http.StatusCreated},
		{"non-browser client allowed", "", http.StatusCreated},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(map[string]any{"name": fmt.Sprintf("folder-%d", i)})
			req := httptest.NewRequest(http.MethodPost, "/api/files/sent/folders", &buf)
			req.RemoteAddr = uniqueTestIP()
			req.AddCookie(cookie)
			if tt.secFetchSite != "" {
				req.Header.Set("Sec-Fetch-Site", tt.secFetchSite)
			}
			w := httptest.NewRecorder()
			app.router.ServeHTTP(w, req)

			if w.Code != tt.expectedCodes {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedCodes, w.Code, w.Body.String())
			}
		})
	}
}
