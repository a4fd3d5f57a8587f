package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/agjmills/clientvault/internal/cleanup"
	"github.com/agjmills/clientvault/internal/render"
	"github.com/agjmills/clientvault/internal/storage"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports whether the portal can serve file operations.
type HealthHandler struct {
	db      *gorm.DB
	store   storage.BlobStore
	version string
	started time.Time
}

func NewHealthHandler(db *gorm.DB, store storage.BlobStore, version string) *HealthHandler {
	return &HealthHandler{db: db, store: store, version: version, started: time.Now()}
}

// HealthReport is the body of GET /health. Status is "ok", "degraded" when
// object cleanup has given up on some keys, or "unavailable" when the
// database or the object store cannot be reached.
type HealthReport struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]HealthCheck `json:"checks"`
	Cleanup *cleanup.Backlog       `json:"cleanup,omitempty"`
}

type HealthCheck struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var (
		database, objects HealthCheck
		backlog           cleanup.Backlog
		backlogErr        error
		g                 errgroup.Group
	)
	g.Go(func() error {
		database = runCheck(func() error {
			sqlDB, err := h.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
		if database.OK {
			backlog, backlogErr = cleanup.ReadBacklog(ctx, h.db)
		}
		return nil
	})
	g.Go(func() error {
		objects = runCheck(func() error { return h.store.HealthCheck(ctx) })
		return nil
	})
	_ = g.Wait()

	report := HealthReport{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Checks:  map[string]HealthCheck{"database": database, "object_store": objects},
	}
	if database.OK && backlogErr == nil {
		report.Cleanup = &backlog
	}

	status := http.StatusOK
	switch {
	case !database.OK || !objects.OK:
		report.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case report.Cleanup != nil && report.Cleanup.Abandoned > 0:
		report.Status = "degraded"
	}
	render.JSON(w, status, report)
}

func runCheck(check func() error) HealthCheck {
	start := time.Now()
	err := check()
	c := HealthCheck{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}
