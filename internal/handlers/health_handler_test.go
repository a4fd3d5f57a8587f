package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agjmills/clientvault/internal/database/dbtest"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/storage"
)

type unreachableStore struct {
	*storage.MemoryBackend
}

func (unreachableStore) HealthCheck(ctx context.Context) error {
	return errors.New("bucket unreachable")
}

func healthReport(t *testing.T, handler *HealthHandler) (int, HealthReport) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body struct {
		Data HealthReport `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return w.Code, body.Data
}

func TestHealthHandler(t *testing.T) {
	db := dbtest.Open(t)
	code, report := healthReport(t, NewHealthHandler(db, storage.NewMemoryBackend(), "test-version"))

	if code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", code)
	}
	if report.Status != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", report.Status)
	}
	if report.Version != "test-version" {
		t.Errorf("Expected version 'test-version', got '%s'", report.Version)
	}
	for _, name := range []string{"database", "object_store"} {
		if check, ok := report.Checks[name]; !ok {
			t.Errorf("%s check missing from response", name)
		} else if !check.OK {
			t.Errorf("Expected %s to be ok, got %+v", name, check)
		}
	}
	if report.Cleanup == nil || report.Cleanup.Pending != 0 || report.Cleanup.Abandoned != 0 {
		t.Errorf("Expected an empty cleanup backlog, got %+v", report.Cleanup)
	}
	if report.Uptime == "" {
		t.Error("Uptime missing from response")
	}
}

func TestHealthHandler_StorageDown(t *testing.T) {
	db := dbtest.Open(t)
	code, report := healthReport(t, NewHealthHandler(db, unreachableStore{storage.NewMemoryBackend()}, "test-version"))

	if code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", code)
	}
	if report.Status != "unavailable" {
		t.Errorf("Expected status 'unavailable', got '%s'", report.Status)
	}
	if c := report.Checks["object_store"]; c.OK || c.Error != "bucket unreachable" {
		t.Errorf("Expected object store to be down, got %+v", c)
	}
	if !report.Checks["database"].OK {
		t.Errorf("Database should still be ok, got %+v", report.Checks["database"])
	}
}

func TestHealthHandler_AbandonedCleanupDegrades(t *testing.T) {
	db := dbtest.Open(t)
	now := time.Now()
	tasks := []models.CleanupTask{
		{Key: "user-uploads/1/sent/a.pdf", NextAttemptAt: now},
		{Key: "user-uploads/1/sent/b.pdf", NextAttemptAt: now, Attempts: 8, FailedAt: &now},
	}
	if err := db.Create(&tasks).Error; err != nil {
		t.Fatalf("Failed to seed cleanup tasks: %v", err)
	}

	code, report := healthReport(t, NewHealthHandler(db, storage.NewMemoryBackend(), "test-version"))

	if code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", code)
	}
	if report.Status != "degraded" {
		t.Errorf("Expected status 'degraded', got '%s'", report.Status)
	}
	if report.Cleanup == nil || report.Cleanup.Pending != 1 || report.Cleanup.Abandoned != 1 {
		t.Errorf("Unexpected cleanup backlog %+v", report.Cleanup)
	}
}
