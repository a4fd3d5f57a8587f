// Package cleanup removes object-store data left behind by committed
// deletes. Deletes write CleanupTask rows in the same transaction that
// removes the records; the tasks are then run inline and retried by Worker.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/metrics"
	"github.com/agjmills/clientvault/internal/storage"
	"gorm.io/gorm"
)

const (
	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

// Target is one object key or key prefix to remove.
type Target struct {
	Key      string
	IsPrefix bool
}

// Enqueue records targets inside tx and returns the task ids.
func Enqueue(tx *gorm.DB, targets []Target) ([]uint, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	now := time.Now()
	rows := make([]models.CleanupTask, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, models.CleanupTask{Key: t.Key, IsPrefix: t.IsPrefix, NextAttemptAt: now})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue cleanup tasks: %w", err)
	}
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// Outbox executes cleanup tasks against the blob store.
type Outbox struct {
	db          *gorm.DB
	store       storage.BlobStore
	maxAttempts int
	now         func() time.Time
}

func NewOutbox(db *gorm.DB, store storage.BlobStore, maxAttempts int) *Outbox {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Outbox{db: db, store: store, maxAttempts: maxAttempts, now: time.Now}
}

// Run executes the given tasks once, best effort. Failures are recorded for
// retry and logged, never returned.
func (o *Outbox) Run(ctx context.Context, ids []uint) (failed int) {
	if len(ids) == 0 {
		return 0
	}
	var tasks []models.CleanupTask
	if err := o.db.WithContext(ctx).
		Where("id IN ? AND completed_at IS NULL AND failed_at IS NULL", ids).
		Find(&tasks).Error; err != nil {
		logger.Error("failed to load cleanup tasks", "count", len(ids), "error", err)
		return len(ids)
	}
	for i := range tasks {
		if err := o.execute(ctx, &tasks[i]); err != nil {
			failed++
		}
	}
	return failed
}

// RunDue executes up to limit tasks whose retry time has passed and returns
// how many ran.
func (o *Outbox) RunDue(ctx context.Context, limit int) (int, error) {
	var tasks []models.CleanupTask
	err := o.db.WithContext(ctx).
		Where("completed_at IS NULL AND failed_at IS NULL AND next_attempt_at <= ?", o.now()).
		Order("next_attempt_at, id").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load due cleanup tasks: %w", err)
	}
	for i := range tasks {
		_ = o.execute(ctx, &tasks[i])
	}
	return len(tasks), nil
}

// Pending counts tasks that have neither completed nor given up.
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := o.db.WithContext(ctx).Model(&models.CleanupTask{}).
		Where("completed_at IS NULL AND failed_at IS NULL").
		Count(&n).Error
	return n, err
}

// Backlog summarises outstanding cleanup work.
type Backlog struct {
	Pending   int64 `json:"pending"`
	Abandoned int64 `json:"abandoned"` // gave up after max attempts; objects need manual removal
}

// ReadBacklog counts pending and abandoned tasks.
func ReadBacklog(ctx context.Context, db *gorm.DB) (Backlog, error) {
	var b Backlog
	q := db.WithContext(ctx).Model(&models.CleanupTask{})
	if err := q.Session(&gorm.Session{}).Where("completed_at IS NULL AND failed_at IS NULL").Count(&b.Pending).Error; err != nil {
		return Backlog{}, fmt.Errorf("failed to count pending cleanup tasks: %w", err)
	}
	if err := q.Session(&gorm.Session{}).Where("failed_at IS NOT NULL").Count(&b.Abandoned).Error; err != nil {
		return Backlog{}, fmt.Errorf("failed to count abandoned cleanup tasks: %w", err)
	}
	return b, nil
}

func (o *Outbox) execute(ctx context.Context, task *models.CleanupTask) error {
	var err error
	if task.IsPrefix {
		err = o.deletePrefix(ctx, task.Key)
	} else {
		err = o.deleteKey(ctx, task.Key)
	}
	metrics.RecordCleanupTask(err)

	now := o.now()
	updates := map[string]any{"attempts": task.Attempts + 1}
	if err == nil {
		updates["completed_at"] = now
		updates["last_error"] = ""
	} else {
		updates["last_error"] = truncate(err.Error(), 1000)
		if task.Attempts+1 >= o.maxAttempts {
			updates["failed_at"] = now
			logger.Error("object cleanup abandoned", "task_id", task.ID, "key", task.Key, "prefix", task.IsPrefix, "attempts", task.Attempts+1, "error", err)
		} else {
			updates["next_attempt_at"] = now.Add(backoff(task.Attempts + 1))
			logger.Warn("object cleanup failed, will retry", "task_id", task.ID, "key", task.Key, "prefix", task.IsPrefix, "attempt", task.Attempts+1, "error", err)
		}
	}

	if dbErr := o.db.WithContext(ctx).Model(&models.CleanupTask{}).Where("id = ?", task.ID).Updates(updates).Error; dbErr != nil {
		logger.Error("failed to record cleanup outcome", "task_id", task.ID, "error", dbErr)
	}
	return err
}

// deleteKey removes key unless a record points at it again. Keys are derived
// from scope, folder id and name, so a later upload can reclaim a key whose
// cleanup is still pending.
func (o *Outbox) deleteKey(ctx context.Context, key string) error {
	live, err := o.referenced(ctx, key, false)
	if err != nil {
		return err
	}
	if live[key] {
		logger.Info("object cleanup skipped, key is in use again", "key", key)
		return nil
	}
	return o.store.Delete(ctx, key)
}

// deletePrefix removes the keys under prefix that no record points at.
func (o *Outbox) deletePrefix(ctx context.Context, prefix string) error {
	live, err := o.referenced(ctx, prefix, true)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return o.store.DeletePrefix(ctx, prefix)
	}

	keys, err := o.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if live[key] {
			continue
		}
		if err := o.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Info("object cleanup kept keys in use again", "prefix", prefix, "kept", len(live))
	return errors.Join(errs...)
}

// referenced returns the record paths equal to key, or under it when
// prefix is set.
func (o *Outbox) referenced(ctx context.Context, key string, prefix bool) (map[string]bool, error) {
	q := o.db.WithContext(ctx).Model(&models.File{})
	if prefix {
		q = q.Where("path LIKE ? ESCAPE '!'", likeEscaper.Replace(key)+"%")
	} else {
		q = q.Where("path = ?", key)
	}
	var paths []string
	if err := q.Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to check object references: %w", err)
	}
	live := make(map[string]bool, len(paths))
	for _, p := range paths {
		live[p] = true
	}
	return live, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// backoff doubles from baseBackoff per attempt, capped at maxBackoff.
func backoff(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
