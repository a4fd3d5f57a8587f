package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/agjmills/clientvault/internal/lock"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/metrics"
)

const (
	batchSize  = 100
	minLockTTL = 2 * time.Minute
)

// Worker periodically retries due cleanup tasks. Only one instance across
// a deployment runs a pass at a time, guarded by the locker. A pass stops
// taking new batches after budget and is cancelled outright at lockTTL, so
// it never outlives its lock.
type Worker struct {
	outbox   *Outbox
	locker   lock.Locker
	interval time.Duration
	lockTTL  time.Duration
	budget   time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewWorker(outbox *Outbox, locker lock.Locker, interval time.Duration) *Worker {
	if interval < time.Second {
		interval = time.Second
	}
	ttl := max(2*interval, minLockTTL)
	return &Worker{
		outbox:   outbox,
		locker:   locker,
		interval: interval,
		lockTTL:  ttl,
		budget:   ttl / 2,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Shutdown stops the background loop and waits for the current pass.
func (w *Worker) Shutdown() {
	w.once.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			logger.Info("object cleanup worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce drains due tasks in batches while holding the cleanup lock.
func (w *Worker) RunOnce(ctx context.Context) {
	ran, err := lock.WithLock(ctx, w.locker, lock.CleanupKey, w.lockTTL, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, w.lockTTL)
		defer cancel()

		start := time.Now()
		for {
			n, err := w.outbox.RunDue(ctx, batchSize)
			if err != nil {
				return err
			}
			if n < batchSize {
				return nil
			}
			if time.Since(start) >= w.budget {
				logger.Info("object cleanup pass reached its time budget, resuming next tick", "budget", w.budget)
				return nil
			}
			select {
			case <-w.stopChan:
				return nil
			default:
			}
		}
	})
	if err != nil {
		logger.Error("object cleanup pass failed", "error", err)
	}
	if !ran {
		logger.Debug("object cleanup pass skipped, lock held elsewhere")
		return
	}

	if pending, err := w.outbox.Pending(ctx); err == nil {
		metrics.CleanupPending.Set(float64(pending))
	}
}
