package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientvault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clientvault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clientvault_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// Storage metrics
	StorageUsageKB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clientvault_storage_usage_kb",
			Help: "Current storage usage in kilobytes per user",
		},
		[]string{"user_id"},
	)

	FileOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientvault_file_operations_total",
			Help: "File and folder lifecycle operations by outcome",
		},
		[]string{"operation", "result"},
	)

	ObjectMoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientvault_object_moves_total",
			Help: "Object store relocations issued by moves, renames and archives",
		},
		[]string{"result"},
	)

	// Quota metrics
	QuotaNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientvault_quota_notifications_total",
			Help: "Users notified on entering a higher storage band",
		},
		[]string{"band"},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientvault_quota_rejections_total",
			Help: "Writes refused because they would exceed the storage limit",
		},
	)

	// Cleanup outbox metrics
	CleanupTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientvault_cleanup_tasks_total",
			Help: "Object cleanup task executions by outcome",
		},
		[]string{"result"},
	)

	CleanupPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clientvault_cleanup_pending",
			Help: "Cleanup tasks waiting for a retry",
		},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := httpStatusToString(status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

func httpStatusToString(code int) string {
	if code >= 200 && code < 300 {
		return "2xx"
	} else if code >= 300 && code < 400 {
		return "3xx"
	} else if code >= 400 && code < 500 {
		return "4xx"
	} else if code >= 500 {
		return "5xx"
	}
	return "unknown"
}

// RecordStorageUsage updates the per-user usage gauge
func RecordStorageUsage(userID uint, kb int64) {
	StorageUsageKB.WithLabelValues(strconv.FormatUint(uint64(userID), 10)).Set(float64(kb))
}

// RecordFileOperation counts a lifecycle operation
func RecordFileOperation(operation string, err error) {
	FileOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

// RecordObjectMoves counts relocations from one batch
func RecordObjectMoves(count int, err error) {
	if count == 0 {
		return
	}
	ObjectMoves.WithLabelValues(resultLabel(err)).Add(float64(count))
}

// RecordCleanupTask counts one outbox task execution
func RecordCleanupTask(err error) {
	CleanupTasks.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
