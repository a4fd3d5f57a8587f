package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Host string
	Env  string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBPath     string

	// Storage configuration
	StorageBackend string // "memory", "s3"
	S3Bucket       string // S3 bucket name (required for s3 backend)
	S3Region       string
	S3Endpoint     string // Custom endpoint for S3-compatible services
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool // Use path-style addressing (required for MinIO/rustfs)

	// Signed URL lifetimes
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration

	// MaxUploadBytes caps a single file (0 = no cap). 5G is the largest
	// object one signed PUT can carry.
	MaxUploadBytes int64

	SessionSecret   string
	SessionDuration string
	CSRFEnabled     bool

	// Outbox cleanup of orphaned objects after deletes
	CleanupInterval    time.Duration
	CleanupMaxAttempts int

	UploadRateLimitPerMin int

	// Optional integrations; empty values disable them
	RedisURL     string
	SentryDSN    string
	ResendAPIKey string
	EmailFrom    string
	AppName      string
	AppURL       string

	// TrustedProxyCIDRs is a list of CIDR ranges (e.g., "127.0.0.1/32", "10.0.0.0/8")
	// from which X-Forwarded-Proto headers will be trusted for CSRF origin validation.
	TrustedProxyCIDRs []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Host:                  getEnv("HOST", "0.0.0.0"),
		Env:                   getEnv("ENV", "development"),
		DBType:                getEnv("DB_TYPE", "sqlite"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBName:                getEnv("DB_NAME", "clientvault"),
		DBUser:                getEnv("DB_USER", "clientvault"),
		DBPassword:            getEnv("DB_PASSWORD", ""),
		DBPath:                getEnv("DB_PATH", "./data/clientvault.db"),
		StorageBackend:        getEnv("STORAGE_BACKEND", "s3"),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		S3Region:              getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:            getEnv("S3_ENDPOINT", ""),
		S3AccessKey:           getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:           getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle:        getEnvBool("S3_USE_PATH_STYLE", false),
		UploadURLExpiry:       getEnvDuration("UPLOAD_URL_EXPIRY", "3m"),
		DownloadURLExpiry:     getEnvDuration("DOWNLOAD_URL_EXPIRY", "12h"),
		MaxUploadBytes:        getEnvSize("MAX_UPLOAD_SIZE", "5G"),
		SessionSecret:         getEnv("SESSION_SECRET", "change_me_in_production"),
		SessionDuration:       getEnv("SESSION_DURATION", "168h"),
		CSRFEnabled:           getEnvBool("CSRF_ENABLED", true),
		CleanupInterval:       getEnvDuration("CLEANUP_INTERVAL", "5m"),
		CleanupMaxAttempts:    getEnvInt("CLEANUP_MAX_ATTEMPTS", 8),
		UploadRateLimitPerMin: getEnvInt("UPLOAD_RATE_LIMIT_PER_MIN", 60),
		RedisURL:              getEnv("REDIS_URL", ""),
		SentryDSN:             getEnv("SENTRY_DSN", ""),
		ResendAPIKey:          getEnv("RESEND_API_KEY", ""),
		EmailFrom:             getEnv("EMAIL_FROM", "Client Portal <portal@example.com>"),
		AppName:               getEnv("APP_NAME", "Client Portal"),
		AppURL:                getEnv("APP_URL", "http://localhost:8080"),
		TrustedProxyCIDRs:     getEnvStringSlice("TRUSTED_PROXY_CIDRS", nil),
	}

	if cfg.CleanupMaxAttempts < 1 {
		cfg.CleanupMaxAttempts = 1
	}
	if cfg.CleanupInterval < time.Second {
		cfg.CleanupInterval = time.Second
	}
	if cfg.UploadRateLimitPerMin < 1 {
		cfg.UploadRateLimitPerMin = 1
	}

	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}

	log.Printf("Config loaded: StorageBackend=%s, MaxUploadSize=%d bytes (%.2f GB)",
		cfg.StorageBackend, cfg.MaxUploadBytes, float64(cfg.MaxUploadBytes)/(1024*1024*1024))

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvStringSlice parses a comma-separated env var into a string slice.
// Empty entries are filtered out. Returns defaultValue if env var is empty.
func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// parseSize converts human-readable sizes (e.g., "10G", "500M", "1K") to bytes
// Supports: B, K/KB, M/MB, G/GB, T/TB (case-insensitive)
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))

	// A plain number is bytes
	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	units := []struct {
		suffixes   []string
		multiplier int64
	}{
		{[]string{"TB", "T"}, 1 << 40},
		{[]string{"GB", "G"}, 1 << 30},
		{[]string{"MB", "M"}, 1 << 20},
		{[]string{"KB", "K"}, 1 << 10},
		{[]string{"B"}, 1},
	}

	for _, u := range units {
		for _, suffix := range u.suffixes {
			if !strings.HasSuffix(sizeStr, suffix) {
				continue
			}
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, suffix))
			val, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size value: %s", sizeStr)
			}
			return int64(val * float64(u.multiplier)), nil
		}
	}

	return 0, fmt.Errorf("invalid size format: %s (use B, K/KB, M/MB, G/GB, T/TB)", sizeStr)
}

// getEnvSize parses size strings like "10G", "500M" or raw bytes
func getEnvSize(key string, defaultValue string) int64 {
	value := getEnv(key, defaultValue)
	size, err := parseSize(value)
	if err != nil {
		log.Printf("getEnvSize: parseSize failed for %s: %v, trying default", value, err)
		if defaultSize, defaultErr := parseSize(defaultValue); defaultErr == nil {
			return defaultSize
		}
		return 0
	}
	return size
}

// getEnvDuration parses duration strings like "24h", "30m"
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("getEnvDuration: parse failed for %s: %v, trying default", value, err)
		if defaultDuration, defaultErr := time.ParseDuration(defaultValue); defaultErr == nil {
			return defaultDuration
		}
		return time.Minute
	}
	return duration
}
