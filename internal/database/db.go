package database

import (
	"fmt"

	"github.com/agjmills/clientvault/internal/config"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DBType {
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
		)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}

	logLevel := gormlogger.Silent
	if cfg.Env == "development" {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("database connected", "type", cfg.DBType)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	logger.Info("running database migrations")

	err := db.AutoMigrate(
		&models.User{},
		&models.File{},
		&models.Notification{},
		&models.CleanupTask{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := createParentIndex(db); err != nil {
		return fmt.Errorf("failed to create parent index: %w", err)
	}

	// Create sessions table for alexedwards/scs
	if err := createSessionsTable(db); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}

// createParentIndex backs the per-level descendant queries and sibling
// name lookups, which always filter on parent plus scope columns.
func createParentIndex(db *gorm.DB) error {
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_files_parent_scope
		ON files (parent_folder_id, received_by_id, uploaded_by_id, is_admin_only_private_file)`).Error
}

func createSessionsTable(db *gorm.DB) error {
	dbType := db.Dialector.Name()

	switch dbType {
	case "postgres":
		if err := db.Exec(`
			CREATE TABLE IF NOT EXISTS sessions (
				token TEXT PRIMARY KEY,
				data BYTEA NOT NULL,
				expiry TIMESTAMPTZ NOT NULL
			)
		`).Error; err != nil {
			return err
		}
		return db.Exec(`CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions (expiry)`).Error

	case "sqlite":
		if err := db.Exec(`
			CREATE TABLE IF NOT EXISTS sessions (
				token TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				expiry REAL NOT NULL
			)
		`).Error; err != nil {
			return err
		}
		return db.Exec(`CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry)`).Error

	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}
}
