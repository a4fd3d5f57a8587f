// Package notify records in-app notifications and sends portal emails.
// Delivery is fire-and-forget: failures are logged and never returned to the
// operation that triggered them.
package notify

import (
	"context"

	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notice is the content of one notification.
type Notice struct {
	Title   string
	Message string
	Meta    map[string]string
}

// Emitter delivers notices to a single user or to every active admin.
type Emitter interface {
	NotifyUser(ctx context.Context, userID uint, n Notice)
	NotifyAdmins(ctx context.Context, n Notice)
}

// DBEmitter stores notices as Notification rows.
type DBEmitter struct {
	db *gorm.DB
}

func NewDBEmitter(db *gorm.DB) *DBEmitter {
	return &DBEmitter{db: db}
}

func (e *DBEmitter) NotifyUser(ctx context.Context, userID uint, n Notice) {
	row := newRow(userID, n)
	if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Error("failed to store notification", "user_id", userID, "title", n.Title, "error", err)
	}
}

func (e *DBEmitter) NotifyAdmins(ctx context.Context, n Notice) {
	var adminIDs []uint
	if err := e.db.WithContext(ctx).Model(&models.User{}).
		Where("is_admin = ? AND is_active = ?", true, true).
		Pluck("id", &adminIDs).Error; err != nil {
		logger.Error("failed to load admins for notification", "title", n.Title, "error", err)
		return
	}
	if len(adminIDs) == 0 {
		return
	}

	rows := make([]models.Notification, 0, len(adminIDs))
	for _, id := range adminIDs {
		rows = append(rows, newRow(id, n))
	}
	if err := e.db.WithContext(ctx).Create(&rows).Error; err != nil {
		logger.Error("failed to store admin notifications", "title", n.Title, "count", len(rows), "error", err)
	}
}

func newRow(userID uint, n Notice) models.Notification {
	meta := n.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return models.Notification{
		UserID:  userID,
		Title:   n.Title,
		Message: n.Message,
		Meta:    datatypes.NewJSONType(meta),
	}
}

// List returns a user's most recent notifications, newest first.
func List(ctx context.Context, db *gorm.DB, userID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
