package models

import (
	"path"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry types stored in File.Type.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

// User is the portal account. Storage figures are in kilobytes; a
// MaxStorageLimit of 0 means unlimited.
type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"size:255" json:"name"`
	Email           string         `gorm:"uniqueIndex;not null;size:255" json:"email"`
	StorageUsed     int64          `gorm:"not null;default:0" json:"storage_used"`
	MaxStorageLimit int64          `gorm:"not null;default:0" json:"max_storage_limit"`
	IsAdmin         bool           `gorm:"not null;default:false" json:"is_admin"`
	IsActive        bool           `gorm:"not null" json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// File is either a stored object or a folder, depending on Type. Folders have
// no Path or Size. ParentFolderID nil means the entry sits at its scope root.
type File struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	Type                   string    `gorm:"not null;size:10;index" json:"type"`
	Name                   string    `gorm:"not null;size:255" json:"name"`
	Path                   string    `gorm:"size:1024" json:"path,omitempty"` // object key
	Size                   string    `gorm:"size:32" json:"size,omitempty"`   // human-readable, e.g. "12.3 MB"
	ParentFolderID         *uint     `gorm:"index" json:"parent_folder_id"`
	UploadedByID           uint      `gorm:"not null;index" json:"uploaded_by_id"`
	ReceivedByID           *uint     `gorm:"index" json:"received_by_id,omitempty"`
	IsAdminOnlyPrivateFile bool      `gorm:"not null;default:false;index" json:"is_admin_only_private_file"`
	IsArchived             bool      `gorm:"not null;default:false;index" json:"is_archived"`
	FolderName             string    `gorm:"size:2048;not null;default:'/'" json:"folder_name"` // materialized path of the containing folder chain
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (f *File) IsFolder() bool {
	return f.Type == TypeFolder
}

// FullPath is the materialized path of the entry itself.
func (f *File) FullPath() string {
	return path.Join(f.FolderName, f.Name)
}

// Notification is an in-app message shown to a single user.
type Notification struct {
	ID        uint                                  `gorm:"primaryKey" json:"id"`
	UserID    uint                                  `gorm:"not null;index" json:"user_id"`
	Title     string                                `gorm:"not null;size:255" json:"title"`
	Message   string                                `gorm:"not null;size:1024" json:"message"`
	Meta      datatypes.JSONType[map[string]string] `json:"meta"`
	ReadAt    *time.Time                            `json:"read_at,omitempty"`
	CreatedAt time.Time                             `gorm:"index" json:"created_at"`
}

// CleanupTask is an outbox row for object-store deletions that must happen
// after a database delete has committed. Prefix tasks remove every key
// under Key.
type CleanupTask struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Key           string     `gorm:"not null;size:1024" json:"key"`
	IsPrefix      bool       `gorm:"not null;default:false" json:"is_prefix"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	LastError     string     `gorm:"size:1024" json:"last_error,omitempty"`
	NextAttemptAt time.Time  `gorm:"index" json:"next_attempt_at"`
	CompletedAt   *time.Time `gorm:"index" json:"completed_at,omitempty"`
	FailedAt      *time.Time `gorm:"index" json:"failed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
