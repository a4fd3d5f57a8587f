// Package tree resolves folder hierarchies inside an ownership scope.
package tree

import (
	"fmt"

	"github.com/agjmills/clientvault/internal/database/models"
	"gorm.io/gorm"
)

// Kind names one of the three file spaces a portal user has.
type Kind string

const (
	// KindSent holds files the user uploaded to the firm.
	KindSent Kind = "sent"
	// KindReceived holds documents the firm sent to the user.
	KindReceived Kind = "received"
	// KindPrivate holds staff-only files kept about the user.
	KindPrivate Kind = "private"
)

// ParseKind validates a scope name from a URL.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSent, KindReceived, KindPrivate:
		return k, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Scope is an ownership filter. Every tree query is restricted to one scope
// and parent links never cross scopes.
type Scope struct {
	Kind   Kind
	UserID uint
}

func Sent(userID uint) Scope     { return Scope{Kind: KindSent, UserID: userID} }
func Received(userID uint) Scope { return Scope{Kind: KindReceived, UserID: userID} }
func Private(userID uint) Scope  { return Scope{Kind: KindPrivate, UserID: userID} }

// Apply adds the scope predicate to a files query.
func (s Scope) Apply(db *gorm.DB) *gorm.DB {
	switch s.Kind {
	case KindSent:
		return db.Where("uploaded_by_id = ? AND received_by_id IS NULL AND is_admin_only_private_file = ?", s.UserID, false)
	case KindReceived:
		return db.Where("received_by_id = ? AND is_admin_only_private_file = ?", s.UserID, false)
	case KindPrivate:
		return db.Where("received_by_id = ? AND is_admin_only_private_file = ?", s.UserID, true)
	}
	// Unknown kinds match nothing.
	return db.Where("1 = 0")
}

// Contains reports whether f belongs to the scope.
func (s Scope) Contains(f *models.File) bool {
	switch s.Kind {
	case KindSent:
		return f.UploadedByID == s.UserID && f.ReceivedByID == nil && !f.IsAdminOnlyPrivateFile
	case KindReceived:
		return f.ReceivedByID != nil && *f.ReceivedByID == s.UserID && !f.IsAdminOnlyPrivateFile
	case KindPrivate:
		return f.ReceivedByID != nil && *f.ReceivedByID == s.UserID && f.IsAdminOnlyPrivateFile
	}
	return false
}

// Stamp sets the ownership columns on a new entry so that it falls inside
// the scope. uploaderID is the acting user for received and private scopes.
func (s Scope) Stamp(f *models.File, uploaderID uint) {
	switch s.Kind {
	case KindSent:
		f.UploadedByID = s.UserID
		f.ReceivedByID = nil
		f.IsAdminOnlyPrivateFile = false
	case KindReceived, KindPrivate:
		uid := s.UserID
		f.UploadedByID = uploaderID
		f.ReceivedByID = &uid
		f.IsAdminOnlyPrivateFile = s.Kind == KindPrivate
	}
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.UserID)
}
