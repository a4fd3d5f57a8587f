package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key prefixes used in the bucket.
const (
	userUploadsRoot  = "user-uploads"
	adminPrivateRoot = "admin-private-uploads"
	testimonialsRoot = "testimonials"
)

// sanitizeKeySegment strips separators so a display name can never escape
// its folder segment.
func sanitizeKeySegment(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "." || name == ".." {
		return "_"
	}
	return name
}

func joinKey(base string, folderID *uint, filename string) string {
	if folderID != nil {
		return fmt.Sprintf("%s/%d/%s", base, *folderID, sanitizeKeySegment(filename))
	}
	return base + "/" + sanitizeKeySegment(filename)
}

// SentBase is the key prefix for files a user uploaded to the firm.
func SentBase(userID uint) string {
	return fmt.Sprintf("%s/%d/sent", userUploadsRoot, userID)
}

// ReceivedBase is the key prefix for documents the firm sent to a user.
func ReceivedBase(userID uint) string {
	return fmt.Sprintf("%s/%d/received", userUploadsRoot, userID)
}

// AdminPrivateBase is the key prefix for staff-only files an admin keeps
// about a user.
func AdminPrivateBase(adminID, userID uint) string {
	return fmt.Sprintf("%s/%d/%d", adminPrivateRoot, adminID, userID)
}

// SentKey is user-uploads/{userId}/sent[/{folderId}]/{filename}.
func SentKey(userID uint, folderID *uint, filename string) string {
	return joinKey(SentBase(userID), folderID, filename)
}

// ReceivedKey is user-uploads/{userId}/received[/{folderId}]/{filename}.
func ReceivedKey(userID uint, folderID *uint, filename string) string {
	return joinKey(ReceivedBase(userID), folderID, filename)
}

// AdminPrivateKey is admin-private-uploads/{adminId}/{userId}[/{folderId}]/{filename}.
func AdminPrivateKey(adminID, userID uint, folderID *uint, filename string) string {
	return joinKey(AdminPrivateBase(adminID, userID), folderID, filename)
}

// FolderPrefix is the prefix under which a folder's direct children live.
func FolderPrefix(base string, folderID uint) string {
	return base + "/" + strconv.FormatUint(uint64(folderID), 10) + "/"
}

// TestimonialKey is testimonials/{timestamp}/{filename}.
func TestimonialKey(at time.Time, filename string) string {
	return fmt.Sprintf("%s/%d/%s", testimonialsRoot, at.UnixMilli(), sanitizeKeySegment(filename))
}

// ProfilePictureKey is user-uploads/{userId}/profile/{filename}.
func ProfilePictureKey(userID uint, filename string) string {
	return fmt.Sprintf("%s/%d/profile/%s", userUploadsRoot, userID, sanitizeKeySegment(filename))
}
