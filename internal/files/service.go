// Package files implements the file and folder lifecycle inside an
// ownership scope: create, rename, move, copy, archive, unarchive and delete.
//
// Every operation takes the acting user and the target scope explicitly.
// Object-store writes for moves and copies happen before the database
// commit; deletes commit first and clean the object store afterwards.
package files

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/cleanup"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/notify"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/agjmills/clientvault/internal/tree"
	"gorm.io/gorm"
)

const maxNameLength = 255

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// Options tunes signed URL lifetimes and the per-file size cap.
type Options struct {
	UploadURLExpiry   time.Duration
	DownloadURLExpiry time.Duration
	MaxUploadBytes    int64 // 0 disables the cap
}

type Service struct {
	db       *gorm.DB
	store    storage.BlobStore
	quota    *quota.Accountant
	notifier notify.Emitter
	outbox   *cleanup.Outbox
	opts     Options
}

func NewService(db *gorm.DB, store storage.BlobStore, accountant *quota.Accountant, notifier notify.Emitter, outbox *cleanup.Outbox, opts Options) *Service {
	if opts.UploadURLExpiry <= 0 {
		opts.UploadURLExpiry = 3 * time.Minute
	}
	if opts.DownloadURLExpiry <= 0 {
		opts.DownloadURLExpiry = 12 * time.Hour
	}
	return &Service{
		db:       db,
		store:    store,
		quota:    accountant,
		notifier: notifier,
		outbox:   outbox,
		opts:     opts,
	}
}

// authorize checks the actor against the scope. Admins may act on any scope.
// Other users may read their own sent and received files and write only to
// their own sent scope.
func authorize(actor Actor, scope tree.Scope, write bool) error {
	if actor.IsAdmin {
		return nil
	}
	if scope.Kind == tree.KindPrivate || scope.UserID != actor.UserID {
		return apperror.Forbidden("not allowed to access these files")
	}
	if write && scope.Kind != tree.KindSent {
		return apperror.Forbidden("not allowed to modify these files")
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", apperror.InvalidInput("name is required")
	case strings.ContainsAny(name, `/\`):
		return "", apperror.InvalidInput("name cannot contain a path separator")
	case name == "." || name == "..":
		return "", apperror.InvalidInput("invalid name")
	case len(name) > maxNameLength:
		return "", apperror.InvalidInput(fmt.Sprintf("name cannot exceed %d characters", maxNameLength))
	}
	return name, nil
}

// find loads an entry by id within scope.
func find(ctx context.Context, db *gorm.DB, scope tree.Scope, id uint) (*models.File, error) {
	var f models.File
	err := scope.Apply(db.WithContext(ctx)).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("file or folder not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry %d: %w", id, err)
	}
	return &f, nil
}

// liveFolder resolves an optional destination folder. nil means the scope root.
func liveFolder(ctx context.Context, db *gorm.DB, scope tree.Scope, id *uint) (*models.File, error) {
	if id == nil {
		return nil, nil
	}
	f, err := find(ctx, db, scope, *id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("folder not found")
		}
		return nil, err
	}
	if !f.IsFolder() || f.IsArchived {
		return nil, apperror.NotFound("folder not found")
	}
	return f, nil
}

// siblingNames lists the names directly under parentID in scope, in any
// archive state, skipping the ids in exclude. Archived and live entries at
// one level share an object key namespace.
func siblingNames(ctx context.Context, db *gorm.DB, scope tree.Scope, parentID *uint, exclude ...uint) ([]string, error) {
	q := scope.Apply(db.WithContext(ctx)).Model(&models.File{})
	if parentID == nil {
		q = q.Where("parent_folder_id IS NULL")
	} else {
		q = q.Where("parent_folder_id = ?", *parentID)
	}
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var names []string
	if err := q.Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list sibling names: %w", err)
	}
	return names, nil
}

func nameTaken(name string, existing []string) bool {
	for _, n := range existing {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// keyInUse reports whether any record, live or archived, points at key.
func keyInUse(tx *gorm.DB, key string) (bool, error) {
	var n int64
	if err := tx.Model(&models.File{}).Where("path = ?", key).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check object key: %w", err)
	}
	return n > 0, nil
}

// objectBase is the key prefix for files in scope written by uploaderID.
// Only the private scope partitions by uploader.
func objectBase(scope tree.Scope, uploaderID uint) string {
	switch scope.Kind {
	case tree.KindReceived:
		return storage.ReceivedBase(scope.UserID)
	case tree.KindPrivate:
		return storage.AdminPrivateBase(uploaderID, scope.UserID)
	default:
		return storage.SentBase(scope.UserID)
	}
}

// objectKey derives the key for a file named name under parentID.
func objectKey(scope tree.Scope, uploaderID uint, parentID *uint, name string) string {
	switch scope.Kind {
	case tree.KindReceived:
		return storage.ReceivedKey(scope.UserID, parentID, name)
	case tree.KindPrivate:
		return storage.AdminPrivateKey(uploaderID, scope.UserID, parentID, name)
	default:
		return storage.SentKey(scope.UserID, parentID, name)
	}
}

// folderPath is the materialized path of the folder chain above an entry.
func folderPath(ctx context.Context, db *gorm.DB, scope tree.Scope, parentID *uint) (string, error) {
	chain, err := tree.Ancestors(ctx, db, parentID, scope)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(chain))
	for i, f := range chain {
		parts[len(chain)-1-i] = f.Name
	}
	return "/" + strings.Join(parts, "/"), nil
}

// refreshFolderNames recomputes FolderName for root and everything below it
// from the parent links.
func refreshFolderNames(ctx context.Context, tx *gorm.DB, scope tree.Scope, rootID uint) error {
	root, err := find(ctx, tx, scope, rootID)
	if err != nil {
		return err
	}
	rootPath, err := folderPath(ctx, tx, scope, root.ParentFolderID)
	if err != nil {
		return err
	}
	if err := setFolderName(tx, root, rootPath); err != nil {
		return err
	}
	if !root.IsFolder() {
		return nil
	}

	full := map[uint]string{root.ID: path.Join(rootPath, root.Name)}
	desc, err := tree.Descendants(ctx, tx, root.ID, scope, tree.All)
	if err != nil {
		return err
	}
	// Descendants come back level by level, so parents resolve first.
	for i := range desc {
		d := &desc[i]
		parent, ok := full[*d.ParentFolderID]
		if !ok {
			continue
		}
		if err := setFolderName(tx, d, parent); err != nil {
			return err
		}
		if d.IsFolder() {
			full[d.ID] = path.Join(parent, d.Name)
		}
	}
	return nil
}

func setFolderName(tx *gorm.DB, f *models.File, folderName string) error {
	if f.FolderName == folderName {
		return nil
	}
	if err := tx.Model(&models.File{}).Where("id = ?", f.ID).UpdateColumn("folder_name", folderName).Error; err != nil {
		return fmt.Errorf("failed to update folder path of %d: %w", f.ID, err)
	}
	f.FolderName = folderName
	return nil
}

// announce sends a file activity notice to the other party. Staff-only
// activity is never announced; admin activity goes to the client and client
// activity goes to the admins.
func (s *Service) announce(ctx context.Context, actor Actor, scope tree.Scope, n notify.Notice) {
	if s.notifier == nil || scope.Kind == tree.KindPrivate {
		return
	}
	if n.Meta == nil {
		n.Meta = map[string]string{}
	}
	n.Meta["scope"] = string(scope.Kind)
	n.Meta["user_id"] = fmt.Sprint(scope.UserID)
	if actor.IsAdmin {
		s.notifier.NotifyUser(ctx, scope.UserID, n)
		return
	}
	s.notifier.NotifyAdmins(ctx, n)
}

// revertMoves puts objects back after a failed commit. Failures leave the
// objects at their new keys and are logged.
func (s *Service) revertMoves(ctx context.Context, moves []storage.MovePair) {
	if len(moves) == 0 {
		return
	}
	back := make([]storage.MovePair, len(moves))
	for i, m := range moves {
		back[i] = storage.MovePair{Src: m.Dst, Dst: m.Src}
	}
	if err := storage.BatchMove(ctx, s.store, back); err != nil {
		logger.Error("failed to restore objects after aborted commit", "count", len(moves), "error", err)
	}
}

func entryKind(f *models.File) string {
	if f.IsFolder() {
		return "Folder"
	}
	return "File"
}
