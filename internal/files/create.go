package files

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/metrics"
	"github.com/agjmills/clientvault/internal/naming"
	"github.com/agjmills/clientvault/internal/notify"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/agjmills/clientvault/internal/tree"
	"github.com/maruel/natural"
	"gorm.io/gorm"
)

// CreateFolder adds an empty folder under parentID, or at the scope root.
func (s *Service) CreateFolder(ctx context.Context, actor Actor, scope tree.Scope, name string, parentID *uint) (folder *models.File, err error) {
	defer func() { metrics.RecordFileOperation("create_folder", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return nil, err
	}
	name, err = validateName(name)
	if err != nil {
		return nil, err
	}

	folder = &models.File{Type: models.TypeFolder, Name: name, ParentFolderID: parentID}
	scope.Stamp(folder, actor.UserID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := liveFolder(ctx, tx, scope, parentID); err != nil {
			return err
		}
		existing, err := siblingNames(ctx, tx, scope, parentID)
		if err != nil {
			return err
		}
		if nameTaken(name, existing) {
			return apperror.Conflict(fmt.Sprintf("%q already exists in this folder", name))
		}
		if folder.FolderName, err = folderPath(ctx, tx, scope, parentID); err != nil {
			return err
		}
		if err := tx.Create(folder).Error; err != nil {
			return fmt.Errorf("failed to create folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// UploadRequest describes a file the caller is about to upload.
type UploadRequest struct {
	Name        string
	ContentType string
	SizeBytes   int64
	ParentID    *uint
}

// UploadTicket is a signed URL to PUT the object to, plus the key and name
// to pass to CreateFile afterwards.
type UploadTicket struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PrepareUpload admits the upload against the owner's quota, picks a free
// name in the target folder and signs an upload URL for the derived key.
func (s *Service) PrepareUpload(ctx context.Context, actor Actor, scope tree.Scope, req UploadRequest) (ticket *UploadTicket, err error) {
	defer func() { metrics.RecordFileOperation("prepare_upload", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return nil, err
	}
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.SizeBytes < 0 {
		return nil, apperror.InvalidInput("size cannot be negative")
	}
	if s.opts.MaxUploadBytes > 0 && req.SizeBytes > s.opts.MaxUploadBytes {
		return nil, errTooLarge
	}

	db := s.db.WithContext(ctx)
	if _, err := liveFolder(ctx, db, scope, req.ParentID); err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		if err := s.quota.AdmitWrite(db, scope.UserID, quota.BytesToKB(req.SizeBytes)); err != nil {
			return nil, err
		}
	}
	existing, err := siblingNames(ctx, db, scope, req.ParentID)
	if err != nil {
		return nil, err
	}
	name = naming.GenerateUniqueName(name, existing)

	key := objectKey(scope, uploaderFor(actor, scope), req.ParentID, name)
	url, err := s.store.PresignUpload(ctx, key, req.ContentType, req.SizeBytes, s.opts.UploadURLExpiry)
	if err != nil {
		return nil, apperror.Upstream("failed to sign upload URL", err)
	}
	return &UploadTicket{
		Name:      name,
		Key:       key,
		URL:       url,
		ExpiresAt: time.Now().Add(s.opts.UploadURLExpiry),
	}, nil
}

// CreateFileInput records an object that has already been uploaded.
type CreateFileInput struct {
	Key      string
	Name     string
	Size     string // optional; must agree with the stored object when given
	ParentID *uint
}

var errTooLarge = apperror.InvalidInput("file exceeds the maximum upload size")

// CreateFile stores the record for an uploaded object and charges its stored
// size to the scope owner in the same transaction. The key must be the one
// PrepareUpload derived for the name and folder, and no other record may
// already point at it. Objects rejected for size are removed.
func (s *Service) CreateFile(ctx context.Context, actor Actor, scope tree.Scope, in CreateFileInput) (file *models.File, err error) {
	defer func() { metrics.RecordFileOperation("create_file", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return nil, err
	}
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	uploader := uploaderFor(actor, scope)
	if in.Key != objectKey(scope, uploader, in.ParentID, name) {
		return nil, apperror.InvalidInput("object key does not match the file name and folder")
	}

	info, err := s.store.Stat(ctx, in.Key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperror.InvalidInput("uploaded object not found")
	}
	if err != nil {
		return nil, apperror.Upstream("failed to inspect uploaded object", err)
	}
	sizeKB := quota.BytesToKB(info.Size)
	if declared := strings.TrimSpace(in.Size); declared != "" && quota.ParseSizeToKB(declared) != sizeKB {
		return nil, apperror.InvalidInput(fmt.Sprintf("declared size %q does not match the uploaded object (%s)", declared, quota.FormatSize(info.Size)))
	}

	file = &models.File{
		Type:           models.TypeFile,
		Name:           name,
		Path:           in.Key,
		Size:           quota.FormatSize(info.Size),
		ParentFolderID: in.ParentID,
	}
	scope.Stamp(file, uploader)

	var (
		change  quota.Change
		discard bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := liveFolder(ctx, tx, scope, in.ParentID); err != nil {
			return err
		}
		existing, err := siblingNames(ctx, tx, scope, in.ParentID)
		if err != nil {
			return err
		}
		if nameTaken(name, existing) {
			return apperror.Conflict(fmt.Sprintf("%q already exists in this folder", name))
		}
		inUse, err := keyInUse(tx, in.Key)
		if err != nil {
			return err
		}
		if inUse {
			return apperror.Conflict("object is already recorded")
		}
		// From here the object belongs to no record, so a rejection may remove it.
		if s.opts.MaxUploadBytes > 0 && info.Size > s.opts.MaxUploadBytes {
			discard = true
			return errTooLarge
		}
		if !actor.IsAdmin {
			if err := s.quota.AdmitWrite(tx, scope.UserID, sizeKB); err != nil {
				discard = errors.Is(err, apperror.ErrQuotaExceeded)
				return err
			}
		}
		if file.FolderName, err = folderPath(ctx, tx, scope, in.ParentID); err != nil {
			return err
		}
		if err := tx.Create(file).Error; err != nil {
			return fmt.Errorf("failed to create file record: %w", err)
		}
		change, err = s.quota.Add(tx, scope.UserID, sizeKB)
		return err
	})
	if err != nil {
		if discard {
			if derr := s.store.Delete(ctx, in.Key); derr != nil {
				logger.Warn("failed to remove rejected upload", "key", in.Key, "error", derr)
			}
		}
		return nil, err
	}

	s.quota.Evaluate(ctx, change)
	s.announce(ctx, actor, scope, notify.Notice{
		Title:   "New file uploaded",
		Message: fmt.Sprintf("%s was uploaded.", file.Name),
		Meta:    map[string]string{"file_id": fmt.Sprint(file.ID)},
	})
	return file, nil
}

// uploaderFor is the UploadedByID a new entry in scope gets.
func uploaderFor(actor Actor, scope tree.Scope) uint {
	if scope.Kind == tree.KindSent {
		return scope.UserID
	}
	return actor.UserID
}

// DownloadURL signs a GET URL for a stored file.
func (s *Service) DownloadURL(ctx context.Context, actor Actor, scope tree.Scope, id uint) (string, error) {
	if err := authorize(actor, scope, false); err != nil {
		return "", err
	}
	f, err := find(ctx, s.db, scope, id)
	if err != nil {
		return "", err
	}
	if f.IsFolder() {
		return "", apperror.InvalidInput("folders cannot be downloaded")
	}
	url, err := s.store.PresignDownload(ctx, f.Path, s.opts.DownloadURLExpiry)
	if err != nil {
		return "", apperror.Upstream("failed to sign download URL", err)
	}
	return url, nil
}

// List returns the entries directly under parentID, or at the scope root,
// folders first and then in natural name order. archived selects the
// archive view instead of the live one.
func (s *Service) List(ctx context.Context, actor Actor, scope tree.Scope, parentID *uint, archived bool) ([]models.File, error) {
	if err := authorize(actor, scope, false); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	q := scope.Apply(db).Where("is_archived = ?", archived)
	if parentID == nil {
		q = q.Where("parent_folder_id IS NULL")
	} else {
		parent, err := find(ctx, db, scope, *parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() || parent.IsArchived != archived {
			return nil, apperror.NotFound("folder not found")
		}
		q = q.Where("parent_folder_id = ?", *parentID)
	}

	var entries []models.File
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsFolder() != entries[j].IsFolder() {
			return entries[i].IsFolder()
		}
		return natural.Less(strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name))
	})
	return entries, nil
}
