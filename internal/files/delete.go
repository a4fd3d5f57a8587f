package files

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/cleanup"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/metrics"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/agjmills/clientvault/internal/tree"
	"gorm.io/gorm"
)

// DeleteResult summarises a committed delete.
type DeleteResult struct {
	Deleted int   `json:"deleted"`
	FreedKB int64 `json:"freed_kb"`
}

// Delete removes an entry and everything below it. Records and quota change
// in one transaction together with the cleanup tasks for their objects; the
// objects are removed after commit on a best-effort basis and retried later
// by the cleanup worker.
func (s *Service) Delete(ctx context.Context, actor Actor, scope tree.Scope, id uint) (result DeleteResult, err error) {
	defer func() { metrics.RecordFileOperation("delete", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return result, err
	}
	db := s.db.WithContext(ctx)
	root, err := find(ctx, db, scope, id)
	if err != nil {
		return result, err
	}
	desc, err := tree.Descendants(ctx, db, root.ID, scope, tree.All)
	if err != nil {
		return result, err
	}
	all := append([]models.File{*root}, desc...)

	ids := make([]uint, len(all))
	var targets []cleanup.Target
	for i, f := range all {
		ids[i] = f.ID
		if !f.IsFolder() {
			result.FreedKB += quota.ParseSizeToKB(f.Size)
			if f.Path != "" {
				targets = append(targets, cleanup.Target{Key: f.Path})
			}
		}
	}
	targets = append(targets, folderPrefixes(scope, actor, all)...)

	var (
		change  quota.Change
		taskIDs []uint
	)
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id IN ?", ids).Delete(&models.File{}).Error; err != nil {
			return fmt.Errorf("failed to delete records: %w", err)
		}
		var err error
		if change, err = s.quota.Subtract(tx, scope.UserID, result.FreedKB); err != nil {
			return err
		}
		taskIDs, err = cleanup.Enqueue(tx, targets)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}
	result.Deleted = len(ids)

	s.quota.Evaluate(ctx, change)
	if s.outbox != nil {
		if failed := s.outbox.Run(ctx, taskIDs); failed > 0 {
			logger.Warn("object cleanup deferred to worker", "root_id", root.ID, "failed", failed, "scope", scope.String())
		}
	}
	return result, nil
}

// folderPrefixes lists a cleanup prefix per deleted folder. Private files are
// keyed by the uploading admin, so each folder gets one prefix per admin seen
// in the subtree.
func folderPrefixes(scope tree.Scope, actor Actor, entries []models.File) []cleanup.Target {
	uploaders := []uint{uploaderFor(actor, scope)}
	if scope.Kind == tree.KindPrivate {
		seen := map[uint]bool{actor.UserID: true}
		for _, f := range entries {
			if !seen[f.UploadedByID] {
				seen[f.UploadedByID] = true
				uploaders = append(uploaders, f.UploadedByID)
			}
		}
	}

	var out []cleanup.Target
	for _, f := range entries {
		if !f.IsFolder() {
			continue
		}
		for _, u := range uploaders {
			out = append(out, cleanup.Target{Key: storage.FolderPrefix(objectBase(scope, u), f.ID), IsPrefix: true})
		}
	}
	return out
}

// DeleteByPath resolves a folder by its parent path and name and deletes it.
// Live folders win over archived ones with the same path.
func (s *Service) DeleteByPath(ctx context.Context, actor Actor, scope tree.Scope, parentPath, folderName string) (DeleteResult, error) {
	if err := authorize(actor, scope, true); err != nil {
		return DeleteResult{}, err
	}
	name, err := validateName(folderName)
	if err != nil {
		return DeleteResult{}, err
	}

	var folder models.File
	err = scope.Apply(s.db.WithContext(ctx)).
		Where("type = ? AND folder_name = ? AND name = ?", models.TypeFolder, sanitizeFolderPath(parentPath), name).
		Order("is_archived, id").
		First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DeleteResult{}, apperror.NotFound("folder not found")
	}
	if err != nil {
		return DeleteResult{}, fmt.Errorf("failed to resolve folder path: %w", err)
	}
	return s.Delete(ctx, actor, scope, folder.ID)
}

// sanitizeFolderPath cleans a folder path to the "/a/b" form.
func sanitizeFolderPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
