package files

import (
	"context"
	"fmt"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/metrics"
	"github.com/agjmills/clientvault/internal/naming"
	"github.com/agjmills/clientvault/internal/notify"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/agjmills/clientvault/internal/tree"
	"gorm.io/gorm"
)

// Archive marks an entry and everything below it as archived. The entry
// itself moves to the scope root of the archive view.
func (s *Service) Archive(ctx context.Context, actor Actor, scope tree.Scope, id uint) (*models.File, error) {
	entry, err := s.setArchived(ctx, actor, scope, id, true)
	metrics.RecordFileOperation("archive", err)
	return entry, err
}

// Unarchive restores an archived entry and its archived descendants to the
// scope root of the live view.
func (s *Service) Unarchive(ctx context.Context, actor Actor, scope tree.Scope, id uint) (*models.File, error) {
	entry, err := s.setArchived(ctx, actor, scope, id, false)
	metrics.RecordFileOperation("unarchive", err)
	return entry, err
}

func (s *Service) setArchived(ctx context.Context, actor Actor, scope tree.Scope, id uint, archive bool) (*models.File, error) {
	if err := authorize(actor, scope, true); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	entry, err := find(ctx, db, scope, id)
	if err != nil {
		return nil, err
	}
	if entry.IsArchived == archive {
		if archive {
			return nil, apperror.Conflict(fmt.Sprintf("%q is already archived", entry.Name))
		}
		return nil, apperror.Conflict(fmt.Sprintf("%q is not archived", entry.Name))
	}

	mode := tree.All
	if !archive {
		mode = tree.ArchivedOnly
	}
	desc, err := tree.Descendants(ctx, db, entry.ID, scope, mode)
	if err != nil {
		return nil, err
	}

	name := entry.Name
	if entry.ParentFolderID != nil {
		existing, err := siblingNames(ctx, db, scope, nil, entry.ID)
		if err != nil {
			return nil, err
		}
		name = naming.GenerateUniqueNames([]naming.Item{{Name: entry.Name, IsFolder: entry.IsFolder()}}, existing)[0]
	}

	var moves []storage.MovePair
	newPath := entry.Path
	if !entry.IsFolder() {
		newPath = objectKey(scope, entry.UploadedByID, nil, name)
		if newPath != entry.Path {
			moves = append(moves, storage.MovePair{Src: entry.Path, Dst: newPath})
		}
	}
	if err := s.moveObjects(ctx, moves); err != nil {
		return nil, err
	}

	ids := make([]uint, len(desc))
	for i, d := range desc {
		ids[i] = d.ID
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.File{}).Where("id = ?", entry.ID).Updates(map[string]any{
			"parent_folder_id": nil,
			"is_archived":      archive,
			"name":             name,
			"path":             newPath,
		}).Error; err != nil {
			return fmt.Errorf("failed to update %d: %w", entry.ID, err)
		}
		if len(ids) > 0 {
			if err := tx.Model(&models.File{}).Where("id IN ?", ids).UpdateColumn("is_archived", archive).Error; err != nil {
				return fmt.Errorf("failed to update descendants of %d: %w", entry.ID, err)
			}
		}
		return refreshFolderNames(ctx, tx, scope, entry.ID)
	})
	if err != nil {
		s.revertMoves(ctx, moves)
		return nil, err
	}

	entry.ParentFolderID = nil
	entry.IsArchived = archive
	entry.Name = name
	entry.Path = newPath
	entry.FolderName = "/"

	verb := "archived"
	if !archive {
		verb = "restored from the archive"
	}
	s.announce(ctx, actor, scope, notify.Notice{
		Title:   fmt.Sprintf("%s %s", entryKind(entry), verb),
		Message: fmt.Sprintf("%q was %s.", entry.Name, verb),
		Meta:    map[string]string{"file_id": fmt.Sprint(entry.ID)},
	})
	return entry, nil
}
