package files

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/metrics"
	"github.com/agjmills/clientvault/internal/naming"
	"github.com/agjmills/clientvault/internal/notify"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/storage"
	"github.com/agjmills/clientvault/internal/tree"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rename changes an entry's display name. A file's object follows the name
// to its new key before the record is updated.
func (s *Service) Rename(ctx context.Context, actor Actor, scope tree.Scope, id uint, newName string) (entry *models.File, err error) {
	defer func() { metrics.RecordFileOperation("rename", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return nil, err
	}
	newName, err = validateName(newName)
	if err != nil {
		return nil, err
	}
	entry, err = find(ctx, s.db, scope, id)
	if err != nil {
		return nil, err
	}
	if entry.Name == newName {
		return entry, nil
	}
	existing, err := siblingNames(ctx, s.db, scope, entry.ParentFolderID, entry.ID)
	if err != nil {
		return nil, err
	}
	if nameTaken(newName, existing) {
		return nil, apperror.Conflict(fmt.Sprintf("%q already exists in this folder", newName))
	}

	var moves []storage.MovePair
	newPath := entry.Path
	if !entry.IsFolder() {
		newPath = objectKey(scope, entry.UploadedByID, entry.ParentFolderID, newName)
		if newPath != entry.Path {
			moves = append(moves, storage.MovePair{Src: entry.Path, Dst: newPath})
		}
	}
	if err := s.moveObjects(ctx, moves); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.File{}).Where("id = ?", entry.ID).
			Updates(map[string]any{"name": newName, "path": newPath}).Error; err != nil {
			return fmt.Errorf("failed to rename entry: %w", err)
		}
		if entry.IsFolder() {
			return refreshFolderNames(ctx, tx, scope, entry.ID)
		}
		return nil
	})
	if err != nil {
		s.revertMoves(ctx, moves)
		return nil, err
	}

	entry.Name = newName
	entry.Path = newPath
	return entry, nil
}

// ItemRef names one entry in a bulk request. Type is optional; when set it
// must match the stored entry.
type ItemRef struct {
	ID   uint
	Type string
}

// MoveResult reports how many entries changed folder.
type MoveResult struct {
	Moved int `json:"moved"`
}

// Move relocates one entry under destID, or to the scope root.
func (s *Service) Move(ctx context.Context, actor Actor, scope tree.Scope, id uint, destID *uint) (MoveResult, error) {
	return s.BulkMove(ctx, actor, scope, []ItemRef{{ID: id}}, destID)
}

// plannedMove is one entry's new placement in a bulk move.
type plannedMove struct {
	entry models.File
	name  string
	path  string
}

// BulkMove relocates entries under destID, or to the scope root. Names are
// made unique against the destination and within the batch. All object moves
// run concurrently and must succeed before any record changes; a partial
// object failure is reported as an upstream error and not rolled back.
func (s *Service) BulkMove(ctx context.Context, actor Actor, scope tree.Scope, items []ItemRef, destID *uint) (result MoveResult, err error) {
	defer func() { metrics.RecordFileOperation("move", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return result, err
	}
	if len(items) == 0 {
		return result, apperror.InvalidInput("no items to move")
	}

	entries, err := s.loadBatch(ctx, scope, items)
	if err != nil {
		return result, err
	}
	db := s.db.WithContext(ctx)
	if _, err := liveFolder(ctx, db, scope, destID); err != nil {
		return result, err
	}

	var pending []models.File
	for _, e := range entries {
		if e.IsArchived {
			return result, apperror.Conflict(fmt.Sprintf("%q is archived and cannot be moved", e.Name))
		}
		if destID != nil && e.IsFolder() {
			inside, err := tree.IsDescendant(ctx, db, e.ID, *destID, scope)
			if err != nil {
				return result, err
			}
			if inside {
				return result, apperror.Conflict(fmt.Sprintf("cannot move %q into itself or one of its subfolders", e.Name))
			}
		}
		if sameParent(e.ParentFolderID, destID) {
			continue
		}
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return result, nil
	}

	plan, rekeys, moves, err := s.planMoves(ctx, scope, pending, destID)
	if err != nil {
		return result, err
	}
	if err := s.moveObjects(ctx, moves); err != nil {
		return result, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range plan {
			if err := tx.Model(&models.File{}).Where("id = ?", p.entry.ID).Updates(map[string]any{
				"parent_folder_id": destID,
				"name":             p.name,
				"path":             p.path,
			}).Error; err != nil {
				return fmt.Errorf("failed to move entry %d: %w", p.entry.ID, err)
			}
		}
		for fileID, key := range rekeys {
			if err := tx.Model(&models.File{}).Where("id = ?", fileID).UpdateColumn("path", key).Error; err != nil {
				return fmt.Errorf("failed to update object key of %d: %w", fileID, err)
			}
		}
		for _, p := range plan {
			if err := refreshFolderNames(ctx, tx, scope, p.entry.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.revertMoves(ctx, moves)
		return result, err
	}

	result.Moved = len(plan)
	s.announce(ctx, actor, scope, notify.Notice{
		Title:   "Files moved",
		Message: fmt.Sprintf("%d item(s) were moved.", result.Moved),
	})
	return result, nil
}

// loadBatch resolves every reference in scope, de-duplicating ids.
func (s *Service) loadBatch(ctx context.Context, scope tree.Scope, items []ItemRef) ([]models.File, error) {
	seen := make(map[uint]bool, len(items))
	ids := make([]uint, 0, len(items))
	want := make(map[uint]string, len(items))
	for _, it := range items {
		if it.ID == 0 {
			return nil, apperror.InvalidInput("item id is required")
		}
		if it.Type != "" && it.Type != models.TypeFile && it.Type != models.TypeFolder {
			return nil, apperror.InvalidInput(fmt.Sprintf("unknown item type %q", it.Type))
		}
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		ids = append(ids, it.ID)
		want[it.ID] = it.Type
	}

	var found []models.File
	if err := scope.Apply(s.db.WithContext(ctx)).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	byID := make(map[uint]models.File, len(found))
	for _, f := range found {
		byID[f.ID] = f
	}

	out := make([]models.File, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok || (want[id] != "" && want[id] != f.Type) {
			return nil, apperror.NotFound(fmt.Sprintf("item %d not found", id))
		}
		out = append(out, f)
	}
	return out, nil
}

// planMoves assigns destination names and keys, and lists the object moves
// for every file affected. rekeys holds new keys for files inside moved
// folders whose derived key no longer matches.
func (s *Service) planMoves(ctx context.Context, scope tree.Scope, entries []models.File, destID *uint) (plan []plannedMove, rekeys map[uint]string, moves []storage.MovePair, err error) {
	db := s.db.WithContext(ctx)
	exclude := make([]uint, len(entries))
	toName := make([]naming.Item, len(entries))
	for i, e := range entries {
		exclude[i] = e.ID
		toName[i] = naming.Item{Name: e.Name, IsFolder: e.IsFolder()}
	}
	existing, err := siblingNames(ctx, db, scope, destID, exclude...)
	if err != nil {
		return nil, nil, nil, err
	}
	names := naming.GenerateUniqueNames(toName, existing)

	rekeys = map[uint]string{}
	for i, e := range entries {
		p := plannedMove{entry: e, name: names[i]}
		if e.IsFolder() {
			desc, err := tree.Descendants(ctx, db, e.ID, scope, tree.All)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, d := range desc {
				if d.IsFolder() {
					continue
				}
				key := objectKey(scope, d.UploadedByID, d.ParentFolderID, d.Name)
				if key != d.Path {
					moves = append(moves, storage.MovePair{Src: d.Path, Dst: key})
					rekeys[d.ID] = key
				}
			}
		} else {
			p.path = objectKey(scope, e.UploadedByID, destID, p.name)
			if p.path != e.Path {
				moves = append(moves, storage.MovePair{Src: e.Path, Dst: p.path})
			}
		}
		plan = append(plan, p)
	}
	return plan, rekeys, moves, nil
}

// moveObjects runs the batch and maps a failure to an upstream error.
func (s *Service) moveObjects(ctx context.Context, moves []storage.MovePair) error {
	if len(moves) == 0 {
		return nil
	}
	err := storage.BatchMove(ctx, s.store, moves)
	metrics.RecordObjectMoves(len(moves), err)
	if err != nil {
		logger.Error("object move failed", "count", len(moves), "error", err)
		return apperror.Upstream("failed to move stored files", err)
	}
	return nil
}

func sameParent(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CopyTarget selects where a copy lands. The zero value keeps the source's
// folder; Root places it at the scope root.
type CopyTarget struct {
	ParentID *uint
	Root     bool
}

// Copy duplicates a file as "<base>_copy_<id><ext>" and charges its size to
// the scope owner. The object is copied before the record is written.
func (s *Service) Copy(ctx context.Context, actor Actor, scope tree.Scope, id uint, target CopyTarget) (file *models.File, err error) {
	defer func() { metrics.RecordFileOperation("copy", err) }()

	if err := authorize(actor, scope, true); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	src, err := find(ctx, db, scope, id)
	if err != nil {
		return nil, err
	}
	if src.IsFolder() {
		return nil, apperror.InvalidInput("only files can be copied")
	}
	if src.IsArchived {
		return nil, apperror.Conflict(fmt.Sprintf("%q is archived and cannot be copied", src.Name))
	}

	parentID := src.ParentFolderID
	switch {
	case target.Root:
		parentID = nil
	case target.ParentID != nil:
		parentID = target.ParentID
	}
	if _, err := liveFolder(ctx, db, scope, parentID); err != nil {
		return nil, err
	}

	sizeKB := quota.ParseSizeToKB(src.Size)
	if !actor.IsAdmin {
		if err := s.quota.AdmitWrite(db, scope.UserID, sizeKB); err != nil {
			return nil, err
		}
	}

	existing, err := siblingNames(ctx, db, scope, parentID)
	if err != nil {
		return nil, err
	}
	name := naming.GenerateUniqueName(copyName(src.Name), existing)
	uploader := uploaderFor(actor, scope)
	key := objectKey(scope, uploader, parentID, name)

	if err := s.store.Copy(ctx, src.Path, key); err != nil {
		logger.Error("object copy failed", "src", src.Path, "dst", key, "error", err)
		return nil, apperror.Upstream("failed to copy stored file", err)
	}

	file = &models.File{
		Type:           models.TypeFile,
		Name:           name,
		Path:           key,
		Size:           src.Size,
		ParentFolderID: parentID,
	}
	scope.Stamp(file, uploader)

	var change quota.Change
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if file.FolderName, err = folderPath(ctx, tx, scope, parentID); err != nil {
			return err
		}
		if err := tx.Create(file).Error; err != nil {
			return fmt.Errorf("failed to create copy record: %w", err)
		}
		change, err = s.quota.Add(tx, scope.UserID, sizeKB)
		return err
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			logger.Error("failed to remove orphaned copy", "key", key, "error", delErr)
		}
		return nil, err
	}

	s.quota.Evaluate(ctx, change)
	s.announce(ctx, actor, scope, notify.Notice{
		Title:   "File copied",
		Message: fmt.Sprintf("%s was copied to %s.", src.Name, file.Name),
		Meta:    map[string]string{"file_id": fmt.Sprint(file.ID)},
	})
	return file, nil
}

// copyName is "<base>_copy_<8 hex chars><ext>".
func copyName(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}
	return fmt.Sprintf("%s_copy_%s%s", base, uuid.New().String()[:8], ext)
}
