package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"gorm.io/gorm"
)

// Mode selects which descendants are followed.
type Mode int

const (
	// All follows every descendant regardless of archive state.
	All Mode = iota
	// ArchivedOnly follows archived descendants only.
	ArchivedOnly
)

// Descendants returns every entry under rootID within scope, excluding the
// root itself. It issues one query per tree level. An unknown or
// out-of-scope root, or a file root, yields an empty result.
func Descendants(ctx context.Context, db *gorm.DB, rootID uint, scope Scope, mode Mode) ([]models.File, error) {
	var root models.File
	err := scope.Apply(db.WithContext(ctx)).Where("id = ?", rootID).First(&root).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load root %d: %w", rootID, err)
	}
	if !root.IsFolder() {
		return nil, nil
	}

	visited := map[uint]bool{root.ID: true}
	frontier := []uint{root.ID}
	var out []models.File

	for len(frontier) > 0 {
		var level []models.File
		q := scope.Apply(db.WithContext(ctx)).Where("parent_folder_id IN ?", frontier)
		if mode == ArchivedOnly {
			q = q.Where("is_archived = ?", true)
		}
		if err := q.Order("id").Find(&level).Error; err != nil {
			return nil, fmt.Errorf("failed to load descendants of %v: %w", frontier, err)
		}

		var next []uint
		for _, f := range level {
			if visited[f.ID] {
				logger.Warn("cycle in folder tree", "root_id", rootID, "file_id", f.ID, "scope", scope.String())
				continue
			}
			visited[f.ID] = true
			out = append(out, f)
			if f.IsFolder() {
				next = append(next, f.ID)
			}
		}
		frontier = next
	}

	return out, nil
}

// IsDescendant reports whether candidateID is ancestorID or lies anywhere
// beneath it within scope. It walks parent links upward from the candidate.
func IsDescendant(ctx context.Context, db *gorm.DB, ancestorID, candidateID uint, scope Scope) (bool, error) {
	if ancestorID == candidateID {
		return true, nil
	}

	seen := map[uint]bool{}
	current := candidateID
	for {
		if seen[current] {
			return false, nil
		}
		seen[current] = true

		var f models.File
		err := scope.Apply(db.WithContext(ctx)).Select("id", "parent_folder_id").Where("id = ?", current).First(&f).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load ancestor %d: %w", current, err)
		}
		if f.ParentFolderID == nil {
			return false, nil
		}
		if *f.ParentFolderID == ancestorID {
			return true, nil
		}
		current = *f.ParentFolderID
	}
}

// Ancestors returns the folder chain above an entry, nearest parent first.
func Ancestors(ctx context.Context, db *gorm.DB, parentID *uint, scope Scope) ([]models.File, error) {
	var chain []models.File
	seen := map[uint]bool{}
	for parentID != nil && !seen[*parentID] {
		seen[*parentID] = true
		var f models.File
		err := scope.Apply(db.WithContext(ctx)).Where("id = ?", *parentID).First(&f).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load folder %d: %w", *parentID, err)
		}
		chain = append(chain, f)
		parentID = f.ParentFolderID
	}
	return chain, nil
}
