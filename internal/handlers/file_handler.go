package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/auth"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/files"
	"github.com/agjmills/clientvault/internal/render"
	"github.com/agjmills/clientvault/internal/tree"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// FileHandler exposes files.Service over JSON. The same handler serves the
// user routes (/api/files/{scope}) and the admin routes that act on behalf of
// a portal user (/api/admin/users/{userID}/files/{scope}).
type FileHandler struct {
	db  *gorm.DB
	svc *files.Service
}

func NewFileHandler(db *gorm.DB, svc *files.Service) *FileHandler {
	return &FileHandler{db: db, svc: svc}
}

// Routes mounts the file endpoints relative to a scope base.
func (h *FileHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.CreateFile)
	r.Post("/folders", h.CreateFolder)
	r.Post("/folders/delete-by-path", h.DeleteByPath)
	r.Post("/move", h.BulkMove)
	r.Get("/{id}/download", h.Download)
	r.Post("/{id}/rename", h.Rename)
	r.Post("/{id}/move", h.Move)
	r.Post("/{id}/copy", h.Copy)
	r.Post("/{id}/archive", h.Archive)
	r.Post("/{id}/unarchive", h.Unarchive)
	r.Delete("/{id}", h.Delete)
}

// UploadRoutes mounts the upload ticket endpoint so it can sit behind its own
// rate limit.
func (h *FileHandler) UploadRoutes(r chi.Router) {
	r.Post("/uploads", h.PrepareUpload)
}

// resolve derives the actor from the session user and the scope from the URL.
// The scope owner is the session user unless a {userID} parameter names
// another portal user.
func (h *FileHandler) resolve(r *http.Request) (files.Actor, tree.Scope, error) {
	user := auth.GetUser(r)
	if user == nil {
		return files.Actor{}, tree.Scope{}, apperror.ErrUnauthorized
	}
	actor := files.Actor{UserID: user.ID, IsAdmin: user.IsAdmin}

	kind, err := tree.ParseKind(chi.URLParam(r, "scope"))
	if err != nil {
		return actor, tree.Scope{}, apperror.NotFound(err.Error())
	}

	ownerID := user.ID
	if raw := chi.URLParam(r, "userID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return actor, tree.Scope{}, apperror.InvalidInput("invalid userID")
		}
		var owner models.User
		err = h.db.WithContext(r.Context()).
			Where("id = ? AND is_active = ?", id, true).
			First(&owner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return actor, tree.Scope{}, apperror.NotFound("user not found")
		}
		if err != nil {
			return actor, tree.Scope{}, apperror.Internal("failed to load user", err)
		}
		ownerID = owner.ID
	}

	return actor, tree.Scope{Kind: kind, UserID: ownerID}, nil
}

// withEntry resolves the scope and the {id} parameter.
func (h *FileHandler) withEntry(w http.ResponseWriter, r *http.Request) (files.Actor, tree.Scope, uint, bool) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return actor, scope, 0, false
	}
	id, err := idParam(r, "id")
	if err != nil {
		render.Error(w, r, err)
		return actor, scope, 0, false
	}
	return actor, scope, id, true
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	parentID, err := optionalIDQuery(r, "parent_id")
	if err != nil {
		render.Error(w, r, err)
		return
	}
	archived, err := boolQuery(r, "archived")
	if err != nil {
		render.Error(w, r, err)
		return
	}

	entries, err := h.svc.List(r.Context(), actor, scope, parentID, archived)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, entries)
}

type createFolderRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ParentID *uint  `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *FileHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var req createFolderRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	folder, err := h.svc.CreateFolder(r.Context(), actor, scope, req.Name, req.ParentID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusCreated, folder)
}

type uploadRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"max=255"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
	ParentID    *uint  `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *FileHandler) PrepareUpload(w http.ResponseWriter, r *http.Request) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var req uploadRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	ticket, err := h.svc.PrepareUpload(r.Context(), actor, scope, files.UploadRequest{
		Name:        req.Name,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		ParentID:    req.ParentID,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, ticket)
}

type createFileRequest struct {
	Key      string `json:"key" validate:"required,max=1024"`
	Name     string `json:"name" validate:"required,max=255"`
	Size     string `json:"size" validate:"max=32"`
	ParentID *uint  `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *FileHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var req createFileRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	file, err := h.svc.CreateFile(r.Context(), actor, scope, files.CreateFileInput{
		Key:      req.Key,
		Name:     req.Name,
		Size:     req.Size,
		ParentID: req.ParentID,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusCreated, file)
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	url, err := h.svc.DownloadURL(r.Context(), actor, scope, id)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, map[string]string{"url": url})
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (h *FileHandler) Rename(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	entry, err := h.svc.Rename(r.Context(), actor, scope, id, req.Name)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, entry)
}

type moveRequest struct {
	ParentID *uint `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *FileHandler) Move(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	result, err := h.svc.Move(r.Context(), actor, scope, id, req.ParentID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, result)
}

type itemRef struct {
	ID   uint   `json:"id" validate:"required,gt=0"`
	Type string `json:"type" validate:"omitempty,oneof=file folder"`
}

type bulkMoveRequest struct {
	Items    []itemRef `json:"items" validate:"required,min=1,max=500,dive"`
	ParentID *uint     `json:"parent_id" validate:"omitempty,gt=0"`
}

func (h *FileHandler) BulkMove(w http.ResponseWriter, r *http.Request) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var req bulkMoveRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	items := make([]files.ItemRef, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, files.ItemRef{ID: it.ID, Type: it.Type})
	}
	result, err := h.svc.BulkMove(r.Context(), actor, scope, items, req.ParentID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, result)
}

type copyRequest struct {
	ParentID *uint `json:"parent_id" validate:"omitempty,gt=0"`
	ToRoot   bool  `json:"to_root"`
}

func (h *FileHandler) Copy(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	var req copyRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}
	if req.ToRoot && req.ParentID != nil {
		render.Error(w, r, apperror.InvalidInput("parent_id and to_root are mutually exclusive"))
		return
	}

	file, err := h.svc.Copy(r.Context(), actor, scope, id, files.CopyTarget{ParentID: req.ParentID, Root: req.ToRoot})
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusCreated, file)
}

func (h *FileHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.Archive(r.Context(), actor, scope, id)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, entry)
}

func (h *FileHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.Unarchive(r.Context(), actor, scope, id)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, entry)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, scope, id, ok := h.withEntry(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Delete(r.Context(), actor, scope, id)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, result)
}

type deleteByPathRequest struct {
	ParentPath string `json:"parent_path" validate:"max=2048"`
	FolderName string `json:"folder_name" validate:"required,max=255"`
}

func (h *FileHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	actor, scope, err := h.resolve(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var req deleteByPathRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}

	result, err := h.svc.DeleteByPath(r.Context(), actor, scope, req.ParentPath, req.FolderName)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, result)
}
