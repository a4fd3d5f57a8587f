package handlers

import (
	"net/http"
	"strconv"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/auth"
	"github.com/agjmills/clientvault/internal/notify"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/render"
	"gorm.io/gorm"
)

// AccountHandler serves the signed-in user's own storage usage and
// notification feed.
type AccountHandler struct {
	db         *gorm.DB
	accountant *quota.Accountant
}

func NewAccountHandler(db *gorm.DB, accountant *quota.Accountant) *AccountHandler {
	return &AccountHandler{db: db, accountant: accountant}
}

func (h *AccountHandler) Quota(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r)
	if user == nil {
		render.Error(w, r, apperror.ErrUnauthorized)
		return
	}
	usage, err := h.accountant.Usage(r.Context(), user.ID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, usage)
}

func (h *AccountHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r)
	if user == nil {
		render.Error(w, r, apperror.ErrUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			render.Error(w, r, apperror.InvalidInput("invalid limit"))
			return
		}
		limit = n
	}

	list, err := notify.List(r.Context(), h.db, user.ID, limit)
	if err != nil {
		render.Error(w, r, apperror.Internal("failed to load notifications", err))
		return
	}
	render.JSON(w, http.StatusOK, list)
}
