package handlers

import (
	"net/http"

	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/quota"
	"github.com/agjmills/clientvault/internal/render"
)

type AdminHandler struct {
	accountant *quota.Accountant
}

func NewAdminHandler(accountant *quota.Accountant) *AdminHandler {
	return &AdminHandler{accountant: accountant}
}

type updateQuotaRequest struct {
	Limit string `json:"limit" validate:"required,max=32"`
}

// UpdateUserQuota replaces a user's storage limit. The limit is a size
// string such as "5 GB"; "0" removes the limit.
func (h *AdminHandler) UpdateUserQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		render.Error(w, r, err)
		return
	}
	var req updateQuotaRequest
	if err := decode(r, &req); err != nil {
		render.Error(w, r, err)
		return
	}
	limitKB, err := quota.ParseLimit(req.Limit)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	if err := h.accountant.SetLimit(r.Context(), userID, limitKB); err != nil {
		render.Error(w, r, err)
		return
	}

	usage, err := h.accountant.Usage(r.Context(), userID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	// Warn if setting quota below current usage
	if limitKB > 0 && usage.UsedKB > limitKB {
		logger.Warn("storage limit set below current usage",
			"user_id", userID,
			"limit_kb", limitKB,
			"used_kb", usage.UsedKB)
	}
	render.JSON(w, http.StatusOK, usage)
}
