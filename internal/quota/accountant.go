package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/agjmills/clientvault/internal/apperror"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/agjmills/clientvault/internal/logger"
	"github.com/agjmills/clientvault/internal/metrics"
	"github.com/agjmills/clientvault/internal/notify"
	"gorm.io/gorm"
)

// Change is the before and after usage of one quota mutation.
type Change struct {
	UserID  uint
	Before  int64
	After   int64
	LimitKB int64
}

// Crossed reports whether the change moved the user into a higher, non-normal band.
func (c Change) Crossed() bool {
	after := Classify(c.After, c.LimitKB)
	return after != BandNormal && after > Classify(c.Before, c.LimitKB)
}

// Usage is a user's current storage position.
type Usage struct {
	UsedKB  int64  `json:"used_kb"`
	LimitKB int64  `json:"limit_kb"`
	Percent int    `json:"percent"`
	Band    string `json:"band"`
}

// Accountant applies usage deltas inside caller transactions and raises
// threshold notifications once those transactions have committed.
type Accountant struct {
	db      *gorm.DB
	emitter notify.Emitter
	mailer  notify.Mailer
}

func NewAccountant(db *gorm.DB, emitter notify.Emitter, mailer notify.Mailer) *Accountant {
	return &Accountant{db: db, emitter: emitter, mailer: mailer}
}

// Add increases usage atomically within tx.
func (a *Accountant) Add(tx *gorm.DB, userID uint, kb int64) (Change, error) {
	if kb < 0 {
		return Change{}, fmt.Errorf("negative quota delta %d", kb)
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("storage_used", gorm.Expr("storage_used + ?", kb))
	if res.Error != nil {
		return Change{}, fmt.Errorf("failed to add storage usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Change{}, apperror.NotFound("user not found")
	}

	after, limit, err := readUsage(tx, userID)
	if err != nil {
		return Change{}, err
	}
	return Change{UserID: userID, Before: after - kb, After: after, LimitKB: limit}, nil
}

// Subtract decreases usage atomically within tx, clamping at zero.
func (a *Accountant) Subtract(tx *gorm.DB, userID uint, kb int64) (Change, error) {
	if kb < 0 {
		return Change{}, fmt.Errorf("negative quota delta %d", kb)
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("storage_used", gorm.Expr("CASE WHEN storage_used >= ? THEN storage_used - ? ELSE 0 END", kb, kb))
	if res.Error != nil {
		return Change{}, fmt.Errorf("failed to subtract storage usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Change{}, apperror.NotFound("user not found")
	}

	after, limit, err := readUsage(tx, userID)
	if err != nil {
		return Change{}, err
	}
	return Change{UserID: userID, Before: after + kb, After: after, LimitKB: limit}, nil
}

// AdmitWrite checks sizeKB against the user's current usage within tx.
func (a *Accountant) AdmitWrite(tx *gorm.DB, userID uint, sizeKB int64) error {
	used, limit, err := readUsage(tx, userID)
	if err != nil {
		return err
	}
	if err := Admit(used, limit, sizeKB); err != nil {
		metrics.QuotaRejections.Inc()
		return err
	}
	return nil
}

func readUsage(tx *gorm.DB, userID uint) (used, limit int64, err error) {
	var u models.User
	if err := tx.Select("id", "storage_used", "max_storage_limit").First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, apperror.NotFound("user not found")
		}
		return 0, 0, fmt.Errorf("failed to read storage usage: %w", err)
	}
	return u.StorageUsed, u.MaxStorageLimit, nil
}

// Usage returns the current position for a user.
func (a *Accountant) Usage(ctx context.Context, userID uint) (Usage, error) {
	used, limit, err := readUsage(a.db.WithContext(ctx), userID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		UsedKB:  used,
		LimitKB: limit,
		Percent: Percent(used, limit),
		Band:    Classify(used, limit).String(),
	}, nil
}

// SetLimit replaces a user's limit. Zero means unlimited.
func (a *Accountant) SetLimit(ctx context.Context, userID uint, limitKB int64) error {
	if limitKB < 0 {
		return apperror.InvalidInput("storage limit cannot be negative")
	}
	res := a.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("max_storage_limit", limitKB)
	if res.Error != nil {
		return fmt.Errorf("failed to update storage limit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("user not found")
	}
	return nil
}

// Evaluate runs after commit. On entry into the high or full band it sends
// one notification to the user, one to the admins, and one email.
func (a *Accountant) Evaluate(ctx context.Context, c Change) {
	metrics.RecordStorageUsage(c.UserID, c.After)
	if !c.Crossed() {
		return
	}

	band := Classify(c.After, c.LimitKB)
	pct := Percent(c.After, c.LimitKB)
	metrics.QuotaNotifications.WithLabelValues(band.String()).Inc()

	var user models.User
	if err := a.db.WithContext(ctx).First(&user, c.UserID).Error; err != nil {
		logger.Error("failed to load user for quota notification", "user_id", c.UserID, "error", err)
		return
	}

	meta := map[string]string{"kind": "quota", "band": band.String()}
	userNotice := notify.Notice{
		Title:   "Storage almost full",
		Message: fmt.Sprintf("You have used %d%% of your storage allowance.", pct),
		Meta:    meta,
	}
	adminNotice := notify.Notice{
		Title:   "Client storage almost full",
		Message: fmt.Sprintf("%s has used %d%% of their storage allowance.", user.Email, pct),
		Meta:    meta,
	}
	if band == BandFull {
		userNotice.Title = "Storage full"
		userNotice.Message = "Your storage allowance is full. New uploads are blocked until space is freed."
		adminNotice.Title = "Client storage full"
		adminNotice.Message = fmt.Sprintf("%s has reached their storage allowance.", user.Email)
	}

	a.emitter.NotifyUser(ctx, user.ID, userNotice)
	a.emitter.NotifyAdmins(ctx, adminNotice)

	if a.mailer == nil {
		return
	}
	err := a.mailer.SendQuotaWarning(ctx, notify.QuotaWarning{
		To:      user.Email,
		Name:    user.Name,
		Band:    band.String(),
		UsedKB:  c.After,
		LimitKB: c.LimitKB,
		Percent: pct,
	})
	if err != nil {
		logger.Error("failed to send quota email", "user_id", user.ID, "band", band.String(), "error", err)
	}
}
