package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/agjmills/clientvault/internal/database/dbtest"
	"github.com/agjmills/clientvault/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBEmitter_NotifyUser(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.CreateUser(t, db, "client@example.com", false, 0, 0)

	e := NewDBEmitter(db)
	e.NotifyUser(context.Background(), user.ID, Notice{
		Title:   "New document received",
		Message: "engagement-letter.pdf",
		Meta:    map[string]string{"file_id": "12"},
	})

	got, err := List(context.Background(), db, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "New document received", got[0].Title)
	assert.Equal(t, "12", got[0].Meta.Data()["file_id"])
}

func TestDBEmitter_NotifyAdminsSkipsInactiveAndClients(t *testing.T) {
	db := dbtest.Open(t)
	a1 := dbtest.CreateUser(t, db, "a1@firm.test", true, 0, 0)
	a2 := dbtest.CreateUser(t, db, "a2@firm.test", true, 0, 0)
	gone := dbtest.CreateUser(t, db, "gone@firm.test", true, 0, 0)
	client := dbtest.CreateUser(t, db, "c@example.com", false, 0, 0)
	require.NoError(t, db.Model(gone).Update("is_active", false).Error)

	NewDBEmitter(db).NotifyAdmins(context.Background(), Notice{Title: "New file uploaded", Message: "w2.pdf"})

	var rows []models.Notification
	require.NoError(t, db.Order("user_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, a1.ID, rows[0].UserID)
	assert.Equal(t, a2.ID, rows[1].UserID)

	var clientCount int64
	db.Model(&models.Notification{}).Where("user_id = ?", client.ID).Count(&clientCount)
	assert.Zero(t, clientCount)
}

func TestListNewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.CreateUser(t, db, "client@example.com", false, 0, 0)
	e := NewDBEmitter(db)

	e.NotifyUser(context.Background(), user.ID, Notice{Title: "first", Message: "1"})
	e.NotifyUser(context.Background(), user.ID, Notice{Title: "second", Message: "2"})

	got, err := List(context.Background(), db, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Title)
}

func TestResendMailer_DevModeOnlyLogs(t *testing.T) {
	m := NewResendMailer("re_key", "portal@example.com", "Client Portal", "https://portal.test", true)
	err := m.SendQuotaWarning(context.Background(), QuotaWarning{To: "c@example.com", Band: "high", UsedKB: 900, LimitKB: 1000, Percent: 90})
	assert.NoError(t, err)
}

func TestResendMailer_UnconfiguredFails(t *testing.T) {
	m := NewResendMailer("", "portal@example.com", "Client Portal", "https://portal.test", false)
	err := m.SendQuotaWarning(context.Background(), QuotaWarning{To: "c@example.com", Band: "full"})
	assert.ErrorContains(t, err, "RESEND_API_KEY")
}

func TestQuotaWarningTemplate(t *testing.T) {
	subject, body := quotaWarningTemplate(QuotaWarning{Name: "Dana", Band: "high", UsedKB: 9 * 1024 * 1024, LimitKB: 10 * 1024 * 1024, Percent: 90}, "Client Portal", "https://portal.test")
	assert.Equal(t, "Your Client Portal storage is almost full", subject)
	assert.True(t, strings.Contains(body, "9.0 GB of your 10.0 GB"))

	subject, _ = quotaWarningTemplate(QuotaWarning{Band: "full"}, "Client Portal", "")
	assert.Equal(t, "Your Client Portal storage is full", subject)
}
