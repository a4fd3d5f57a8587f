package notify

import (
	"context"
	"fmt"

	"github.com/agjmills/clientvault/internal/logger"
	"github.com/resend/resend-go/v2"
)

// QuotaWarning is the content of a storage threshold email.
type QuotaWarning struct {
	To      string
	Name    string
	Band    string
	UsedKB  int64
	LimitKB int64
	Percent int
}

// Mailer sends transactional portal emails.
type Mailer interface {
	SendQuotaWarning(ctx context.Context, w QuotaWarning) error
}

// ResendMailer sends email through Resend. In dev mode, or without an API
// key, messages are only logged.
type ResendMailer struct {
	client    *resend.Client
	fromEmail string
	appName   string
	appURL    string
	isDev     bool
}

func NewResendMailer(apiKey, fromEmail, appName, appURL string, isDev bool) *ResendMailer {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}
	return &ResendMailer{
		client:    client,
		fromEmail: fromEmail,
		appName:   appName,
		appURL:    appURL,
		isDev:     isDev,
	}
}

func (m *ResendMailer) SendQuotaWarning(ctx context.Context, w QuotaWarning) error {
	subject, body := quotaWarningTemplate(w, m.appName, m.appURL)

	if m.isDev {
		logger.Info("email sent (dev mode)", "type", "quota_warning", "to", w.To, "subject", subject, "band", w.Band)
		return nil
	}

	if m.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    m.fromEmail,
		To:      []string{w.To},
		Subject: subject,
		Text:    body,
	}

	_, err := m.client.Emails.SendWithContext(ctx, params)
	if err == nil {
		logger.Info("email sent", "type", "quota_warning", "to", w.To, "band", w.Band)
	}
	return err
}

func quotaWarningTemplate(w QuotaWarning, appName, appURL string) (string, string) {
	name := w.Name
	if name == "" {
		name = "there"
	}

	if w.Band == "full" {
		subject := fmt.Sprintf("Your %s storage is full", appName)
		body := fmt.Sprintf(`Hi %s,

Your document storage is full (%d%% of your %s allowance is in use).
New uploads will be blocked until space is freed. Delete files you no longer need or contact us to raise your limit.

%s

The %s team`, name, w.Percent, humanKB(w.LimitKB), appURL, appName)
		return subject, body
	}

	subject := fmt.Sprintf("Your %s storage is almost full", appName)
	body := fmt.Sprintf(`Hi %s,

You are using %s of your %s storage allowance (%d%%).
Consider archiving or deleting documents you no longer need.

%s

The %s team`, name, humanKB(w.UsedKB), humanKB(w.LimitKB), w.Percent, appURL, appName)
	return subject, body
}

func humanKB(kb int64) string {
	switch {
	case kb >= 1024*1024:
		return fmt.Sprintf("%.1f GB", float64(kb)/(1024*1024))
	case kb >= 1024:
		return fmt.Sprintf("%.1f MB", float64(kb)/1024)
	default:
		return fmt.Sprintf("%d KB", kb)
	}
}
