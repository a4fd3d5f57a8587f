// Package notifytest provides an in-memory Emitter and Mailer for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/agjmills/clientvault/internal/notify"
)

// Sent is one recorded notice. UserID is zero for admin fan-outs.
type Sent struct {
	UserID  uint
	ToAdmin bool
	Notice  notify.Notice
}

// Recorder implements notify.Emitter and notify.Mailer.
type Recorder struct {
	mu     sync.Mutex
	sent   []Sent
	emails []notify.QuotaWarning
}

func (r *Recorder) NotifyUser(ctx context.Context, userID uint, n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{UserID: userID, Notice: n})
}

func (r *Recorder) NotifyAdmins(ctx context.Context, n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{ToAdmin: true, Notice: n})
}

func (r *Recorder) SendQuotaWarning(ctx context.Context, w notify.QuotaWarning) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, w)
	return nil
}

func (r *Recorder) Notices() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) Emails() []notify.QuotaWarning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.QuotaWarning(nil), r.emails...)
}

// ForUser returns notices sent directly to userID.
func (r *Recorder) ForUser(userID uint) []Sent {
	var out []Sent
	for _, s := range r.Notices() {
		if !s.ToAdmin && s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// ToAdmins returns admin fan-outs.
func (r *Recorder) ToAdmins() []Sent {
	var out []Sent
	for _, s := range r.Notices() {
		if s.ToAdmin {
			out = append(out, s)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.emails = nil
}
