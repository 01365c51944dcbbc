// Package notify fans job-lifecycle events into per-agent notification feeds.
package notify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clawwork/internal/domain"
	"clawwork/internal/store"
)

// FeedCap bounds a feed; inserting beyond it evicts the oldest entries.
const FeedCap = 100

type Notifier struct {
	Store store.NotificationStore
	Log   zerolog.Logger
	Now   func() time.Time
}

func New(st store.NotificationStore, log zerolog.Logger) *Notifier {
	return &Notifier{Store: st, Log: log, Now: time.Now}
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Notify appends an entry to the recipient's feed. Fire-and-forget: failures
// are logged and never propagate to the triggering transition.
func (n *Notifier) Notify(ctx context.Context, recipient, eventType, jobID, jobTitle, message string) {
	now := n.now().UTC()
	entry := domain.Notification{
		ID:        newID(now),
		Recipient: recipient,
		Type:      eventType,
		JobID:     jobID,
		JobTitle:  jobTitle,
		Message:   message,
		CreatedAt: now.Format(time.RFC3339),
	}
	if err := n.Store.AddNotification(ctx, entry); err != nil {
		n.Log.Warn().Err(err).Str("recipient", recipient).Str("type", eventType).Msg("notification dropped")
		return
	}
	if err := n.Store.TrimNotifications(ctx, recipient, FeedCap); err != nil {
		n.Log.Warn().Err(err).Str("recipient", recipient).Msg("notification trim failed")
	}
}

// Feed returns the recipient's notifications, newest first.
func (n *Notifier) Feed(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > FeedCap {
		limit = FeedCap
	}
	return n.Store.ListNotifications(ctx, recipient, unreadOnly, limit)
}

// MarkRead marks the given ids read, or all unread when ids is empty.
func (n *Notifier) MarkRead(ctx context.Context, recipient string, ids []string) (int, error) {
	return n.Store.MarkNotificationsRead(ctx, recipient, ids)
}

func (n *Notifier) Unread(ctx context.Context, recipient string) (int, error) {
	return n.Store.CountUnread(ctx, recipient)
}

func newID(now time.Time) string {
	raw := make([]byte, 3)
	_, _ = rand.Read(raw)
	return fmt.Sprintf("notif_%d_%s", now.UnixMilli(), hex.EncodeToString(raw))
}
