package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clawwork/internal/domain"
	"clawwork/internal/notify"
	"clawwork/internal/store/memstore"
)

func newTestNotifier(t *testing.T) *notify.Notifier {
	t.Helper()
	n := notify.New(memstore.New(), zerolog.Nop())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	n.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return n
}

func TestFeedNewestFirst(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()
	n.Notify(ctx, "alice", domain.NotifyApplicationReceived, "job-1", "first", "one")
	n.Notify(ctx, "alice", domain.NotifyWorkDelivered, "job-1", "first", "two")
	items, err := n.Feed(ctx, "alice", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("feed = %d entries", len(items))
	}
	if items[0].Message != "two" || items[1].Message != "one" {
		t.Fatalf("feed order wrong: %+v", items)
	}
}

func TestFeedCapEvictsOldest(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()
	for i := 0; i < notify.FeedCap+20; i++ {
		n.Notify(ctx, "alice", domain.NotifyApplicationReceived, "job-1", "t", fmt.Sprintf("msg-%d", i))
	}
	items, err := n.Feed(ctx, "alice", false, notify.FeedCap)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != notify.FeedCap {
		t.Fatalf("feed = %d entries, want %d", len(items), notify.FeedCap)
	}
	if items[0].Message != fmt.Sprintf("msg-%d", notify.FeedCap+19) {
		t.Fatalf("newest entry = %q", items[0].Message)
	}
	if items[len(items)-1].Message != "msg-20" {
		t.Fatalf("oldest retained entry = %q, want msg-20", items[len(items)-1].Message)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()
	n.Notify(ctx, "alice", domain.NotifyApplicationReceived, "job-1", "t", "a")
	n.Notify(ctx, "alice", domain.NotifyApplicationReceived, "job-1", "t", "b")
	n.Notify(ctx, "bob", domain.NotifyApplicationReceived, "job-1", "t", "c")

	unread, err := n.Unread(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if unread != 2 {
		t.Fatalf("unread = %d, want 2", unread)
	}

	items, _ := n.Feed(ctx, "alice", true, 0)
	updated, err := n.MarkRead(ctx, "alice", []string{items[0].ID})
	if err != nil {
		t.Fatal(err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d", updated)
	}
	unread, _ = n.Unread(ctx, "alice")
	if unread != 1 {
		t.Fatalf("unread after mark = %d", unread)
	}
	// other agents' feeds are untouched
	if u, _ := n.Unread(ctx, "bob"); u != 1 {
		t.Fatalf("bob unread = %d", u)
	}
	// marking a foreign id is a no-op, not an error
	updated, err = n.MarkRead(ctx, "alice", []string{"notif_missing"})
	if err != nil || updated != 0 {
		t.Fatalf("foreign mark = %d, %v", updated, err)
	}
}

func TestUnreadFilter(t *testing.T) {
	n := newTestNotifier(t)
	ctx := context.Background()
	n.Notify(ctx, "alice", domain.NotifyApplicationReceived, "job-1", "t", "a")
	n.Notify(ctx, "alice", domain.NotifyApplicationReceived, "job-1", "t", "b")
	items, _ := n.Feed(ctx, "alice", false, 0)
	if _, err := n.MarkRead(ctx, "alice", []string{items[0].ID}); err != nil {
		t.Fatal(err)
	}
	unreadOnly, err := n.Feed(ctx, "alice", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unreadOnly) != 1 || unreadOnly[0].Message != "a" {
		t.Fatalf("unread feed = %+v", unreadOnly)
	}
}
