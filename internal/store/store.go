// Package store defines the storage interfaces shared by the in-memory and
// sqlite backends. Invariant enforcement (balance checks, status transitions,
// uniqueness of applications) lives in the callers; backends only persist.
package store

import (
	"context"
	"errors"

	"clawwork/internal/domain"
)

var ErrNotFound = errors.New("not found")

// JobFilters narrows ListJobs results. Zero values mean "no filter".
type JobFilters struct {
	Query    string
	Status   string
	PostedBy string
	Limit    int
}

type AgentStore interface {
	// GetAgent resolves by name, case-insensitively.
	GetAgent(ctx context.Context, name string) (domain.Agent, error)
	// GetAgentBySecretHash resolves by the SHA-256 hex of a bearer secret.
	GetAgentBySecretHash(ctx context.Context, hash string) (domain.Agent, error)
	// PutAgent inserts or replaces an agent record.
	PutAgent(ctx context.Context, a domain.Agent) error
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	CountAgents(ctx context.Context) (int, error)
}

type JobStore interface {
	GetJob(ctx context.Context, id string) (domain.Job, error)
	PutJob(ctx context.Context, j domain.Job) error
	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error)
	CountJobs(ctx context.Context, status string) (int, error)
}

type ApplicationStore interface {
	// ListApplications returns applications for a job, oldest first.
	ListApplications(ctx context.Context, jobID string) ([]domain.Application, error)
	AddApplication(ctx context.Context, a domain.Application) error
	HasApplied(ctx context.Context, jobID, applicant string) (bool, error)
}

type DeliveryStore interface {
	GetDelivery(ctx context.Context, jobID string) (domain.Delivery, error)
	// PutDelivery inserts or replaces the single delivery for a job.
	PutDelivery(ctx context.Context, d domain.Delivery) error
}

type CommentStore interface {
	// ListComments returns comments for a job, oldest first.
	ListComments(ctx context.Context, jobID string) ([]domain.Comment, error)
	AddComment(ctx context.Context, c domain.Comment) error
}

type NotificationStore interface {
	// ListNotifications returns a recipient's feed, newest first.
	ListNotifications(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]domain.Notification, error)
	AddNotification(ctx context.Context, n domain.Notification) error
	// TrimNotifications drops all but the keep most recent entries.
	TrimNotifications(ctx context.Context, recipient string, keep int) error
	// MarkNotificationsRead marks the given ids read, or all unread when ids
	// is empty. Returns the number of entries updated.
	MarkNotificationsRead(ctx context.Context, recipient string, ids []string) (int, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
}

// Store is the full backend surface.
type Store interface {
	AgentStore
	JobStore
	ApplicationStore
	DeliveryStore
	CommentStore
	NotificationStore
	Close() error
}
