// Package memstore is the transient reference backend. It mirrors the sqlite
// backend's behavior exactly, minus durability.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"clawwork/internal/domain"
	"clawwork/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	agents        map[string]domain.Agent // keyed by lowercased name
	jobs          map[string]domain.Job
	applications  map[string][]domain.Application // keyed by job id
	deliveries    map[string]domain.Delivery      // keyed by job id
	comments      map[string][]domain.Comment     // keyed by job id
	notifications map[string][]domain.Notification // keyed by lowercased recipient, newest first
}

func New() *Store {
	return &Store{
		agents:        map[string]domain.Agent{},
		jobs:          map[string]domain.Job{},
		applications:  map[string][]domain.Application{},
		deliveries:    map[string]domain.Delivery{},
		comments:      map[string][]domain.Comment{},
		notifications: map[string][]domain.Notification{},
	}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (s *Store) GetAgent(_ context.Context, name string) (domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[key(name)]
	if !ok {
		return domain.Agent{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAgentBySecretHash(_ context.Context, hash string) (domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.SecretHash != "" && a.SecretHash == hash {
			return a, nil
		}
	}
	return domain.Agent{}, store.ErrNotFound
}

func (s *Store) PutAgent(_ context.Context, a domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[key(a.Name)] = a
	return nil
}

func (s *Store) ListAgents(_ context.Context) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (s *Store) CountAgents(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents), nil
}

func (s *Store) GetJob(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, store.ErrNotFound
	}
	return j, nil
}

func (s *Store) PutJob(_ context.Context, j domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *Store) ListJobs(_ context.Context, f store.JobFilters) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Job
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.PostedBy != "" && !strings.EqualFold(j.PostedBy, f.PostedBy) {
			continue
		}
		if q != "" && !jobMatches(j, q) {
			continue
		}
		res = append(res, j)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID > res[j].ID
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func jobMatches(j domain.Job, q string) bool {
	if strings.Contains(strings.ToLower(j.Title), q) || strings.Contains(strings.ToLower(j.Description), q) {
		return true
	}
	for _, tag := range j.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func (s *Store) CountJobs(_ context.Context, status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status == "" {
		return len(s.jobs), nil
	}
	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListApplications(_ context.Context, jobID string) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	apps := s.applications[jobID]
	res := make([]domain.Application, len(apps))
	copy(res, apps)
	return res, nil
}

func (s *Store) AddApplication(_ context.Context, a domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[a.JobID] = append(s.applications[a.JobID], a)
	return nil
}

func (s *Store) HasApplied(_ context.Context, jobID, applicant string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.applications[jobID] {
		if strings.EqualFold(a.Applicant, applicant) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetDelivery(_ context.Context, jobID string) (domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[jobID]
	if !ok {
		return domain.Delivery{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) PutDelivery(_ context.Context, d domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.JobID] = d
	return nil
}

func (s *Store) ListComments(_ context.Context, jobID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.comments[jobID]
	res := make([]domain.Comment, len(comments))
	copy(res, comments)
	return res, nil
}

func (s *Store) AddComment(_ context.Context, c domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.JobID] = append(s.comments[c.JobID], c)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, recipient string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Notification
	for _, n := range s.notifications[key(recipient)] {
		if unreadOnly && n.Read {
			continue
		}
		res = append(res, n)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (s *Store) AddNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(n.Recipient)
	s.notifications[k] = append([]domain.Notification{n}, s.notifications[k]...)
	return nil
}

func (s *Store) TrimNotifications(_ context.Context, recipient string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(recipient)
	if keep >= 0 && len(s.notifications[k]) > keep {
		s.notifications[k] = s.notifications[k][:keep]
	}
	return nil
}

func (s *Store) MarkNotificationsRead(_ context.Context, recipient string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	k := key(recipient)
	updated := 0
	for i, n := range s.notifications[k] {
		if n.Read {
			continue
		}
		if len(wanted) > 0 && !wanted[n.ID] {
			continue
		}
		s.notifications[k][i].Read = true
		updated++
	}
	return updated, nil
}

func (s *Store) CountUnread(_ context.Context, recipient string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entry := range s.notifications[key(recipient)] {
		if !entry.Read {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
