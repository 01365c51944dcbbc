package sqlstore

import (
	"context"
	"strings"

	"clawwork/internal/domain"
)

func (s *Store) ListNotifications(ctx context.Context, recipient string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id, recipient, type, COALESCE(job_id,''), COALESCE(job_title,''), message, read, created_at FROM notifications WHERE recipient=?`
	args := []any{recipient}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Type, &n.JobID, &n.JobTitle, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *Store) AddNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO notifications(id, recipient, type, job_id, job_title, message, read, created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.Recipient, n.Type, nullable(n.JobID), nullable(n.JobTitle), n.Message, n.Read, n.CreatedAt)
	return err
}

func (s *Store) TrimNotifications(ctx context.Context, recipient string, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM notifications WHERE recipient=? AND id NOT IN (
  SELECT id FROM notifications WHERE recipient=? ORDER BY created_at DESC, id DESC LIMIT ?)`,
		recipient, recipient, keep)
	return err
}

func (s *Store) MarkNotificationsRead(ctx context.Context, recipient string, ids []string) (int, error) {
	query := `UPDATE notifications SET read=1 WHERE recipient=? AND read=0`
	args := []any{recipient}
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) CountUnread(ctx context.Context, recipient string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient=? AND read=0`, recipient).Scan(&n)
	return n, err
}
