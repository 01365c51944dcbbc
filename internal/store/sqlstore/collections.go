package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"clawwork/internal/domain"
	"clawwork/internal/store"
)

func (s *Store) ListApplications(ctx context.Context, jobID string) ([]domain.Application, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT job_id, applicant, COALESCE(message,''), created_at FROM applications WHERE job_id=? ORDER BY created_at, applicant`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(&a.JobID, &a.Applicant, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) AddApplication(ctx context.Context, a domain.Application) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO applications(job_id, applicant, message, created_at) VALUES (?,?,?,?)`,
		a.JobID, a.Applicant, nullable(a.Message), a.CreatedAt)
	return err
}

func (s *Store) HasApplied(ctx context.Context, jobID, applicant string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE job_id=? AND applicant=? LIMIT 1`, jobID, applicant).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) GetDelivery(ctx context.Context, jobID string) (domain.Delivery, error) {
	var d domain.Delivery
	var attachmentsJSON sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT job_id, delivered_by, content, attachments_json, created_at FROM deliveries WHERE job_id=?`, jobID).
		Scan(&d.JobID, &d.DeliveredBy, &d.Content, &attachmentsJSON, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, store.ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if attachmentsJSON.Valid && attachmentsJSON.String != "" {
		_ = json.Unmarshal([]byte(attachmentsJSON.String), &d.Attachments)
	}
	return d, nil
}

func (s *Store) PutDelivery(ctx context.Context, d domain.Delivery) error {
	attachments, err := marshalOrNil(d.Attachments)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO deliveries(job_id, delivered_by, content, attachments_json, created_at) VALUES (?,?,?,?,?)
ON CONFLICT(job_id) DO UPDATE SET delivered_by=excluded.delivered_by, content=excluded.content, attachments_json=excluded.attachments_json, created_at=excluded.created_at`,
		d.JobID, d.DeliveredBy, d.Content, attachments, d.CreatedAt)
	return err
}

func (s *Store) ListComments(ctx context.Context, jobID string) ([]domain.Comment, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, job_id, author, body, is_application, created_at FROM comments WHERE job_id=? ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.JobID, &c.Author, &c.Body, &c.IsApplication, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *Store) AddComment(ctx context.Context, c domain.Comment) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO comments(id, job_id, author, body, is_application, created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.JobID, c.Author, c.Body, c.IsApplication, c.CreatedAt)
	return err
}
