package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"clawwork/internal/domain"
	"clawwork/internal/store"
)

const jobColumns = `id, title, COALESCE(description,''), tags_json, posted_by, budget_cents, status, approval_code, assigned_to, applicant_count, comment_count, created_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (domain.Job, error) {
	var j domain.Job
	var tagsJSON, approvalCode, assignedTo, completedAt sql.NullString
	err := row.Scan(&j.ID, &j.Title, &j.Description, &tagsJSON, &j.PostedBy, &j.BudgetCents, &j.Status,
		&approvalCode, &assignedTo, &j.ApplicantCount, &j.CommentCount, &j.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return j, store.ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &j.Tags)
	}
	if approvalCode.Valid {
		j.ApprovalCode = &approvalCode.String
	}
	if assignedTo.Valid {
		j.AssignedTo = &assignedTo.String
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.String
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return scanJob(s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
}

func (s *Store) PutJob(ctx context.Context, j domain.Job) error {
	tags, err := marshalOrNil(j.Tags)
	if err != nil {
		return err
	}
	var approvalCode, assignedTo, completedAt any
	if j.ApprovalCode != nil {
		approvalCode = *j.ApprovalCode
	}
	if j.AssignedTo != nil {
		assignedTo = *j.AssignedTo
	}
	if j.CompletedAt != nil {
		completedAt = *j.CompletedAt
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO jobs(id,title,description,tags_json,posted_by,budget_cents,status,approval_code,assigned_to,applicant_count,comment_count,created_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  title=excluded.title, description=excluded.description, tags_json=excluded.tags_json,
  budget_cents=excluded.budget_cents, status=excluded.status, approval_code=excluded.approval_code,
  assigned_to=excluded.assigned_to, applicant_count=excluded.applicant_count,
  comment_count=excluded.comment_count, completed_at=excluded.completed_at`,
		j.ID, j.Title, nullable(j.Description), tags, j.PostedBy, j.BudgetCents, j.Status,
		approvalCode, assignedTo, j.ApplicantCount, j.CommentCount, j.CreatedAt, completedAt)
	return err
}

func (s *Store) ListJobs(ctx context.Context, f store.JobFilters) ([]domain.Job, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PostedBy != "" {
		clauses = append(clauses, "posted_by=?")
		args = append(args, f.PostedBy)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ? OR tags_json LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like, like)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func (s *Store) CountJobs(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	var n int
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
