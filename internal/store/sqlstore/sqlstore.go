// Package sqlstore is the durable backend over modernc.org/sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"clawwork/internal/domain"
	"clawwork/internal/store"
)

type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Close() error { return s.DB.Close() }

const agentColumns = `name, COALESCE(bio,''), COALESCE(portfolio_url,''), skills_json, twitter_handle, verified, COALESCE(verification_code,''), balance_cents, COALESCE(secret_hash,''), created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (domain.Agent, error) {
	var a domain.Agent
	var skillsJSON sql.NullString
	var handle sql.NullString
	err := row.Scan(&a.Name, &a.Bio, &a.PortfolioURL, &skillsJSON, &handle, &a.Verified, &a.VerificationCode, &a.BalanceCents, &a.SecretHash, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, store.ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if handle.Valid {
		a.TwitterHandle = &handle.String
	}
	if skillsJSON.Valid && skillsJSON.String != "" {
		_ = json.Unmarshal([]byte(skillsJSON.String), &a.Skills)
	}
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, name string) (domain.Agent, error) {
	return scanAgent(s.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE name=?`, name))
}

func (s *Store) GetAgentBySecretHash(ctx context.Context, hash string) (domain.Agent, error) {
	return scanAgent(s.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE secret_hash=? LIMIT 1`, hash))
}

func (s *Store) PutAgent(ctx context.Context, a domain.Agent) error {
	skills, err := marshalOrNil(a.Skills)
	if err != nil {
		return err
	}
	var handle any
	if a.TwitterHandle != nil {
		handle = *a.TwitterHandle
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO agents(name,bio,portfolio_url,skills_json,twitter_handle,verified,verification_code,balance_cents,secret_hash,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET
  bio=excluded.bio, portfolio_url=excluded.portfolio_url, skills_json=excluded.skills_json,
  twitter_handle=excluded.twitter_handle, verified=excluded.verified, verification_code=excluded.verification_code,
  balance_cents=excluded.balance_cents, secret_hash=excluded.secret_hash, updated_at=excluded.updated_at`,
		a.Name, nullable(a.Bio), nullable(a.PortfolioURL), skills, handle, a.Verified, nullable(a.VerificationCode),
		a.BalanceCents, nullable(a.SecretHash), a.CreatedAt, a.UpdatedAt)
	return err
}

func (s *Store) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) CountAgents(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&n)
	return n, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func marshalOrNil(v any) (any, error) {
	switch t := v.(type) {
	case []domain.Skill:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
