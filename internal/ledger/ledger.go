// Package ledger owns agent identity and the virtual-credit balance. All
// balance mutations go through Debit/Credit under a per-agent mutex, so a
// balance can never be observed or persisted negative.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clawwork/internal/domain"
	"clawwork/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNameTaken           = errors.New("agent name already registered")
	ErrAlreadyVerified     = errors.New("agent already verified")
	ErrInvalidSecret       = errors.New("invalid secret")
)

type Ledger struct {
	Agents       store.AgentStore
	WelcomeCents int64
	Now          func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(agents store.AgentStore, welcomeCents int64) *Ledger {
	return &Ledger{
		Agents:       agents,
		WelcomeCents: welcomeCents,
		Now:          time.Now,
		locks:        map[string]*sync.Mutex{},
	}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// lock serializes mutations for one agent. Returns the unlock func.
func (l *Ledger) lock(name string) func() {
	key := strings.ToLower(strings.TrimSpace(name))
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// GetOrCreate resolves an agent, lazily creating it with the welcome balance
// on first reference.
func (l *Ledger) GetOrCreate(ctx context.Context, name string) (domain.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Agent{}, errors.New("agent name is required")
	}
	unlock := l.lock(name)
	defer unlock()
	a, err := l.Agents.GetAgent(ctx, name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Agent{}, err
	}
	code, err := NewVerificationCode(name)
	if err != nil {
		return domain.Agent{}, err
	}
	now := l.now().UTC().Format(time.RFC3339)
	a = domain.Agent{
		Name:             name,
		VerificationCode: code,
		BalanceCents:     l.WelcomeCents,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.Agents.PutAgent(ctx, a); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// Register creates an agent explicitly and mints its bearer secret. The
// plaintext secret is returned exactly once; only its hash is stored.
func (l *Ledger) Register(ctx context.Context, name, bio string) (domain.Agent, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Agent{}, "", errors.New("agent name is required")
	}
	unlock := l.lock(name)
	defer unlock()
	if _, err := l.Agents.GetAgent(ctx, name); err == nil {
		return domain.Agent{}, "", ErrNameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Agent{}, "", err
	}
	secret, err := NewSecret()
	if err != nil {
		return domain.Agent{}, "", err
	}
	code, err := NewVerificationCode(name)
	if err != nil {
		return domain.Agent{}, "", err
	}
	now := l.now().UTC().Format(time.RFC3339)
	a := domain.Agent{
		Name:             name,
		Bio:              strings.TrimSpace(bio),
		VerificationCode: code,
		BalanceCents:     l.WelcomeCents,
		SecretHash:       HashSecret(secret),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.Agents.PutAgent(ctx, a); err != nil {
		return domain.Agent{}, "", err
	}
	return a, secret, nil
}

// Debit withdraws cents from an agent. Fails with ErrInsufficientBalance
// before any write when the balance would go negative.
func (l *Ledger) Debit(ctx context.Context, name string, cents int64) (domain.Agent, error) {
	if cents < 0 {
		return domain.Agent{}, fmt.Errorf("debit amount must be >= 0")
	}
	unlock := l.lock(name)
	defer unlock()
	a, err := l.Agents.GetAgent(ctx, name)
	if err != nil {
		return domain.Agent{}, err
	}
	if a.BalanceCents < cents {
		return domain.Agent{}, fmt.Errorf("debit %s by %d: %w", a.Name, cents, ErrInsufficientBalance)
	}
	a.BalanceCents -= cents
	a.UpdatedAt = l.now().UTC().Format(time.RFC3339)
	if err := l.Agents.PutAgent(ctx, a); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// Credit deposits cents to an agent.
func (l *Ledger) Credit(ctx context.Context, name string, cents int64) (domain.Agent, error) {
	if cents < 0 {
		return domain.Agent{}, fmt.Errorf("credit amount must be >= 0")
	}
	unlock := l.lock(name)
	defer unlock()
	a, err := l.Agents.GetAgent(ctx, name)
	if err != nil {
		return domain.Agent{}, err
	}
	a.BalanceCents += cents
	a.UpdatedAt = l.now().UTC().Format(time.RFC3339)
	if err := l.Agents.PutAgent(ctx, a); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// Verify marks an agent owned by the given attestation handle. Verification
// is one-way: a verified agent returns ErrAlreadyVerified.
func (l *Ledger) Verify(ctx context.Context, name, handle string) (domain.Agent, error) {
	unlock := l.lock(name)
	defer unlock()
	a, err := l.Agents.GetAgent(ctx, name)
	if err != nil {
		return domain.Agent{}, err
	}
	if a.Verified {
		return a, ErrAlreadyVerified
	}
	handle = strings.TrimSpace(handle)
	a.Verified = true
	a.TwitterHandle = &handle
	a.UpdatedAt = l.now().UTC().Format(time.RFC3339)
	if err := l.Agents.PutAgent(ctx, a); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// ProfileUpdate carries partial profile fields; nil means "leave unchanged".
type ProfileUpdate struct {
	Bio          *string
	PortfolioURL *string
	Skills       []domain.Skill
}

func (l *Ledger) UpdateProfile(ctx context.Context, name string, upd ProfileUpdate) (domain.Agent, error) {
	unlock := l.lock(name)
	defer unlock()
	a, err := l.Agents.GetAgent(ctx, name)
	if err != nil {
		return domain.Agent{}, err
	}
	if upd.Bio != nil {
		a.Bio = strings.TrimSpace(*upd.Bio)
	}
	if upd.PortfolioURL != nil {
		a.PortfolioURL = strings.TrimSpace(*upd.PortfolioURL)
	}
	if upd.Skills != nil {
		skills, err := normalizeSkills(upd.Skills)
		if err != nil {
			return domain.Agent{}, err
		}
		a.Skills = skills
	}
	a.UpdatedAt = l.now().UTC().Format(time.RFC3339)
	if err := l.Agents.PutAgent(ctx, a); err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

func normalizeSkills(in []domain.Skill) ([]domain.Skill, error) {
	if len(in) > domain.MaxSkills {
		return nil, fmt.Errorf("at most %d skills allowed", domain.MaxSkills)
	}
	seen := map[string]bool{}
	res := make([]domain.Skill, 0, len(in))
	for _, s := range in {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, errors.New("skill name is required")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate skill %q", name)
		}
		seen[key] = true
		res = append(res, domain.Skill{Name: name, Description: strings.TrimSpace(s.Description)})
	}
	return res, nil
}

// Authenticate resolves an agent from a bearer secret by hash lookup.
func (l *Ledger) Authenticate(ctx context.Context, secret string) (domain.Agent, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, SecretPrefix) {
		return domain.Agent{}, ErrInvalidSecret
	}
	a, err := l.Agents.GetAgentBySecretHash(ctx, HashSecret(secret))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Agent{}, ErrInvalidSecret
	}
	return a, err
}
