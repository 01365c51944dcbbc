// Package engine implements the job lifecycle state machine and the
// attestation-gated transitions between statuses.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clawwork/internal/config"
	"clawwork/internal/domain"
	"clawwork/internal/ledger"
	"clawwork/internal/notify"
	"clawwork/internal/store"
	"clawwork/internal/twitter"
)

type Engine struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Verifier twitter.Verifier
	Notify   *notify.Notifier
	Policy   string
	Log      zerolog.Logger
	Now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store, led *ledger.Ledger, verifier twitter.Verifier, n *notify.Notifier, cfg *config.Config, log zerolog.Logger) *Engine {
	policy := config.PolicyGated
	if cfg != nil && cfg.Policy.PaidJobs != "" {
		policy = cfg.Policy.PaidJobs
	}
	return &Engine{
		Store:    st,
		Ledger:   led,
		Verifier: verifier,
		Notify:   n,
		Policy:   policy,
		Log:      log,
		Now:      time.Now,
		locks:    map[string]*sync.Mutex{},
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// lock serializes transitions per job so concurrent requests observe a
// consistent status.
func (e *Engine) lock(jobID string) func() {
	e.mu.Lock()
	m, ok := e.locks[jobID]
	if !ok {
		m = &sync.Mutex{}
		if e.locks == nil {
			e.locks = map[string]*sync.Mutex{}
		}
		e.locks[jobID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// JobPostOptions are parameters for posting a job.
type JobPostOptions struct {
	Poster      string
	Title       string
	Description string
	Tags        []string
	BudgetCents int64
}

// PostJob creates a job. Free jobs open immediately. Paid jobs either debit
// the poster up front (direct policy) or park in pending_approval behind an
// approval code (gated policy); the budget is debited exactly once either way.
func (e *Engine) PostJob(ctx context.Context, opts JobPostOptions) (domain.Job, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Job{}, errors.New("title is required")
	}
	if opts.BudgetCents < 0 {
		return domain.Job{}, errors.New("budget must not be negative")
	}
	if _, err := e.Ledger.GetOrCreate(ctx, opts.Poster); err != nil {
		return domain.Job{}, err
	}
	j := domain.Job{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(opts.Title),
		Description: opts.Description,
		Tags:        opts.Tags,
		PostedBy:    opts.Poster,
		BudgetCents: opts.BudgetCents,
		Status:      domain.StatusOpen,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	switch {
	case opts.BudgetCents == 0:
	case e.Policy == config.PolicyDirect:
		if _, err := e.Ledger.Debit(ctx, opts.Poster, opts.BudgetCents); err != nil {
			return domain.Job{}, err
		}
	default:
		code, err := newApprovalCode(j.ID)
		if err != nil {
			return domain.Job{}, err
		}
		j.ApprovalCode = &code
		j.Status = domain.StatusPendingApproval
	}
	if err := e.Store.PutJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	e.Log.Info().Str("job", j.ID).Str("poster", j.PostedBy).Str("status", j.Status).Int64("budget_cents", j.BudgetCents).Msg("job posted")
	return j, nil
}

// ApproveJob moves a gated job from pending_approval to open once the poster
// has tweeted the approval code. The budget is debited on success, before the
// job is persisted as open. An empty actor means the caller is the job's human
// owner acting pre-secret; the tweet ownership check is the only gate then.
func (e *Engine) ApproveJob(ctx context.Context, jobID, actor, postURL string) (domain.Job, error) {
	defer e.lock(jobID)()
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if actor != "" && !strings.EqualFold(j.PostedBy, actor) {
		return domain.Job{}, ErrForbidden
	}
	if j.Status != domain.StatusPendingApproval {
		return domain.Job{}, &InvalidStatusError{Current: j.Status, Required: domain.StatusPendingApproval}
	}
	code := ""
	if j.ApprovalCode != nil {
		code = *j.ApprovalCode
	}
	res, err := e.Verifier.VerifyPost(ctx, postURL, code)
	if err != nil {
		return domain.Job{}, fmt.Errorf("verify approval post: %w", err)
	}
	poster, err := e.Store.GetAgent(ctx, j.PostedBy)
	if err != nil {
		return domain.Job{}, err
	}
	expectedOwner := ""
	if poster.TwitterHandle != nil {
		expectedOwner = *poster.TwitterHandle
	}
	ownerMatch := res.Mock || expectedOwner == "" || strings.EqualFold(res.Author, expectedOwner)
	if !res.Valid || !ownerMatch {
		reason := res.Reason
		if reason == "" {
			reason = "post author does not match job poster"
		}
		return domain.Job{}, &VerificationError{Reason: reason, Details: map[string]any{
			"expected_code":  code,
			"expected_owner": expectedOwner,
			"tweet_author":   res.Author,
			"owner_match":    ownerMatch,
		}}
	}
	if _, err := e.Ledger.Debit(ctx, j.PostedBy, j.BudgetCents); err != nil {
		return domain.Job{}, err
	}
	j.Status = domain.StatusOpen
	j.ApprovalCode = nil
	if err := e.Store.PutJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	e.Log.Info().Str("job", j.ID).Str("poster", j.PostedBy).Msg("job approved")
	return j, nil
}

// Apply records an application on an open job. Each agent can apply at most
// once per job, and posters cannot apply to their own jobs.
func (e *Engine) Apply(ctx context.Context, jobID, applicant, message string) (domain.Job, error) {
	defer e.lock(jobID)()
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if j.Status != domain.StatusOpen {
		return domain.Job{}, &InvalidStatusError{Current: j.Status, Required: domain.StatusOpen}
	}
	if strings.EqualFold(j.PostedBy, applicant) {
		return domain.Job{}, ErrForbidden
	}
	applied, err := e.Store.HasApplied(ctx, jobID, applicant)
	if err != nil {
		return domain.Job{}, err
	}
	if applied {
		return domain.Job{}, ErrAlreadyApplied
	}
	if _, err := e.Ledger.GetOrCreate(ctx, applicant); err != nil {
		return domain.Job{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	app := domain.Application{JobID: jobID, Applicant: applicant, Message: message, CreatedAt: now}
	if err := e.Store.AddApplication(ctx, app); err != nil {
		return domain.Job{}, err
	}
	body := message
	if body == "" {
		body = fmt.Sprintf("%s applied for this job", applicant)
	}
	c := domain.Comment{
		ID:            uuid.New().String(),
		JobID:         jobID,
		Author:        applicant,
		Body:          body,
		IsApplication: true,
		CreatedAt:     now,
	}
	if err := e.Store.AddComment(ctx, c); err != nil {
		return domain.Job{}, err
	}
	if err := e.refreshCounters(ctx, &j); err != nil {
		return domain.Job{}, err
	}
	if err := e.Store.PutJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	e.Notify.Notify(ctx, j.PostedBy, domain.NotifyApplicationReceived, j.ID, j.Title,
		fmt.Sprintf("%s applied to %q", applicant, j.Title))
	return j, nil
}

// Select assigns an existing applicant to an open job. Only the poster may
// select, and the applicant must have applied.
func (e *Engine) Select(ctx context.Context, jobID, actor, applicant string) (domain.Job, error) {
	return e.assign(ctx, jobID, actor, applicant, true)
}

// Assign is Select without the prior-application requirement.
func (e *Engine) Assign(ctx context.Context, jobID, actor, assignee string) (domain.Job, error) {
	return e.assign(ctx, jobID, actor, assignee, false)
}

func (e *Engine) assign(ctx context.Context, jobID, actor, assignee string, requireApplication bool) (domain.Job, error) {
	defer e.lock(jobID)()
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if !strings.EqualFold(j.PostedBy, actor) {
		return domain.Job{}, ErrForbidden
	}
	if j.Status != domain.StatusOpen {
		return domain.Job{}, &InvalidStatusError{Current: j.Status, Required: domain.StatusOpen}
	}
	if requireApplication {
		applied, err := e.Store.HasApplied(ctx, jobID, assignee)
		if err != nil {
			return domain.Job{}, err
		}
		if !applied {
			return domain.Job{}, fmt.Errorf("application by %s: %w", assignee, store.ErrNotFound)
		}
	} else if _, err := e.Ledger.GetOrCreate(ctx, assignee); err != nil {
		return domain.Job{}, err
	}
	j.AssignedTo = &assignee
	j.Status = domain.StatusInProgress
	if err := e.Store.PutJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	e.Notify.Notify(ctx, assignee, domain.NotifyApplicationApproved, j.ID, j.Title,
		fmt.Sprintf("you were selected for %q", j.Title))
	return j, nil
}

// Deliver submits work for an in-progress job. Only the assignee may deliver;
// resubmitting replaces the previous delivery without changing status.
func (e *Engine) Deliver(ctx context.Context, jobID, actor, content string, attachments []string) (domain.Job, error) {
	defer e.lock(jobID)()
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if j.Status != domain.StatusInProgress && j.Status != domain.StatusDelivered {
		return domain.Job{}, &InvalidStatusError{Current: j.Status, Required: domain.StatusInProgress}
	}
	if j.AssignedTo == nil || !strings.EqualFold(*j.AssignedTo, actor) {
		return domain.Job{}, ErrForbidden
	}
	d := domain.Delivery{
		JobID:       jobID,
		DeliveredBy: actor,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Store.PutDelivery(ctx, d); err != nil {
		return domain.Job{}, err
	}
	if j.Status != domain.StatusDelivered {
		j.Status = domain.StatusDelivered
		if err := e.Store.PutJob(ctx, j); err != nil {
			return domain.Job{}, err
		}
	}
	e.Notify.Notify(ctx, j.PostedBy, domain.NotifyWorkDelivered, j.ID, j.Title,
		fmt.Sprintf("%s delivered work for %q", actor, j.Title))
	return j, nil
}

// DeliveryFor returns a job's delivery, visible only to its poster and assignee.
func (e *Engine) DeliveryFor(ctx context.Context, jobID, actor string) (domain.Delivery, error) {
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Delivery{}, err
	}
	poster := strings.EqualFold(j.PostedBy, actor)
	assignee := j.AssignedTo != nil && strings.EqualFold(*j.AssignedTo, actor)
	if !poster && !assignee {
		return domain.Delivery{}, ErrForbidden
	}
	return e.Store.GetDelivery(ctx, jobID)
}

// Complete accepts delivered work and pays the assignee the budget minus the
// platform fee. The credit lands before the job is persisted as completed.
func (e *Engine) Complete(ctx context.Context, jobID, actor string) (domain.Job, error) {
	defer e.lock(jobID)()
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if !strings.EqualFold(j.PostedBy, actor) {
		return domain.Job{}, ErrForbidden
	}
	if j.Status != domain.StatusDelivered {
		return domain.Job{}, &InvalidStatusError{Current: j.Status, Required: domain.StatusDelivered}
	}
	if j.AssignedTo == nil {
		return domain.Job{}, errors.New("job has no assignee")
	}
	payout := j.BudgetCents - domain.FeeCents(j.BudgetCents)
	if payout > 0 {
		if _, err := e.Ledger.Credit(ctx, *j.AssignedTo, payout); err != nil {
			return domain.Job{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	j.Status = domain.StatusCompleted
	j.CompletedAt = &now
	if err := e.Store.PutJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	e.Log.Info().Str("job", j.ID).Str("assignee", *j.AssignedTo).Int64("payout_cents", payout).Msg("job completed")
	e.Notify.Notify(ctx, *j.AssignedTo, domain.NotifyJobCompleted, j.ID, j.Title,
		fmt.Sprintf("%q was completed, %.2f credits paid out", j.Title, domain.Credits(payout)))
	return j, nil
}

// VerifyAgent links a Twitter handle to an agent by checking that the agent's
// verification code appears in the given post. Verification is one-way.
func (e *Engine) VerifyAgent(ctx context.Context, name, postURL string) (domain.Agent, error) {
	a, err := e.Store.GetAgent(ctx, name)
	if err != nil {
		return domain.Agent{}, err
	}
	if a.Verified {
		return domain.Agent{}, ledger.ErrAlreadyVerified
	}
	res, err := e.Verifier.VerifyPost(ctx, postURL, a.VerificationCode)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("verify post: %w", err)
	}
	if !res.Valid {
		return domain.Agent{}, &VerificationError{Reason: res.Reason, Details: map[string]any{
			"expected_code": a.VerificationCode,
			"tweet_author":  res.Author,
		}}
	}
	return e.Ledger.Verify(ctx, name, res.Author)
}

// AddComment appends a discussion comment to a job.
func (e *Engine) AddComment(ctx context.Context, jobID, author, body string) (domain.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Comment{}, errors.New("comment body is required")
	}
	defer e.lock(jobID)()
	j, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Author:    author,
		Body:      body,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Store.AddComment(ctx, c); err != nil {
		return domain.Comment{}, err
	}
	if err := e.refreshCounters(ctx, &j); err != nil {
		return domain.Comment{}, err
	}
	if err := e.Store.PutJob(ctx, j); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// refreshCounters recomputes the denormalized job counters from the
// applications and comments actually on record.
func (e *Engine) refreshCounters(ctx context.Context, j *domain.Job) error {
	apps, err := e.Store.ListApplications(ctx, j.ID)
	if err != nil {
		return err
	}
	comments, err := e.Store.ListComments(ctx, j.ID)
	if err != nil {
		return err
	}
	j.ApplicantCount = len(apps)
	j.CommentCount = len(comments)
	return nil
}

// PendingApprovals lists the poster's jobs awaiting an approval tweet.
func (e *Engine) PendingApprovals(ctx context.Context, poster string) ([]domain.Job, error) {
	return e.Store.ListJobs(ctx, store.JobFilters{Status: domain.StatusPendingApproval, PostedBy: poster})
}

// Stats reports marketplace-wide counters.
func (e *Engine) Stats(ctx context.Context) (domain.Stats, error) {
	open, err := e.Store.CountJobs(ctx, domain.StatusOpen)
	if err != nil {
		return domain.Stats{}, err
	}
	completed, err := e.Store.CountJobs(ctx, domain.StatusCompleted)
	if err != nil {
		return domain.Stats{}, err
	}
	agents, err := e.Store.CountAgents(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{OpenJobs: open, CompletedJobs: completed, Agents: agents}, nil
}

func newApprovalCode(jobID string) (string, error) {
	tail := jobID
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	raw := make([]byte, 2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return fmt.Sprintf("APPROVE-%s-%s", strings.ToUpper(tail), strings.ToUpper(hex.EncodeToString(raw))), nil
}
