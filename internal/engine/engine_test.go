package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clawwork/internal/config"
	"clawwork/internal/domain"
	"clawwork/internal/engine"
	"clawwork/internal/ledger"
	"clawwork/internal/notify"
	"clawwork/internal/store"
	"clawwork/internal/store/memstore"
	"clawwork/internal/twitter"
)

type testEnv struct {
	Engine *engine.Engine
	Ledger *ledger.Ledger
	Store  store.Store
	Notify *notify.Notifier
	Ctx    context.Context
}

func newTestEnv(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	st := memstore.New()
	log := zerolog.Nop()
	led := ledger.New(st, 10000)
	n := notify.New(st, log)
	eng := engine.New(st, led, twitter.Mock{}, n, cfg, log)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ledger: led, Store: st, Notify: n, Ctx: context.Background()}
}

func postPaidJob(t *testing.T, env testEnv, poster string) domain.Job {
	t.Helper()
	j, err := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{
		Poster:      poster,
		Title:       "Scrape product listings",
		Description: "Daily crawl of three storefronts",
		Tags:        []string{"scraping"},
		BudgetCents: 4000,
	})
	if err != nil {
		t.Fatalf("post job: %v", err)
	}
	return j
}

func balance(t *testing.T, env testEnv, name string) int64 {
	t.Helper()
	a, err := env.Store.GetAgent(env.Ctx, name)
	if err != nil {
		t.Fatalf("get agent %s: %v", name, err)
	}
	return a.BalanceCents
}

func TestFreeJobOpensImmediately(t *testing.T) {
	env := newTestEnv(t, nil)
	j, err := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Label images"})
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open", j.Status)
	}
	if j.ApprovalCode != nil {
		t.Fatal("free job must not carry an approval code")
	}
	if balance(t, env, "alice") != 10000 {
		t.Fatal("free job must not debit the poster")
	}
}

func TestGatedPaidJobLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	j := postPaidJob(t, env, "alice")
	if j.Status != domain.StatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval", j.Status)
	}
	if j.ApprovalCode == nil || *j.ApprovalCode == "" {
		t.Fatal("gated job must carry an approval code")
	}
	if balance(t, env, "alice") != 10000 {
		t.Fatal("gated job must not debit before approval")
	}

	j, err := env.Engine.ApproveJob(env.Ctx, j.ID, "alice", "https://x.com/alice_dev/status/42")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if j.Status != domain.StatusOpen {
		t.Fatalf("status after approve = %s", j.Status)
	}
	if j.ApprovalCode != nil {
		t.Fatalf("approval code not cleared: %q", *j.ApprovalCode)
	}
	if balance(t, env, "alice") != 6000 {
		t.Fatalf("poster balance = %d, want 6000 after debit", balance(t, env, "alice"))
	}

	// approving again is a state conflict, not a second debit
	var ise *engine.InvalidStatusError
	if _, err := env.Engine.ApproveJob(env.Ctx, j.ID, "alice", "https://x.com/alice_dev/status/43"); !errors.As(err, &ise) {
		t.Fatalf("second approve err = %v, want InvalidStatusError", err)
	}
	if balance(t, env, "alice") != 6000 {
		t.Fatal("budget must be debited exactly once")
	}

	if _, err := env.Engine.Apply(env.Ctx, j.ID, "bob", "I crawl fast"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	j, err = env.Engine.Select(env.Ctx, j.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if j.Status != domain.StatusInProgress || j.AssignedTo == nil || *j.AssignedTo != "bob" {
		t.Fatalf("job after select = %+v", j)
	}

	j, err = env.Engine.Deliver(env.Ctx, j.ID, "bob", "results attached", []string{"https://files.example/run1.csv"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if j.Status != domain.StatusDelivered {
		t.Fatalf("status after deliver = %s", j.Status)
	}

	j, err = env.Engine.Complete(env.Ctx, j.ID, "alice")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.Status != domain.StatusCompleted || j.CompletedAt == nil {
		t.Fatalf("job after complete = %+v", j)
	}
	// 40.00 budget pays 38.80 after the 3% fee
	if got := balance(t, env, "bob"); got != 13880 {
		t.Fatalf("worker balance = %d, want 13880", got)
	}
	if balance(t, env, "alice") != 6000 {
		t.Fatal("completion must not debit the poster again")
	}
}

func TestDirectPolicyDebitsAtCreation(t *testing.T) {
	cfg := &config.Config{}
	cfg.Policy.PaidJobs = config.PolicyDirect
	env := newTestEnv(t, cfg)
	j := postPaidJob(t, env, "alice")
	if j.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open under direct policy", j.Status)
	}
	if balance(t, env, "alice") != 6000 {
		t.Fatalf("poster balance = %d, want 6000", balance(t, env, "alice"))
	}
}

func TestPostJobInsufficientBalance(t *testing.T) {
	cfg := &config.Config{}
	cfg.Policy.PaidJobs = config.PolicyDirect
	env := newTestEnv(t, cfg)
	_, err := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "big job", BudgetCents: 20000})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestApplyRules(t *testing.T) {
	env := newTestEnv(t, nil)
	j, err := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Summarize papers"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Apply(env.Ctx, j.ID, "alice", ""); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("poster self-apply err = %v, want ErrForbidden", err)
	}
	if _, err := env.Engine.Apply(env.Ctx, j.ID, "bob", "pick me"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Apply(env.Ctx, j.ID, "bob", "pick me again"); !errors.Is(err, engine.ErrAlreadyApplied) {
		t.Fatalf("second apply err = %v, want ErrAlreadyApplied", err)
	}
	j, err = env.Store.GetJob(env.Ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if j.ApplicantCount != 1 || j.CommentCount != 1 {
		t.Fatalf("counters = %d applicants, %d comments", j.ApplicantCount, j.CommentCount)
	}
}

func TestSelectRequiresApplication(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Translate docs"})
	if _, err := env.Engine.Select(env.Ctx, j.ID, "alice", "bob"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("select without application err = %v, want ErrNotFound", err)
	}
	// direct assignment has no such requirement
	j, err := env.Engine.Assign(env.Ctx, j.ID, "alice", "bob")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if j.Status != domain.StatusInProgress {
		t.Fatalf("status = %s", j.Status)
	}
}

func TestSelectIsPosterOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Write tests"})
	if _, err := env.Engine.Apply(env.Ctx, j.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Select(env.Ctx, j.ID, "mallory", "bob"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestDeliverRules(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Build a dashboard"})
	var ise *engine.InvalidStatusError
	if _, err := env.Engine.Deliver(env.Ctx, j.ID, "bob", "early", nil); !errors.As(err, &ise) {
		t.Fatalf("deliver before assignment err = %v, want InvalidStatusError", err)
	}
	if _, err := env.Engine.Assign(env.Ctx, j.ID, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Deliver(env.Ctx, j.ID, "mallory", "stolen", nil); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("non-assignee deliver err = %v, want ErrForbidden", err)
	}
	if _, err := env.Engine.Deliver(env.Ctx, j.ID, "bob", "first cut", nil); err != nil {
		t.Fatal(err)
	}
	// redelivery replaces the previous submission
	if _, err := env.Engine.Deliver(env.Ctx, j.ID, "bob", "final cut", nil); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	d, err := env.Engine.DeliveryFor(env.Ctx, j.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if d.Content != "final cut" {
		t.Fatalf("delivery content = %q", d.Content)
	}
	if _, err := env.Engine.DeliveryFor(env.Ctx, j.ID, "mallory"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("outsider delivery read err = %v, want ErrForbidden", err)
	}
}

func TestCompleteRules(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Audit logs"})
	_, _ = env.Engine.Assign(env.Ctx, j.ID, "alice", "bob")
	var ise *engine.InvalidStatusError
	if _, err := env.Engine.Complete(env.Ctx, j.ID, "alice"); !errors.As(err, &ise) {
		t.Fatalf("complete before delivery err = %v, want InvalidStatusError", err)
	}
	if _, err := env.Engine.Deliver(env.Ctx, j.ID, "bob", "done", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Complete(env.Ctx, j.ID, "bob"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("assignee complete err = %v, want ErrForbidden", err)
	}
	if _, err := env.Engine.Complete(env.Ctx, j.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	// zero budget means zero payout, balance stays at the welcome credit
	if got := balance(t, env, "bob"); got != 10000 {
		t.Fatalf("worker balance = %d, want 10000", got)
	}
}

func TestAnonymousApproveAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	j := postPaidJob(t, env, "alice")
	j, err := env.Engine.ApproveJob(env.Ctx, j.ID, "", "https://x.com/alice_dev/status/42")
	if err != nil {
		t.Fatalf("anonymous approve: %v", err)
	}
	if j.Status != domain.StatusOpen {
		t.Fatalf("status = %s", j.Status)
	}
}

func TestApproveForeignActorForbidden(t *testing.T) {
	env := newTestEnv(t, nil)
	j := postPaidJob(t, env, "alice")
	if _, err := env.Engine.ApproveJob(env.Ctx, j.ID, "mallory", "https://x.com/m/status/1"); !errors.Is(err, engine.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

// failingVerifier never finds the code, like a tweet that omits it.
type failingVerifier struct{}

func (failingVerifier) VerifyPost(context.Context, string, string) (twitter.Result, error) {
	return twitter.Result{Author: "alice_dev", Reason: "code not found in post"}, nil
}

func TestApproveVerificationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.Engine.Verifier = failingVerifier{}
	j := postPaidJob(t, env, "alice")
	_, err := env.Engine.ApproveJob(env.Ctx, j.ID, "alice", "https://x.com/alice_dev/status/42")
	var ve *engine.VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VerificationError", err)
	}
	if ve.Details["expected_code"] == "" {
		t.Fatal("details must echo the expected code")
	}
	if balance(t, env, "alice") != 10000 {
		t.Fatal("failed approval must not debit")
	}
	got, _ := env.Store.GetJob(env.Ctx, j.ID)
	if got.Status != domain.StatusPendingApproval {
		t.Fatalf("status = %s, want still pending_approval", got.Status)
	}
}

func TestApproveVerifierUnreachable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.Engine.Verifier = &twitter.Live{Token: "tok", BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}
	j := postPaidJob(t, env, "alice")
	_, err := env.Engine.ApproveJob(env.Ctx, j.ID, "alice", "https://x.com/alice_dev/status/42")
	var ve *engine.VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want VerificationError", err)
	}
	if balance(t, env, "alice") != 10000 {
		t.Fatal("unreachable verifier must not debit")
	}
	got, _ := env.Store.GetJob(env.Ctx, j.ID)
	if got.Status != domain.StatusPendingApproval {
		t.Fatalf("status = %s, want still pending_approval", got.Status)
	}
}

func TestVerifyAgent(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.Ledger.GetOrCreate(env.Ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.VerifyAgent(env.Ctx, "bob", "https://x.com/bob_ai/status/7")
	if err != nil {
		t.Fatalf("verify agent: %v", err)
	}
	if !a.Verified || a.TwitterHandle == nil || *a.TwitterHandle != "bob_ai" {
		t.Fatalf("agent = %+v", a)
	}
	if _, err := env.Engine.VerifyAgent(env.Ctx, "bob", "https://x.com/bob_ai/status/8"); !errors.Is(err, ledger.ErrAlreadyVerified) {
		t.Fatalf("second verify err = %v, want ErrAlreadyVerified", err)
	}
}

func TestCommentsBumpCounter(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Review PRs"})
	if _, err := env.Engine.AddComment(env.Ctx, j.ID, "bob", "what repo is this for?"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, j.ID, "alice", "the public one"); err != nil {
		t.Fatal(err)
	}
	j, _ = env.Store.GetJob(env.Ctx, j.ID)
	if j.CommentCount != 2 || j.ApplicantCount != 0 {
		t.Fatalf("counters = %d comments, %d applicants", j.CommentCount, j.ApplicantCount)
	}
}

func TestLifecycleNotifications(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "Tune prompts"})
	_, _ = env.Engine.Apply(env.Ctx, j.ID, "bob", "")
	_, _ = env.Engine.Select(env.Ctx, j.ID, "alice", "bob")
	_, _ = env.Engine.Deliver(env.Ctx, j.ID, "bob", "tuned", nil)
	_, _ = env.Engine.Complete(env.Ctx, j.ID, "alice")

	poster, err := env.Notify.Feed(env.Ctx, "alice", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	worker, err := env.Notify.Feed(env.Ctx, "bob", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(poster) != 2 {
		t.Fatalf("poster feed = %d entries, want application + delivery", len(poster))
	}
	if len(worker) != 2 {
		t.Fatalf("worker feed = %d entries, want selection + completion", len(worker))
	}
	for _, n := range append(poster, worker...) {
		if n.JobID != j.ID {
			t.Fatalf("notification for wrong job: %+v", n)
		}
	}
}

func TestPendingApprovals(t *testing.T) {
	env := newTestEnv(t, nil)
	postPaidJob(t, env, "alice")
	postPaidJob(t, env, "alice")
	free, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "free one"})
	if free.Status != domain.StatusOpen {
		t.Fatalf("free job status = %s", free.Status)
	}
	pending, err := env.Engine.PendingApprovals(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)
	j, _ := env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "one"})
	_, _ = env.Engine.PostJob(env.Ctx, engine.JobPostOptions{Poster: "alice", Title: "two"})
	_, _ = env.Engine.Assign(env.Ctx, j.ID, "alice", "bob")
	_, _ = env.Engine.Deliver(env.Ctx, j.ID, "bob", "done", nil)
	_, _ = env.Engine.Complete(env.Ctx, j.ID, "alice")
	s, err := env.Engine.Stats(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.OpenJobs != 1 || s.CompletedJobs != 1 || s.Agents != 2 {
		t.Fatalf("stats = %+v", s)
	}
}
