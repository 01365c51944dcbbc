package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"clawwork/internal/domain"
	"clawwork/internal/ledger"
	"clawwork/internal/store"
	"clawwork/internal/store/memstore"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	led := ledger.New(memstore.New(), 10000)
	led.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return led
}

func TestRegisterGrantsWelcomeBalance(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	a, secret, err := led.Register(ctx, "alice", "research agent")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.BalanceCents != 10000 {
		t.Fatalf("balance = %d, want 10000", a.BalanceCents)
	}
	if !strings.HasPrefix(secret, ledger.SecretPrefix) {
		t.Fatalf("secret %q missing prefix", secret)
	}
	if a.SecretHash != ledger.HashSecret(secret) {
		t.Fatalf("stored hash does not match secret")
	}
	if !strings.HasPrefix(a.VerificationCode, "CLAW-ALICE-") {
		t.Fatalf("verification code = %q", a.VerificationCode)
	}
	if a.Verified {
		t.Fatal("new agent must start unverified")
	}
}

func TestRegisterNameTaken(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	if _, _, err := led.Register(ctx, "alice", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, _, err := led.Register(ctx, "alice", "")
	if !errors.Is(err, ledger.ErrNameTaken) {
		t.Fatalf("err = %v, want ErrNameTaken", err)
	}
}

func TestGetOrCreateIsLazy(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	a, err := led.GetOrCreate(ctx, "bob")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if a.BalanceCents != 10000 {
		t.Fatalf("balance = %d, want welcome credit", a.BalanceCents)
	}
	again, err := led.GetOrCreate(ctx, "bob")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if again.VerificationCode != a.VerificationCode {
		t.Fatal("second call must return the same agent, not a new one")
	}
}

func TestDebitNeverGoesNegative(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	if _, err := led.GetOrCreate(ctx, "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := led.Debit(ctx, "carol", 9000); err != nil {
		t.Fatalf("debit within balance: %v", err)
	}
	_, err := led.Debit(ctx, "carol", 2000)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	a, err := led.GetOrCreate(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if a.BalanceCents != 1000 {
		t.Fatalf("failed debit must not change balance, got %d", a.BalanceCents)
	}
}

func TestCreditAndDebitRoundTrip(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	if _, err := led.GetOrCreate(ctx, "dan"); err != nil {
		t.Fatal(err)
	}
	if _, err := led.Credit(ctx, "dan", 500); err != nil {
		t.Fatal(err)
	}
	a, err := led.Debit(ctx, "dan", 10500)
	if err != nil {
		t.Fatalf("debit full balance: %v", err)
	}
	if a.BalanceCents != 0 {
		t.Fatalf("balance = %d, want 0", a.BalanceCents)
	}
}

func TestVerifyIsOneWay(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	if _, err := led.GetOrCreate(ctx, "erin"); err != nil {
		t.Fatal(err)
	}
	a, err := led.Verify(ctx, "erin", "erin_dev")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !a.Verified || a.TwitterHandle == nil || *a.TwitterHandle != "erin_dev" {
		t.Fatalf("agent = %+v, want verified with handle erin_dev", a)
	}
	_, err = led.Verify(ctx, "erin", "someone_else")
	if !errors.Is(err, ledger.ErrAlreadyVerified) {
		t.Fatalf("err = %v, want ErrAlreadyVerified", err)
	}
	a, _ = led.GetOrCreate(ctx, "erin")
	if *a.TwitterHandle != "erin_dev" {
		t.Fatal("second verify must not overwrite the handle")
	}
}

func TestAuthenticate(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	_, secret, err := led.Register(ctx, "frank", "")
	if err != nil {
		t.Fatal(err)
	}
	a, err := led.Authenticate(ctx, secret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if a.Name != "frank" {
		t.Fatalf("authenticated as %q", a.Name)
	}
	if _, err := led.Authenticate(ctx, ledger.SecretPrefix+strings.Repeat("0", 48)); !errors.Is(err, ledger.ErrInvalidSecret) {
		t.Fatalf("unknown secret err = %v, want ErrInvalidSecret", err)
	}
	if _, err := led.Authenticate(ctx, "not-a-secret"); !errors.Is(err, ledger.ErrInvalidSecret) {
		t.Fatalf("foreign token err = %v, want ErrInvalidSecret", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	if _, err := led.GetOrCreate(ctx, "gina"); err != nil {
		t.Fatal(err)
	}
	bio := "builds scrapers"
	a, err := led.UpdateProfile(ctx, "gina", ledger.ProfileUpdate{
		Bio:    &bio,
		Skills: []domain.Skill{{Name: "Go"}, {Name: "scraping", Description: "headless browsers"}},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if a.Bio != bio || len(a.Skills) != 2 {
		t.Fatalf("agent = %+v", a)
	}
	// nil fields leave existing values alone
	url := "https://gina.dev"
	a, err = led.UpdateProfile(ctx, "gina", ledger.ProfileUpdate{PortfolioURL: &url})
	if err != nil {
		t.Fatal(err)
	}
	if a.Bio != bio || a.PortfolioURL != url {
		t.Fatalf("partial update clobbered fields: %+v", a)
	}
	_, err = led.UpdateProfile(ctx, "gina", ledger.ProfileUpdate{
		Skills: []domain.Skill{{Name: "go"}, {Name: "Go"}},
	})
	if err == nil {
		t.Fatal("duplicate skills must be rejected")
	}
}

func TestUnknownAgentDebit(t *testing.T) {
	led := newTestLedger(t)
	_, err := led.Debit(context.Background(), "nobody", 100)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
