package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/storage"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func setupService(t *testing.T) (*Service, *guest.MemoryKV, *clock) {
	t.Helper()
	repo, err := storage.OpenSQLite(storage.DriverCGO, filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	kv := guest.NewMemoryKV()
	c := &clock{now: time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)}
	svc := NewService(repo, kv, Options{SessionTTL: time.Hour, Now: c.Now, Cost: bcrypt.MinCost})
	return svc, kv, c
}

func TestSignUpSignsInAndPersistsToken(t *testing.T) {
	svc, kv, _ := setupService(t)
	ctx := context.Background()

	var events []Event
	unsubscribe := svc.Subscribe(func(ev Event) { events = append(events, ev) })
	defer unsubscribe()

	id, err := svc.SignUp(ctx, " Alice@Example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if id.UserID == "" || id.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if len(events) != 1 || events[0].Kind != SignedIn || events[0].Identity.UserID != id.UserID {
		t.Fatalf("unexpected events: %+v", events)
	}
	if _, ok, _ := kv.Get(SessionKey); !ok {
		t.Fatal("expected session token persisted")
	}

	cur, err := svc.Current(ctx)
	if err != nil || cur == nil || cur.UserID != id.UserID {
		t.Fatalf("unexpected current identity: %+v %v", cur, err)
	}

	if _, err := svc.SignUp(ctx, "alice@example.com", "another1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestSignUpValidatesInput(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "not-an-email", "secret1"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if _, err := svc.SignUp(ctx, "bob@example.com", "123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password, got %v", err)
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "carol@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignIn(ctx, "carol@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "CAROL@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func TestSignOutClearsSessionAndEmits(t *testing.T) {
	svc, kv, _ := setupService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "dave@example.com", "secret1"); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	var last Event
	svc.Subscribe(func(ev Event) { last = ev })
	if err := svc.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if last.Kind != SignedOut || last.Identity != nil {
		t.Fatalf("unexpected sign-out event: %+v", last)
	}
	if _, ok, _ := kv.Get(SessionKey); ok {
		t.Fatal("session token should be removed")
	}
	cur, err := svc.Current(ctx)
	if err != nil || cur != nil {
		t.Fatalf("expected no identity after sign out: %+v %v", cur, err)
	}
}

func TestExpiredSessionReadsAsGuestAndRefreshExtends(t *testing.T) {
	svc, _, c := setupService(t)
	ctx := context.Background()
	id, err := svc.SignUp(ctx, "erin@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	c.now = c.now.Add(50 * time.Minute)
	var refreshed Event
	svc.Subscribe(func(ev Event) { refreshed = ev })
	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Kind != TokenRefreshed || refreshed.Identity == nil || refreshed.Identity.UserID != id.UserID {
		t.Fatalf("unexpected refresh event: %+v", refreshed)
	}

	c.now = c.now.Add(50 * time.Minute)
	if cur, err := svc.Current(ctx); err != nil || cur == nil {
		t.Fatalf("refreshed session should still be valid: %+v %v", cur, err)
	}

	c.now = c.now.Add(2 * time.Hour)
	cur, err := svc.Current(ctx)
	if err != nil || cur != nil {
		t.Fatalf("expired session should read as guest: %+v %v", cur, err)
	}
	if _, err := svc.Refresh(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected no session after expiry cleanup, got %v", err)
	}
}

func TestMalformedTokenRecordIsIgnored(t *testing.T) {
	svc, kv, _ := setupService(t)
	if err := kv.Set(SessionKey, []byte("{broken")); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	cur, err := svc.Current(context.Background())
	if err != nil || cur != nil {
		t.Fatalf("malformed token should read as guest: %+v %v", cur, err)
	}
}
