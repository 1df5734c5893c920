// Package auth is the identity boundary: account sign-up and sign-in over
// the storage account tables, a persisted session token, and identity-change
// events.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/storage"
)

// SessionKey is the client storage key holding the session token.
const SessionKey = "optix-flow-session"

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrInvalidEmail       = errors.New("auth: invalid email")
	ErrWeakPassword       = errors.New("auth: password too short")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrNoSession          = errors.New("auth: no active session")
	ErrSessionExpired     = errors.New("auth: session expired")
)

type Identity struct {
	UserID string
	Email  string
}

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
	TokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case TokenRefreshed:
		return "token_refreshed"
	default:
		return "unknown"
	}
}

// Event reports an identity change. Identity is nil after sign-out.
type Event struct {
	Kind     EventKind
	Identity *Identity
}

// Accounts is the subset of the storage repository the service needs.
type Accounts interface {
	CreateUser(ctx context.Context, in storage.User) error
	GetUser(ctx context.Context, id string) (storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	CreateSession(ctx context.Context, in storage.Session) error
	GetSession(ctx context.Context, token string) (storage.Session, error)
	UpdateSessionExpiry(ctx context.Context, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
}

type Options struct {
	SessionTTL time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

type Service struct {
	accounts Accounts
	kv       guest.KeyValue
	ttl      time.Duration
	cost     int
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

func NewService(accounts Accounts, kv guest.KeyValue, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	return &Service{
		accounts: accounts,
		kv:       kv,
		ttl:      opts.SessionTTL,
		cost:     opts.Cost,
		now:      opts.Now,
		logger:   opts.Logger,
		subs:     make(map[int]func(Event)),
	}
}

// Subscribe registers fn for identity changes. Events are delivered
// synchronously on the goroutine that caused them.
func (s *Service) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if len(password) < MinPasswordLength {
		return Identity{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}
	user := storage.User{ID: uuid.NewString(), Email: email, PasswordHash: string(hash), CreatedAt: s.now().UTC()}
	if err := s.accounts.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("account created", "user_id", user.ID)
	return s.startSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Identity, error) {
	user, err := s.accounts.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return s.startSession(ctx, user)
}

func (s *Service) startSession(ctx context.Context, user storage.User) (Identity, error) {
	now := s.now().UTC()
	sess := storage.Session{Token: uuid.NewString(), UserID: user.ID, ExpiresAt: now.Add(s.ttl), CreatedAt: now}
	if err := s.accounts.CreateSession(ctx, sess); err != nil {
		return Identity{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.writeToken(sess.Token); err != nil {
		_ = s.accounts.DeleteSession(ctx, sess.Token)
		return Identity{}, err
	}
	id := Identity{UserID: user.ID, Email: user.Email}
	s.emit(Event{Kind: SignedIn, Identity: &id})
	return id, nil
}

// SignOut ends the persisted session. Signing out without a session still
// emits SignedOut.
func (s *Service) SignOut(ctx context.Context) error {
	token, ok, err := s.readToken()
	if err != nil {
		return err
	}
	if ok {
		if err := s.accounts.DeleteSession(ctx, token); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("delete session: %w", err)
		}
		if err := s.kv.Remove(SessionKey); err != nil {
			return fmt.Errorf("auth: clear session token: %w", err)
		}
	}
	s.emit(Event{Kind: SignedOut})
	return nil
}

// Refresh extends the current session and emits TokenRefreshed.
func (s *Service) Refresh(ctx context.Context) (Identity, error) {
	token, ok, err := s.readToken()
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, ErrNoSession
	}
	id, err := s.resolve(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if err := s.accounts.UpdateSessionExpiry(ctx, token, s.now().UTC().Add(s.ttl)); err != nil {
		return Identity{}, fmt.Errorf("extend session: %w", err)
	}
	s.emit(Event{Kind: TokenRefreshed, Identity: &id})
	return id, nil
}

// Current returns the identity of the persisted session, or nil when there
// is none or it has expired.
func (s *Service) Current(ctx context.Context) (*Identity, error) {
	token, ok, err := s.readToken()
	if err != nil || !ok {
		return nil, err
	}
	id, err := s.resolve(ctx, token)
	if errors.Is(err, ErrNoSession) || errors.Is(err, ErrSessionExpired) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Service) resolve(ctx context.Context, token string) (Identity, error) {
	sess, err := s.accounts.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		s.dropToken()
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if sess.Expired(s.now()) {
		s.dropToken()
		return Identity{}, ErrSessionExpired
	}
	user, err := s.accounts.GetUser(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		s.dropToken()
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	return Identity{UserID: user.ID, Email: user.Email}, nil
}

type tokenRecord struct {
	Token string `json:"token"`
}

func (s *Service) readToken() (string, bool, error) {
	raw, ok, err := s.kv.Get(SessionKey)
	if err != nil {
		return "", false, fmt.Errorf("auth: read session token: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	var rec tokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Token == "" {
		s.logger.Warn("session token record malformed, ignoring")
		return "", false, nil
	}
	return rec.Token, true, nil
}

func (s *Service) writeToken(token string) error {
	raw, err := json.Marshal(tokenRecord{Token: token})
	if err != nil {
		return fmt.Errorf("auth: encode session token: %w", err)
	}
	if err := s.kv.Set(SessionKey, raw); err != nil {
		return fmt.Errorf("auth: write session token: %w", err)
	}
	return nil
}

func (s *Service) dropToken() {
	if err := s.kv.Remove(SessionKey); err != nil {
		s.logger.Warn("clear stale session token", "err", err)
	}
}

func (s *Service) emit(ev Event) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	s.logger.Info("identity changed", "event", ev.Kind.String())
	for _, fn := range fns {
		fn(ev)
	}
}
