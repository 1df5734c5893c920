// Package session tracks whether the app runs as a guest or for a signed-in
// account and drives the synchronization core through each switch.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sandeepkv93/optixflow/internal/auth"
	"github.com/sandeepkv93/optixflow/internal/migration"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

type Mode int

const (
	Guest Mode = iota
	Authenticated
)

func (m Mode) String() string {
	if m == Authenticated {
		return "authenticated"
	}
	return "guest"
}

// Provider is the identity boundary.
type Provider interface {
	Current(ctx context.Context) (*auth.Identity, error)
	Subscribe(fn func(auth.Event)) func()
}

// Core is the part of the synchronization core a transition drives.
type Core interface {
	Transition(ctx context.Context, tr tasksync.Transition) error
}

// Migrator uploads guest data into an account.
type Migrator interface {
	Run(ctx context.Context, owner string) migration.Report
}

type Options struct {
	Logger *slog.Logger
	// OnMigrated receives the report of every migration that ran.
	OnMigrated func(migration.Report)
}

// Tracker applies identity changes one at a time. A change superseded by a
// newer one before it finishes does not apply its reload.
type Tracker struct {
	provider Provider
	core     Core
	migrator Migrator
	logger   *slog.Logger
	migrated func(migration.Report)

	ctx         context.Context
	unsubscribe func()

	// run serializes transitions; ticket identifies the newest request.
	run    sync.Mutex
	ticket atomic.Uint64

	mu     sync.RWMutex
	active *auth.Identity
}

func NewTracker(provider Provider, core Core, migrator Migrator, opts Options) *Tracker {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		provider: provider,
		core:     core,
		migrator: migrator,
		logger:   opts.Logger,
		migrated: opts.OnMigrated,
	}
}

// Start performs the initial transition for the provider's current identity
// and follows identity changes until Close.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx = context.WithoutCancel(ctx)
	initial := t.ticket.Add(1)
	t.unsubscribe = t.provider.Subscribe(t.handle)

	id, err := t.provider.Current(ctx)
	if err != nil {
		t.logger.Error("current identity unavailable, starting as guest", "err", err)
		id = nil
	}
	err = t.apply(ctx, initial, id)
	if errors.Is(err, tasksync.ErrSuperseded) {
		return nil
	}
	return err
}

func (t *Tracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
}

// Mode and Identity report the last applied session.
func (t *Tracker) Mode() Mode {
	if t.Identity() == nil {
		return Guest
	}
	return Authenticated
}

func (t *Tracker) Identity() *auth.Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == nil {
		return nil
	}
	id := *t.active
	return &id
}

func (t *Tracker) handle(ev auth.Event) {
	if ev.Kind == auth.TokenRefreshed && ev.Identity != nil {
		if cur := t.Identity(); cur != nil && cur.UserID == ev.Identity.UserID {
			return
		}
	}
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ticket := t.ticket.Add(1)
	if err := t.apply(ctx, ticket, ev.Identity); err != nil && !errors.Is(err, tasksync.ErrSuperseded) {
		t.logger.Error("session transition failed", "event", ev.Kind.String(), "err", err)
	}
}

func (t *Tracker) apply(ctx context.Context, ticket uint64, id *auth.Identity) error {
	t.run.Lock()
	defer t.run.Unlock()

	current := func() bool { return t.ticket.Load() == ticket }
	tr := tasksync.Transition{Current: current}
	if id != nil {
		owner := id.UserID
		tr.Session = &state.Session{UserID: id.UserID, Email: id.Email}
		tr.Prepare = func(ctx context.Context) error {
			if t.migrator == nil {
				return nil
			}
			report := t.migrator.Run(ctx, owner)
			if t.migrated != nil && !report.Skipped {
				t.migrated(report)
			}
			return report.Err()
		}
	}

	err := t.core.Transition(ctx, tr)
	if errors.Is(err, tasksync.ErrSuperseded) {
		t.logger.Debug("session transition superseded", "ticket", ticket)
		return err
	}

	t.mu.Lock()
	if id == nil {
		t.active = nil
	} else {
		cp := *id
		t.active = &cp
	}
	t.mu.Unlock()

	mode := Guest
	if id != nil {
		mode = Authenticated
	}
	t.logger.Info("session transition applied", "mode", mode.String())
	return err
}
