// Package app wires configuration, storage, identity and the
// synchronization core into one process.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/sandeepkv93/optixflow/internal/auth"
	"github.com/sandeepkv93/optixflow/internal/config"
	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/importer"
	"github.com/sandeepkv93/optixflow/internal/logging"
	"github.com/sandeepkv93/optixflow/internal/migration"
	"github.com/sandeepkv93/optixflow/internal/notify"
	"github.com/sandeepkv93/optixflow/internal/scheduler"
	"github.com/sandeepkv93/optixflow/internal/session"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/storage"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Repo      *storage.SQLiteRepository
	Guest     *guest.Store
	Auth      *auth.Service
	Engine    *tasksync.Engine
	Scheduler *scheduler.Engine
	Toasts    *notify.Center
	Tracker   *session.Tracker

	cancel    context.CancelFunc
	logCloser io.Closer

	mu            sync.Mutex
	lastMigration *migration.Report
}

// Open builds every component and applies the stored session, if any.
// stderr receives logs when no log file is configured.
func Open(ctx context.Context, cfg config.Config, stderr io.Writer) (*App, error) {
	logger, logCloser, err := logging.Open(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repo, err := storage.OpenSQLite(cfg.Database.Driver, cfg.DatabasePath())
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Repo: repo, logCloser: logCloser}

	kv := guest.NewFileKV(cfg.DataDir)
	a.Guest = guest.NewStore(kv, logger.With("component", "guest"))
	a.Auth = auth.NewService(repo, kv, auth.Options{
		SessionTTL: cfg.SessionTTL(),
		Logger:     logger.With("component", "auth"),
	})

	a.Scheduler = scheduler.NewEngine(cfg.Scheduler.Buffer)
	a.Scheduler.Start()
	a.Toasts = notify.NewCenter(a.Scheduler, notify.Options{
		Window: cfg.UndoWindow(),
		Logger: logger.With("component", "notify"),
	})
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	go a.Toasts.Run(runCtx)

	a.Engine = tasksync.New(a.Guest, repo, tasksync.Options{
		Logger:   logger.With("component", "sync"),
		Notifier: a.Toasts,
	})
	migrator := migration.New(a.Guest, repo, migration.Options{
		Logger:          logger.With("component", "migration"),
		RetainOnFailure: cfg.Migration.RetainOnFailure,
	})
	a.Tracker = session.NewTracker(a.Auth, a.Engine, migrator, session.Options{
		Logger:     logger.With("component", "session"),
		OnMigrated: a.recordMigration,
	})
	if err := a.Tracker.Start(ctx); err != nil {
		logger.Error("initial session load failed", "err", err)
	}
	return a, nil
}

func (a *App) recordMigration(r migration.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastMigration = &r
}

// LastMigration reports the most recent guest data upload.
func (a *App) LastMigration() (migration.Report, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastMigration == nil {
		return migration.Report{}, false
	}
	return *a.lastMigration, true
}

// Import seeds data from YAML through the core.
func (a *App) Import(ctx context.Context, data []byte) (importer.Result, error) {
	return importer.Import(ctx, a.Engine, data)
}

// Snapshots forwards store changes to a channel, keeping only the newest
// when the reader falls behind.
func (a *App) Snapshots() (<-chan state.Snapshot, func()) {
	ch := make(chan state.Snapshot, 1)
	unsubscribe := a.Engine.Store().Subscribe(func(s state.Snapshot) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, unsubscribe
}

func (a *App) Close() error {
	a.Tracker.Close()
	a.cancel()
	a.Scheduler.Stop()
	err := a.Repo.Close()
	if cerr := a.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}
