// Package tasksync is the synchronization core. Every operation mutates the
// in-memory store first and then persists, either to guest storage or to the
// owner-scoped backend, reconciling on the outcome.
package tasksync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/remote"
	"github.com/sandeepkv93/optixflow/internal/state"
)

var (
	ErrTaskNotFound    = errors.New("tasksync: task not found")
	ErrSubtaskNotFound = errors.New("tasksync: subtask not found")
	ErrProjectNotFound = errors.New("tasksync: project not found")
	ErrSuperseded      = errors.New("tasksync: transition superseded")
	ErrSessionChanged  = errors.New("tasksync: session changed")
	ErrUndoUnavailable = errors.New("tasksync: undo no longer available")
)

// LocalStore is guest-mode persistence.
type LocalStore interface {
	Save(guest.Snapshot) error
	Load() guest.Snapshot
}

// Notification is an undoable user-facing message.
type Notification struct {
	Title     string
	TaskID    string
	SubtaskID string
	Undo      *Undo
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Receipt reports where an operation's effect landed.
type Receipt struct {
	ID     string
	Status state.SyncStatus
	Err    error
	Undo   *Undo
	// Cascaded lists the other entities the operation changed: subtasks
	// completed by a cascade, or tasks unassigned by a project delete.
	Cascaded []string
}

func (r Receipt) OK() bool {
	return r.Err == nil && r.Status != state.SyncFailed
}

type Options struct {
	Logger   *slog.Logger
	Notifier Notifier
	Now      func() time.Time
	// NewID generates guest ids and temporary ids for optimistic inserts.
	NewID func() string
}

type Engine struct {
	store   *state.Store
	w       *state.Writer
	local   LocalStore
	backend remote.Backend

	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
	newID    func() string

	// gate is the session barrier: operations hold it shared from session
	// capture through persistence, transitions hold it exclusively.
	gate sync.RWMutex
	// saveMu orders guest snapshot writes so the newest snapshot lands last.
	saveMu sync.Mutex
}

func New(local LocalStore, backend remote.Backend, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notification) {})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	store, w := state.New()
	return &Engine{
		store:    store,
		w:        w,
		local:    local,
		backend:  backend,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// Store exposes read access to the shared state.
func (e *Engine) Store() *state.Store {
	return e.store
}

// session returns the current session; callers hold the gate.
func (e *Engine) session() *state.Session {
	return e.store.Session()
}

func (e *Engine) persistLocal() error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()
	snap := e.store.Snapshot()
	return e.local.Save(guest.Snapshot{Tasks: snap.Tasks, Projects: snap.Projects})
}

// settleLocal writes the guest snapshot and records the outcome for ids.
func (e *Engine) settleLocal(op string, ids ...string) (state.SyncStatus, error) {
	err := e.persistLocal()
	status := state.SyncLocal
	if err != nil {
		status = state.SyncFailed
		e.logger.Error("guest save failed", "op", op, "ids", ids, "err", err)
	}
	e.setStatus(status, ids...)
	return status, err
}

// settleRemote records the backend outcome for ids.
func (e *Engine) settleRemote(op string, err error, ids ...string) state.SyncStatus {
	status := state.SyncConfirmed
	if err != nil {
		status = state.SyncFailed
		e.logFailure(op, err, ids...)
	}
	e.setStatus(status, ids...)
	return status
}

func (e *Engine) setStatus(st state.SyncStatus, ids ...string) {
	if len(ids) == 0 {
		return
	}
	e.w.Mutate(func(d *state.Data) {
		for _, id := range ids {
			d.SetStatus(id, st)
		}
	})
}

func (e *Engine) initialStatus(sess *state.Session) state.SyncStatus {
	if sess == nil {
		return state.SyncLocal
	}
	return state.SyncPending
}

func (e *Engine) logFailure(op string, err error, ids ...string) {
	if remote.IsBenign(err) {
		return
	}
	e.logger.Error("backend write failed", "op", op, "ids", ids, "err", err)
}

func (e *Engine) notify(n *Notification) {
	if n != nil {
		e.notifier.Notify(*n)
	}
}

// SetActiveProject sets the project filter; nil clears it.
func (e *Engine) SetActiveProject(id *string) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	var err error
	e.w.Mutate(func(d *state.Data) {
		if id != nil && d.ProjectIndex(*id) < 0 {
			err = ErrProjectNotFound
			return
		}
		if id == nil {
			d.ActiveProjectID = nil
			return
		}
		d.ActiveProjectID = model.StringPtr(*id)
	})
	return err
}

// Reload replaces the collections with the session's source of truth. A
// collection whose fetch fails keeps its previous value. Malformed rows are
// logged and skipped.
func (e *Engine) Reload(ctx context.Context) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.reload(ctx, e.session(), nil)
}

func (e *Engine) reload(ctx context.Context, sess *state.Session, current func() bool) error {
	if sess == nil {
		snap := e.local.Load()
		if current != nil && !current() {
			return ErrSuperseded
		}
		e.w.Mutate(func(d *state.Data) {
			d.Tasks = snap.Tasks
			d.Projects = snap.Projects
			d.Sync = nil
			for _, t := range d.Tasks {
				d.SetStatus(t.ID, state.SyncLocal)
			}
		})
		return nil
	}

	var (
		wg                    sync.WaitGroup
		projects              []model.Project
		tasks                 []model.Task
		projectsErr, tasksErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		projects, projectsErr = e.fetchProjects(ctx, sess.UserID)
	}()
	go func() {
		defer wg.Done()
		tasks, tasksErr = e.fetchTasks(ctx, sess.UserID)
	}()
	wg.Wait()

	if current != nil && !current() {
		return ErrSuperseded
	}
	if projectsErr != nil {
		e.logFailure("reload projects", projectsErr)
	}
	if tasksErr != nil {
		e.logFailure("reload tasks", tasksErr)
	}
	if projectsErr == nil || tasksErr == nil {
		e.w.Mutate(func(d *state.Data) {
			if projectsErr == nil {
				d.Projects = projects
				for _, p := range projects {
					d.SetStatus(p.ID, state.SyncConfirmed)
				}
			}
			if tasksErr == nil {
				d.Tasks = tasks
				for _, t := range tasks {
					d.SetStatus(t.ID, state.SyncConfirmed)
					for _, st := range t.Subtasks {
						d.SetStatus(st.ID, state.SyncConfirmed)
					}
				}
			}
		})
	}
	return errors.Join(projectsErr, tasksErr)
}

func (e *Engine) fetchProjects(ctx context.Context, owner string) ([]model.Project, error) {
	rows, err := e.backend.ListProjects(ctx, owner)
	if err != nil {
		return nil, err
	}
	out, skipped := remote.DecodeProjects(rows)
	e.logSkipped(skipped)
	return out, nil
}

func (e *Engine) fetchTasks(ctx context.Context, owner string) ([]model.Task, error) {
	rows, err := e.backend.ListTasks(ctx, owner)
	if err != nil {
		return nil, err
	}
	out, skipped := remote.DecodeTasks(rows)
	e.logSkipped(skipped)
	return out, nil
}

func (e *Engine) logSkipped(errs []error) {
	for _, err := range errs {
		var de *remote.DecodeError
		if errors.As(err, &de) {
			e.logger.Warn("skipping malformed row", "entity", de.Entity, "id", de.ID, "field", de.Field, "err", err)
			continue
		}
		e.logger.Warn("skipping malformed row", "err", err)
	}
}

// Transition describes a session switch.
type Transition struct {
	// Session is the new identity; nil switches to guest mode.
	Session *state.Session
	// Prepare runs once in-flight operations have drained and before the
	// reload. Its error is logged and does not stop the reload.
	Prepare func(ctx context.Context) error
	// Current reports whether this transition is still the newest request.
	Current func() bool
}

// Transition is the session barrier. It waits for in-flight operations of
// the old session, switches the session, runs Prepare, and reloads.
func (e *Engine) Transition(ctx context.Context, tr Transition) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	if tr.Current != nil && !tr.Current() {
		return ErrSuperseded
	}
	var next *state.Session
	if tr.Session != nil {
		sess := *tr.Session
		next = &sess
	}
	e.w.Mutate(func(d *state.Data) {
		same := sameIdentity(d.Session, next)
		d.Session = next
		if same {
			return
		}
		d.Tasks = nil
		d.Projects = nil
		d.ActiveProjectID = nil
		d.Sync = nil
	})
	if tr.Prepare != nil {
		if err := tr.Prepare(ctx); err != nil {
			e.logger.Error("session transition prepare failed", "err", err)
		}
	}
	return e.reload(ctx, next, tr.Current)
}

// sameIdentity reports whether a and b are the same account, or both guest.
func sameIdentity(a, b *state.Session) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.UserID == b.UserID
}
