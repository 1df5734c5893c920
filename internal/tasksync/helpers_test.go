package tasksync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/remote"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/storage"
)

type call struct {
	Method string
	IDs    []string
	Fields remote.Fields
}

// recordingBackend wraps a real backend, records write calls and injects
// failures per method.
type recordingBackend struct {
	remote.Backend

	mu    sync.Mutex
	fail  map[string]error
	block map[string]chan struct{}
	calls []call
}

func (b *recordingBackend) failOn(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[method] = err
}

func (b *recordingBackend) blockOn(method string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.block[method] = ch
	return ch
}

func (b *recordingBackend) enter(method string, ids []string, f remote.Fields) error {
	b.mu.Lock()
	b.calls = append(b.calls, call{Method: method, IDs: ids, Fields: f})
	ch := b.block[method]
	err := b.fail[method]
	b.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return err
}

func (b *recordingBackend) callsTo(method string) []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []call
	for _, c := range b.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (b *recordingBackend) ListProjects(ctx context.Context, owner string) ([]remote.ProjectRow, error) {
	if err := b.enter("ListProjects", nil, nil); err != nil {
		return nil, err
	}
	return b.Backend.ListProjects(ctx, owner)
}

func (b *recordingBackend) ListTasks(ctx context.Context, owner string) ([]remote.TaskRow, error) {
	if err := b.enter("ListTasks", nil, nil); err != nil {
		return nil, err
	}
	return b.Backend.ListTasks(ctx, owner)
}

func (b *recordingBackend) InsertProject(ctx context.Context, in remote.ProjectRow) (remote.ProjectRow, error) {
	if err := b.enter("InsertProject", []string{in.ID}, nil); err != nil {
		return remote.ProjectRow{}, err
	}
	return b.Backend.InsertProject(ctx, in)
}

func (b *recordingBackend) UpdateProject(ctx context.Context, owner, id string, f remote.Fields) (remote.ProjectRow, error) {
	if err := b.enter("UpdateProject", []string{id}, f); err != nil {
		return remote.ProjectRow{}, err
	}
	return b.Backend.UpdateProject(ctx, owner, id, f)
}

func (b *recordingBackend) DeleteProject(ctx context.Context, owner, id string) error {
	if err := b.enter("DeleteProject", []string{id}, nil); err != nil {
		return err
	}
	return b.Backend.DeleteProject(ctx, owner, id)
}

func (b *recordingBackend) InsertTask(ctx context.Context, in remote.TaskRow) (remote.TaskRow, error) {
	if err := b.enter("InsertTask", []string{in.ID}, nil); err != nil {
		return remote.TaskRow{}, err
	}
	return b.Backend.InsertTask(ctx, in)
}

func (b *recordingBackend) UpdateTasks(ctx context.Context, owner string, ids []string, f remote.Fields) error {
	if err := b.enter("UpdateTasks", ids, f); err != nil {
		return err
	}
	return b.Backend.UpdateTasks(ctx, owner, ids, f)
}

func (b *recordingBackend) DeleteTasks(ctx context.Context, owner string, ids []string) error {
	if err := b.enter("DeleteTasks", ids, nil); err != nil {
		return err
	}
	return b.Backend.DeleteTasks(ctx, owner, ids)
}

func (b *recordingBackend) InsertSubtask(ctx context.Context, owner string, in remote.SubtaskRow) (remote.SubtaskRow, error) {
	if err := b.enter("InsertSubtask", []string{in.TaskID}, nil); err != nil {
		return remote.SubtaskRow{}, err
	}
	return b.Backend.InsertSubtask(ctx, owner, in)
}

func (b *recordingBackend) UpdateSubtasks(ctx context.Context, owner string, ids []string, f remote.Fields) error {
	if err := b.enter("UpdateSubtasks", ids, f); err != nil {
		return err
	}
	return b.Backend.UpdateSubtasks(ctx, owner, ids, f)
}

func (b *recordingBackend) DeleteSubtasks(ctx context.Context, owner string, ids []string) error {
	if err := b.enter("DeleteSubtasks", ids, nil); err != nil {
		return err
	}
	return b.Backend.DeleteSubtasks(ctx, owner, ids)
}

type noteLog struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *noteLog) Notify(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *noteLog) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notes...)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

type harness struct {
	engine  *Engine
	backend *recordingBackend
	repo    *storage.SQLiteRepository
	kv      *guest.MemoryKV
	local   *guest.Store
	notes   *noteLog
	logs    *lockedBuffer
	clock   time.Time
}

var testNow = time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo, err := storage.OpenSQLite(storage.DriverCGO, filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	h := &harness{
		backend: &recordingBackend{Backend: repo, fail: map[string]error{}, block: map[string]chan struct{}{}},
		repo:    repo,
		kv:      guest.NewMemoryKV(),
		notes:   &noteLog{},
		logs:    &lockedBuffer{},
		clock:   testNow,
	}
	h.local = guest.NewStore(h.kv, nil)
	var (
		idMu sync.Mutex
		seq  int
	)
	h.engine = New(h.local, h.backend, Options{
		Logger:   slog.New(slog.NewTextHandler(h.logs, nil)),
		Notifier: h.notes,
		Now:      func() time.Time { return h.clock },
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			seq++
			return fmt.Sprintf("local-%d", seq)
		},
	})
	return h
}

// signIn switches the harness engine to an authenticated session.
func (h *harness) signIn(t *testing.T, userID string) {
	t.Helper()
	if err := h.engine.Transition(context.Background(), Transition{Session: &state.Session{UserID: userID}}); err != nil {
		t.Fatalf("transition: %v", err)
	}
}

func (h *harness) snapshot() state.Snapshot {
	return h.engine.Store().Snapshot()
}

func taskByID(t *testing.T, snap state.Snapshot, id string) model.Task {
	t.Helper()
	task, ok := snap.Task(id)
	if !ok {
		t.Fatalf("task %s missing from %+v", id, snap.Tasks)
	}
	return task
}
