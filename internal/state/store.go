// Package state is the shared, observable store of tasks, projects, session
// and active project filter. Reads go through Store; only the holder of the
// Writer mutates.
package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/sandeepkv93/optixflow/internal/model"
)

type SyncStatus int

const (
	// SyncLocal: applied in memory and written to guest storage, or not
	// sendable to the backend.
	SyncLocal SyncStatus = iota + 1
	SyncPending
	SyncConfirmed
	SyncFailed
)

func (s SyncStatus) String() string {
	switch s {
	case SyncLocal:
		return "local"
	case SyncPending:
		return "pending"
	case SyncConfirmed:
		return "confirmed"
	case SyncFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is the authenticated identity. A nil *Session means guest mode.
type Session struct {
	UserID string
	Email  string
}

// Data is the mutable content of the store.
type Data struct {
	Tasks           []model.Task
	Projects        []model.Project
	Session         *Session
	ActiveProjectID *string
	// Sync maps entity ids (task, subtask or project) to their sync status.
	Sync map[string]SyncStatus
}

// Snapshot is a deep copy of the store content at one version.
type Snapshot struct {
	Data
	Version uint64
}

func (s Snapshot) IsGuest() bool {
	return s.Session == nil
}

func (s Snapshot) Task(id string) (model.Task, bool) {
	if i := s.TaskIndex(id); i >= 0 {
		return s.Tasks[i], true
	}
	return model.Task{}, false
}

func (s Snapshot) Project(id string) (model.Project, bool) {
	if i := s.ProjectIndex(id); i >= 0 {
		return s.Projects[i], true
	}
	return model.Project{}, false
}

// Status returns the sync status of an entity, or zero when untracked.
func (s Snapshot) Status(id string) SyncStatus {
	return s.Sync[id]
}

func (d *Data) TaskIndex(id string) int {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Data) ProjectIndex(id string) int {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return i
		}
	}
	return -1
}

// FindSubtask locates a subtask by id across all tasks.
func (d *Data) FindSubtask(id string) (taskIdx, subIdx int) {
	for i := range d.Tasks {
		if j := d.Tasks[i].SubtaskIndex(id); j >= 0 {
			return i, j
		}
	}
	return -1, -1
}

func (d *Data) SetStatus(id string, st SyncStatus) {
	if d.Sync == nil {
		d.Sync = make(map[string]SyncStatus)
	}
	d.Sync[id] = st
}

func (d *Data) ClearStatus(ids ...string) {
	for _, id := range ids {
		delete(d.Sync, id)
	}
}

func (d Data) clone() Data {
	out := Data{
		Tasks:    make([]model.Task, len(d.Tasks)),
		Projects: slices.Clone(d.Projects),
		Sync:     maps.Clone(d.Sync),
	}
	for i, t := range d.Tasks {
		out.Tasks[i] = t.Clone()
	}
	if out.Projects == nil {
		out.Projects = []model.Project{}
	}
	if out.Sync == nil {
		out.Sync = map[string]SyncStatus{}
	}
	if d.Session != nil {
		sess := *d.Session
		out.Session = &sess
	}
	if d.ActiveProjectID != nil {
		id := *d.ActiveProjectID
		out.ActiveProjectID = &id
	}
	return out
}

type Store struct {
	mu      sync.RWMutex
	data    Data
	version uint64

	// notifyMu orders mutation+notification pairs so subscribers observe
	// versions in order.
	notifyMu sync.Mutex
	subMu    sync.Mutex
	subs     map[int]func(Snapshot)
	nextSub  int
}

// Writer is the only handle that can mutate a Store.
type Writer struct {
	s *Store
}

func New() (*Store, *Writer) {
	s := &Store{subs: make(map[int]func(Snapshot))}
	return s, &Writer{s: s}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Data: s.data.clone(), Version: s.version}
}

// Session returns a copy of the current session, or nil in guest mode.
func (s *Store) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Session == nil {
		return nil
	}
	sess := *s.data.Session
	return &sess
}

// Subscribe registers fn to be called with a fresh snapshot after every
// mutation. fn must not mutate the store synchronously.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Mutate applies fn under the store lock, bumps the version and notifies
// subscribers before returning. The snapshot handed to subscribers is shared
// between them and must be treated as read-only.
func (w *Writer) Mutate(fn func(d *Data)) Snapshot {
	s := w.s
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fn(&s.data)
	s.version++
	snap := Snapshot{Data: s.data.clone(), Version: s.version}
	s.mu.Unlock()

	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return snap
}
