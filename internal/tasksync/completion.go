package tasksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/remote"
	"github.com/sandeepkv93/optixflow/internal/state"
)

const (
	TitleCascadeCompleted = "Project Completed"
	TitleTaskCompleted    = "Task completed."
)

type ToggleOptions struct {
	// Cascade also completes every currently-incomplete subtask.
	Cascade bool
}

type SubtaskToggleOptions struct {
	// WithToast emits an undoable notification when the subtask completes.
	WithToast bool
}

// Undo reverts one completion. It applies at most once and not after
// Expire.
type Undo struct {
	once    sync.Once
	expired atomic.Bool
	used    atomic.Bool
	apply   func(ctx context.Context) Receipt
	result  Receipt
}

// Apply runs the undo. The second return is false when the undo had already
// been used or has expired.
func (u *Undo) Apply(ctx context.Context) (Receipt, bool) {
	if u == nil || u.expired.Load() {
		return Receipt{Status: state.SyncFailed, Err: ErrUndoUnavailable}, false
	}
	ran := false
	u.once.Do(func() {
		ran = true
		u.used.Store(true)
		u.result = u.apply(ctx)
	})
	if !ran {
		return Receipt{Status: state.SyncFailed, Err: ErrUndoUnavailable}, false
	}
	return u.result, true
}

func (u *Undo) Expire() {
	if u != nil {
		u.expired.Store(true)
	}
}

func (u *Undo) Available() bool {
	return u != nil && !u.expired.Load() && !u.used.Load()
}

// ToggleTaskCompletion flips the task's completion. Un-completing never
// cascades. Completing emits an undoable notification.
func (e *Engine) ToggleTaskCompletion(ctx context.Context, taskID string, opts ToggleOptions) Receipt {
	rec, note := e.toggleTask(ctx, taskID, opts)
	e.notify(note)
	return rec
}

func (e *Engine) toggleTask(ctx context.Context, taskID string, opts ToggleOptions) (Receipt, *Notification) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()
	at := e.now()

	var (
		found     bool
		completed bool
		cascaded  []string
	)
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(taskID)
		if i < 0 {
			return
		}
		found = true
		t := &d.Tasks[i]
		if t.IsCompleted {
			t.IsCompleted = false
			t.CompletedAt = nil
		} else {
			completed = true
			t.IsCompleted = true
			t.CompletedAt = model.TimePtr(at)
			if opts.Cascade {
				for j := range t.Subtasks {
					st := &t.Subtasks[j]
					if st.IsCompleted {
						continue
					}
					st.IsCompleted = true
					st.CompletedAt = model.TimePtr(at)
					cascaded = append(cascaded, st.ID)
				}
			}
		}
		d.SetStatus(taskID, e.initialStatus(sess))
		for _, id := range cascaded {
			d.SetStatus(id, e.initialStatus(sess))
		}
	})
	if !found {
		return Receipt{ID: taskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)}, nil
	}

	rec := e.persistCompletion(ctx, sess, "toggle task", taskID, completed, at, cascaded)
	rec.Cascaded = cascaded
	if !completed {
		return rec, nil
	}

	title := TitleTaskCompleted
	if opts.Cascade && len(cascaded) > 0 {
		title = TitleCascadeCompleted
	}
	rec.Undo = e.newUndo(sess, func(ctx context.Context) Receipt {
		return e.revertTask(ctx, taskID, cascaded)
	})
	return rec, &Notification{Title: title, TaskID: taskID, Undo: rec.Undo}
}

// persistCompletion writes one task's completion plus the batch of
// cascaded subtasks.
func (e *Engine) persistCompletion(ctx context.Context, sess *state.Session, op, taskID string, done bool, at time.Time, subtaskIDs []string) Receipt {
	ids := append([]string{taskID}, subtaskIDs...)
	if sess == nil {
		st, err := e.settleLocal(op, ids...)
		return Receipt{ID: taskID, Status: st, Err: err}
	}
	var subErr error
	if len(subtaskIDs) > 0 {
		subErr = e.backend.UpdateSubtasks(ctx, sess.UserID, subtaskIDs, remote.CompletionFields(done, &at))
		e.settleRemote(op+" subtasks", subErr, subtaskIDs...)
	}
	taskErr := e.backend.UpdateTasks(ctx, sess.UserID, []string{taskID}, remote.CompletionFields(done, &at))
	st := e.settleRemote(op, taskErr, taskID)
	err := errors.Join(subErr, taskErr)
	if err != nil {
		st = state.SyncFailed
	}
	return Receipt{ID: taskID, Status: st, Err: err}
}

// revertTask clears completion on the task and on the recorded cascade set
// only.
func (e *Engine) revertTask(ctx context.Context, taskID string, cascaded []string) Receipt {
	sess := e.session()
	var present []string
	found := false
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(taskID)
		if i < 0 {
			return
		}
		found = true
		t := &d.Tasks[i]
		t.IsCompleted = false
		t.CompletedAt = nil
		for _, id := range cascaded {
			j := t.SubtaskIndex(id)
			if j < 0 {
				continue
			}
			t.Subtasks[j].IsCompleted = false
			t.Subtasks[j].CompletedAt = nil
			present = append(present, id)
		}
		d.SetStatus(taskID, e.initialStatus(sess))
		for _, id := range present {
			d.SetStatus(id, e.initialStatus(sess))
		}
	})
	if !found {
		return Receipt{ID: taskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)}
	}
	rec := e.persistCompletion(ctx, sess, "undo task completion", taskID, false, time.Time{}, present)
	rec.Cascaded = present
	return rec
}

// ToggleSubtaskCompletion flips exactly one subtask. The parent's completion
// is never touched.
func (e *Engine) ToggleSubtaskCompletion(ctx context.Context, taskID, subtaskID string, opts SubtaskToggleOptions) Receipt {
	rec, note := e.toggleSubtask(ctx, taskID, subtaskID, opts)
	e.notify(note)
	return rec
}

func (e *Engine) toggleSubtask(ctx context.Context, taskID, subtaskID string, opts SubtaskToggleOptions) (Receipt, *Notification) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()
	at := e.now()

	found, completed := e.setSubtaskCompletion(sess, taskID, subtaskID, nil, at)
	if !found {
		return Receipt{ID: subtaskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s/%s", ErrSubtaskNotFound, taskID, subtaskID)}, nil
	}
	rec := e.persistSubtaskCompletion(ctx, sess, "toggle subtask", subtaskID, completed, at)
	if !completed || !opts.WithToast {
		return rec, nil
	}
	rec.Undo = e.newUndo(sess, func(ctx context.Context) Receipt {
		done := false
		found, _ := e.setSubtaskCompletion(e.session(), taskID, subtaskID, &done, at)
		if !found {
			return Receipt{ID: subtaskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s/%s", ErrSubtaskNotFound, taskID, subtaskID)}
		}
		return e.persistSubtaskCompletion(ctx, e.session(), "undo subtask completion", subtaskID, false, at)
	})
	return rec, &Notification{Title: TitleTaskCompleted, TaskID: taskID, SubtaskID: subtaskID, Undo: rec.Undo}
}

// setSubtaskCompletion sets the subtask to *want, or flips it when want is
// nil. It reports whether the subtask exists and its new state.
func (e *Engine) setSubtaskCompletion(sess *state.Session, taskID, subtaskID string, want *bool, at time.Time) (found, completed bool) {
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(taskID)
		if i < 0 {
			return
		}
		j := d.Tasks[i].SubtaskIndex(subtaskID)
		if j < 0 {
			return
		}
		found = true
		st := &d.Tasks[i].Subtasks[j]
		next := !st.IsCompleted
		if want != nil {
			next = *want
		}
		st.IsCompleted = next
		if next {
			st.CompletedAt = model.TimePtr(at)
		} else {
			st.CompletedAt = nil
		}
		completed = next
		d.SetStatus(subtaskID, e.initialStatus(sess))
	})
	return found, completed
}

func (e *Engine) persistSubtaskCompletion(ctx context.Context, sess *state.Session, op, subtaskID string, done bool, at time.Time) Receipt {
	if sess == nil {
		st, err := e.settleLocal(op, subtaskID)
		return Receipt{ID: subtaskID, Status: st, Err: err}
	}
	err := e.backend.UpdateSubtasks(ctx, sess.UserID, []string{subtaskID}, remote.CompletionFields(done, &at))
	return Receipt{ID: subtaskID, Status: e.settleRemote(op, err, subtaskID), Err: err}
}

// newUndo binds fn to the session that produced the completion. Applying it
// after a session switch is refused.
func (e *Engine) newUndo(origin *state.Session, fn func(ctx context.Context) Receipt) *Undo {
	owner := ""
	if origin != nil {
		owner = origin.UserID
	}
	return &Undo{apply: func(ctx context.Context) Receipt {
		e.gate.RLock()
		defer e.gate.RUnlock()
		cur := ""
		if s := e.session(); s != nil {
			cur = s.UserID
		}
		if cur != owner {
			return Receipt{Status: state.SyncFailed, Err: ErrSessionChanged}
		}
		return fn(ctx)
	}}
}
