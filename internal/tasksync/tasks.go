package tasksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/remote"
	"github.com/sandeepkv93/optixflow/internal/state"
)

// AddTask prepends a task built from draft. The project is the draft's when
// set, else the active filter, else none.
func (e *Engine) AddTask(ctx context.Context, draft model.TaskDraft) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()
	now := e.now()

	task := model.Task{
		ID:              draft.ID,
		Title:           draft.Title,
		CreatedAt:       draft.CreatedAt,
		ImportanceLevel: draft.ImportanceLevel,
		IsUrgent:        draft.IsUrgent,
		EstimatedTime:   draft.EstimatedTime,
		IsCompleted:     draft.IsCompleted,
		CompletedAt:     draft.CompletedAt,
	}
	if task.ID == "" {
		task.ID = e.newID()
	}
	if task.CreatedAt == nil {
		task.CreatedAt = model.TimePtr(now)
	}
	if task.IsCompleted && task.CompletedAt == nil {
		task.CompletedAt = model.TimePtr(now)
	}
	if !task.IsCompleted {
		task.CompletedAt = nil
	}
	for _, st := range draft.Subtasks {
		st = st.Clone()
		if st.ID == "" {
			st.ID = e.newID()
		}
		task.Subtasks = append(task.Subtasks, st)
	}

	status := e.initialStatus(sess)
	e.w.Mutate(func(d *state.Data) {
		if draft.ProjectID.Set {
			task.ProjectID = draft.ProjectID.Value
		} else if d.ActiveProjectID != nil {
			task.ProjectID = model.StringPtr(*d.ActiveProjectID)
		}
		d.Tasks = append([]model.Task{task.Clone()}, d.Tasks...)
		d.SetStatus(task.ID, status)
		for _, st := range task.Subtasks {
			d.SetStatus(st.ID, status)
		}
	})

	if sess == nil {
		ids := append([]string{task.ID}, subtaskIDs(task.Subtasks)...)
		st, err := e.settleLocal("add task", ids...)
		return Receipt{ID: task.ID, Status: st, Err: err}
	}
	return e.insertTask(ctx, sess.UserID, task, draft.ID != "")
}

func (e *Engine) insertTask(ctx context.Context, owner string, task model.Task, keepID bool) Receipt {
	tempID := task.ID
	row := remote.TaskToRow(task, owner)
	if !keepID {
		row.ID = ""
	}
	inserted, err := e.backend.InsertTask(ctx, row)
	if err == nil && inserted.ID == "" {
		err = &remote.DecodeError{Entity: "task", Field: "id", Reason: "empty"}
	}
	if err != nil {
		e.settleRemote("add task", err, append([]string{tempID}, subtaskIDs(task.Subtasks)...)...)
		return Receipt{ID: tempID, Status: state.SyncFailed, Err: err}
	}

	if _, derr := remote.DecodeTask(inserted); derr != nil {
		e.logger.Error("inserted task row malformed", "id", inserted.ID, "err", derr)
	}
	id := inserted.ID
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(tempID)
		if i < 0 {
			return
		}
		d.Tasks[i].ID = id
		if inserted.CreatedAt != nil {
			d.Tasks[i].CreatedAt = model.TimePtr(*inserted.CreatedAt)
		}
		d.ClearStatus(tempID)
		d.SetStatus(id, state.SyncConfirmed)
	})

	var subErrs []error
	for _, st := range task.Subtasks {
		if r := e.insertSubtask(ctx, owner, id, st); r.Err != nil {
			subErrs = append(subErrs, r.Err)
		}
	}
	return Receipt{ID: id, Status: state.SyncConfirmed, Err: errors.Join(subErrs...)}
}

// AddSubtask appends a subtask under a temporary id. Importance and urgency
// default to the parent's. A failed backend insert removes the entry.
func (e *Engine) AddSubtask(ctx context.Context, taskID string, draft model.SubtaskDraft) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()
	now := e.now()

	sub := model.Subtask{
		ID:            e.newID(),
		Title:         draft.Title,
		EstimatedTime: draft.EstimatedTime,
		IsCompleted:   draft.IsCompleted,
	}
	if sub.IsCompleted {
		sub.CompletedAt = draft.CompletedAt
		if sub.CompletedAt == nil {
			sub.CompletedAt = model.TimePtr(now)
		}
	}
	found := false
	status := e.initialStatus(sess)
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(taskID)
		if i < 0 {
			return
		}
		found = true
		parent := d.Tasks[i]
		sub.ImportanceLevel = draft.ImportanceLevel.Or(parent.ImportanceLevel)
		sub.IsUrgent = draft.IsUrgent.Or(parent.IsUrgent)
		d.Tasks[i].Subtasks = append(d.Tasks[i].Subtasks, sub.Clone())
		d.SetStatus(sub.ID, status)
	})
	if !found {
		return Receipt{Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)}
	}

	if sess == nil {
		st, err := e.settleLocal("add subtask", sub.ID)
		return Receipt{ID: sub.ID, Status: st, Err: err}
	}
	return e.insertSubtask(ctx, sess.UserID, taskID, sub)
}

// insertSubtask inserts an optimistic subtask already present in the store
// under sub.ID and reconciles it.
func (e *Engine) insertSubtask(ctx context.Context, owner, taskID string, sub model.Subtask) Receipt {
	tempID := sub.ID
	row := remote.SubtaskToRow(taskID, sub)
	row.ID = ""
	inserted, err := e.backend.InsertSubtask(ctx, owner, row)
	if err != nil {
		e.logFailure("add subtask", err, tempID)
		e.w.Mutate(func(d *state.Data) {
			ti, si := d.FindSubtask(tempID)
			if ti < 0 {
				return
			}
			subs := d.Tasks[ti].Subtasks
			d.Tasks[ti].Subtasks = append(subs[:si:si], subs[si+1:]...)
			d.ClearStatus(tempID)
		})
		return Receipt{ID: tempID, Status: state.SyncFailed, Err: err}
	}

	canonical, derr := remote.DecodeSubtask(inserted)
	if derr != nil {
		e.logger.Error("inserted subtask row malformed", "id", inserted.ID, "err", derr)
		canonical = sub
		canonical.ID = inserted.ID
	}
	e.w.Mutate(func(d *state.Data) {
		ti, si := d.FindSubtask(tempID)
		if ti < 0 {
			return
		}
		entry := &d.Tasks[ti].Subtasks[si]
		entry.ID = canonical.ID
		if canonical.Title != "" {
			entry.Title = canonical.Title
		}
		d.ClearStatus(tempID)
		d.SetStatus(canonical.ID, state.SyncConfirmed)
	})
	return Receipt{ID: canonical.ID, Status: state.SyncConfirmed}
}

// UpdateTask shallow-merges patch into the task. Values are not
// re-validated. A failed backend write is logged and not rolled back.
func (e *Engine) UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	found := false
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(taskID)
		if i < 0 {
			return
		}
		found = true
		d.Tasks[i] = patch.Apply(d.Tasks[i])
		d.SetStatus(taskID, e.initialStatus(sess))
	})
	if !found {
		return Receipt{ID: taskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)}
	}

	if sess == nil {
		st, err := e.settleLocal("update task", taskID)
		return Receipt{ID: taskID, Status: st, Err: err}
	}
	fields := remote.TaskPatchFields(patch)
	if len(fields) == 0 {
		e.setStatus(state.SyncLocal, taskID)
		return Receipt{ID: taskID, Status: state.SyncLocal}
	}
	err := e.backend.UpdateTasks(ctx, sess.UserID, []string{taskID}, fields)
	return Receipt{ID: taskID, Status: e.settleRemote("update task", err, taskID), Err: err}
}

func (e *Engine) UpdateSubtask(ctx context.Context, taskID, subtaskID string, patch model.SubtaskPatch) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	found := false
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
		d.Tasks[i].Subtasks[j] = patch.Apply(d.Tasks[i].Subtasks[j])
		d.SetStatus(subtaskID, e.initialStatus(sess))
	})
	if !found {
		return Receipt{ID: subtaskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s/%s", ErrSubtaskNotFound, taskID, subtaskID)}
	}

	if sess == nil {
		st, err := e.settleLocal("update subtask", subtaskID)
		return Receipt{ID: subtaskID, Status: st, Err: err}
	}
	fields := remote.SubtaskPatchFields(patch)
	if len(fields) == 0 {
		e.setStatus(state.SyncLocal, subtaskID)
		return Receipt{ID: subtaskID, Status: state.SyncLocal}
	}
	err := e.backend.UpdateSubtasks(ctx, sess.UserID, []string{subtaskID}, fields)
	return Receipt{ID: subtaskID, Status: e.settleRemote("update subtask", err, subtaskID), Err: err}
}

// DeleteTask removes the task and its subtasks.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	found := false
	e.w.Mutate(func(d *state.Data) {
		i := d.TaskIndex(taskID)
		if i < 0 {
			return
		}
		found = true
		d.ClearStatus(taskID)
		d.ClearStatus(subtaskIDs(d.Tasks[i].Subtasks)...)
		d.Tasks = append(d.Tasks[:i:i], d.Tasks[i+1:]...)
	})
	if !found {
		return Receipt{ID: taskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)}
	}

	if sess == nil {
		err := e.persistLocal()
		if err != nil {
			e.logger.Error("guest save failed", "op", "delete task", "id", taskID, "err", err)
			return Receipt{ID: taskID, Status: state.SyncFailed, Err: err}
		}
		return Receipt{ID: taskID, Status: state.SyncLocal}
	}
	if err := e.backend.DeleteTasks(ctx, sess.UserID, []string{taskID}); err != nil {
		e.logFailure("delete task", err, taskID)
		return Receipt{ID: taskID, Status: state.SyncFailed, Err: err}
	}
	return Receipt{ID: taskID, Status: state.SyncConfirmed}
}

func (e *Engine) DeleteSubtask(ctx context.Context, taskID, subtaskID string) Receipt {
	e.gate.RLock()
	defer e.gate.RUnlock()
	sess := e.session()

	found := false
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
		subs := d.Tasks[i].Subtasks
		d.Tasks[i].Subtasks = append(subs[:j:j], subs[j+1:]...)
		d.ClearStatus(subtaskID)
	})
	if !found {
		return Receipt{ID: subtaskID, Status: state.SyncFailed, Err: fmt.Errorf("%w: %s/%s", ErrSubtaskNotFound, taskID, subtaskID)}
	}

	if sess == nil {
		if err := e.persistLocal(); err != nil {
			e.logger.Error("guest save failed", "op", "delete subtask", "id", subtaskID, "err", err)
			return Receipt{ID: subtaskID, Status: state.SyncFailed, Err: err}
		}
		return Receipt{ID: subtaskID, Status: state.SyncLocal}
	}
	if err := e.backend.DeleteSubtasks(ctx, sess.UserID, []string{subtaskID}); err != nil {
		e.logFailure("delete subtask", err, subtaskID)
		return Receipt{ID: subtaskID, Status: state.SyncFailed, Err: err}
	}
	return Receipt{ID: subtaskID, Status: state.SyncConfirmed}
}

func subtaskIDs(subs []model.Subtask) []string {
	out := make([]string, 0, len(subs))
	for _, st := range subs {
		out = append(out, st.ID)
	}
	return out
}
