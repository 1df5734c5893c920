package tasksync

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/optixflow/internal/guest"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/remote"
	"github.com/sandeepkv93/optixflow/internal/state"
)

func TestGuestAddTaskIsPersistedImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.engine.AddTask(ctx, model.TaskDraft{
		Title:           "Write report",
		ImportanceLevel: model.ImportanceHigh,
		IsUrgent:        true,
		EstimatedTime:   30,
	})
	if !rec.OK() || rec.Status != state.SyncLocal {
		t.Fatalf("unexpected receipt: %+v", rec)
	}

	record := h.local.Load()
	if len(record.Tasks) != 1 || record.Tasks[0].ID != rec.ID {
		t.Fatalf("guest record missing task: %+v", record)
	}

	fresh := New(guest.NewStore(h.kv, nil), h.backend, Options{})
	if err := fresh.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := taskByID(t, fresh.Store().Snapshot(), rec.ID)
	want := taskByID(t, h.snapshot(), rec.ID)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reloaded task differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestAddTaskProjectFallsBackToActiveFilter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.engine.AddProject(ctx, "Home", "#00ff00")
	if err := h.engine.SetActiveProject(&p.ID); err != nil {
		t.Fatalf("set active project: %v", err)
	}

	implicit := h.engine.AddTask(ctx, model.TaskDraft{Title: "a", ImportanceLevel: model.ImportanceMid, EstimatedTime: 10})
	explicitNil := h.engine.AddTask(ctx, model.TaskDraft{Title: "b", ImportanceLevel: model.ImportanceMid, EstimatedTime: 10, ProjectID: model.Some[*string](nil)})

	snap := h.snapshot()
	if task := taskByID(t, snap, implicit.ID); !task.InProject(p.ID) {
		t.Fatalf("expected active project assignment: %+v", task)
	}
	if task := taskByID(t, snap, explicitNil.ID); task.ProjectID != nil {
		t.Fatalf("explicit nil project must win over filter: %+v", task)
	}
	if snap.Tasks[0].ID != explicitNil.ID {
		t.Fatal("new tasks are prepended")
	}

	if err := h.engine.SetActiveProject(model.StringPtr("missing")); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected project not found, got %v", err)
	}
}

func seedContainer(t *testing.T, h *harness) (taskID string, subIDs []string) {
	t.Helper()
	ctx := context.Background()
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "T2", ImportanceLevel: model.ImportanceMid, EstimatedTime: 60})
	if !rec.OK() {
		t.Fatalf("add task: %+v", rec)
	}
	for _, title := range []string{"S1", "S2"} {
		sub := h.engine.AddSubtask(ctx, rec.ID, model.SubtaskDraft{Title: title, EstimatedTime: 15})
		if !sub.OK() {
			t.Fatalf("add subtask: %+v", sub)
		}
		subIDs = append(subIDs, sub.ID)
	}
	return rec.ID, subIDs
}

func TestCascadeCompletionSharesTimestampAndUndoes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	taskID, subs := seedContainer(t, h)

	before := taskByID(t, h.snapshot(), taskID)
	if before.EffectiveDuration() != 30 {
		t.Fatalf("expected effective duration 30, got %d", before.EffectiveDuration())
	}

	rec := h.engine.ToggleTaskCompletion(ctx, taskID, ToggleOptions{Cascade: true})
	if !rec.OK() || rec.Undo == nil {
		t.Fatalf("unexpected receipt: %+v", rec)
	}
	if !reflect.DeepEqual(rec.Cascaded, subs) {
		t.Fatalf("cascade set = %v, want %v", rec.Cascaded, subs)
	}

	after := taskByID(t, h.snapshot(), taskID)
	if !after.IsCompleted || after.CompletedAt == nil || !after.CompletedAt.Equal(testNow) {
		t.Fatalf("task not completed: %+v", after)
	}
	for _, st := range after.Subtasks {
		if !st.IsCompleted || st.CompletedAt == nil || !st.CompletedAt.Equal(*after.CompletedAt) {
			t.Fatalf("subtask not completed with shared timestamp: %+v", st)
		}
	}
	if after.EffectiveDuration() != 30 {
		t.Fatalf("completion changed effective duration: %d", after.EffectiveDuration())
	}

	notes := h.notes.all()
	if len(notes) != 1 || notes[0].Title != TitleCascadeCompleted || notes[0].Undo != rec.Undo {
		t.Fatalf("unexpected notifications: %+v", notes)
	}

	if _, ok := rec.Undo.Apply(ctx); !ok {
		t.Fatal("first undo should apply")
	}
	undone := taskByID(t, h.snapshot(), taskID)
	if undone.IsCompleted || undone.CompletedAt != nil {
		t.Fatalf("undo should clear task completion: %+v", undone)
	}
	for _, st := range undone.Subtasks {
		if st.IsCompleted || st.CompletedAt != nil {
			t.Fatalf("undo should clear cascaded subtask: %+v", st)
		}
	}
	if _, ok := rec.Undo.Apply(ctx); ok {
		t.Fatal("undo must be single-shot")
	}
	if rec.Undo.Available() {
		t.Fatal("used undo should report unavailable")
	}
}

func TestCascadeUndoRestoresOnlyRecordedSubtasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	taskID, subs := seedContainer(t, h)

	h.engine.ToggleSubtaskCompletion(ctx, taskID, subs[0], SubtaskToggleOptions{})
	rec := h.engine.ToggleTaskCompletion(ctx, taskID, ToggleOptions{Cascade: true})
	if !reflect.DeepEqual(rec.Cascaded, []string{subs[1]}) {
		t.Fatalf("only the incomplete subtask should cascade: %v", rec.Cascaded)
	}
	if _, ok := rec.Undo.Apply(ctx); !ok {
		t.Fatal("undo should apply")
	}
	task := taskByID(t, h.snapshot(), taskID)
	if !task.Subtasks[0].IsCompleted {
		t.Fatal("independently completed subtask must stay completed")
	}
	if task.Subtasks[1].IsCompleted {
		t.Fatal("cascaded subtask must be restored")
	}
}

func TestToggleWithoutCascadeCompletesTaskOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	taskID, _ := seedContainer(t, h)

	rec := h.engine.ToggleTaskCompletion(ctx, taskID, ToggleOptions{})
	if len(rec.Cascaded) != 0 {
		t.Fatalf("no cascade requested: %v", rec.Cascaded)
	}
	task := taskByID(t, h.snapshot(), taskID)
	if !task.IsCompleted {
		t.Fatal("task should be completed")
	}
	for _, st := range task.Subtasks {
		if st.IsCompleted {
			t.Fatalf("subtask must not be touched: %+v", st)
		}
	}
	if notes := h.notes.all(); len(notes) != 1 || notes[0].Title != TitleTaskCompleted {
		t.Fatalf("unexpected notifications: %+v", notes)
	}

	uncomplete := h.engine.ToggleTaskCompletion(ctx, taskID, ToggleOptions{Cascade: true})
	if uncomplete.Undo != nil || len(uncomplete.Cascaded) != 0 {
		t.Fatalf("un-complete neither cascades nor offers undo: %+v", uncomplete)
	}
	task = taskByID(t, h.snapshot(), taskID)
	if task.IsCompleted || task.CompletedAt != nil {
		t.Fatalf("task should be incomplete: %+v", task)
	}
	if len(h.notes.all()) != 1 {
		t.Fatal("un-complete must not notify")
	}
}

func TestToggleSubtaskNeverChangesParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	taskID, subs := seedContainer(t, h)

	silent := h.engine.ToggleSubtaskCompletion(ctx, taskID, subs[0], SubtaskToggleOptions{})
	if silent.Undo != nil || len(h.notes.all()) != 0 {
		t.Fatal("inline toggle must be silent")
	}
	h.engine.ToggleSubtaskCompletion(ctx, taskID, subs[1], SubtaskToggleOptions{})
	task := taskByID(t, h.snapshot(), taskID)
	if task.IsCompleted {
		t.Fatal("completing every subtask must not complete the parent")
	}

	h.engine.ToggleTaskCompletion(ctx, taskID, ToggleOptions{})
	h.engine.ToggleSubtaskCompletion(ctx, taskID, subs[0], SubtaskToggleOptions{})
	task = taskByID(t, h.snapshot(), taskID)
	if !task.IsCompleted || task.Subtasks[0].IsCompleted {
		t.Fatalf("un-completing a subtask must not un-complete the parent: %+v", task)
	}
}

func TestToggleSubtaskWithToastOffersUndo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	taskID, subs := seedContainer(t, h)

	rec := h.engine.ToggleSubtaskCompletion(ctx, taskID, subs[0], SubtaskToggleOptions{WithToast: true})
	notes := h.notes.all()
	if rec.Undo == nil || len(notes) != 1 || notes[0].SubtaskID != subs[0] || notes[0].Title != TitleTaskCompleted {
		t.Fatalf("expected undoable subtask notification: %+v %+v", rec, notes)
	}
	h.engine.ToggleSubtaskCompletion(ctx, taskID, subs[1], SubtaskToggleOptions{})

	if _, ok := rec.Undo.Apply(ctx); !ok {
		t.Fatal("undo should apply")
	}
	task := taskByID(t, h.snapshot(), taskID)
	if task.Subtasks[0].IsCompleted || task.Subtasks[0].CompletedAt != nil {
		t.Fatalf("undo should clear the subtask: %+v", task.Subtasks[0])
	}
	if !task.Subtasks[1].IsCompleted {
		t.Fatal("undo must not touch other subtasks")
	}
}

func TestExpiredUndoIsRefused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "x", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})
	done := h.engine.ToggleTaskCompletion(ctx, rec.ID, ToggleOptions{})
	done.Undo.Expire()
	if r, ok := done.Undo.Apply(ctx); ok || !errors.Is(r.Err, ErrUndoUnavailable) {
		t.Fatalf("expired undo must not apply: %+v", r)
	}
	if !taskByID(t, h.snapshot(), rec.ID).IsCompleted {
		t.Fatal("task should remain completed")
	}
}

func TestDeleteProjectUnassignsTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.engine.AddProject(ctx, "Work", "#0000ff")
	other := h.engine.AddProject(ctx, "Life", "#ff00ff")
	a := h.engine.AddTask(ctx, model.TaskDraft{Title: "a", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5, ProjectID: model.Some(model.StringPtr(p.ID))})
	b := h.engine.AddTask(ctx, model.TaskDraft{Title: "b", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5, ProjectID: model.Some(model.StringPtr(p.ID))})
	c := h.engine.AddTask(ctx, model.TaskDraft{Title: "c", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5, ProjectID: model.Some(model.StringPtr(other.ID))})
	if err := h.engine.SetActiveProject(&p.ID); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	rec := h.engine.DeleteProject(ctx, p.ID)
	if !rec.OK() || len(rec.Cascaded) != 2 {
		t.Fatalf("unexpected receipt: %+v", rec)
	}

	snap := h.snapshot()
	if _, ok := snap.Project(p.ID); ok {
		t.Fatal("project should be removed")
	}
	if len(snap.Tasks) != 3 {
		t.Fatalf("no task may be removed: %+v", snap.Tasks)
	}
	for _, id := range []string{a.ID, b.ID} {
		if task := taskByID(t, snap, id); task.ProjectID != nil {
			t.Fatalf("task %s should be unassigned: %+v", id, task)
		}
	}
	if task := taskByID(t, snap, c.ID); !task.InProject(other.ID) {
		t.Fatalf("unrelated task reassigned: %+v", task)
	}
	if snap.ActiveProjectID != nil {
		t.Fatal("active filter should be cleared")
	}
	if record := h.local.Load(); len(record.Projects) != 1 || len(record.Tasks) != 3 {
		t.Fatalf("guest record not updated: %+v", record)
	}

	if r := h.engine.DeleteProject(ctx, "missing"); !errors.Is(r.Err, ErrProjectNotFound) {
		t.Fatalf("expected not found, got %+v", r)
	}
}

func TestUpdateTaskDoesNotRevalidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "T", ImportanceLevel: model.ImportanceLow, EstimatedTime: 10})

	up := h.engine.UpdateTask(ctx, rec.ID, model.TaskPatch{EstimatedTime: model.Some(-5)})
	if !up.OK() {
		t.Fatalf("update should be accepted as-is: %+v", up)
	}
	if got := taskByID(t, h.snapshot(), rec.ID).EstimatedTime; got != -5 {
		t.Fatalf("core stores the caller's value unchanged, got %d", got)
	}
	if got := model.ClampEstimate(-5); got != 5 {
		t.Fatalf("caller-side clamp should yield 5, got %d", got)
	}
}

func TestUpdateAndDeleteUnknownEntities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if r := h.engine.UpdateTask(ctx, "nope", model.TaskPatch{Title: model.Some("x")}); !errors.Is(r.Err, ErrTaskNotFound) {
		t.Fatalf("expected task not found: %+v", r)
	}
	if r := h.engine.AddSubtask(ctx, "nope", model.SubtaskDraft{Title: "x", EstimatedTime: 5}); !errors.Is(r.Err, ErrTaskNotFound) {
		t.Fatalf("expected task not found: %+v", r)
	}
	if r := h.engine.DeleteSubtask(ctx, "nope", "s"); !errors.Is(r.Err, ErrSubtaskNotFound) {
		t.Fatalf("expected subtask not found: %+v", r)
	}
	if r := h.engine.ToggleTaskCompletion(ctx, "nope", ToggleOptions{}); !errors.Is(r.Err, ErrTaskNotFound) {
		t.Fatalf("expected task not found: %+v", r)
	}
}

func TestGuestDeleteTaskAndSubtask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	taskID, subs := seedContainer(t, h)

	if r := h.engine.DeleteSubtask(ctx, taskID, subs[0]); !r.OK() {
		t.Fatalf("delete subtask: %+v", r)
	}
	if task := taskByID(t, h.snapshot(), taskID); len(task.Subtasks) != 1 || task.Subtasks[0].ID != subs[1] {
		t.Fatalf("unexpected subtasks: %+v", task.Subtasks)
	}
	if r := h.engine.DeleteTask(ctx, taskID); !r.OK() {
		t.Fatalf("delete task: %+v", r)
	}
	if len(h.snapshot().Tasks) != 0 || len(h.local.Load().Tasks) != 0 {
		t.Fatal("task should be gone from memory and guest record")
	}
}

type brokenLocal struct{ guest.Snapshot }

func (b *brokenLocal) Save(guest.Snapshot) error { return errors.New("disk full") }
func (b *brokenLocal) Load() guest.Snapshot      { return b.Snapshot }

func TestGuestSaveFailureIsReported(t *testing.T) {
	e := New(&brokenLocal{}, nil, Options{})
	rec := e.AddTask(context.Background(), model.TaskDraft{Title: "x", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})
	if rec.OK() || rec.Status != state.SyncFailed || rec.Err == nil {
		t.Fatalf("save failure must be reported: %+v", rec)
	}
	snap := e.Store().Snapshot()
	if len(snap.Tasks) != 1 || snap.Status(rec.ID) != state.SyncFailed {
		t.Fatalf("optimistic entry stays with failed status: %+v", snap)
	}
}

func TestSubtaskDefaultsInheritFromParent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "p", ImportanceLevel: model.ImportanceHigh, IsUrgent: true, EstimatedTime: 5})
	inherit := h.engine.AddSubtask(ctx, rec.ID, model.SubtaskDraft{Title: "a", EstimatedTime: 5})
	override := h.engine.AddSubtask(ctx, rec.ID, model.SubtaskDraft{
		Title: "b", EstimatedTime: 5,
		ImportanceLevel: model.Some(model.ImportanceLow),
		IsUrgent:        model.Some(false),
	})
	task := taskByID(t, h.snapshot(), rec.ID)
	a := task.Subtasks[task.SubtaskIndex(inherit.ID)]
	b := task.Subtasks[task.SubtaskIndex(override.ID)]
	if a.ImportanceLevel != model.ImportanceHigh || !a.IsUrgent {
		t.Fatalf("subtask should inherit parent classification: %+v", a)
	}
	if b.ImportanceLevel != model.ImportanceLow || b.IsUrgent {
		t.Fatalf("explicit values should win: %+v", b)
	}

	h.engine.UpdateTask(ctx, rec.ID, model.TaskPatch{IsUrgent: model.Some(false)})
	task = taskByID(t, h.snapshot(), rec.ID)
	if !task.Subtasks[task.SubtaskIndex(inherit.ID)].IsUrgent {
		t.Fatal("subtask urgency is independent after creation")
	}
}

func TestAuthenticatedAddTaskReconcilesCanonicalRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")

	var sawOptimistic bool
	unsubscribe := h.engine.Store().Subscribe(func(s state.Snapshot) {
		if len(s.Tasks) == 1 && strings.HasPrefix(s.Tasks[0].ID, "local-") && s.Status(s.Tasks[0].ID) == state.SyncPending {
			sawOptimistic = true
		}
	})
	rec := h.engine.AddTask(ctx, model.TaskDraft{
		Title:           "Remote",
		ImportanceLevel: model.ImportanceHigh,
		EstimatedTime:   20,
		Subtasks:        []model.Subtask{{Title: "child", EstimatedTime: 10, ImportanceLevel: model.ImportanceLow}},
	})
	unsubscribe()

	if !sawOptimistic {
		t.Fatal("subscribers should observe the optimistic entry before confirmation")
	}
	if !rec.OK() || rec.Status != state.SyncConfirmed || strings.HasPrefix(rec.ID, "local-") {
		t.Fatalf("expected canonical id, got %+v", rec)
	}
	snap := h.snapshot()
	task := taskByID(t, snap, rec.ID)
	if snap.Status(rec.ID) != state.SyncConfirmed || len(task.Subtasks) != 1 || strings.HasPrefix(task.Subtasks[0].ID, "local-") {
		t.Fatalf("unexpected reconciled task: %+v", task)
	}

	rows, err := h.repo.ListTasks(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != rec.ID || len(rows[0].Subtasks) != 1 || rows[0].Subtasks[0].ID != task.Subtasks[0].ID {
		t.Fatalf("backend rows disagree with memory: %+v", rows)
	}
	if len(h.local.Load().Tasks) != 0 {
		t.Fatal("authenticated writes must not touch guest storage")
	}
}

func TestAuthenticatedAddTaskFailureLeavesEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	h.backend.failOn("InsertTask", &remote.Error{Code: "08006", Message: "connection lost"})

	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "x", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})
	if rec.OK() || rec.Status != state.SyncFailed {
		t.Fatalf("expected failed receipt: %+v", rec)
	}
	snap := h.snapshot()
	if len(snap.Tasks) != 1 || snap.Status(rec.ID) != state.SyncFailed {
		t.Fatalf("entry should remain with failed status: %+v", snap)
	}
	if !strings.Contains(h.logs.String(), "connection lost") {
		t.Fatalf("failure should be logged: %s", h.logs.String())
	}
}

func TestAuthenticatedAddSubtaskRollsBackOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	parent := h.engine.AddTask(ctx, model.TaskDraft{Title: "p", ImportanceLevel: model.ImportanceMid, EstimatedTime: 5})

	ok := h.engine.AddSubtask(ctx, parent.ID, model.SubtaskDraft{
		Title: "kept", EstimatedTime: 25, ImportanceLevel: model.Some(model.ImportanceHigh), IsUrgent: model.Some(true),
	})
	if !ok.OK() || strings.HasPrefix(ok.ID, "local-") {
		t.Fatalf("expected canonical subtask id: %+v", ok)
	}
	task := taskByID(t, h.snapshot(), parent.ID)
	kept := task.Subtasks[task.SubtaskIndex(ok.ID)]
	if kept.EstimatedTime != 25 || kept.ImportanceLevel != model.ImportanceHigh || !kept.IsUrgent {
		t.Fatalf("caller-supplied fields must be preserved: %+v", kept)
	}

	h.backend.failOn("InsertSubtask", errors.New("insert refused"))
	failed := h.engine.AddSubtask(ctx, parent.ID, model.SubtaskDraft{Title: "dropped", EstimatedTime: 5})
	if failed.OK() {
		t.Fatalf("expected failure: %+v", failed)
	}
	snap := h.snapshot()
	task = taskByID(t, snap, parent.ID)
	if len(task.Subtasks) != 1 || task.SubtaskIndex(failed.ID) >= 0 {
		t.Fatalf("failed subtask should be rolled back: %+v", task.Subtasks)
	}
	if _, tracked := snap.Sync[failed.ID]; tracked {
		t.Fatal("rolled back subtask should not keep a status")
	}
}

func TestAuthenticatedUpdateFailureIsNotRolledBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "old", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})

	h.backend.failOn("UpdateTasks", errors.New("timeout"))
	up := h.engine.UpdateTask(ctx, rec.ID, model.TaskPatch{Title: model.Some("new")})
	if up.OK() || up.Status != state.SyncFailed {
		t.Fatalf("expected failed receipt: %+v", up)
	}
	snap := h.snapshot()
	if taskByID(t, snap, rec.ID).Title != "new" || snap.Status(rec.ID) != state.SyncFailed {
		t.Fatalf("local change stays, flagged failed: %+v", snap)
	}
}

func TestPartialUpdateSendsOnlyChangedColumns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "t", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})

	h.engine.UpdateTask(ctx, rec.ID, model.TaskPatch{IsUrgent: model.Some(true)})
	calls := h.backend.callsTo("UpdateTasks")
	if len(calls) != 1 || len(calls[0].Fields) != 1 || calls[0].Fields[remote.ColIsUrgent] != true {
		t.Fatalf("unexpected update calls: %+v", calls)
	}

	subtasksOnly := h.engine.UpdateTask(ctx, rec.ID, model.TaskPatch{Subtasks: model.Some([]model.Subtask{})})
	if subtasksOnly.Status != state.SyncLocal || len(h.backend.callsTo("UpdateTasks")) != 1 {
		t.Fatalf("subtasks-only patch must not reach the task row: %+v", subtasksOnly)
	}
}

func TestCascadeRemoteWritesTargetChangedRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	taskID, subs := seedContainer(t, h)

	rec := h.engine.ToggleTaskCompletion(ctx, taskID, ToggleOptions{Cascade: true})
	if !rec.OK() {
		t.Fatalf("toggle: %+v", rec)
	}
	subCalls := h.backend.callsTo("UpdateSubtasks")
	if len(subCalls) != 1 || !reflect.DeepEqual(subCalls[0].IDs, subs) {
		t.Fatalf("expected one batch subtask update for %v, got %+v", subs, subCalls)
	}
	taskCalls := h.backend.callsTo("UpdateTasks")
	if len(taskCalls) != 1 || !reflect.DeepEqual(taskCalls[0].IDs, []string{taskID}) {
		t.Fatalf("expected one task update, got %+v", taskCalls)
	}

	rows, _ := h.repo.ListTasks(ctx, "user-1")
	if !rows[0].IsCompleted || !rows[0].Subtasks[0].IsCompleted || !rows[0].Subtasks[1].IsCompleted {
		t.Fatalf("backend should reflect the cascade: %+v", rows[0])
	}

	if _, ok := rec.Undo.Apply(ctx); !ok {
		t.Fatal("undo should apply")
	}
	rows, _ = h.repo.ListTasks(ctx, "user-1")
	if rows[0].IsCompleted || rows[0].CompletedAt != nil || rows[0].Subtasks[0].IsCompleted {
		t.Fatalf("undo should persist remotely: %+v", rows[0])
	}
}

func TestAuthenticatedDeleteProjectClearsRemoteReferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	p := h.engine.AddProject(ctx, "Work", "#123456")
	task := h.engine.AddTask(ctx, model.TaskDraft{Title: "t", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5, ProjectID: model.Some(model.StringPtr(p.ID))})

	h.backend.failOn("DeleteProject", errors.New("backend down"))
	rec := h.engine.DeleteProject(ctx, p.ID)
	if rec.OK() {
		t.Fatalf("backend failure should be reported: %+v", rec)
	}
	snap := h.snapshot()
	if _, ok := snap.Project(p.ID); ok || taskByID(t, snap, task.ID).ProjectID != nil {
		t.Fatalf("local cascade proceeds regardless: %+v", snap)
	}
	rows, _ := h.repo.ListTasks(ctx, "user-1")
	if rows[0].ProjectID != nil {
		t.Fatalf("task row project_id should be cleared: %+v", rows[0])
	}
}

func TestUpdateProjectMergesReturnedRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	p := h.engine.AddProject(ctx, "Work", "#123456")
	if !p.OK() || strings.HasPrefix(p.ID, "local-") {
		t.Fatalf("expected canonical project: %+v", p)
	}
	rec := h.engine.UpdateProject(ctx, p.ID, model.ProjectPatch{Name: model.Some("Office")})
	if !rec.OK() || rec.Status != state.SyncConfirmed {
		t.Fatalf("update project: %+v", rec)
	}
	got, _ := h.snapshot().Project(p.ID)
	if got.Name != "Office" || got.Color != "#123456" {
		t.Fatalf("unexpected merged project: %+v", got)
	}
}

func TestReloadKeepsCollectionOnFailedRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	h.engine.AddProject(ctx, "Work", "")
	h.engine.AddTask(ctx, model.TaskDraft{Title: "t", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})

	h.backend.failOn("ListTasks", errors.New("read timeout"))
	if err := h.engine.Reload(ctx); err == nil {
		t.Fatal("reload should report the failed read")
	}
	snap := h.snapshot()
	if len(snap.Tasks) != 1 || len(snap.Projects) != 1 {
		t.Fatalf("collections must keep previous values: %+v", snap)
	}
}

func TestReloadSkipsMalformedRowsOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	h.engine.AddProject(ctx, "Work", "")
	keep := h.engine.AddTask(ctx, model.TaskDraft{
		Title:           "keep",
		ImportanceLevel: model.ImportanceLow,
		EstimatedTime:   10,
		Subtasks: []model.Subtask{
			{Title: "fine", EstimatedTime: 5, ImportanceLevel: model.ImportanceLow},
			{Title: "broken", EstimatedTime: 5, ImportanceLevel: model.ImportanceLow},
		},
	})
	bad := h.engine.AddTask(ctx, model.TaskDraft{Title: "bad", ImportanceLevel: model.ImportanceLow, EstimatedTime: 10})
	if !keep.OK() || !bad.OK() {
		t.Fatalf("setup adds: %+v %+v", keep, bad)
	}
	if up := h.engine.UpdateTask(ctx, bad.ID, model.TaskPatch{EstimatedTime: model.Some(-5)}); !up.OK() {
		t.Fatalf("update: %+v", up)
	}
	var brokenID string
	for _, st := range taskByID(t, h.snapshot(), keep.ID).Subtasks {
		if st.Title == "broken" {
			brokenID = st.ID
		}
	}
	if err := h.repo.UpdateSubtasks(ctx, "user-1", []string{brokenID}, remote.Fields{remote.ColIsCompleted: true}); err != nil {
		t.Fatalf("corrupt subtask: %v", err)
	}

	if err := h.engine.Reload(ctx); err != nil {
		t.Fatalf("malformed rows must not fail the reload: %v", err)
	}
	snap := h.snapshot()
	if len(snap.Projects) != 1 || len(snap.Tasks) != 1 {
		t.Fatalf("expected the valid project and task to survive: %+v", snap)
	}
	task := taskByID(t, snap, keep.ID)
	if len(task.Subtasks) != 1 || task.Subtasks[0].Title != "fine" {
		t.Fatalf("only the malformed subtask should be dropped: %+v", task.Subtasks)
	}
	logs := h.logs.String()
	if !strings.Contains(logs, "skipping malformed row") || !strings.Contains(logs, bad.ID) || !strings.Contains(logs, brokenID) {
		t.Fatalf("each skipped row should be logged: %s", logs)
	}
}

func TestTransitionToSameUserKeepsDataOnFailedRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	h.engine.AddProject(ctx, "Work", "")
	h.engine.AddTask(ctx, model.TaskDraft{Title: "t", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})

	h.backend.failOn("ListProjects", errors.New("read timeout"))
	h.backend.failOn("ListTasks", errors.New("read timeout"))
	err := h.engine.Transition(ctx, Transition{Session: &state.Session{UserID: "user-1", Email: "a@example.com"}})
	if err == nil {
		t.Fatal("transition should report the failed reads")
	}
	snap := h.snapshot()
	if len(snap.Tasks) != 1 || len(snap.Projects) != 1 {
		t.Fatalf("same-user transition must keep previous collections: %+v", snap)
	}
	if snap.Session == nil || snap.Session.Email != "a@example.com" {
		t.Fatalf("session should still be replaced: %+v", snap.Session)
	}

	err = h.engine.Transition(ctx, Transition{Session: &state.Session{UserID: "user-2"}})
	if err == nil {
		t.Fatal("transition should report the failed reads")
	}
	if snap := h.snapshot(); len(snap.Tasks) != 0 || len(snap.Projects) != 0 {
		t.Fatalf("a different user must not see the previous data: %+v", snap)
	}
}

func TestBenignErrorsAreNotLogged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "t", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})

	h.backend.failOn("UpdateTasks", &remote.Error{Name: "AbortError", Message: "The user aborted a request"})
	h.engine.UpdateTask(ctx, rec.ID, model.TaskPatch{Title: model.Some("x")})
	if strings.Contains(h.logs.String(), "aborted") {
		t.Fatalf("benign error must not be logged: %s", h.logs.String())
	}
}

func TestTransitionWaitsForInFlightOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.signIn(t, "user-1")

	release := h.backend.blockOn("InsertTask")
	added := make(chan Receipt)
	go func() {
		added <- h.engine.AddTask(ctx, model.TaskDraft{Title: "slow", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})
	}()
	waitFor(t, func() bool { return len(h.backend.callsTo("InsertTask")) == 1 })

	switched := make(chan error)
	go func() {
		switched <- h.engine.Transition(ctx, Transition{Session: &state.Session{UserID: "user-2"}})
	}()

	select {
	case <-switched:
		t.Fatal("transition must wait for the in-flight operation")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if rec := <-added; !rec.OK() {
		t.Fatalf("in-flight add should complete under the old session: %+v", rec)
	}
	if err := <-switched; err != nil {
		t.Fatalf("transition: %v", err)
	}

	snap := h.snapshot()
	if snap.Session == nil || snap.Session.UserID != "user-2" || len(snap.Tasks) != 0 {
		t.Fatalf("new session should see only its own data: %+v", snap)
	}
	rows, _ := h.repo.ListTasks(ctx, "user-1")
	if len(rows) != 1 {
		t.Fatalf("old-session write should land under the old owner: %+v", rows)
	}
}

func TestUndoRefusedAfterSessionChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rec := h.engine.AddTask(ctx, model.TaskDraft{Title: "x", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5})
	done := h.engine.ToggleTaskCompletion(ctx, rec.ID, ToggleOptions{})
	h.signIn(t, "user-1")

	r, ok := done.Undo.Apply(ctx)
	if !ok || !errors.Is(r.Err, ErrSessionChanged) {
		t.Fatalf("undo across sessions must be refused: %+v %v", r, ok)
	}
}

func TestTransitionSupersededSkipsReload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	err := h.engine.Transition(ctx, Transition{
		Session: &state.Session{UserID: "user-1"},
		Current: func() bool { return false },
	})
	if !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected superseded, got %v", err)
	}
	if len(h.backend.callsTo("ListTasks")) != 0 {
		t.Fatal("superseded transition must not fetch")
	}
}

func TestTransitionToGuestReloadsLocalRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.local.Save(guest.Snapshot{Tasks: []model.Task{{ID: "g1", Title: "guest", ImportanceLevel: model.ImportanceLow, EstimatedTime: 5}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.signIn(t, "user-1")
	if len(h.snapshot().Tasks) != 0 {
		t.Fatal("authenticated session must not show guest data")
	}
	if err := h.engine.Transition(ctx, Transition{}); err != nil {
		t.Fatalf("to guest: %v", err)
	}
	snap := h.snapshot()
	if !snap.IsGuest() || len(snap.Tasks) != 1 || snap.Tasks[0].ID != "g1" {
		t.Fatalf("guest mode should reload the local record: %+v", snap)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
