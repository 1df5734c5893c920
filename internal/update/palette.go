package update

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/optixflow/internal/commands"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/notify"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

func (m Model) handlePaletteKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc":
		m.Palette.Active = false
		m.Palette.Input = ""
		m.commandInput.SetValue("")
		m.commandInput.Blur()
		m.Status = StatusBar{Text: "command palette closed", IsError: false}
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		m = m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		_ = cmd
		m.Palette.Input = m.commandInput.Value()
	}
	return m
}

func (m Model) executePaletteCommand() Model {
	raw := strings.TrimSpace(m.Palette.Input)
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()

	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m
	}
	res, err := commands.Execute(cmd, m.handlers())
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	} else {
		m.Status = StatusBar{Text: res.Message, IsError: false}
	}
	m.Snapshot = m.core.Store().Snapshot()
	m.clampCursor()
	return m
}

func (m *Model) handlers() commands.Handlers {
	return commands.Handlers{
		Add:         m.addTask,
		Sub:         m.addSubtask,
		Done:        m.complete,
		Undo:        m.undoLatest,
		Remove:      m.remove,
		Estimate:    m.estimate,
		Move:        m.move,
		Project:     m.addProject,
		DropProject: m.dropProject,
		Filter:      m.filter,
	}
}

// receipt turns an operation outcome into a palette result.
func receipt(rec tasksync.Receipt, format string, a ...any) (commands.Result, error) {
	if rec.Err != nil {
		return commands.Result{}, rec.Err
	}
	msg := fmt.Sprintf(format, a...)
	if !rec.OK() {
		return commands.Result{}, fmt.Errorf("%s, but it did not sync", msg)
	}
	return commands.Result{Message: msg}, nil
}

func (m *Model) addTask(a commands.AddArgs) (commands.Result, error) {
	draft := model.TaskDraft{
		Title:           a.Title,
		ImportanceLevel: a.Importance,
		IsUrgent:        a.Urgent,
		EstimatedTime:   a.Estimate,
	}
	if a.Project != "" {
		p, ok := projectByName(m.Snapshot, a.Project)
		if !ok {
			return commands.Result{}, invalidArg("unknown project %q", a.Project)
		}
		draft.ProjectID = model.Some(model.StringPtr(p.ID))
	}
	return receipt(m.core.AddTask(m.ctx, draft), "added task: %s", a.Title)
}

func (m *Model) addSubtask(a commands.SubArgs) (commands.Result, error) {
	target, err := m.resolve(a.Target)
	if err != nil {
		return commands.Result{}, err
	}
	if target.isSubtask() {
		return commands.Result{}, invalidArg("subtasks cannot have subtasks")
	}
	draft := model.SubtaskDraft{
		Title:           a.Title,
		EstimatedTime:   a.Estimate,
		ImportanceLevel: a.Importance,
		IsUrgent:        a.Urgent,
	}
	return receipt(m.core.AddSubtask(m.ctx, target.TaskID, draft), "added subtask to %s: %s", target.Title, a.Title)
}

func (m *Model) complete(a commands.DoneArgs) (commands.Result, error) {
	target, err := m.resolve(a.Target)
	if err != nil {
		return commands.Result{}, err
	}
	return m.toggle(target, a.Cascade)
}

func (m *Model) toggle(target row, cascade bool) (commands.Result, error) {
	if target.isSubtask() {
		// Subtask toggles from the projects view do not raise a toast.
		opts := tasksync.SubtaskToggleOptions{WithToast: m.CurrentView != ViewProjects}
		rec := m.core.ToggleSubtaskCompletion(m.ctx, target.TaskID, target.SubtaskID, opts)
		return receipt(rec, "toggled %s", target.Title)
	}
	rec := m.core.ToggleTaskCompletion(m.ctx, target.TaskID, tasksync.ToggleOptions{Cascade: cascade})
	if len(rec.Cascaded) > 0 {
		return receipt(rec, "completed %s and %d subtask(s)", target.Title, len(rec.Cascaded))
	}
	return receipt(rec, "toggled %s", target.Title)
}

func (m *Model) undoLatest() (commands.Result, error) {
	toast, ok := m.toasts.Latest()
	if !ok || !toast.Undo.Available() {
		return commands.Result{}, invalidArg("nothing to undo")
	}
	rec, err := m.toasts.Undo(m.ctx, toast.ID)
	switch {
	case errors.Is(err, tasksync.ErrUndoUnavailable), errors.Is(err, notify.ErrToastNotFound):
		return commands.Result{}, invalidArg("undo window closed")
	case err != nil:
		return commands.Result{}, err
	}
	return receipt(rec, "undone: %s", toast.Title)
}

func (m *Model) remove(a commands.TargetArgs) (commands.Result, error) {
	target, err := m.resolve(a.Target)
	if err != nil {
		return commands.Result{}, err
	}
	if target.isSubtask() {
		return receipt(m.core.DeleteSubtask(m.ctx, target.TaskID, target.SubtaskID), "deleted subtask: %s", target.Title)
	}
	return receipt(m.core.DeleteTask(m.ctx, target.TaskID), "deleted task: %s", target.Title)
}

func (m *Model) estimate(a commands.EstimateArgs) (commands.Result, error) {
	target, err := m.resolve(a.Target)
	if err != nil {
		return commands.Result{}, err
	}
	if target.isSubtask() {
		patch := model.SubtaskPatch{EstimatedTime: model.Some(a.Minutes)}
		return receipt(m.core.UpdateSubtask(m.ctx, target.TaskID, target.SubtaskID, patch), "%s: %dm", target.Title, a.Minutes)
	}
	if t, ok := m.Snapshot.Task(target.TaskID); ok && t.IsContainer() {
		return commands.Result{}, invalidArg("%s takes its duration from its subtasks", t.Title)
	}
	patch := model.TaskPatch{EstimatedTime: model.Some(a.Minutes)}
	return receipt(m.core.UpdateTask(m.ctx, target.TaskID, patch), "%s: %dm", target.Title, a.Minutes)
}

func (m *Model) move(a commands.MoveArgs) (commands.Result, error) {
	target, err := m.resolve(a.Target)
	if err != nil {
		return commands.Result{}, err
	}
	quadrant := quadrantName(a.Importance, a.Urgent)
	if target.isSubtask() {
		patch := model.SubtaskPatch{ImportanceLevel: model.Some(a.Importance), IsUrgent: model.Some(a.Urgent)}
		return receipt(m.core.UpdateSubtask(m.ctx, target.TaskID, target.SubtaskID, patch), "moved %s to %s", target.Title, quadrant)
	}
	patch := model.TaskPatch{ImportanceLevel: model.Some(a.Importance), IsUrgent: model.Some(a.Urgent)}
	return receipt(m.core.UpdateTask(m.ctx, target.TaskID, patch), "moved %s to %s", target.Title, quadrant)
}

func (m *Model) addProject(a commands.ProjectArgs) (commands.Result, error) {
	if _, exists := projectByName(m.Snapshot, a.Name); exists {
		return commands.Result{}, invalidArg("project %q already exists", a.Name)
	}
	color := a.Color
	if color == "" {
		color = model.NextProjectColor(len(m.Snapshot.Projects))
	}
	return receipt(m.core.AddProject(m.ctx, a.Name, color), "added project: %s", a.Name)
}

func (m *Model) dropProject(a commands.TargetArgs) (commands.Result, error) {
	p, ok := projectByName(m.Snapshot, a.Target)
	if !ok {
		return commands.Result{}, invalidArg("unknown project %q", a.Target)
	}
	rec := m.core.DeleteProject(m.ctx, p.ID)
	return receipt(rec, "deleted project %s, %d task(s) unassigned", p.Name, len(rec.Cascaded))
}

func (m *Model) filter(a commands.FilterArgs) (commands.Result, error) {
	if a.Project == "" {
		if err := m.core.SetActiveProject(nil); err != nil {
			return commands.Result{}, err
		}
		return commands.Result{Message: "showing all projects"}, nil
	}
	p, ok := projectByName(m.Snapshot, a.Project)
	if !ok {
		return commands.Result{}, invalidArg("unknown project %q", a.Project)
	}
	if err := m.core.SetActiveProject(model.StringPtr(p.ID)); err != nil {
		return commands.Result{}, err
	}
	return commands.Result{Message: "showing " + p.Name}, nil
}
