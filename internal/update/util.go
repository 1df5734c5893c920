package update

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandeepkv93/optixflow/internal/analytics"
	"github.com/sandeepkv93/optixflow/internal/commands"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/state"
)

// row is one selectable line of the current view.
type row struct {
	TaskID    string
	SubtaskID string
	Title     string
}

func (r row) isSubtask() bool { return r.SubtaskID != "" }

func (m Model) visibleTasks() []model.Task {
	return analytics.FilterByProject(m.Snapshot.Tasks, m.Snapshot.ActiveProjectID)
}

func (m Model) matrixCells() []analytics.Cell {
	return analytics.Matrix(m.visibleTasks(), m.Snapshot.Projects)
}

func (m Model) rows() []row {
	switch m.CurrentView {
	case ViewMatrix:
		var out []row
		for _, cell := range m.matrixCells() {
			for _, leaf := range cell.Items {
				if leaf.IsSubtask() {
					out = append(out, row{TaskID: leaf.ParentID, SubtaskID: leaf.ID, Title: leaf.Title})
				} else {
					out = append(out, row{TaskID: leaf.ID, Title: leaf.Title})
				}
			}
		}
		return out
	case ViewProjects:
		tasks := m.visibleTasks()
		out := make([]row, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, row{TaskID: t.ID, Title: t.Title})
		}
		return out
	default:
		return nil
	}
}

func (m Model) selectedRow() (row, bool) {
	rows := m.rows()
	if m.Cursor < 0 || m.Cursor >= len(rows) {
		return row{}, false
	}
	return rows[m.Cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.rows())
	if m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

func invalidArg(format string, a ...any) error {
	return &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: fmt.Sprintf(format, a...)}
}

// resolve finds a task or subtask by row number in the current view, "."
// for the selection, id, or unique case-insensitive title prefix.
func (m Model) resolve(target string) (row, error) {
	target = strings.TrimSpace(target)
	if target == "." {
		if r, ok := m.selectedRow(); ok {
			return r, nil
		}
		return row{}, invalidArg("nothing selected")
	}
	if n, err := strconv.Atoi(target); err == nil {
		rows := m.rows()
		if n < 1 || n > len(rows) {
			return row{}, invalidArg("no item %d in %s", n, strings.ToLower(string(m.CurrentView)))
		}
		return rows[n-1], nil
	}

	var exact, prefix []row
	needle := strings.ToLower(target)
	for _, t := range m.Snapshot.Tasks {
		if t.ID == target {
			return row{TaskID: t.ID, Title: t.Title}, nil
		}
		collect(&exact, &prefix, needle, row{TaskID: t.ID, Title: t.Title})
		for _, st := range t.Subtasks {
			if st.ID == target {
				return row{TaskID: t.ID, SubtaskID: st.ID, Title: st.Title}, nil
			}
			collect(&exact, &prefix, needle, row{TaskID: t.ID, SubtaskID: st.ID, Title: st.Title})
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) == 0 && len(prefix) == 1:
		return prefix[0], nil
	case len(exact)+len(prefix) == 0:
		return row{}, invalidArg("no task or subtask matches %q", target)
	default:
		return row{}, invalidArg("%q is ambiguous", target)
	}
}

func collect(exact, prefix *[]row, needle string, r row) {
	title := strings.ToLower(r.Title)
	switch {
	case title == needle:
		*exact = append(*exact, r)
	case strings.HasPrefix(title, needle):
		*prefix = append(*prefix, r)
	}
}

func projectByName(snap state.Snapshot, name string) (model.Project, bool) {
	for _, p := range snap.Projects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return model.Project{}, false
}

func (m Model) filterLabel() string {
	if id := m.Snapshot.ActiveProjectID; id != nil {
		if p, ok := m.Snapshot.Project(*id); ok {
			return p.Name
		}
	}
	return "all projects"
}

func quadrantName(imp model.Importance, urgent bool) string {
	if urgent {
		return imp.String() + " · Urgent"
	}
	return imp.String() + " · Normal"
}
