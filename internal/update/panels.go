package update

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/sandeepkv93/optixflow/internal/analytics"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/views"
)

func (m *Model) syncBubbleData() {
	d := m.dashboard()
	rows := make([]table.Row, 0, len(d.Allocation))
	total := 0
	for _, a := range d.Allocation {
		total += a.Minutes
	}
	for _, a := range d.Allocation {
		share := 0
		if total > 0 {
			share = a.Minutes * 100 / total
		}
		rows = append(rows, table.Row{a.Name, strconv.Itoa(a.Minutes), fmt.Sprintf("%d%%", share)})
	}
	m.allocTable.SetRows(rows)
}

func (m Model) dashboard() analytics.Dashboard {
	return analytics.Build(m.Snapshot.Tasks, m.Snapshot.Projects, m.now())
}

func (m Model) status(id string) string {
	switch st := m.Snapshot.Status(id); st {
	case state.SyncPending, state.SyncFailed:
		return st.String()
	default:
		return ""
	}
}

func (m Model) hasPending() bool {
	for _, st := range m.Snapshot.Sync {
		if st == state.SyncPending {
			return true
		}
	}
	return false
}

func (m Model) renderMatrixView() string {
	cells := m.matrixCells()
	data := make([]views.MatrixCellData, 0, len(cells))
	index := 0
	for _, cell := range cells {
		cd := views.MatrixCellData{Title: quadrantName(cell.Importance, cell.Urgent), Minutes: cell.Minutes()}
		for _, leaf := range cell.Items {
			index++
			cd.Items = append(cd.Items, views.LeafRowData{
				Index:    index,
				Title:    leaf.Title,
				Parent:   leaf.ParentTitle,
				Project:  leaf.ProjectName,
				Minutes:  leaf.EstimatedTime,
				Selected: index-1 == m.Cursor,
				Status:   m.status(leaf.ID),
			})
		}
		data = append(data, cd)
	}
	return views.RenderMatrixPanel(m.filterLabel(), data)
}

func (m Model) renderProjectsView() string {
	projects := make([]views.ProjectRowData, 0, len(m.Snapshot.Projects))
	for _, p := range m.Snapshot.Projects {
		pd := views.ProjectRowData{Name: p.Name, Color: p.Color}
		pd.Active = m.Snapshot.ActiveProjectID != nil && *m.Snapshot.ActiveProjectID == p.ID
		for _, t := range m.Snapshot.Tasks {
			if t.InProject(p.ID) && !t.IsCompleted {
				pd.Open++
				pd.Minutes += t.EffectiveDuration()
			}
		}
		projects = append(projects, pd)
	}
	tasks := m.visibleTasks()
	rows := make([]views.TaskRowData, 0, len(tasks))
	for i, t := range tasks {
		done := 0
		for _, st := range t.Subtasks {
			if st.IsCompleted {
				done++
			}
		}
		rows = append(rows, views.TaskRowData{
			Index:        i + 1,
			Title:        t.Title,
			Done:         t.IsCompleted,
			Subtasks:     len(t.Subtasks),
			DoneSubtasks: done,
			Minutes:      t.EffectiveDuration(),
			Selected:     i == m.Cursor,
			Status:       m.status(t.ID),
		})
	}
	return views.RenderProjectsPanel(views.ProjectsPanelData{
		Filter:   m.filterLabel(),
		Projects: projects,
		Tasks:    rows,
	})
}

// renderTaskDetail shows the selected task of the projects view as markdown.
func (m Model) renderTaskDetail() string {
	r, ok := m.selectedRow()
	if !ok {
		return ""
	}
	t, ok := m.Snapshot.Task(r.TaskID)
	if !ok {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("## %s\n\n", t.Title))
	b.WriteString(fmt.Sprintf("**%s**, %d min\n\n", quadrantName(t.ImportanceLevel, t.IsUrgent), t.EffectiveDuration()))
	if t.ProjectID != nil {
		if p, ok := m.Snapshot.Project(*t.ProjectID); ok {
			b.WriteString(fmt.Sprintf("Project: %s\n\n", p.Name))
		}
	}
	for _, st := range t.Subtasks {
		mark := " "
		if st.IsCompleted {
			mark = "x"
		}
		b.WriteString(fmt.Sprintf("- [%s] %s (%d min)\n", mark, st.Title, st.EstimatedTime))
	}
	return views.RenderMarkdown(b.String())
}

func (m Model) renderDashboardView() string {
	d := m.dashboard()
	days := make([]views.DayData, 0, len(d.Days))
	for _, day := range d.Days {
		days = append(days, views.DayData{Label: day.Label, Minutes: day.Minutes})
	}
	suggested := analytics.Suggest(m.visibleTasks(), m.Snapshot.Projects, m.availableMinutes)
	suggestions := make([]views.SuggestionData, 0, len(suggested))
	for _, l := range suggested {
		suggestions = append(suggestions, views.SuggestionData{
			Title:    l.Title,
			Minutes:  l.EstimatedTime,
			Quadrant: quadrantName(l.Importance, l.IsUrgent),
		})
	}
	alloc := ""
	if len(d.Allocation) > 0 {
		alloc = m.allocTable.View()
	}
	return views.RenderDashboardPanel(views.DashboardPanelData{
		FocusHours:     strconv.FormatFloat(analytics.FocusHours(float64(d.TotalFocusMinutes)), 'f', 1, 64),
		Velocity:       strconv.FormatFloat(d.VelocityPerDay, 'f', 1, 64),
		CompletionRate: d.CompletionRate,
		ProgressView:   m.completionBar.ViewAs(float64(d.CompletionRate) / 100),
		Completed:      d.CompletedUnits,
		Total:          d.TotalUnits,
		Days:           days,
		AllocationView: alloc,
		Available:      m.availableMinutes,
		Suggestions:    suggestions,
	})
}

func (m Model) renderToastView() string {
	toast, ok := m.toasts.Latest()
	if !ok {
		return ""
	}
	remaining := toast.ExpiresAt.Sub(m.now()).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return views.RenderToast(views.ToastData{
		Title:     toast.Title,
		Remaining: remaining.String(),
		Undoable:  toast.Undo.Available(),
	})
}

func (m Model) renderCommandPalette() string {
	return views.RenderCommandPalette(m.Palette.Active, m.commandInput.View())
}
