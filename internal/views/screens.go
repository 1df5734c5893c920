package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type LeafRowData struct {
	Index    int
	Title    string
	Parent   string
	Project  string
	Minutes  int
	Selected bool
	Status   string
}

type MatrixCellData struct {
	Title   string
	Minutes int
	Items   []LeafRowData
}

type ProjectRowData struct {
	Name    string
	Color   string
	Open    int
	Minutes int
	Active  bool
}

type TaskRowData struct {
	Index        int
	Title        string
	Done         bool
	Subtasks     int
	DoneSubtasks int
	Minutes      int
	Selected     bool
	Status       string
}

type ProjectsPanelData struct {
	Filter   string
	Projects []ProjectRowData
	Tasks    []TaskRowData
}

type DayData struct {
	Label   string
	Minutes int
}

type SuggestionData struct {
	Title    string
	Minutes  int
	Quadrant string
}

type DashboardPanelData struct {
	FocusHours     string
	Velocity       string
	CompletionRate int
	ProgressView   string
	Completed      int
	Total          int
	Days           []DayData
	AllocationView string
	Available      int
	Suggestions    []SuggestionData
}

type HelpPanelData struct {
	CurrentView string
	Bindings    []string
	HelpView    string
}

type ToastData struct {
	Title     string
	Remaining string
	Undoable  bool
}

var (
	cellTitleStyle = lipgloss.NewStyle().Bold(true)
	urgentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

func RenderMatrixPanel(filter string, cells []MatrixCellData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("matrix: %s\n", filter))
	b.WriteString("actions: [j/k]move [x]complete [u]undo [y]copy [f]filter\n")
	for _, cell := range cells {
		b.WriteString(fmt.Sprintf("\n%s (%dm)\n", cellTitleStyle.Render(cell.Title), cell.Minutes))
		if len(cell.Items) == 0 {
			b.WriteString("  (empty)\n")
			continue
		}
		for _, item := range cell.Items {
			b.WriteString(renderLeaf(item))
		}
	}
	return strings.TrimSpace(b.String())
}

func renderLeaf(item LeafRowData) string {
	cursor := " "
	if item.Selected {
		cursor = ">"
	}
	line := fmt.Sprintf("%s %2d. %s", cursor, item.Index, item.Title)
	if item.Parent != "" {
		line += fmt.Sprintf(" (%s)", item.Parent)
	}
	line += fmt.Sprintf(" %dm", item.Minutes)
	if item.Project != "" {
		line += " #" + item.Project
	}
	return line + statusBadge(item.Status) + "\n"
}

func RenderProjectsPanel(data ProjectsPanelData) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("projects: %s\n", data.Filter))
	b.WriteString("actions: [j/k]move [x]complete [c]complete all [f]filter\n")
	if len(data.Projects) == 0 {
		b.WriteString("  (no projects)\n")
	}
	for _, p := range data.Projects {
		marker := " "
		if p.Active {
			marker = "*"
		}
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render("●")
		b.WriteString(fmt.Sprintf("%s %s %s  %d open, %dm\n", marker, swatch, p.Name, p.Open, p.Minutes))
	}
	b.WriteString("\ntasks:\n")
	if len(data.Tasks) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, t := range data.Tasks {
		cursor := " "
		if t.Selected {
			cursor = ">"
		}
		check := "[ ]"
		title := t.Title
		if t.Done {
			check = "[x]"
			title = doneStyle.Render(title)
		}
		line := fmt.Sprintf("%s %2d. %s %s %dm", cursor, t.Index, check, title, t.Minutes)
		if t.Subtasks > 0 {
			line += fmt.Sprintf(" %d/%d", t.DoneSubtasks, t.Subtasks)
		}
		b.WriteString(line + statusBadge(t.Status) + "\n")
	}
	return strings.TrimSpace(b.String())
}

func RenderDashboardPanel(data DashboardPanelData) string {
	var b strings.Builder
	b.WriteString("dashboard:\n")
	b.WriteString(fmt.Sprintf("focus: %sh | velocity: %s/day | completion: %d%% (%d/%d)\n",
		data.FocusHours, data.Velocity, data.CompletionRate, data.Completed, data.Total))
	if data.ProgressView != "" {
		b.WriteString(data.ProgressView + "\n")
	}
	b.WriteString("\nlast 7 days:\n")
	peak := 0
	for _, d := range data.Days {
		peak = max(peak, d.Minutes)
	}
	for _, d := range data.Days {
		width := 0
		if peak > 0 {
			width = d.Minutes * 20 / peak
		}
		b.WriteString(fmt.Sprintf("%s %s %dm\n", d.Label, barStyle.Render(strings.Repeat("█", width)), d.Minutes))
	}
	if data.AllocationView != "" {
		b.WriteString("\nallocation:\n")
		b.WriteString(data.AllocationView + "\n")
	}
	if len(data.Suggestions) > 0 {
		b.WriteString(fmt.Sprintf("\nnext up (%dm available):\n", data.Available))
		for _, sg := range data.Suggestions {
			b.WriteString(fmt.Sprintf("- %s [%s, %dm]\n", sg.Title, sg.Quadrant, sg.Minutes))
		}
	}
	return strings.TrimSpace(b.String())
}

func RenderToast(data ToastData) string {
	if strings.TrimSpace(data.Title) == "" {
		return ""
	}
	out := fmt.Sprintf("toast: %s", data.Title)
	if data.Undoable {
		out += fmt.Sprintf(" [u]undo (%s)", data.Remaining)
	}
	return out
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func RenderHelpPanel(data HelpPanelData) string {
	return fmt.Sprintf("help:\nglobal:\n%s view:\n%s\n%s",
		strings.ToLower(data.CurrentView),
		strings.Join(data.Bindings, "\n"),
		data.HelpView,
	)
}

func statusBadge(status string) string {
	switch status {
	case "pending":
		return " …"
	case "failed":
		return " " + urgentStyle.Render("!sync")
	default:
		return ""
	}
}
