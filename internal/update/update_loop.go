package update

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/optixflow/internal/commands"
	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/views"
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshotCmd(m.snapshots), waitForToastCmd(m.toasts.C()))
}

func waitForSnapshotCmd(ch <-chan state.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func waitForToastCmd(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		id, ok := <-ch
		if !ok {
			return nil
		}
		return ToastExpiredMsg{ID: id}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			next := m.handlePaletteKey(typed)
			cmd := next.spinnerCmd()
			return next, cmd
		}

		switch typed.String() {
		case "/", ":":
			m.Palette.Active = true
			m.Palette.Input = ""
			m.commandInput.Focus()
			m.commandInput.SetValue("")
			m.Status = StatusBar{Text: "command palette active", IsError: false}
			return m, nil
		case m.Keys.Matrix:
			return m.switchView(ViewMatrix), nil
		case m.Keys.Projects:
			return m.switchView(ViewProjects), nil
		case m.Keys.Dashboard:
			return m.switchView(ViewDashboard), nil
		case m.Keys.Help:
			m.HelpVisible = !m.HelpVisible
			if m.HelpVisible {
				m.Status = StatusBar{Text: "help shown", IsError: false}
			} else {
				m.Status = StatusBar{Text: "help hidden", IsError: false}
			}
			return m, nil
		case "j", "down":
			m.Cursor++
			m.clampCursor()
			return m, nil
		case "k", "up":
			m.Cursor--
			m.clampCursor()
			return m, nil
		case "x", " ":
			return m.toggleSelected(false)
		case "c":
			if m.CurrentView == ViewProjects {
				return m.toggleSelected(true)
			}
		case "u":
			m = m.report(m.undoLatest())
			cmd := m.spinnerCmd()
			return m, cmd
		case "y":
			return m.copySelected(), nil
		case "f":
			m = m.report(m.cycleFilter())
			return m, nil
		case "ctrl+c", m.Keys.Quit:
			m.Quitting = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if m.spinnerActive {
			if !m.hasPending() {
				m.spinnerActive = false
				return m, nil
			}
			var cmd tea.Cmd
			m.syncSpinner, cmd = m.syncSpinner.Update(typed)
			return m, cmd
		}
	case SnapshotMsg:
		if typed.Snapshot.Version >= m.Snapshot.Version {
			m.Snapshot = typed.Snapshot
			m.clampCursor()
		}
		cmd := m.spinnerCmd()
		return m, tea.Batch(waitForSnapshotCmd(m.snapshots), cmd)
	case ToastExpiredMsg:
		return m, waitForToastCmd(m.toasts.C())
	case SwitchViewMsg:
		if isKnownView(typed.View) {
			m = m.switchView(typed.View)
		}
		return m, nil
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	}

	return m, nil
}

func (m Model) switchView(v View) Model {
	if m.CurrentView != v {
		m.CurrentView = v
		m.Cursor = 0
	}
	return m
}

// spinnerCmd starts the sync spinner when writes are in flight.
func (m *Model) spinnerCmd() tea.Cmd {
	if m.spinnerActive || !m.hasPending() {
		return nil
	}
	m.spinnerActive = true
	return m.syncSpinner.Tick
}

func (m Model) report(res commands.Result, err error) Model {
	if err != nil {
		m.LastError = err
		m.Status = StatusBar{Text: err.Error(), IsError: true}
	} else {
		m.Status = StatusBar{Text: res.Message, IsError: false}
	}
	m.Snapshot = m.core.Store().Snapshot()
	m.clampCursor()
	return m
}

func (m Model) toggleSelected(cascade bool) (tea.Model, tea.Cmd) {
	r, ok := m.selectedRow()
	if !ok {
		return m, nil
	}
	m = m.report(m.toggle(r, cascade))
	cmd := m.spinnerCmd()
	return m, cmd
}

func (m Model) copySelected() Model {
	r, ok := m.selectedRow()
	if !ok {
		return m
	}
	if err := m.copy(r.Title); err != nil {
		m.Status = StatusBar{Text: fmt.Sprintf("copy failed: %v", err), IsError: true}
		return m
	}
	m.Status = StatusBar{Text: "copied: " + r.Title, IsError: false}
	return m
}

// cycleFilter steps through all projects, then back to no filter.
func (m Model) cycleFilter() (commands.Result, error) {
	projects := m.Snapshot.Projects
	if len(projects) == 0 {
		return commands.Result{Message: "no projects to filter by"}, nil
	}
	next := 0
	if id := m.Snapshot.ActiveProjectID; id != nil {
		next = m.Snapshot.ProjectIndex(*id) + 1
	}
	if next >= len(projects) {
		return m.filter(commands.FilterArgs{})
	}
	if err := m.core.SetActiveProject(model.StringPtr(projects[next].ID)); err != nil {
		return commands.Result{}, err
	}
	return commands.Result{Message: "showing " + projects[next].Name}, nil
}

func (m Model) View() string {
	m.syncBubbleData()
	main, side := "", ""
	switch m.CurrentView {
	case ViewMatrix:
		main = m.renderMatrixView()
	case ViewProjects:
		main = m.renderProjectsView()
		side = m.renderTaskDetail()
	case ViewDashboard:
		main = m.renderDashboardView()
	}
	side = strings.TrimSpace(strings.Join([]string{side, m.renderCommandPalette(), m.renderHelpIfVisible()}, "\n"))

	syncing := ""
	if m.spinnerActive {
		syncing = m.syncSpinner.View() + " syncing"
	}
	identity := m.identity
	if m.Snapshot.Session != nil {
		identity = m.Snapshot.Session.Email
	}
	return views.RenderApp(views.AppData{
		Header:   fmt.Sprintf("optixflow | %s | %s", m.CurrentView, m.filterLabel()),
		Identity: identity,
		Syncing:  syncing,
		Main:     main,
		Side:     side,
		Status:   m.Status.Text,
		IsError:  m.Status.IsError,
		Toast:    m.renderToastView(),
		Footer:   fmt.Sprintf("keys: %s matrix | %s projects | %s dashboard | / cmd | u undo | %s help | %s quit", m.Keys.Matrix, m.Keys.Projects, m.Keys.Dashboard, m.Keys.Help, m.Keys.Quit),
	})
}

func isKnownView(v View) bool {
	switch v {
	case ViewMatrix, ViewProjects, ViewDashboard:
		return true
	default:
		return false
	}
}
