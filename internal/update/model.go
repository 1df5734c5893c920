// Package update is the terminal client: a bubbletea model that renders the
// shared store and drives the synchronization core.
package update

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/optixflow/internal/model"
	"github.com/sandeepkv93/optixflow/internal/notify"
	"github.com/sandeepkv93/optixflow/internal/state"
	"github.com/sandeepkv93/optixflow/internal/tasksync"
)

type View string

const (
	ViewMatrix    View = "Matrix"
	ViewProjects  View = "Projects"
	ViewDashboard View = "Dashboard"
)

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Matrix    string
	Projects  string
	Dashboard string
	Help      string
	Quit      string
}

// Core is the part of the synchronization core the client drives.
type Core interface {
	Store() *state.Store
	AddTask(ctx context.Context, draft model.TaskDraft) tasksync.Receipt
	AddSubtask(ctx context.Context, taskID string, draft model.SubtaskDraft) tasksync.Receipt
	UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) tasksync.Receipt
	UpdateSubtask(ctx context.Context, taskID, subtaskID string, patch model.SubtaskPatch) tasksync.Receipt
	DeleteTask(ctx context.Context, taskID string) tasksync.Receipt
	DeleteSubtask(ctx context.Context, taskID, subtaskID string) tasksync.Receipt
	ToggleTaskCompletion(ctx context.Context, taskID string, opts tasksync.ToggleOptions) tasksync.Receipt
	ToggleSubtaskCompletion(ctx context.Context, taskID, subtaskID string, opts tasksync.SubtaskToggleOptions) tasksync.Receipt
	AddProject(ctx context.Context, name, color string) tasksync.Receipt
	DeleteProject(ctx context.Context, projectID string) tasksync.Receipt
	SetActiveProject(id *string) error
}

// Toasts is the undoable notification surface.
type Toasts interface {
	Latest() (notify.Toast, bool)
	Undo(ctx context.Context, id string) (tasksync.Receipt, error)
	C() <-chan string
}

type Options struct {
	// Snapshots delivers store changes made outside the client.
	Snapshots        <-chan state.Snapshot
	AvailableMinutes int
	Now              func() time.Time
	// Copy writes to the system clipboard.
	Copy func(string) error
	// Identity labels the header; empty means guest.
	Identity string
}

type Model struct {
	CurrentView View
	Cursor      int
	Palette     CommandPaletteState
	HelpVisible bool
	Status      StatusBar
	Keys        GlobalKeyMap
	Quitting    bool
	LastError   error
	Snapshot    state.Snapshot

	core             Core
	toasts           Toasts
	ctx              context.Context
	snapshots        <-chan state.Snapshot
	availableMinutes int
	now              func() time.Time
	copy             func(string) error
	identity         string

	commandInput  textinput.Model
	allocTable    table.Model
	completionBar progress.Model
	syncSpinner   spinner.Model
	helpModel     help.Model
	spinnerActive bool
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type SwitchViewMsg struct {
	View View
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

// SnapshotMsg carries a store change.
type SnapshotMsg struct {
	Snapshot state.Snapshot
}

// ToastExpiredMsg reports that a toast's undo window closed.
type ToastExpiredMsg struct {
	ID string
}

func NewModel(ctx context.Context, core Core, toasts Toasts, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.AvailableMinutes <= 0 {
		opts.AvailableMinutes = 60
	}
	m := Model{
		CurrentView: ViewMatrix,
		Keys: GlobalKeyMap{
			Matrix:    "1",
			Projects:  "2",
			Dashboard: "3",
			Help:      "?",
			Quit:      "q",
		},
		Snapshot:         core.Store().Snapshot(),
		core:             core,
		toasts:           toasts,
		ctx:              ctx,
		snapshots:        opts.Snapshots,
		availableMinutes: opts.AvailableMinutes,
		now:              opts.Now,
		copy:             opts.Copy,
		identity:         opts.Identity,
	}
	m.initBubbleComponents()
	m.syncBubbleData()
	return m
}

func (m *Model) initBubbleComponents() {
	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 48

	cols := []table.Column{
		{Title: "Project", Width: 18},
		{Title: "Minutes", Width: 8},
		{Title: "Share", Width: 6},
	}
	m.allocTable = table.New(table.WithColumns(cols), table.WithRows([]table.Row{}), table.WithHeight(6))

	m.completionBar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))

	m.syncSpinner = spinner.New()
	m.syncSpinner.Spinner = spinner.Dot

	m.helpModel = help.New()
}
