package views

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// AppData is one frame of the terminal client.
type AppData struct {
	Header string
	// Identity is the account email, or empty in guest mode.
	Identity string
	Syncing  string
	Main     string
	Side     string
	Status   string
	IsError  bool
	Toast    string
	Footer   string
}

const (
	mainWidth = 64
	sideWidth = 48
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	guestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	toastStyle  = panelStyle.BorderForeground(lipgloss.Color("13"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func RenderApp(data AppData) string {
	who := guestStyle.Render("guest")
	if data.Identity != "" {
		who = userStyle.Render(data.Identity)
	}
	top := headerStyle.Render(data.Header) + " | " + who
	if data.Syncing != "" {
		top += " " + data.Syncing
	}

	panes := []string{panelStyle.Width(mainWidth).Render(data.Main)}
	if strings.TrimSpace(data.Side) != "" {
		panes = append(panes, panelStyle.Width(sideWidth).Render(data.Side))
	}
	lines := []string{top, lipgloss.JoinHorizontal(lipgloss.Top, panes...)}

	switch {
	case data.Status == "":
	case data.IsError:
		lines = append(lines, errorStyle.Render("error: "+data.Status))
	default:
		lines = append(lines, statusStyle.Render(data.Status))
	}
	if data.Toast != "" {
		lines = append(lines, toastStyle.Render(data.Toast))
	}
	if data.Footer != "" {
		lines = append(lines, footerStyle.Render(data.Footer))
	}
	return strings.Join(lines, "\n")
}

// RenderMarkdown renders md for the terminal, falling back to the source.
func RenderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
