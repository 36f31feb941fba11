package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/novapush/novadash/internal/subscription"
)

type view int

const (
	viewDashboard view = iota
	viewLogs
)

// clockTickMsg refreshes the "updated Ns ago" labels.
type clockTickMsg time.Time

func clockTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg(t)
	})
}

// Options configures the App.
type Options struct {
	// WebURL is the web dashboard origin used by "open in browser".
	WebURL string
	// BaseURL is shown in the header.
	BaseURL string
}

// App is the root Bubbletea model. Only the visible tab has a mounted hook.
type App struct {
	feeds     *subscription.Feeds
	opts      Options
	view      view
	dashboard dashboardModel
	logs      logsModel
	gen       int // mount generation, bumped on every tab switch
	release   func()
	width     int
	height    int
	frame     int
}

// NewApp creates a new TUI application. feeds may be nil in tests.
// While feeds is set, the App holds the push connection for its whole
// lifetime so tab switches reuse it.
func NewApp(feeds *subscription.Feeds, opts Options) App {
	a := App{
		feeds:     feeds,
		opts:      opts,
		dashboard: newDashboardModel(),
		logs:      newLogsModel(opts.WebURL),
		release:   func() {},
	}
	if feeds != nil {
		a.release = feeds.Hold()
	}
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(shimmerTickCmd(), clockTickCmd(), func() tea.Msg { return mountMsg{} })
}

// mountMsg mounts the initial tab from inside the Update loop.
type mountMsg struct{}

func (a App) mountCurrent() (App, tea.Cmd) {
	a.gen++
	var cmd tea.Cmd
	switch a.view {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.mount(a.feeds, a.gen)
	case viewLogs:
		a.logs, cmd = a.logs.mount(a.feeds, a.gen)
	}
	return a, cmd
}

func (a App) unmountView(v view) App {
	switch v {
	case viewDashboard:
		a.dashboard = a.dashboard.unmount()
	case viewLogs:
		a.logs = a.logs.unmount()
	}
	return a
}

func (a App) switchTo(v view) (App, tea.Cmd) {
	if a.view == v {
		return a, nil
	}
	// The App's hold keeps the push connection open while the old tab's
	// subscription is released.
	prev := a.view
	a.view = v
	a, cmd := a.mountCurrent()
	return a.unmountView(prev), cmd
}

// Close unmounts whatever tab is still mounted and lets go of the push
// connection. Call it on the final model after the program exits.
func (a App) Close() App {
	a.dashboard = a.dashboard.unmount()
	a.logs = a.logs.unmount()
	if a.release != nil {
		a.release()
	}
	return a
}

// isEditing reports whether the visible tab owns the keyboard.
func (a App) isEditing() bool {
	return a.view == viewLogs && a.logs.searching
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: header(2) + tabs(1) + help(1) = 4 lines
		bodyMsg := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 4}
		a.dashboard, _ = a.dashboard.Update(bodyMsg)
		a.logs, _ = a.logs.Update(bodyMsg)
		return a, nil

	case mountMsg:
		return a.mountCurrent()

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case clockTickMsg:
		return a, clockTickCmd()

	case metricsStateMsg:
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.Update(msg)
		return a, cmd

	case logsStateMsg:
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return a, cmd

	case refetchDoneMsg:
		// The refreshed state arrives through the hook.
		return a, nil

	case tea.KeyMsg:
		if a.isEditing() && msg.String() != "ctrl+c" {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			a = a.Close()
			return a, tea.Quit
		case "1":
			return a.switchTo(viewDashboard)
		case "2":
			return a.switchTo(viewLogs)
		case "tab":
			if a.view == viewDashboard {
				return a.switchTo(viewLogs)
			}
			return a.switchTo(viewDashboard)
		}
	}

	var cmd tea.Cmd
	switch a.view {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.Update(msg)
	case viewLogs:
		a.logs, cmd = a.logs.Update(msg)
	}
	return a, cmd
}

func (a App) View() string {
	logo := renderShimmerLogo(a.frame)
	logoPad := max((a.width-lipgloss.Width(logo))/2, 0)
	header := strings.Repeat(" ", logoPad) + logo + "\n"
	if a.opts.BaseURL != "" {
		host := metaStyle.Render(a.opts.BaseURL)
		header += strings.Repeat(" ", max((a.width-lipgloss.Width(host))/2, 0)) + host
	}

	tabs := []struct {
		key  string
		name string
		v    view
	}{
		{"1", "Dashboard", viewDashboard},
		{"2", "Logs", viewLogs},
	}
	colWidth := a.width / len(tabs)
	var tabBar strings.Builder
	for _, t := range tabs {
		var label string
		if t.v == a.view {
			label = accentStyle.Render(t.key) + " " + selectedStyle.Underline(true).Render(t.name)
		} else {
			label = metaStyle.Render(t.key) + " " + dimStyle.Render(t.name)
		}
		w := lipgloss.Width(label)
		left := max((colWidth-w)/2, 0)
		right := max(colWidth-w-left, 0)
		tabBar.WriteString(strings.Repeat(" ", left) + label + strings.Repeat(" ", right))
	}

	var body, help string
	switch a.view {
	case viewDashboard:
		body = a.dashboard.View()
		help = " " + helpEntry("1-2", "tabs") + "  " + helpEntry("r", "refresh") + "  " + helpEntry("q", "quit")
	case viewLogs:
		body = a.logs.View()
		if a.logs.searching {
			help = " " + helpEntry("enter", "apply") + "  " + helpEntry("esc", "clear") + "  " + helpEntry("ctrl+c", "quit")
			break
		}
		help = " " + helpEntry("1-2", "tabs") + "  " + helpEntry("j/k", "nav") + "  " + helpEntry("f", "filter") + "  " + helpEntry("/", "search") + "  " +
			helpEntry("c", "copy id") + "  " + helpEntry("o", "open") + "  " + helpEntry("r", "refresh") + "  " + helpEntry("q", "quit")
	}

	body = strings.TrimRight(truncateToHeight(body, a.height-4), "\n")
	return fmt.Sprintf("%s\n%s\n%s\n%s", header, tabBar.String(), body, help)
}
