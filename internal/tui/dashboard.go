package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/novapush/novadash/internal/subscription"
	"github.com/novapush/novadash/pkg/domain"
)

// -- messages --

type metricsStateMsg = stateMsg[domain.DashboardMetrics]

// refetchDoneMsg reports a manual refresh. Its state arrives through the hook.
type refetchDoneMsg struct {
	err error
}

func refetchCmd(refetch func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return refetchDoneMsg{err: refetch(context.Background())}
	}
}

// -- model --

type dashboardModel struct {
	hook   *subscription.Hook[domain.DashboardMetrics]
	bridge *bridge[domain.DashboardMetrics]
	state  subscription.State[domain.DashboardMetrics]
	width  int
	height int
	now    func() time.Time
}

func newDashboardModel() dashboardModel {
	return dashboardModel{now: time.Now}
}

// mount starts a fresh metrics hook for this tab.
func (m dashboardModel) mount(feeds *subscription.Feeds, gen int) (dashboardModel, tea.Cmd) {
	if feeds == nil {
		return m, nil
	}
	b := newBridge[domain.DashboardMetrics](gen)
	h := feeds.Metrics(b.onChange)
	h.Mount(context.Background())
	m.hook, m.bridge = h, b
	m.state = h.State()
	return m, b.wait()
}

func (m dashboardModel) unmount() dashboardModel {
	if m.hook != nil {
		m.hook.Unmount()
	}
	m.bridge.close()
	m.hook, m.bridge = nil, nil
	return m
}

func (m dashboardModel) Update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case metricsStateMsg:
		if m.bridge == nil || msg.gen != m.bridge.gen {
			return m, nil
		}
		m.state = msg.state
		return m, m.bridge.wait()

	case tea.KeyMsg:
		if msg.String() == "r" && m.hook != nil {
			return m, refetchCmd(m.hook.Refetch)
		}
	}
	return m, nil
}

func (m dashboardModel) View() string {
	var b strings.Builder
	now := m.now()
	st := m.state

	b.WriteString(" " + syncLine(st.Live, st.Polling, st.IsLoading, st.UpdatedAt, subscription.MetricsPollInterval, now) + "\n")
	if st.Err != nil {
		b.WriteString(" " + errorStyle.Render("error: "+st.Err.Error()) + "\n")
	}
	b.WriteString("\n")

	if !st.HasData {
		if st.IsLoading {
			b.WriteString("  " + dimStyle.Render("loading metrics...") + "\n")
		}
		return b.String()
	}
	d := st.Data
	if d.TotalSent == 0 {
		b.WriteString("  " + selectedStyle.Render("No Notifications Yet") + "\n")
		b.WriteString("  " + dimStyle.Render("send one with: novadash send") + "\n")
		return b.String()
	}

	b.WriteString(m.renderCards(d) + "\n\n")
	b.WriteString(renderWeekly(d.WeeklyData, m.barWidth()) + "\n")
	b.WriteString(renderDistribution(d.ChannelDistribution, m.barWidth()) + "\n")
	b.WriteString(renderRecent(d.RecentActivity, now))
	return b.String()
}

func (m dashboardModel) barWidth() int {
	w := m.width - 24
	if w > 40 {
		w = 40
	}
	if w < 5 {
		w = 5
	}
	return w
}

func (m dashboardModel) renderCards(d domain.DashboardMetrics) string {
	w := (m.width - 2) / 4
	if w < 16 {
		w = 16
	}
	cards := []string{
		statCard("Total Sent", fmt.Sprintf("%d", d.TotalSent), w-2),
		statCard("Success Rate", fmt.Sprintf("%d%%", d.SuccessRate), w-2),
		statCard("Active Users", fmt.Sprintf("%d", d.ActiveUsers), w-2),
		statCard("Avg Delivery", formatLatency(d.AvgDeliveryTime), w-2),
	}
	return " " + lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderWeekly(days [7]domain.DayBucket, width int) string {
	peak := 0
	for _, d := range days {
		if d.Deliveries > peak {
			peak = d.Deliveries
		}
		if d.Failures > peak {
			peak = d.Failures
		}
	}

	var b strings.Builder
	b.WriteString(" " + sectionHeaderStyle.Render("This week") + "  " +
		deliveryBarStyle.Render("█") + dimStyle.Render(" deliveries  ") +
		failureBarStyle.Render("█") + dimStyle.Render(" failures") + "\n")
	for _, d := range days {
		fmt.Fprintf(&b, "  %s %s %s\n",
			dimStyle.Render(d.Name),
			deliveryBarStyle.Render(bar(d.Deliveries, peak, width))+metaStyle.Render(fmt.Sprintf(" %d", d.Deliveries)),
			failureBarStyle.Render(bar(d.Failures, peak, width/2))+metaStyle.Render(fmt.Sprintf(" %d", d.Failures)),
		)
	}
	return b.String()
}

func renderDistribution(shares []domain.ChannelShare, width int) string {
	var b strings.Builder
	b.WriteString(" " + sectionHeaderStyle.Render("Channels") + "\n")
	for _, s := range shares {
		style := dimStyle
		for _, c := range domain.Channels {
			if c.Label() == s.Name {
				style = ChannelStyle(c)
			}
		}
		fmt.Fprintf(&b, "  %s %s %s\n",
			style.Render(padRight(s.Name, 6)),
			metaStyle.Render(fmt.Sprintf("%3d%%", s.Value)),
			style.Render(bar(s.Value, 100, width)),
		)
	}
	return b.String()
}

func renderRecent(items []domain.Activity, now time.Time) string {
	var b strings.Builder
	b.WriteString(" " + sectionHeaderStyle.Render("Recent activity") + "\n")
	for _, a := range items {
		result := StatusStyle(domain.StatusDelivered).Render("ok  ")
		if a.SuccessRate == 0 {
			result = StatusStyle(domain.StatusFailed).Render("fail")
		}
		fmt.Fprintf(&b, "  %s %s %s %s\n",
			ChannelStyle(a.Channel).Render(padRight(a.Channel.Label(), 6)),
			normalStyle.Render(padRight(truncStr(a.ID, 14), 14)),
			result,
			metaStyle.Render(formatTime(a.Timestamp, now)),
		)
	}
	return b.String()
}

// syncLine renders the push/poll status and data age shown atop each tab.
func syncLine(live, polling, loading bool, updated time.Time, interval time.Duration, now time.Time) string {
	var mode string
	switch {
	case polling:
		mode = pollDotStyle.Render("◌") + dimStyle.Render(fmt.Sprintf(" polling every %s", interval))
	case live:
		mode = liveDotStyle.Render("●") + dimStyle.Render(" live")
	default:
		mode = metaStyle.Render("○ connecting")
	}
	line := mode + metaStyle.Render(" · updated "+formatAge(updated, now))
	if loading {
		line += metaStyle.Render(" · refreshing")
	}
	return line
}
