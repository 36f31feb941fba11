package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/novapush/novadash/internal/browser"
	"github.com/novapush/novadash/internal/logstore"
	"github.com/novapush/novadash/internal/subscription"
	"github.com/novapush/novadash/pkg/domain"
)

// -- messages --

type logsStateMsg = stateMsg[logstore.Snapshot]

type copyResultMsg struct {
	id  string
	err error
}

type openResultMsg struct {
	err error
}

// filterOrder is the cycle order for the status filter. "" = all.
var filterOrder = append([]domain.Status{""}, domain.Statuses...)

// -- model --

type logsModel struct {
	hook      *subscription.Hook[logstore.Snapshot]
	bridge    *bridge[logstore.Snapshot]
	state     subscription.State[logstore.Snapshot]
	cursor    int
	filterIdx int
	query     string
	searching bool
	webURL    string
	statusMsg string
	width     int
	height    int
	now       func() time.Time

	// overridable in tests
	copy func(string) error
	open func(context.Context, string) error
}

func newLogsModel(webURL string) logsModel {
	return logsModel{
		webURL: webURL,
		now:    time.Now,
		copy:   clipboard.WriteAll,
		open:   browser.Open,
	}
}

// mount starts a fresh logs hook for this tab.
func (m logsModel) mount(feeds *subscription.Feeds, gen int) (logsModel, tea.Cmd) {
	if feeds == nil {
		return m, nil
	}
	b := newBridge[logstore.Snapshot](gen)
	h := feeds.Logs(b.onChange)
	h.Mount(context.Background())
	m.hook, m.bridge = h, b
	m.state = h.State()
	return m, b.wait()
}

func (m logsModel) unmount() logsModel {
	if m.hook != nil {
		m.hook.Unmount()
	}
	m.bridge.close()
	m.hook, m.bridge = nil, nil
	return m
}

func (m logsModel) filter() domain.Status {
	return filterOrder[m.filterIdx]
}

func (m logsModel) rows() []domain.NotificationEvent {
	return m.state.Data.Filter(logstore.LogFilter{Status: m.filter(), Query: m.query})
}

func (m logsModel) selected() (domain.NotificationEvent, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return domain.NotificationEvent{}, false
	}
	return rows[m.cursor], true
}

func (m logsModel) Update(msg tea.Msg) (logsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case logsStateMsg:
		if m.bridge == nil || msg.gen != m.bridge.gen {
			return m, nil
		}
		m.state = msg.state
		if n := len(m.rows()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		return m, m.bridge.wait()

	case copyResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("copy failed: %v", msg.err)
		} else {
			m.statusMsg = "copied " + msg.id
		}

	case openResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("open failed: %v", msg.err)
		}

	case tea.KeyMsg:
		m.statusMsg = ""
		return m.handleKey(msg)
	}
	return m, nil
}

func (m logsModel) handleKey(msg tea.KeyMsg) (logsModel, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg), nil
	}
	switch msg.String() {
	case "/":
		m.searching = true
	case "j", "down":
		if m.cursor < len(m.rows())-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "f":
		m.filterIdx = (m.filterIdx + 1) % len(filterOrder)
		m.cursor = 0
	case "r":
		if m.hook != nil {
			return m, refetchCmd(m.hook.Refetch)
		}
	case "c":
		if e, ok := m.selected(); ok {
			id, write := e.ID, m.copy
			return m, func() tea.Msg {
				return copyResultMsg{id: id, err: write(id)}
			}
		}
	case "o":
		if e, ok := m.selected(); ok && m.webURL != "" {
			target, open := browser.LogURL(m.webURL, e.ID), m.open
			return m, func() tea.Msg {
				return openResultMsg{err: open(context.Background(), target)}
			}
		}
	}
	return m, nil
}

// handleSearchKey edits the query. Enter keeps it, esc clears it.
func (m logsModel) handleSearchKey(msg tea.KeyMsg) logsModel {
	switch {
	case msg.String() == "enter":
		m.searching = false
		return m
	case msg.String() == "esc":
		m.searching = false
		m.query = ""
	case msg.Paste:
		m.query = insertText(m.query, string(msg.Runes))
	default:
		m.query = editRune(m.query, msg.String())
	}
	m.cursor = 0
	return m
}

func (m logsModel) View() string {
	var b strings.Builder
	now := m.now()
	st := m.state

	b.WriteString(" " + syncLine(st.Live, st.Polling, st.IsLoading, st.UpdatedAt, subscription.LogsPollInterval, now) + "\n")
	if st.Err != nil {
		b.WriteString(" " + errorStyle.Render("error: "+st.Err.Error()) + "\n")
	}

	if !st.HasData {
		if st.IsLoading {
			b.WriteString("\n  " + dimStyle.Render("loading logs...") + "\n")
		}
		return b.String()
	}

	c := st.Data.Counts()
	counts := fmt.Sprintf("%d total · %s · %s · %s · %s",
		c.Total,
		StatusStyle(domain.StatusPending).Render(fmt.Sprintf("%d pending", c.Pending)),
		StatusStyle(domain.StatusSent).Render(fmt.Sprintf("%d sent", c.Sent)),
		StatusStyle(domain.StatusDelivered).Render(fmt.Sprintf("%d delivered", c.Delivered)),
		StatusStyle(domain.StatusFailed).Render(fmt.Sprintf("%d failed", c.Failed)),
	)
	if st.Data.Rejected > 0 {
		counts += errorStyle.Render(fmt.Sprintf(" · %d malformed skipped", st.Data.Rejected))
	}
	b.WriteString(" " + normalStyle.Render(counts) + "\n")

	filter := "all"
	if f := m.filter(); f != "" {
		filter = string(f)
	}
	b.WriteString(" " + dimStyle.Render("filter: ") + accentStyle.Render(filter) + "  " + renderSearchInput(m.query, m.searching) + "\n\n")

	rows := m.rows()
	if len(rows) == 0 {
		b.WriteString("  " + dimStyle.Render("no notifications match") + "\n")
		return b.String()
	}

	// header + counts + filter + blank + detail(2) + status(1)
	visible := m.height - 8
	if visible < 3 {
		visible = 3
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(rows))

	recipientW := 18
	if m.width > 100 {
		recipientW = 28
	}
	for i := start; i < end; i++ {
		e := rows[i]
		prefix := "  "
		idStyle := normalStyle
		if i == m.cursor {
			prefix = accentStyle.Render("> ")
			idStyle = selectedStyle
		}
		recipient := e.RecipientName
		if recipient == "" {
			recipient = e.RecipientID
		}
		fmt.Fprintf(&b, "%s%s %s %s %s %s %s\n",
			prefix,
			idStyle.Render(padRight(truncStr(e.ID, 12), 12)),
			ChannelStyle(e.Channel).Render(padRight(e.Channel.Label(), 5)),
			StatusStyle(e.Status).Render(padRight(string(e.Status), 9)),
			normalStyle.Render(padRight(truncStr(recipient, recipientW), recipientW)),
			dimStyle.Render(padRight(truncStr(e.TemplateName, 16), 16)),
			metaStyle.Render(formatTime(e.SentAt, now)),
		)
	}

	if e, ok := m.selected(); ok {
		b.WriteString("\n")
		detail := fmt.Sprintf("%s · sent %s", e.ID, e.SentAt.Local().Format("2006-01-02 15:04:05"))
		if d, ok := e.DeliveryTime(); ok {
			detail += " · delivered in " + formatLatency(d)
		}
		b.WriteString(" " + dimStyle.Render(detail) + "\n")
		if e.ErrorMessage != "" {
			b.WriteString(" " + errorStyle.Render(e.ErrorMessage) + "\n")
		}
	}

	if m.statusMsg != "" {
		b.WriteString(" " + flashStyle.Render(m.statusMsg) + "\n")
	}
	return b.String()
}
