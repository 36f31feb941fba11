package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/novapush/novadash/pkg/domain"
)

// Shimmer animation for the header logo.
type shimmerTickMsg time.Time

func shimmerTickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return shimmerTickMsg(t)
	})
}

// renderShimmerLogo renders "N O V A D A S H" as a wave of light running
// from deep navy (#1e2a4a) to sky blue (#60a5fa).
func renderShimmerLogo(frame int) string {
	const text = "NOVADASH"
	n := len(text)
	t := float64(frame)

	var b strings.Builder
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n-1)
		phase := t*0.1 - x*3.0 + math.Sin(t*0.023)*2.0

		br := math.Pow(math.Sin(phase)*0.5+0.5, 1.3)
		br = br*0.75 + math.Sin(t*0.035)*0.12 + 0.18
		br = math.Max(0.05, math.Min(1, br))

		r := clampByte(30 + br*(96-30))
		g := clampByte(42 + br*(165-42))
		bl := clampByte(74 + br*(250-74))

		s := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", r, g, bl)))
		b.WriteString(s.Render(string(text[i])))
		if i < n-1 {
			b.WriteString("  ")
		}
	}
	return b.String()
}

func clampByte(v float64) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return int(v)
}

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#c0c4d0"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60a5fa")).
			Bold(true)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8890a0"))

	helpLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#505868"))

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#8890a0")).
				Bold(true)

	inputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#505868")).
				Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f87171"))

	flashStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80"))

	liveDotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ade80"))

	pollDotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fbbf24"))

	deliveryBarStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#60a5fa"))

	failureBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f87171"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2a3350")).
			Padding(0, 1)

	cardValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4ec")).
			Bold(true)
)

var statusColors = map[domain.Status]string{
	domain.StatusPending:   "#fbbf24",
	domain.StatusSent:      "#60a5fa",
	domain.StatusDelivered: "#4ade80",
	domain.StatusFailed:    "#f87171",
}

// StatusStyle returns the badge style for a delivery status.
func StatusStyle(s domain.Status) lipgloss.Style {
	if c, ok := statusColors[s]; ok {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}
	return dimStyle
}

var channelColors = map[domain.Channel]string{
	domain.ChannelEmail: "#a78bfa",
	domain.ChannelSMS:   "#f472b6",
	domain.ChannelPush:  "#22d3ee",
}

// ChannelStyle returns the style for a delivery channel label.
func ChannelStyle(c domain.Channel) lipgloss.Style {
	if col, ok := channelColors[c]; ok {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(col))
	}
	return dimStyle
}

// helpEntry renders a single "key label" pair for help bars.
func helpEntry(key, label string) string {
	return helpKeyStyle.Render(key) + " " + helpLabelStyle.Render(label)
}

// bar renders a horizontal bar of value scaled against limit into width cells.
func bar(value, limit, width int) string {
	if limit <= 0 || value <= 0 || width <= 0 {
		return ""
	}
	n := value * width / limit
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

// statCard renders one boxed metric.
func statCard(label, value string, width int) string {
	inner := dimStyle.Render(label) + "\n" + cardValueStyle.Render(value)
	return cardStyle.Width(width).Render(inner)
}
