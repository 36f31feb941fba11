package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/novapush/novadash/internal/subscription"
)

// formatTime renders a relative timestamp for log rows and activity.
func formatTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatAge renders how long ago the data was refreshed, in seconds up to a minute.
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	return formatTime(t, now)
}

// formatLatency renders an average delivery time the way the dashboard card shows it.
func formatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// truncStr truncates a string to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}

// padRight pads s with spaces to width runes.
func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// truncateToHeight keeps at most h lines of s.
func truncateToHeight(s string, h int) string {
	if h <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= h {
		return s
	}
	return strings.Join(lines[:h], "\n")
}

// stateMsg carries a hook state into the Update loop. gen identifies the
// mount it came from so a previous mount's updates are dropped.
type stateMsg[T any] struct {
	gen   int
	state subscription.State[T]
}

// bridge forwards hook state changes into bubbletea. Only the newest pending
// state is kept.
type bridge[T any] struct {
	gen     int
	updates chan subscription.State[T]
	once    sync.Once
}

func newBridge[T any](gen int) *bridge[T] {
	return &bridge[T]{gen: gen, updates: make(chan subscription.State[T], 1)}
}

// onChange is the hook's OnChange callback. It never blocks.
func (b *bridge[T]) onChange(st subscription.State[T]) {
	for {
		select {
		case b.updates <- st:
			return
		default:
		}
		select {
		case <-b.updates:
		default:
		}
	}
}

// wait returns a command that delivers the next state. It yields nil once
// the bridge is closed.
func (b *bridge[T]) wait() tea.Cmd {
	if b == nil {
		return nil
	}
	ch, gen := b.updates, b.gen
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg[T]{gen: gen, state: st}
	}
}

// close must only be called after the hook is unmounted.
func (b *bridge[T]) close() {
	if b != nil {
		b.once.Do(func() { close(b.updates) })
	}
}
