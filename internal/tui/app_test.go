package tui

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/novapush/novadash/internal/logstore"
	"github.com/novapush/novadash/internal/realtime"
	"github.com/novapush/novadash/internal/subscription"
	"github.com/novapush/novadash/pkg/client"
)

type fakeSource struct {
	calls atomic.Int32
}

func (s *fakeSource) GetLogs(context.Context) (*client.LogBatch, error) {
	s.calls.Add(1)
	return &client.LogBatch{Events: sampleSnapshot().Events}, nil
}

type testConn struct {
	events chan realtime.Event
	once   sync.Once
	closed atomic.Bool
}

func (c *testConn) Events() <-chan realtime.Event { return c.events }

func (c *testConn) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.events)
	})
	return nil
}

type countingDialer struct {
	mu    sync.Mutex
	conns []*testConn
}

func (d *countingDialer) Dial(context.Context) (realtime.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &testConn{events: make(chan realtime.Event, 4)}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *countingDialer) dialed() []*testConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*testConn(nil), d.conns...)
}

func newTestApp(feeds *subscription.Feeds) App {
	a := NewApp(feeds, Options{WebURL: "https://dash.example.com", BaseURL: "https://api.example.com"})
	model, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 34})
	return model.(App)
}

func newTestFeeds() (*subscription.Feeds, *fakeSource) {
	src := &fakeSource{}
	return &subscription.Feeds{
		Source:  src,
		Store:   logstore.New(),
		Timeout: time.Second,
		Logger:  zerolog.Nop(),
	}, src
}

// drive runs cmd and feeds its messages back into the app until done.
func drive(t *testing.T, a App, cmd tea.Cmd, done func(App) bool) App {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !done(a) {
		if cmd == nil {
			t.Fatal("no pending command before condition was met")
		}
		msgs := make(chan tea.Msg, 1)
		go func(c tea.Cmd) { msgs <- c() }(cmd)
		select {
		case msg := <-msgs:
			var model tea.Model
			model, cmd = a.Update(msg)
			a = model.(App)
		case <-deadline:
			t.Fatal("timed out waiting for state")
		}
	}
	return a
}

func TestAppTabSwitching(t *testing.T) {
	tests := []struct {
		keys     []tea.KeyMsg
		wantView view
	}{
		{[]tea.KeyMsg{key("2")}, viewLogs},
		{[]tea.KeyMsg{key("2"), key("1")}, viewDashboard},
		{[]tea.KeyMsg{{Type: tea.KeyTab}}, viewLogs},
		{[]tea.KeyMsg{{Type: tea.KeyTab}, {Type: tea.KeyTab}}, viewDashboard},
	}
	for _, tc := range tests {
		a := newTestApp(nil)
		for _, k := range tc.keys {
			model, _ := a.Update(k)
			a = model.(App)
		}
		if a.view != tc.wantView {
			t.Errorf("after %v: view = %d, want %d", tc.keys, a.view, tc.wantView)
		}
	}
}

func TestAppSwitchBumpsGeneration(t *testing.T) {
	a := newTestApp(nil)
	model, _ := a.Update(key("2"))
	a = model.(App)
	gen := a.gen

	model, _ = a.Update(key("2"))
	if model.(App).gen != gen {
		t.Error("selecting the current tab should not remount")
	}
	model, _ = a.Update(key("1"))
	if model.(App).gen != gen+1 {
		t.Error("switching tabs should start a new mount generation")
	}
}

func TestAppQuit(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}} {
		a := newTestApp(nil)
		_, cmd := a.Update(k)
		if cmd == nil {
			t.Fatalf("%s: expected quit command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: command did not quit", k)
		}
	}
}

func TestAppMountsVisibleTabOnly(t *testing.T) {
	feeds, src := newTestFeeds()
	a := newTestApp(feeds)
	t.Cleanup(func() { a.Close() })

	model, cmd := a.Update(mountMsg{})
	a = model.(App)
	if a.dashboard.hook == nil || a.logs.hook != nil {
		t.Fatal("only the dashboard hook should be mounted")
	}
	a = drive(t, a, cmd, func(a App) bool { return a.dashboard.state.HasData })
	if got := a.dashboard.state.Data.TotalSent; got != 3 {
		t.Errorf("TotalSent = %d, want 3", got)
	}
	if !a.dashboard.state.Polling {
		t.Error("without a transport the hook should poll")
	}

	model, cmd = a.Update(key("2"))
	a = model.(App)
	if a.dashboard.hook != nil || a.logs.hook == nil {
		t.Fatal("switching should unmount the dashboard and mount logs")
	}
	a = drive(t, a, cmd, func(a App) bool { return a.logs.state.HasData })
	if n := len(a.logs.rows()); n != 3 {
		t.Errorf("log rows = %d, want 3", n)
	}
	if src.calls.Load() < 2 {
		t.Errorf("GetLogs calls = %d, want one per mount", src.calls.Load())
	}

	// A late state from the dashboard's mount is dropped.
	stale := metricsStateMsg{gen: a.gen - 1}
	stale.state.HasData = true
	stale.state.Data.TotalSent = 99
	model, _ = a.Update(stale)
	if model.(App).dashboard.state.Data.TotalSent == 99 {
		t.Error("state from a previous mount was applied")
	}

	a = a.Close()
	if a.logs.hook != nil || a.dashboard.hook != nil {
		t.Error("Close should unmount every tab")
	}
}

func TestAppView(t *testing.T) {
	a := newTestApp(nil)
	v := a.View()
	for _, want := range []string{"Dashboard", "Logs", "api.example.com", "refresh", "quit"} {
		if !strings.Contains(v, want) {
			t.Errorf("dashboard view missing %q", want)
		}
	}

	model, _ := a.Update(key("2"))
	v = model.(App).View()
	for _, want := range []string{"filter", "copy id", "open"} {
		if !strings.Contains(v, want) {
			t.Errorf("logs view missing %q", want)
		}
	}
	if lines := strings.Count(v, "\n") + 1; lines > 34 {
		t.Errorf("view is %d lines, taller than the window", lines)
	}
}

func TestAppSearchCapturesKeys(t *testing.T) {
	a := newTestApp(nil)
	model, _ := a.Update(key("2"))
	model, _ = model.(App).Update(key("/"))
	a = model.(App)

	for _, k := range []string{"q", "1"} {
		model, cmd := a.Update(key(k))
		a = model.(App)
		if cmd != nil {
			t.Errorf("key %q while searching produced a command", k)
		}
	}
	if a.view != viewLogs || a.logs.query != "q1" {
		t.Errorf("view/query = %d/%q, want logs/q1", a.view, a.logs.query)
	}
	if !strings.Contains(a.View(), "apply") {
		t.Error("help line should show search keys")
	}

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("ctrl+c should still quit while searching")
	}
}

func TestAppTabSwitchKeepsConnection(t *testing.T) {
	feeds, _ := newTestFeeds()
	d := &countingDialer{}
	mgr := realtime.NewManager(d)
	t.Cleanup(func() { _ = mgr.Close() })
	feeds.Transport = mgr

	a := newTestApp(feeds)
	model, cmd := a.Update(mountMsg{})
	a = drive(t, model.(App), cmd, func(a App) bool { return a.dashboard.state.Live })
	if n := len(d.dialed()); n != 1 {
		t.Fatalf("dials after first mount = %d, want 1", n)
	}
	first := d.dialed()[0]

	model, cmd = a.Update(key("2"))
	a = drive(t, model.(App), cmd, func(a App) bool { return a.logs.state.Live })
	if n := len(d.dialed()); n != 1 {
		t.Errorf("dials after tab switch = %d, want 1", n)
	}
	if first.closed.Load() {
		t.Error("tab switch closed the shared connection")
	}
	if got := mgr.Subscribers(); got != 2 {
		t.Errorf("Subscribers() = %d, want the app hold plus the logs hook", got)
	}

	a.Close()
	deadline := time.Now().Add(2 * time.Second)
	for !first.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("connection still open after App.Close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
