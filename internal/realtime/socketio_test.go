package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeServer struct {
	t          *testing.T
	reject     string
	script     func(ws *websocket.Conn)
	gotAuth    chan string
	gotConnect chan string
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad endpoint "+r.URL.String(), http.StatusBadRequest)
		return
	}
	s.gotAuth <- r.Header.Get("Authorization")

	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer ws.Close() //nolint:errcheck

	open := `0{"sid":"abc","upgrades":[],"pingInterval":300,"pingTimeout":200,"maxPayload":1000000}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
		return
	}
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return
	}
	s.gotConnect <- string(msg)

	// A ping before the connect ack must be answered during the handshake.
	ws.WriteMessage(websocket.TextMessage, []byte("2")) //nolint:errcheck
	if _, pong, err := ws.ReadMessage(); err != nil || string(pong) != "3" {
		s.t.Errorf("handshake pong = %q, %v; want \"3\"", pong, err)
		return
	}

	if s.reject != "" {
		ws.WriteMessage(websocket.TextMessage, []byte(`44{"message":"`+s.reject+`"}`)) //nolint:errcheck
		return
	}
	ws.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sock1"}`)) //nolint:errcheck
	if s.script != nil {
		s.script(ws)
	}
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{
		t:          t,
		gotAuth:    make(chan string, 1),
		gotConnect: make(chan string, 1),
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func nextEvent(t *testing.T, c Conn) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://localhost:4000", "ws://localhost:4000/socket.io/?EIO=4&transport=websocket", false},
		{"https://api.example.com/api", "wss://api.example.com/socket.io/?EIO=4&transport=websocket", false},
		{"wss://push.example.com", "wss://push.example.com/socket.io/?EIO=4&transport=websocket", false},
		{"ftp://x", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := SocketURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SocketURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("SocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSocketIODialReceivesEvents(t *testing.T) {
	fs, srv := newFakeServer(t)
	pongs := make(chan string, 1)
	fs.script = func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`42["log:update"]`))       //nolint:errcheck
		ws.WriteMessage(websocket.TextMessage, []byte(`42/admin,["log:update"]`)) //nolint:errcheck
		ws.WriteMessage(websocket.TextMessage, []byte(`4212["other",{"a":1}]`))   //nolint:errcheck
		ws.WriteMessage(websocket.TextMessage, []byte("2"))                       //nolint:errcheck
		_, pong, _ := ws.ReadMessage()
		pongs <- string(pong)
		ws.WriteMessage(websocket.TextMessage, []byte("41")) //nolint:errcheck
		ws.ReadMessage()                                     //nolint:errcheck
	}

	d := &SocketIODialer{URL: srv.URL, Token: func() string { return "tok" }}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close() //nolint:errcheck

	if got := <-fs.gotAuth; got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}
	if got := <-fs.gotConnect; got != `40{"token":"tok"}` {
		t.Errorf("connect packet = %q, want auth payload", got)
	}

	if ev, _ := nextEvent(t, conn); ev.Name != TopicLogUpdate {
		t.Errorf("event[0] = %q, want %q", ev.Name, TopicLogUpdate)
	}
	if ev, _ := nextEvent(t, conn); ev.Name != "other" {
		t.Errorf("event[1] = %q, want %q (foreign namespace skipped)", ev.Name, "other")
	}
	select {
	case p := <-pongs:
		if p != "3" {
			t.Errorf("pong = %q, want \"3\"", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}
	if _, ok := nextEvent(t, conn); ok {
		t.Error("Events() still open after server disconnect")
	}
}

func TestSocketIODialRejected(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.reject = "invalid token"

	d := &SocketIODialer{URL: srv.URL}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := d.Dial(ctx)
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("error = %v, want server message", err)
	}
	if got := <-fs.gotAuth; got != "" {
		t.Errorf("Authorization = %q, want none without token", got)
	}
	if got := <-fs.gotConnect; got != "40" {
		t.Errorf("connect packet = %q, want bare 40", got)
	}
}

func TestSocketIOCloseEndsEvents(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.script = func(ws *websocket.Conn) {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}

	d := &SocketIODialer{URL: srv.URL}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	conn.Close() //nolint:errcheck
	if _, ok := nextEvent(t, conn); ok {
		t.Error("Events() still open after Close")
	}
}

func TestSocketIODialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	d := &SocketIODialer{URL: srv.URL}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := d.Dial(ctx); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestEventName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`["log:update"]`, "log:update", false},
		{`7["log:update",{"id":1}]`, "log:update", false},
		{`/admin,["log:update"]`, "", true},
		{`[]`, "", true},
		{`[42]`, "", true},
		{`not json`, "", true},
	}
	for _, tt := range tests {
		got, err := eventName([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("eventName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("eventName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
