package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Engine.IO v4 packet types, followed by Socket.IO packet types carried in
// Engine.IO message packets.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'

	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
	writeTimeout        = 5 * time.Second
)

// SocketIODialer connects to a Socket.IO server over the websocket transport.
type SocketIODialer struct {
	// URL is the server origin, e.g. http://localhost:4000.
	URL string
	// Token returns the bearer token sent on the upgrade and in the connect
	// packet. May be nil.
	Token  func() string
	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

type connectErrorPacket struct {
	Message string `json:"message"`
}

// SocketURL turns an http(s) origin into the Engine.IO websocket endpoint.
func SocketURL(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("realtime url %q: unsupported scheme %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("realtime url %q: missing host", origin)
	}
	u.Path = "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return u.String(), nil
}

// Dial performs the Engine.IO open and Socket.IO connect handshake.
func (d *SocketIODialer) Dial(ctx context.Context) (Conn, error) {
	endpoint, err := SocketURL(d.URL)
	if err != nil {
		return nil, err
	}
	token := ""
	if d.Token != nil {
		token = d.Token()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("socket.io upgrade: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("socket.io upgrade: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)  //nolint:errcheck
		ws.SetWriteDeadline(deadline) //nolint:errcheck
	}
	open, err := handshake(ws, token)
	if err != nil {
		ws.Close() //nolint:errcheck
		return nil, err
	}
	ws.SetWriteDeadline(time.Time{}) //nolint:errcheck

	c := &socketConn{
		ws:         ws,
		events:     make(chan Event, 16),
		done:       make(chan struct{}),
		pingWindow: pingWindow(open),
		logger:     d.Logger.With().Str("sid", open.SID).Logger(),
	}
	go c.readLoop()
	return c, nil
}

func pingWindow(p openPacket) time.Duration {
	interval := time.Duration(p.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(p.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return interval + timeout
}

func handshake(ws *websocket.Conn, token string) (openPacket, error) {
	var open openPacket

	_, data, err := ws.ReadMessage()
	if err != nil {
		return open, fmt.Errorf("socket.io open: %w", err)
	}
	if len(data) == 0 || data[0] != eioOpen {
		return open, fmt.Errorf("socket.io open: unexpected packet %q", data)
	}
	if err := json.Unmarshal(data[1:], &open); err != nil {
		return open, fmt.Errorf("socket.io open: %w", err)
	}

	connect := []byte{eioMessage, sioConnect}
	if token != "" {
		auth, _ := json.Marshal(map[string]string{"token": token})
		connect = append(connect, auth...)
	}
	if err := ws.WriteMessage(websocket.TextMessage, connect); err != nil {
		return open, fmt.Errorf("socket.io connect: %w", err)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return open, fmt.Errorf("socket.io connect: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		switch data[0] {
		case eioPing:
			if err := ws.WriteMessage(websocket.TextMessage, []byte{eioPong}); err != nil {
				return open, fmt.Errorf("socket.io pong: %w", err)
			}
			continue
		case eioClose:
			return open, errors.New("socket.io connect: server closed the session")
		case eioMessage:
		default:
			continue
		}
		if len(data) < 2 {
			continue
		}
		switch data[1] {
		case sioConnect:
			return open, nil
		case sioConnectError:
			return open, fmt.Errorf("socket.io connect rejected: %s", connectErrorMessage(data[2:]))
		}
	}
}

func connectErrorMessage(payload []byte) string {
	var p connectErrorPacket
	if err := json.Unmarshal(payload, &p); err == nil && p.Message != "" {
		return p.Message
	}
	if len(payload) == 0 {
		return "no reason given"
	}
	return string(payload)
}

type socketConn struct {
	ws         *websocket.Conn
	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	writeMu    sync.Mutex
	pingWindow time.Duration
	logger     zerolog.Logger
}

func (c *socketConn) Events() <-chan Event { return c.events }

func (c *socketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.write([]byte{eioMessage, sioDisconnect}) //nolint:errcheck
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *socketConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *socketConn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *socketConn) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *socketConn) readLoop() {
	defer close(c.events)
	for {
		c.ws.SetReadDeadline(time.Now().Add(c.pingWindow)) //nolint:errcheck
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closing() {
				c.logger.Debug().Err(err).Msg("socket.io read ended")
			}
			c.ws.Close() //nolint:errcheck
			return
		}
		if !c.handle(data) {
			c.ws.Close() //nolint:errcheck
			return
		}
	}
}

// handle processes one Engine.IO packet and reports whether to keep reading.
func (c *socketConn) handle(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	switch data[0] {
	case eioPing:
		if err := c.write([]byte{eioPong}); err != nil {
			c.logger.Debug().Err(err).Msg("socket.io pong failed")
			return false
		}
		return true
	case eioClose:
		return false
	case eioMessage:
	default:
		return true
	}
	if len(data) < 2 {
		return true
	}
	switch data[1] {
	case sioEvent:
		name, err := eventName(data[2:])
		if err != nil {
			c.logger.Debug().Err(err).Msg("socket.io: skip malformed event")
			return true
		}
		return c.emit(Event{Name: name})
	case sioConnectError:
		c.emit(Event{
			Name: EventConnectError,
			Err:  errors.New(connectErrorMessage(data[2:])),
		})
		return false
	case sioDisconnect:
		return false
	}
	return true
}

// eventName extracts the name from an event payload such as
// `["log:update"]` or `12["log:update",{}]` (with an ack id).
func eventName(payload []byte) (string, error) {
	s := string(payload)
	if strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("event for foreign namespace: %q", s)
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		if _, err := strconv.Atoi(s[:i]); err != nil {
			return "", fmt.Errorf("bad ack id %q", s[:i])
		}
		s = s[i:]
	}
	var args []json.RawMessage
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return "", fmt.Errorf("event payload: %w", err)
	}
	if len(args) == 0 {
		return "", errors.New("event payload: empty array")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", fmt.Errorf("event name: %w", err)
	}
	return name, nil
}
