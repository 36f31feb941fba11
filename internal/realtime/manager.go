package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/novapush/novadash/internal/monitoring"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 10 * time.Second

// Listener receives fan-out from the shared connection. Callbacks run on the
// connection's pump goroutine and must not block.
type Listener struct {
	OnEvent func(name string)
	OnError func(err error)
}

type entry struct {
	topic    string
	listener Listener
}

// Manager hands out one lazily dialed connection to every subscriber and
// closes it when the last subscription is released.
type Manager struct {
	dialer      Dialer
	dialTimeout time.Duration
	logger      zerolog.Logger
	metrics     *monitoring.Metrics

	group singleflight.Group

	mu     sync.Mutex
	conn   Conn
	subs   map[uuid.UUID]entry
	idle   uint64 // bumped each time the last subscription is released
	closed bool

	closing sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.dialTimeout = d
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records dials, events and subscriber counts.
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a Manager that dials with d on first use.
func NewManager(d Dialer, opts ...Option) *Manager {
	if d == nil {
		d = NoopDialer{}
	}
	m := &Manager{
		dialer:      d,
		dialTimeout: DefaultDialTimeout,
		logger:      zerolog.Nop(),
		subs:        make(map[uuid.UUID]entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire returns the shared connection, dialing it if needed. Concurrent
// callers share a single dial attempt. The attempt is not tied to any one
// caller's cancellation; ctx only bounds how long this caller waits.
func (m *Manager) Acquire(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if c := m.conn; c != nil {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan("conn", func() (any, error) {
		return m.dial(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	if c := m.conn; c != nil {
		m.mu.Unlock()
		return c, nil
	}
	idle := m.idle
	m.mu.Unlock()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.dialTimeout)
	defer cancel()

	start := time.Now()
	conn, err := m.dialer.Dial(dctx)
	m.metrics.RecordDial(err)
	if err != nil {
		m.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("realtime dial failed")
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close() //nolint:errcheck // manager already shut down
		return nil, ErrClosed
	}
	if len(m.subs) == 0 && m.idle != idle {
		m.closing.Add(1)
		m.mu.Unlock()
		m.closeAsync(conn)
		m.logger.Debug().Msg("realtime dial finished after the last subscriber left")
		return nil, ErrNoSubscribers
	}
	m.conn = conn
	m.mu.Unlock()

	m.logger.Info().Dur("elapsed", time.Since(start)).Msg("realtime connected")
	go m.pump(conn)
	return conn, nil
}

// pump fans events out until the connection's event stream ends.
func (m *Manager) pump(conn Conn) {
	for ev := range conn.Events() {
		m.metrics.RecordEvent(ev.Name)
		if ev.Name == EventConnectError {
			err := ev.Err
			if err == nil {
				err = ErrConnectionLost
			}
			m.logger.Warn().Err(err).Msg("realtime connect_error")
			m.notifyError(m.listeners(""), err)
			continue
		}
		for _, l := range m.listeners(ev.Name) {
			if l.OnEvent != nil {
				l.OnEvent(ev.Name)
			}
		}
	}

	m.mu.Lock()
	owned := m.conn == conn
	if owned {
		m.conn = nil
	}
	m.mu.Unlock()

	// A connection we closed on purpose is not a loss.
	if owned {
		m.logger.Warn().Msg("realtime connection lost")
		m.notifyError(m.listeners(""), ErrConnectionLost)
	}
}

// listeners returns the listeners for topic, or all of them when topic is empty.
func (m *Manager) listeners(topic string) []Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Listener, 0, len(m.subs))
	for _, e := range m.subs {
		if topic == "" || e.topic == topic {
			out = append(out, e.listener)
		}
	}
	return out
}

func (m *Manager) notifyError(ls []Listener, err error) {
	for _, l := range ls {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
}

// Subscribe registers l for topic on the shared connection. If the
// connection cannot be established the registration is undone and the
// error returned, so the caller can fall back to polling.
func (m *Manager) Subscribe(ctx context.Context, topic string, l Listener) (*Subscription, error) {
	id := uuid.New()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[id] = entry{topic: topic, listener: l}
	n := len(m.subs)
	m.mu.Unlock()
	m.metrics.SetSubscribers(n)

	if _, err := m.Acquire(ctx); err != nil {
		m.release(id)
		return nil, fmt.Errorf("realtime.Subscribe: %w", err)
	}
	return &Subscription{ID: id, Topic: topic, m: m}, nil
}

func (m *Manager) release(id uuid.UUID) {
	m.mu.Lock()
	delete(m.subs, id)
	n := len(m.subs)
	var toClose Conn
	if n == 0 {
		m.idle++
		toClose = m.conn
		m.conn = nil
		if toClose != nil {
			m.closing.Add(1)
		}
	}
	m.mu.Unlock()
	m.metrics.SetSubscribers(n)

	if toClose != nil {
		m.closeAsync(toClose)
		m.logger.Debug().Msg("realtime connection closing, no subscribers left")
	}
}

// closeAsync closes conn off the caller's goroutine. Closing a socket
// writes a disconnect frame and can block for the write deadline. The caller
// must have added to m.closing while holding m.mu.
func (m *Manager) closeAsync(conn Conn) {
	go func() {
		defer m.closing.Done()
		if err := conn.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("close realtime connection")
		}
	}()
}

// Hold registers a claim that keeps the shared connection open while
// subscribers come and go, without dialing. It returns nil once the Manager
// is closed. Release it like any other subscription.
func (m *Manager) Hold() *Subscription {
	id := uuid.New()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.subs[id] = entry{}
	n := len(m.subs)
	m.mu.Unlock()
	m.metrics.SetSubscribers(n)
	return &Subscription{ID: id, m: m}
}

// Subscribers returns the number of active subscriptions, holds included.
func (m *Manager) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Connected reports whether a live connection is held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Close drops every subscription and closes the connection. It also waits
// for connections released earlier to finish closing.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	c := m.conn
	m.conn = nil
	m.subs = make(map[uuid.UUID]entry)
	m.mu.Unlock()
	m.metrics.SetSubscribers(0)

	var err error
	if c != nil {
		err = c.Close()
	}
	m.closing.Wait()
	return err
}

// Subscription is one listener's claim on the shared connection.
type Subscription struct {
	ID    uuid.UUID
	Topic string

	m    *Manager
	once sync.Once
}

// Release removes the listener. The connection closes only when no other
// subscription remains. Safe to call more than once.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() { s.m.release(s.ID) })
}
