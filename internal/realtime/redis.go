package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDialer listens for change notifications on Redis Pub/Sub. The
// server side publishes to Prefix+topic, e.g. "novadash:log:update".
type RedisDialer struct {
	Client *redis.Client
	Prefix string
	Topics []string
	Logger zerolog.Logger
}

// NewRedisClient builds the client used by RedisDialer.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Dial pings the server and subscribes to every topic.
func (d *RedisDialer) Dial(ctx context.Context) (Conn, error) {
	if d.Client == nil {
		return nil, errors.New("redis dialer: no client")
	}
	if err := d.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	topics := d.Topics
	if len(topics) == 0 {
		topics = []string{TopicLogUpdate}
	}
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = d.Prefix + t
	}

	ps := d.Client.Subscribe(ctx, channels...)
	// The first reply confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close() //nolint:errcheck
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	rctx, cancel := context.WithCancel(context.Background())
	c := &redisConn{
		ps:     ps,
		prefix: d.Prefix,
		events: make(chan Event, 16),
		ctx:    rctx,
		cancel: cancel,
		logger: d.Logger,
	}
	go c.readLoop()
	return c, nil
}

type redisConn struct {
	ps        *redis.PubSub
	prefix    string
	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    zerolog.Logger
}

func (c *redisConn) Events() <-chan Event { return c.events }

func (c *redisConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ps.Close()
	})
	return err
}

func (c *redisConn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *redisConn) readLoop() {
	defer close(c.events)
	for {
		msg, err := c.ps.Receive(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("redis subscription lost")
				c.emit(Event{Name: EventConnectError, Err: fmt.Errorf("redis: %w", err)})
			}
			return
		}
		ev, ok := redisEvent(msg, c.prefix)
		if !ok {
			continue
		}
		if !c.emit(ev) {
			return
		}
	}
}

// redisEvent maps a Pub/Sub reply to an Event. Subscription confirmations
// and pongs produce no event.
func redisEvent(msg any, prefix string) (Event, bool) {
	m, ok := msg.(*redis.Message)
	if !ok {
		return Event{}, false
	}
	if !strings.HasPrefix(m.Channel, prefix) {
		return Event{}, false
	}
	return Event{Name: strings.TrimPrefix(m.Channel, prefix)}, true
}
