// Package subscription keeps a piece of server data fresh for a view: it
// fetches once on mount, refetches on every push notification and falls back
// to interval polling when the push channel is unavailable.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/novapush/novadash/internal/monitoring"
	"github.com/novapush/novadash/internal/realtime"
)

// DefaultTimeout bounds one fetch.
const DefaultTimeout = 12 * time.Second

var (
	// ErrUnmounted is returned by Refetch once the hook is unmounted.
	ErrUnmounted = errors.New("subscription: hook unmounted")
	// ErrNotMounted is returned by Refetch before Mount.
	ErrNotMounted = errors.New("subscription: hook not mounted")
)

// FetchFunc loads the current value of a feed.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Transport is the part of realtime.Manager a hook needs.
type Transport interface {
	Subscribe(ctx context.Context, topic string, l realtime.Listener) (*realtime.Subscription, error)
}

// State is what a view renders. Data keeps its last good value when a later
// fetch fails.
type State[T any] struct {
	Data      T
	HasData   bool
	IsLoading bool
	Err       error
	// Live is set while the push subscription is established.
	Live bool
	// Polling is set once the interval fallback is armed.
	Polling   bool
	UpdatedAt time.Time
}

// Config describes one hook.
type Config[T any] struct {
	// Name labels logs and metrics, e.g. "logs".
	Name         string
	Topic        string
	Fetch        FetchFunc[T]
	PollInterval time.Duration
	Timeout      time.Duration
	// Transport may be nil, in which case the hook polls from the start.
	Transport Transport
	// OnChange is called after every state change, never after Unmount
	// returns. It must not block and must not call Unmount.
	OnChange func(State[T])
	Logger   zerolog.Logger
	Metrics  *monitoring.Metrics
	Now      func() time.Time
}

// Hook binds one view to one feed for the lifetime of a mount.
type Hook[T any] struct {
	cfg Config[T]

	mu        sync.Mutex
	state     State[T]
	inflight  int
	mounted   bool
	unmounted bool
	pollArmed bool
	ctx       context.Context
	cancel    context.CancelFunc
	sub       *realtime.Subscription

	// notifyMu serializes OnChange calls and lets Unmount wait out one in
	// progress.
	notifyMu sync.Mutex
}

// New creates an idle hook.
func New[T any](cfg Config[T]) *Hook[T] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = LogsPollInterval
	}
	if cfg.Topic == "" {
		cfg.Topic = realtime.TopicLogUpdate
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = cfg.Logger.With().Str("feed", cfg.Name).Logger()
	return &Hook[T]{cfg: cfg}
}

// State returns a copy of the current state.
func (h *Hook[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Mount starts the hook: one fetch right away plus a push subscription.
// Subsequent calls do nothing.
func (h *Hook[T]) Mount(ctx context.Context) {
	h.mu.Lock()
	if h.mounted || h.unmounted {
		h.mu.Unlock()
		return
	}
	h.mounted = true
	h.ctx, h.cancel = context.WithCancel(ctx)
	mctx := h.ctx
	h.begin()
	h.mu.Unlock()
	h.notify()

	go h.run(mctx) //nolint:errcheck // surfaced through State.Err
	if h.cfg.Transport == nil {
		h.armPolling(errors.New("no push transport"))
		return
	}
	go h.subscribe(mctx)
}

func (h *Hook[T]) subscribe(ctx context.Context) {
	sub, err := h.cfg.Transport.Subscribe(ctx, h.cfg.Topic, realtime.Listener{
		OnEvent: h.onEvent,
		OnError: h.armPolling,
	})

	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		sub.Release()
		return
	}
	if err != nil {
		h.mu.Unlock()
		h.armPolling(err)
		return
	}
	h.sub = sub
	h.state.Live = true
	h.mu.Unlock()
	h.cfg.Logger.Debug().Str("topic", h.cfg.Topic).Msg("push subscription active")
	h.notify()
}

// onEvent runs one fetch per notification. Bursts are not coalesced.
func (h *Hook[T]) onEvent(string) {
	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		return
	}
	ctx := h.ctx
	h.begin()
	h.mu.Unlock()
	h.notify()
	go h.run(ctx) //nolint:errcheck // surfaced through State.Err
}

// armPolling switches the hook to interval polling. Only the first call per
// mount has any effect.
func (h *Hook[T]) armPolling(reason error) {
	h.mu.Lock()
	if h.unmounted || h.pollArmed {
		h.mu.Unlock()
		return
	}
	h.pollArmed = true
	h.state.Polling = true
	h.state.Live = false
	ctx := h.ctx
	h.mu.Unlock()

	h.cfg.Metrics.RecordPollFallback(h.cfg.Name)
	h.cfg.Logger.Info().Err(reason).Dur("interval", h.cfg.PollInterval).Msg("falling back to polling")
	h.notify()
	go h.poll(ctx)
}

func (h *Hook[T]) poll(ctx context.Context) {
	t := time.NewTicker(h.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.fetch(ctx) //nolint:errcheck // surfaced through State.Err
		}
	}
}

// Refetch runs one fetch and returns its error once the state has settled.
func (h *Hook[T]) Refetch(ctx context.Context) error {
	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		return ErrUnmounted
	}
	if !h.mounted {
		h.mu.Unlock()
		return ErrNotMounted
	}
	mctx := h.ctx
	h.mu.Unlock()

	// Cancelled by either the caller or Unmount.
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(mctx, cancel)
	defer stop()
	return h.fetch(fctx)
}

func (h *Hook[T]) fetch(ctx context.Context) error {
	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		return ErrUnmounted
	}
	h.begin()
	h.mu.Unlock()
	h.notify()
	return h.run(ctx)
}

// begin marks a fetch in flight. Caller holds h.mu.
func (h *Hook[T]) begin() {
	h.inflight++
	h.state.IsLoading = true
	h.state.Err = nil
}

// run performs a fetch started with begin and applies its result.
func (h *Hook[T]) run(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	start := time.Now()
	data, err := h.cfg.Fetch(fctx)
	h.cfg.Metrics.RecordFetch(h.cfg.Name, time.Since(start), err)

	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		return ErrUnmounted
	}
	h.inflight--
	h.state.IsLoading = h.inflight > 0
	if err != nil {
		h.state.Err = err
	} else {
		h.state.Data = data
		h.state.HasData = true
		h.state.Err = nil
		h.state.UpdatedAt = h.cfg.Now()
	}
	h.mu.Unlock()

	if err != nil {
		h.cfg.Logger.Warn().Err(err).Msg("fetch failed")
	}
	h.notify()
	return err
}

// notify delivers the latest state, so a late caller never publishes an
// older state over a newer one.
func (h *Hook[T]) notify() {
	if h.cfg.OnChange == nil {
		return
	}
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		return
	}
	st := h.state
	h.mu.Unlock()
	h.cfg.OnChange(st)
}

// Unmount stops polling, releases the push subscription and cancels any
// fetch in flight. No state change or OnChange call happens after it
// returns. Safe to call more than once.
func (h *Hook[T]) Unmount() {
	h.mu.Lock()
	if h.unmounted {
		h.mu.Unlock()
		return
	}
	h.unmounted = true
	sub := h.sub
	h.sub = nil
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sub.Release()

	h.notifyMu.Lock()
	h.notifyMu.Unlock() //nolint:staticcheck // waits for an in-progress OnChange
	h.cfg.Logger.Debug().Msg("unmounted")
}
