package subscription

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/novapush/novadash/internal/dashboard"
	"github.com/novapush/novadash/internal/logstore"
	"github.com/novapush/novadash/internal/monitoring"
	"github.com/novapush/novadash/internal/realtime"
	"github.com/novapush/novadash/pkg/client"
	"github.com/novapush/novadash/pkg/domain"
)

// Fallback polling cadences.
const (
	LogsPollInterval    = 5 * time.Second
	MetricsPollInterval = 10 * time.Second
)

// LogSource is the part of client.Client the feeds need.
type LogSource interface {
	GetLogs(ctx context.Context) (*client.LogBatch, error)
}

// Feeds builds hooks for the two views. All hooks share one Store and one
// Transport.
type Feeds struct {
	Source    LogSource
	Store     *logstore.Store
	Transport Transport
	Timeout   time.Duration
	// Location is used for weekday bucketing; nil means UTC.
	Location *time.Location
	Logger   zerolog.Logger
	Monitor  *monitoring.Metrics
}

// holder is implemented by transports that can keep their connection open
// while hooks are remounted.
type holder interface {
	Hold() *realtime.Subscription
}

// Hold pins the shared push connection until the returned func is called, so
// that unmounting one hook and mounting another does not redial. It never
// dials and is a no-op when the Transport cannot hold.
func (f *Feeds) Hold() (release func()) {
	h, ok := f.Transport.(holder)
	if !ok {
		return func() {}
	}
	return h.Hold().Release
}

// FetchLogs fetches the log and publishes it to the store.
func (f *Feeds) FetchLogs(ctx context.Context) (logstore.Snapshot, error) {
	batch, err := f.Source.GetLogs(ctx)
	if err != nil {
		return logstore.Snapshot{}, err
	}
	f.Monitor.AddRejected(len(batch.Rejected))
	return f.Store.Replace(batch.Events, len(batch.Rejected), time.Now()), nil
}

// FetchMetrics fetches the log and aggregates it.
func (f *Feeds) FetchMetrics(ctx context.Context) (domain.DashboardMetrics, error) {
	snap, err := f.FetchLogs(ctx)
	if err != nil {
		return domain.DashboardMetrics{}, err
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return dashboard.AggregateIn(snap.Events, loc), nil
}

// Logs returns an unmounted hook over the notification log.
func (f *Feeds) Logs(onChange func(State[logstore.Snapshot])) *Hook[logstore.Snapshot] {
	return New(Config[logstore.Snapshot]{
		Name:         "logs",
		Topic:        realtime.TopicLogUpdate,
		Fetch:        f.FetchLogs,
		PollInterval: LogsPollInterval,
		Timeout:      f.Timeout,
		Transport:    f.Transport,
		OnChange:     onChange,
		Logger:       f.Logger,
		Metrics:      f.Monitor,
	})
}

// Metrics returns an unmounted hook over the dashboard metrics.
func (f *Feeds) Metrics(onChange func(State[domain.DashboardMetrics])) *Hook[domain.DashboardMetrics] {
	return New(Config[domain.DashboardMetrics]{
		Name:         "metrics",
		Topic:        realtime.TopicLogUpdate,
		Fetch:        f.FetchMetrics,
		PollInterval: MetricsPollInterval,
		Timeout:      f.Timeout,
		Transport:    f.Transport,
		OnChange:     onChange,
		Logger:       f.Logger,
		Metrics:      f.Monitor,
	})
}
