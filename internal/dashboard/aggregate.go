// Package dashboard derives summary metrics from a notification log snapshot.
package dashboard

import (
	"time"

	"github.com/novapush/novadash/pkg/domain"
)

// RecentLimit is the number of events in the recent-activity feed.
const RecentLimit = 5

// Aggregate computes DashboardMetrics from events, bucketing weekdays in UTC.
func Aggregate(events []domain.NotificationEvent) domain.DashboardMetrics {
	return AggregateIn(events, time.UTC)
}

// AggregateIn computes DashboardMetrics from events, bucketing weekdays in loc.
// It reads nothing but its arguments; events are treated as oldest first.
func AggregateIn(events []domain.NotificationEvent, loc *time.Location) domain.DashboardMetrics {
	if loc == nil {
		loc = time.UTC
	}

	m := domain.DashboardMetrics{
		TotalSent:           len(events),
		ChannelDistribution: []domain.ChannelShare{},
		RecentActivity:      []domain.Activity{},
	}
	for i, name := range domain.Weekdays {
		m.WeeklyData[i].Name = name
	}

	var (
		successful    int
		deliveredN    int
		deliverySum   time.Duration
		recipients    = make(map[string]struct{})
		channelCounts = make(map[domain.Channel]int, len(domain.Channels))
	)

	for _, e := range events {
		recipients[e.RecipientID] = struct{}{}
		channelCounts[e.Channel]++

		if d, ok := e.DeliveryTime(); ok {
			deliverySum += d
			deliveredN++
		}

		bucket := &m.WeeklyData[mondayIndex(e.SentAt.In(loc).Weekday())]
		switch {
		case e.Status.Successful():
			successful++
			bucket.Deliveries++
		case e.Status == domain.StatusFailed:
			bucket.Failures++
		}
	}

	m.SuccessRate = percent(successful, len(events))
	m.ActiveUsers = len(recipients)
	if deliveredN > 0 {
		m.AvgDeliveryTime = (deliverySum / time.Duration(deliveredN)).Round(time.Millisecond)
	}

	for _, ch := range domain.Channels {
		if v := percent(channelCounts[ch], len(events)); v > 0 {
			m.ChannelDistribution = append(m.ChannelDistribution, domain.ChannelShare{Name: ch.Label(), Value: v})
		}
	}

	start := len(events) - RecentLimit
	if start < 0 {
		start = 0
	}
	for i := len(events) - 1; i >= start; i-- {
		e := events[i]
		rate := 0
		if e.Status.Successful() {
			rate = 100
		}
		m.RecentActivity = append(m.RecentActivity, domain.Activity{
			ID:          e.ID,
			Channel:     e.Channel,
			Recipients:  1,
			SuccessRate: rate,
			Timestamp:   e.SentAt,
		})
	}

	return m
}

// mondayIndex maps Go's Sunday-first weekday to a Monday-first index.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// percent is round(100*n/total) with halves rounded up, 0 when total is 0.
func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*n + total) / (2 * total)
}
