package domain

import "time"

// Weekdays are the weekly bucket names, Monday first.
var Weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// DashboardMetrics is the summary derived from a log snapshot. It is never persisted.
type DashboardMetrics struct {
	TotalSent           int            `json:"total_sent"`
	SuccessRate         int            `json:"success_rate"` // percent, 0-100
	ActiveUsers         int            `json:"active_users"`
	AvgDeliveryTime     time.Duration  `json:"avg_delivery_time"`
	WeeklyData          [7]DayBucket   `json:"weekly_data"`
	ChannelDistribution []ChannelShare `json:"channel_distribution"`
	RecentActivity      []Activity     `json:"recent_activity"`
}

// DayBucket counts deliveries and failures for one day of the week.
type DayBucket struct {
	Name       string `json:"name"`
	Deliveries int    `json:"deliveries"`
	Failures   int    `json:"failures"`
}

// ChannelShare is a channel's rounded percentage of all events.
type ChannelShare struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Activity is a single-recipient summary of one recent event.
type Activity struct {
	ID          string    `json:"id"`
	Channel     Channel   `json:"type"`
	Recipients  int       `json:"recipients"`
	SuccessRate int       `json:"success_rate"` // 0 or 100
	Timestamp   time.Time `json:"timestamp"`
}
