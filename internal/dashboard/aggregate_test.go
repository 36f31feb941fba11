package dashboard

import (
	"reflect"
	"testing"
	"time"

	"github.com/novapush/novadash/pkg/domain"
)

// monday is 2025-03-03, a Monday.
var monday = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

func event(id string, ch domain.Channel, st domain.Status, sentAt time.Time) domain.NotificationEvent {
	e := domain.NotificationEvent{ID: id, Channel: ch, Status: st, RecipientID: "r-" + id, SentAt: sentAt}
	if st == domain.StatusDelivered {
		at := sentAt.Add(2 * time.Second)
		e.DeliveredAt = &at
	}
	return e
}

func TestAggregateEmpty(t *testing.T) {
	for _, in := range [][]domain.NotificationEvent{nil, {}} {
		m := Aggregate(in)
		if m.TotalSent != 0 || m.SuccessRate != 0 || m.ActiveUsers != 0 || m.AvgDeliveryTime != 0 {
			t.Errorf("Aggregate(empty) scalars = %+v, want zeros", m)
		}
		for i, b := range m.WeeklyData {
			if b.Name != domain.Weekdays[i] || b.Deliveries != 0 || b.Failures != 0 {
				t.Errorf("WeeklyData[%d] = %+v, want zeroed %s", i, b, domain.Weekdays[i])
			}
		}
		if m.ChannelDistribution == nil || len(m.ChannelDistribution) != 0 {
			t.Errorf("ChannelDistribution = %#v, want empty non-nil", m.ChannelDistribution)
		}
		if m.RecentActivity == nil || len(m.RecentActivity) != 0 {
			t.Errorf("RecentActivity = %#v, want empty non-nil", m.RecentActivity)
		}
	}
}

func TestAggregateFourEventScenario(t *testing.T) {
	events := []domain.NotificationEvent{
		event("1", domain.ChannelEmail, domain.StatusDelivered, monday),
		event("2", domain.ChannelEmail, domain.StatusSent, monday.Add(time.Hour)),
		event("3", domain.ChannelSMS, domain.StatusDelivered, monday.Add(2*time.Hour)),
		event("4", domain.ChannelPush, domain.StatusFailed, monday.Add(3*time.Hour)),
	}
	m := Aggregate(events)

	if m.TotalSent != 4 {
		t.Errorf("TotalSent = %d, want 4", m.TotalSent)
	}
	if m.SuccessRate != 75 {
		t.Errorf("SuccessRate = %d, want 75", m.SuccessRate)
	}
	if m.ActiveUsers != 4 {
		t.Errorf("ActiveUsers = %d, want 4", m.ActiveUsers)
	}
	if m.AvgDeliveryTime != 2*time.Second {
		t.Errorf("AvgDeliveryTime = %v, want 2s", m.AvgDeliveryTime)
	}
	wantDist := []domain.ChannelShare{{Name: "Email", Value: 50}, {Name: "SMS", Value: 25}, {Name: "Push", Value: 25}}
	if !reflect.DeepEqual(m.ChannelDistribution, wantDist) {
		t.Errorf("ChannelDistribution = %+v, want %+v", m.ChannelDistribution, wantDist)
	}
	if m.WeeklyData[0].Deliveries != 3 || m.WeeklyData[0].Failures != 1 {
		t.Errorf("Monday bucket = %+v, want 3 deliveries / 1 failure", m.WeeklyData[0])
	}
}

func TestSuccessRateFormula(t *testing.T) {
	statuses := []domain.Status{domain.StatusPending, domain.StatusSent, domain.StatusDelivered, domain.StatusFailed}
	for total := 1; total <= 12; total++ {
		for ok := 0; ok <= total; ok++ {
			events := make([]domain.NotificationEvent, 0, total)
			for i := 0; i < total; i++ {
				st := statuses[(i%2)*3] // pending or failed
				if i < ok {
					st = statuses[1+i%2] // sent or delivered
				}
				events = append(events, event(string(rune('a'+i)), domain.ChannelEmail, st, monday))
			}
			m := Aggregate(events)
			want := int(float64(100*ok)/float64(total) + 0.5)
			if m.SuccessRate != want || m.SuccessRate < 0 || m.SuccessRate > 100 {
				t.Errorf("ok=%d total=%d: SuccessRate = %d, want %d", ok, total, m.SuccessRate, want)
			}
		}
	}
}

func TestWeeklyBucketsMondayFirst(t *testing.T) {
	sunday := monday.AddDate(0, 0, 6)
	wednesday := monday.AddDate(0, 0, 2)
	events := []domain.NotificationEvent{
		event("sun-ok", domain.ChannelEmail, domain.StatusSent, sunday),
		event("sun-fail", domain.ChannelEmail, domain.StatusFailed, sunday),
		event("wed-pending", domain.ChannelSMS, domain.StatusPending, wednesday),
	}
	m := Aggregate(events)

	if len(m.WeeklyData) != 7 {
		t.Fatalf("len(WeeklyData) = %d, want 7", len(m.WeeklyData))
	}
	for i, name := range []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"} {
		if m.WeeklyData[i].Name != name {
			t.Errorf("WeeklyData[%d].Name = %q, want %q", i, m.WeeklyData[i].Name, name)
		}
	}
	if got := m.WeeklyData[6]; got.Deliveries != 1 || got.Failures != 1 {
		t.Errorf("Sun bucket = %+v, want 1/1", got)
	}
	if got := m.WeeklyData[2]; got.Deliveries != 0 || got.Failures != 0 {
		t.Errorf("Wed bucket = %+v, pending events should not count", got)
	}
}

func TestAggregateInLocation(t *testing.T) {
	// 23:30 UTC Sunday is Monday in UTC+2.
	late := time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC)
	events := []domain.NotificationEvent{event("x", domain.ChannelEmail, domain.StatusSent, late)}

	if got := Aggregate(events).WeeklyData[6].Deliveries; got != 1 {
		t.Errorf("UTC Sun deliveries = %d, want 1", got)
	}
	east := time.FixedZone("UTC+2", 2*60*60)
	if got := AggregateIn(events, east).WeeklyData[0].Deliveries; got != 1 {
		t.Errorf("UTC+2 Mon deliveries = %d, want 1", got)
	}
}

func TestChannelDistributionOmitsZero(t *testing.T) {
	events := make([]domain.NotificationEvent, 0, 201)
	for i := 0; i < 200; i++ {
		events = append(events, event("e", domain.ChannelEmail, domain.StatusSent, monday))
	}
	events = append(events, event("p", domain.ChannelPush, domain.StatusSent, monday))

	m := Aggregate(events)
	want := []domain.ChannelShare{{Name: "Email", Value: 100}}
	if !reflect.DeepEqual(m.ChannelDistribution, want) {
		t.Errorf("ChannelDistribution = %+v, want %+v (push rounds to 0%%)", m.ChannelDistribution, want)
	}
	if m.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2 distinct recipients", m.ActiveUsers)
	}
}

func TestRecentActivity(t *testing.T) {
	var events []domain.NotificationEvent
	for i := 0; i < 8; i++ {
		st := domain.StatusDelivered
		if i%3 == 0 {
			st = domain.StatusFailed
		}
		events = append(events, event(string(rune('a'+i)), domain.ChannelSMS, st, monday.Add(time.Duration(i)*time.Minute)))
	}

	tests := []struct {
		n    int
		want int
	}{{0, 0}, {3, 3}, {5, 5}, {8, 5}}
	for _, tt := range tests {
		m := Aggregate(events[:tt.n])
		if len(m.RecentActivity) != tt.want {
			t.Errorf("n=%d: len(RecentActivity) = %d, want %d", tt.n, len(m.RecentActivity), tt.want)
		}
		for i := 1; i < len(m.RecentActivity); i++ {
			if m.RecentActivity[i].Timestamp.After(m.RecentActivity[i-1].Timestamp) {
				t.Errorf("n=%d: RecentActivity not newest first at %d", tt.n, i)
			}
		}
	}

	m := Aggregate(events)
	first := m.RecentActivity[0]
	if first.ID != "h" || first.Recipients != 1 || first.SuccessRate != 100 || first.Channel != domain.ChannelSMS {
		t.Errorf("RecentActivity[0] = %+v, want h / 1 recipient / 100", first)
	}
	if m.RecentActivity[1].ID != "g" || m.RecentActivity[1].SuccessRate != 0 {
		t.Errorf("RecentActivity[1] = %+v, want failed g with rate 0", m.RecentActivity[1])
	}
}

func TestAverageDeliveryTimeRounded(t *testing.T) {
	a := event("a", domain.ChannelEmail, domain.StatusDelivered, monday)
	b := event("b", domain.ChannelEmail, domain.StatusDelivered, monday)
	late := monday.Add(1001 * time.Millisecond)
	b.DeliveredAt = &late
	// (2000ms + 1001ms) / 2 = 1500.5ms
	m := Aggregate([]domain.NotificationEvent{a, b, event("c", domain.ChannelEmail, domain.StatusSent, monday)})
	if m.AvgDeliveryTime != 1501*time.Millisecond {
		t.Errorf("AvgDeliveryTime = %v, want 1.501s", m.AvgDeliveryTime)
	}
}

func TestAggregateIsPure(t *testing.T) {
	events := []domain.NotificationEvent{
		event("1", domain.ChannelEmail, domain.StatusDelivered, monday),
		event("2", domain.ChannelPush, domain.StatusFailed, monday.AddDate(0, 0, 3)),
	}
	before := append([]domain.NotificationEvent(nil), events...)

	first := Aggregate(events)
	second := Aggregate(events)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Aggregate not deterministic:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(events, before) {
		t.Error("Aggregate modified its input")
	}
}
