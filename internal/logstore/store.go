// Package logstore holds the client's canonical copy of the notification log.
package logstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/novapush/novadash/pkg/domain"
)

// Snapshot is an immutable view of the log at one fetch. Callers must not
// modify Events.
type Snapshot struct {
	Events    []domain.NotificationEvent
	Rejected  int
	FetchedAt time.Time
	Version   uint64
}

// Store keeps the latest snapshot. The zero value is ready to use.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Replace publishes a new snapshot built from events. Events are copied and
// ordered oldest first by SentAt, ties keeping server order.
func (s *Store) Replace(events []domain.NotificationEvent, rejected int, fetchedAt time.Time) Snapshot {
	cp := make([]domain.NotificationEvent, len(events))
	copy(cp, events)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].SentAt.Before(cp[j].SentAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Events:    cp,
		Rejected:  rejected,
		FetchedAt: fetchedAt,
		Version:   s.snap.Version + 1,
	}
	return s.snap
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Counts is the per-status breakdown shown above the log table.
type Counts struct {
	Total     int
	Pending   int
	Sent      int
	Delivered int
	Failed    int
}

// Counts tallies the snapshot by status.
func (s Snapshot) Counts() Counts {
	c := Counts{Total: len(s.Events)}
	for _, e := range s.Events {
		switch e.Status {
		case domain.StatusPending:
			c.Pending++
		case domain.StatusSent:
			c.Sent++
		case domain.StatusDelivered:
			c.Delivered++
		case domain.StatusFailed:
			c.Failed++
		}
	}
	return c
}

// LogFilter narrows a snapshot. Empty fields match everything.
type LogFilter struct {
	Channel domain.Channel
	Status  domain.Status
	Query   string // case-insensitive match on id, recipient or template name
}

// Filter returns the events matching f, newest first.
func (s Snapshot) Filter(f LogFilter) []domain.NotificationEvent {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.NotificationEvent, 0, len(s.Events))
	for i := len(s.Events) - 1; i >= 0; i-- {
		e := s.Events[i]
		if f.Channel != "" && e.Channel != f.Channel {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if q != "" && !matchesQuery(e, q) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesQuery(e domain.NotificationEvent, q string) bool {
	for _, field := range []string{e.ID, e.RecipientID, e.RecipientName, e.TemplateName} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
