package domain

import (
	"errors"
	"fmt"
	"time"
)

// Channel is the delivery channel of a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Channels lists every channel in display order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

// Valid returns true if c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Label is the human-facing name used in distributions ("Email", "SMS", "Push").
func (c Channel) Label() string {
	switch c {
	case ChannelEmail:
		return "Email"
	case ChannelSMS:
		return "SMS"
	case ChannelPush:
		return "Push"
	}
	return string(c)
}

// Status is the delivery status of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusSent, StatusDelivered, StatusFailed}

// Valid returns true if s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Successful reports whether s counts toward the success rate.
func (s Status) Successful() bool {
	return s == StatusSent || s == StatusDelivered
}

// CanTransition reports whether the server may move a notification from s to next.
// Allowed: pending→sent→delivered, and pending|sent→failed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusFailed
	case StatusSent:
		return next == StatusDelivered || next == StatusFailed
	}
	return false
}

// NotificationEvent is one record of the notification log. The server is the
// only writer; clients hold read-only snapshots.
type NotificationEvent struct {
	ID            string     `json:"id"`
	Channel       Channel    `json:"channel"`
	Status        Status     `json:"status"`
	RecipientID   string     `json:"recipient_id"`
	RecipientName string     `json:"recipient_name,omitempty"`
	TemplateID    string     `json:"template_id,omitempty"`
	TemplateName  string     `json:"template_name,omitempty"`
	SentAt        time.Time  `json:"sent_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// ErrInvalidEvent is returned by Validate for records that break the log invariants.
var ErrInvalidEvent = errors.New("invalid notification event")

// Validate checks the record invariants: deliveredAt is set iff the status is
// delivered, an error message implies failed, and delivery never precedes sending.
func (e NotificationEvent) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	case !e.Channel.Valid():
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidEvent, e.Channel)
	case !e.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, e.Status)
	case e.SentAt.IsZero():
		return fmt.Errorf("%w: missing sent time", ErrInvalidEvent)
	case (e.DeliveredAt != nil) != (e.Status == StatusDelivered):
		return fmt.Errorf("%w: delivered time does not match status %q", ErrInvalidEvent, e.Status)
	case e.ErrorMessage != "" && e.Status != StatusFailed:
		return fmt.Errorf("%w: error message on %q record", ErrInvalidEvent, e.Status)
	case e.DeliveredAt != nil && e.DeliveredAt.Before(e.SentAt):
		return fmt.Errorf("%w: delivered before sent", ErrInvalidEvent)
	}
	return nil
}

// DeliveryTime returns deliveredAt − sentAt, and false when the event was not delivered.
func (e NotificationEvent) DeliveryTime() (time.Duration, bool) {
	if e.DeliveredAt == nil {
		return 0, false
	}
	return e.DeliveredAt.Sub(e.SentAt), true
}
