package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/novapush/novadash/pkg/domain"
)

// wireLog is the untrusted shape of one record in GET /logs.
type wireLog struct {
	ID            string     `json:"_id" validate:"required"`
	TemplateID    string     `json:"templateId"`
	TemplateName  string     `json:"templateName"`
	Recipient     string     `json:"recipient" validate:"required"`
	RecipientName string     `json:"recipientName"`
	Channel       string     `json:"channel" validate:"required,oneof=email sms push"`
	Status        string     `json:"status" validate:"required,oneof=queued pending sent delivered failed"`
	CreatedAt     *time.Time `json:"createdAt" validate:"required"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	Error         string     `json:"error"`
}

type logsResponse struct {
	Logs []json.RawMessage `json:"logs"`
}

// LogBatch is the validated result of one log fetch.
type LogBatch struct {
	Events   []domain.NotificationEvent
	Rejected []RejectedRecord
}

// RejectedRecord is a wire record that was quarantined instead of entering the log.
type RejectedRecord struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeLogs validates every raw record independently so a single bad record
// never poisons the batch.
func decodeLogs(v *validator.Validate, raws []json.RawMessage) LogBatch {
	batch := LogBatch{Events: make([]domain.NotificationEvent, 0, len(raws))}
	for i, raw := range raws {
		var w wireLog
		if err := json.Unmarshal(raw, &w); err != nil {
			batch.Rejected = append(batch.Rejected, RejectedRecord{Index: i, Reason: "decode: " + err.Error()})
			continue
		}
		ev, err := w.toEvent(v)
		if err != nil {
			batch.Rejected = append(batch.Rejected, RejectedRecord{Index: i, ID: w.ID, Reason: err.Error()})
			continue
		}
		batch.Events = append(batch.Events, ev)
	}
	return batch
}

func (w wireLog) toEvent(v *validator.Validate) (domain.NotificationEvent, error) {
	if err := v.Struct(w); err != nil {
		return domain.NotificationEvent{}, fmt.Errorf("%w: %s", ErrInvalidRecord, describeValidation(err))
	}

	status := domain.Status(w.Status)
	if status == "queued" {
		status = domain.StatusPending
	}

	ev := domain.NotificationEvent{
		ID:            w.ID,
		Channel:       domain.Channel(w.Channel),
		Status:        status,
		RecipientID:   w.Recipient,
		RecipientName: w.RecipientName,
		TemplateID:    w.TemplateID,
		TemplateName:  w.TemplateName,
		SentAt:        *w.CreatedAt,
	}
	if ev.RecipientName == "" {
		ev.RecipientName = w.Recipient
	}
	if status == domain.StatusDelivered {
		if w.UpdatedAt == nil {
			return domain.NotificationEvent{}, fmt.Errorf("%w: delivered record without updatedAt", ErrInvalidRecord)
		}
		at := *w.UpdatedAt
		ev.DeliveredAt = &at
	}
	if status == domain.StatusFailed {
		ev.ErrorMessage = w.Error
	}

	if err := ev.Validate(); err != nil {
		return domain.NotificationEvent{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return ev, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
