package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

// ErrMissingReference is wrapped when a required reference is absent.
var ErrMissingReference = errors.New("missing required reference")

// Channel is one of the two mail delivery channels tracked per notification.
type Channel string

const (
	ChannelMailReminder Channel = "mail_reminder"
	ChannelMailAlert    Channel = "mail_alert"
)

func (c Channel) Valid() bool {
	return c == ChannelMailReminder || c == ChannelMailAlert
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// Notification is one event directed at one recipient. Its causal fields are
// fixed at creation; only the read and delivery flags change afterwards, and
// those only from false to true.
type Notification struct {
	ID          uuid.UUID   `json:"id"`
	Reason      Reason      `json:"reason"`
	RecipientID uuid.UUID   `json:"recipient_id"`
	ActorID     uuid.UUID   `json:"actor_id"`
	ProjectID   uuid.UUID   `json:"project_id"`
	JournalID   uuid.UUID   `json:"journal_id"`
	Resource    ResourceRef `json:"resource"`

	ReadIAN bool       `json:"read_ian"`
	ReadAt  *time.Time `json:"read_at,omitempty"`

	MailReminderSent   bool       `json:"mail_reminder_sent"`
	MailReminderSentAt *time.Time `json:"mail_reminder_sent_at,omitempty"`
	MailAlertSent      bool       `json:"mail_alert_sent"`
	MailAlertSentAt    *time.Time `json:"mail_alert_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationParams carries the causal fields of a new notification.
type NotificationParams struct {
	Reason      Reason      `json:"reason"`
	RecipientID uuid.UUID   `json:"recipient_id" validate:"required"`
	ActorID     uuid.UUID   `json:"actor_id" validate:"required"`
	ProjectID   uuid.UUID   `json:"project_id" validate:"required"`
	JournalID   uuid.UUID   `json:"journal_id" validate:"required"`
	Resource    ResourceRef `json:"resource"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the reason and every required reference.
func (p NotificationParams) Validate() error {
	if !p.Reason.Valid() {
		return apperrors.NewInvalidReason(p.Reason.String(), ErrInvalidReason)
	}

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperrors.NewMissingReference(fieldPath(verrs[0]), ErrMissingReference)
	}
	return err
}

// fieldPath turns "NotificationParams.resource.id" into "resource.id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// NewNotification validates params and returns an unsent, unread record.
func NewNotification(p NotificationParams, now time.Time) (*Notification, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Notification{
		ID:          uuid.New(),
		Reason:      p.Reason,
		RecipientID: p.RecipientID,
		ActorID:     p.ActorID,
		ProjectID:   p.ProjectID,
		JournalID:   p.JournalID,
		Resource:    p.Resource,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsDateAlert is derived from the reason and never stored.
func (n *Notification) IsDateAlert() bool {
	return n.Reason.IsDateAlert()
}

func (n *Notification) IsSent(ch Channel) bool {
	switch ch {
	case ChannelMailReminder:
		return n.MailReminderSent
	case ChannelMailAlert:
		return n.MailAlertSent
	}
	return false
}

// MarkSent flips the channel to sent. It reports false, and changes nothing,
// when the channel was already sent.
func (n *Notification) MarkSent(ch Channel, at time.Time) bool {
	if n.IsSent(ch) {
		return false
	}

	switch ch {
	case ChannelMailReminder:
		n.MailReminderSent = true
		n.MailReminderSentAt = &at
	case ChannelMailAlert:
		n.MailAlertSent = true
		n.MailAlertSentAt = &at
	default:
		return false
	}
	n.UpdatedAt = at
	return true
}

// MarkRead is monotonic like MarkSent.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.ReadIAN {
		return false
	}
	n.ReadIAN = true
	n.ReadAt = &at
	n.UpdatedAt = at
	return true
}

// DueForReminder tells whether the record belongs in a digest cut at before.
// The reminder time of a record is the moment it was created.
func (n *Notification) DueForReminder(before time.Time) bool {
	return !n.MailReminderSent && !n.ReadIAN && !n.CreatedAt.After(before)
}

// NotificationFilter narrows listings. Zero values mean no restriction; a
// zero Limit returns every matching record. Callers serving pages apply
// Pagination.Normalize themselves.
type NotificationFilter struct {
	Reason     *Reason
	UnreadOnly bool
	Pagination
}

func (f NotificationFilter) Match(n *Notification) bool {
	if f.Reason != nil && n.Reason != *f.Reason {
		return false
	}
	if f.UnreadOnly && n.ReadIAN {
		return false
	}
	return true
}
