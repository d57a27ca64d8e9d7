package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

func validParams(reason Reason) NotificationParams {
	return NotificationParams{
		Reason:      reason,
		RecipientID: uuid.New(),
		ActorID:     uuid.New(),
		ProjectID:   uuid.New(),
		JournalID:   uuid.New(),
		Resource:    ResourceRef{Type: ResourceTypeWorkPackage, ID: uuid.New()},
	}
}

func TestReasonCodesAreStable(t *testing.T) {
	want := map[string]int16{
		"mentioned":             0,
		"assigned":              1,
		"watched":               2,
		"subscribed":            3,
		"commented":             4,
		"created":               5,
		"processed":             6,
		"prioritized":           7,
		"scheduled":             8,
		"responsible":           9,
		"date_alert_start_date": 10,
		"date_alert_due_date":   11,
	}

	require.Len(t, Reasons(), len(want))
	for _, r := range Reasons() {
		code, ok := want[r.String()]
		require.True(t, ok, "unexpected reason %s", r)
		assert.Equal(t, code, r.Code())

		parsed, err := ParseReason(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
}

func TestIsDateAlert(t *testing.T) {
	for _, r := range Reasons() {
		n, err := NewNotification(validParams(r), time.Now())
		require.NoError(t, err)

		expected := r == ReasonDateAlertStartDate || r == ReasonDateAlertDueDate
		assert.Equal(t, expected, n.IsDateAlert(), r.String())
	}
}

func TestParseReasonRejectsUnknown(t *testing.T) {
	_, err := ParseReason("invalid_reason")
	assert.ErrorIs(t, err, ErrInvalidReason)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidReason))

	_, err = ReasonFromCode(12)
	assert.ErrorIs(t, err, ErrInvalidReason)
	_, err = ReasonFromCode(-1)
	assert.ErrorIs(t, err, ErrInvalidReason)
	_, err = ReasonFromCode(1 << 20)
	assert.ErrorIs(t, err, ErrInvalidReason)
}

func TestNewNotificationRejectsInvalidReason(t *testing.T) {
	_, err := NewNotification(validParams(Reason(42)), time.Now())
	assert.ErrorIs(t, err, ErrInvalidReason)
}

func TestNewNotificationRejectsMissingReferences(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*NotificationParams)
	}{
		{"recipient_id", func(p *NotificationParams) { p.RecipientID = uuid.Nil }},
		{"actor_id", func(p *NotificationParams) { p.ActorID = uuid.Nil }},
		{"project_id", func(p *NotificationParams) { p.ProjectID = uuid.Nil }},
		{"journal_id", func(p *NotificationParams) { p.JournalID = uuid.Nil }},
		{"resource.type", func(p *NotificationParams) { p.Resource.Type = "" }},
		{"resource.id", func(p *NotificationParams) { p.Resource.ID = uuid.Nil }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			p := validParams(ReasonAssigned)
			tt.mutate(&p)

			_, err := NewNotification(p, time.Now())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingReference)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestNewNotificationAllowsActorAsRecipient(t *testing.T) {
	p := validParams(ReasonCommented)
	p.ActorID = p.RecipientID

	n, err := NewNotification(p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, n.RecipientID, n.ActorID)
	assert.False(t, n.MailAlertSent)
	assert.False(t, n.MailReminderSent)
	assert.False(t, n.ReadIAN)
}

func TestMarkSentIsIdempotent(t *testing.T) {
	n, err := NewNotification(validParams(ReasonDateAlertDueDate), time.Now())
	require.NoError(t, err)

	first := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	assert.True(t, n.MarkSent(ChannelMailAlert, first))
	snapshot := *n

	assert.False(t, n.MarkSent(ChannelMailAlert, first.Add(time.Hour)))
	assert.Equal(t, snapshot, *n)
	assert.Equal(t, first, *n.MailAlertSentAt)

	// The other channel is independent.
	assert.False(t, n.MailReminderSent)
	assert.True(t, n.MarkSent(ChannelMailReminder, first))
	assert.True(t, n.IsSent(ChannelMailReminder))
}

func TestMarkSentUnknownChannel(t *testing.T) {
	n, err := NewNotification(validParams(ReasonMentioned), time.Now())
	require.NoError(t, err)
	assert.False(t, n.MarkSent(Channel("sms"), time.Now()))
}

func TestDueForReminder(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	n, err := NewNotification(validParams(ReasonWatched), created)
	require.NoError(t, err)

	assert.True(t, n.DueForReminder(created))
	assert.True(t, n.DueForReminder(created.Add(time.Minute)))
	assert.False(t, n.DueForReminder(created.Add(-time.Minute)))

	n.MarkRead(created)
	assert.False(t, n.DueForReminder(created.Add(time.Minute)))
}

func TestReasonJSON(t *testing.T) {
	b, err := json.Marshal(ReasonDateAlertStartDate)
	require.NoError(t, err)
	assert.Equal(t, `"date_alert_start_date"`, string(b))

	var r Reason
	require.NoError(t, json.Unmarshal([]byte(`"scheduled"`), &r))
	assert.Equal(t, ReasonScheduled, r)

	require.NoError(t, json.Unmarshal([]byte(`9`), &r))
	assert.Equal(t, ReasonResponsible, r)

	assert.ErrorIs(t, json.Unmarshal([]byte(`"invalid_reason"`), &r), ErrInvalidReason)
	assert.ErrorIs(t, json.Unmarshal([]byte(`99`), &r), ErrInvalidReason)
}

func TestReasonScanAndValue(t *testing.T) {
	var r Reason
	require.NoError(t, r.Scan(int64(11)))
	assert.Equal(t, ReasonDateAlertDueDate, r)

	require.NoError(t, r.Scan([]byte("4")))
	assert.Equal(t, ReasonCommented, r)

	assert.ErrorIs(t, r.Scan(int64(77)), ErrInvalidReason)
	assert.ErrorIs(t, r.Scan(nil), ErrInvalidReason)

	v, err := ReasonPrioritized.Value()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	_, err = Reason(-3).Value()
	assert.ErrorIs(t, err, ErrInvalidReason)
}

func TestNotificationFilterMatch(t *testing.T) {
	n, err := NewNotification(validParams(ReasonAssigned), time.Now())
	require.NoError(t, err)

	assigned := ReasonAssigned
	mentioned := ReasonMentioned
	assert.True(t, NotificationFilter{}.Match(n))
	assert.True(t, NotificationFilter{Reason: &assigned}.Match(n))
	assert.False(t, NotificationFilter{Reason: &mentioned}.Match(n))

	n.MarkRead(time.Now())
	assert.False(t, NotificationFilter{UnreadOnly: true}.Match(n))
}
