package postgres

import (
	"testing"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-ledger/internal/model"
)

func TestMigrationsAreSequential(t *testing.T) {
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.version)
		assert.NotEmpty(t, m.sql)
	}
}

func TestReasonCheckCoversEveryReason(t *testing.T) {
	last := model.Reasons()[len(model.Reasons())-1]
	assert.Contains(t, migrations[0].sql, "reason BETWEEN 0 AND 11")
	assert.Equal(t, int16(11), last.Code())
}

func TestChannelColumns(t *testing.T) {
	flag, at, err := channelColumns(model.ChannelMailAlert)
	require.NoError(t, err)
	assert.Equal(t, "mail_alert_sent", flag)
	assert.Equal(t, "mail_alert_sent_at", at)

	flag, _, err = channelColumns(model.ChannelMailReminder)
	require.NoError(t, err)
	assert.Equal(t, "mail_reminder_sent", flag)

	_, _, err = channelColumns(model.Channel("sms"))
	assert.Error(t, err)
}

func TestSelectNotificationsListsEveryColumn(t *testing.T) {
	for _, col := range notificationColumns {
		assert.Contains(t, selectNotifications, col)
	}
	assert.Len(t, notificationArgs(&model.Notification{}), len(notificationColumns))
}

func TestRecipientQueryPaging(t *testing.T) {
	recipient := uuid.New()

	query, args := recipientQuery(recipient, model.NotificationFilter{})
	assert.NotContains(t, query, "LIMIT")
	assert.NotContains(t, query, "OFFSET")
	assert.Equal(t, []interface{}{recipient}, args)

	mentioned := model.ReasonMentioned
	query, args = recipientQuery(recipient, model.NotificationFilter{
		Reason:     &mentioned,
		UnreadOnly: true,
		Pagination: model.Pagination{Limit: 500, Offset: 20},
	})
	assert.Contains(t, query, "AND reason = $2")
	assert.Contains(t, query, "AND read_ian = FALSE")
	assert.Contains(t, query, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []interface{}{recipient, mentioned, 500, 20}, args)
}
