package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
)

func item(t *testing.T, reason model.Reason) Item {
	t.Helper()
	n, err := model.NewNotification(model.NotificationParams{
		Reason:      reason,
		RecipientID: uuid.New(),
		ActorID:     uuid.New(),
		ProjectID:   uuid.New(),
		JournalID:   uuid.New(),
		Resource:    model.ResourceRef{Type: model.ResourceTypeWorkPackage, ID: uuid.New()},
	}, time.Now())
	require.NoError(t, err)
	return Item{
		Notification: n,
		Resource:     &model.Resource{Ref: n.Resource, Title: "Roof <tiles>"},
		Actor:        &model.User{Name: "Grace"},
	}
}

var ada = &model.User{Name: "Ada", Email: "ada@example.com"}

func TestEveryReasonHasAPhrase(t *testing.T) {
	for _, r := range model.Reasons() {
		_, ok := reasonPhrases[r]
		assert.True(t, ok, r.String())
	}
}

func TestAlertSubjects(t *testing.T) {
	c := Composer{BaseURL: "https://ledger.example.com/"}

	msg := c.Alert(ada, item(t, model.ReasonMentioned))
	assert.Equal(t, "You were mentioned in Roof <tiles>", msg.Subject)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Contains(t, msg.Text, "Grace mentioned you on Roof <tiles>")
	assert.Contains(t, msg.HTML, "Roof &lt;tiles&gt;")
	assert.Contains(t, msg.Text, "https://ledger.example.com/notifications/")

	msg = c.Alert(ada, item(t, model.ReasonDateAlertDueDate))
	assert.Equal(t, "Due date reminder: Roof <tiles>", msg.Subject)
	assert.NotContains(t, msg.Text, "Grace")
}

func TestAlertFallsBackToReference(t *testing.T) {
	it := item(t, model.ReasonMentioned)
	it.Resource = nil
	it.Actor = nil

	msg := Composer{}.Alert(ada, it)
	assert.Contains(t, msg.Subject, "WorkPackage#")
	assert.Contains(t, msg.Text, "Someone mentioned you")
	assert.NotContains(t, msg.Text, "/notifications/")
}

func TestDigest(t *testing.T) {
	items := []Item{item(t, model.ReasonAssigned), item(t, model.ReasonCommented)}
	msg := Composer{}.Digest(ada, items)

	assert.Equal(t, "2 unread notifications", msg.Subject)
	assert.Contains(t, msg.Text, "Grace assigned you on Roof <tiles>")
	assert.Contains(t, msg.Text, "Grace commented on Roof <tiles>")
	assert.Equal(t, 2, strings.Count(msg.HTML, "<li>"))

	assert.Equal(t, "1 unread notification", Composer{}.Digest(ada, items[:1]).Subject)
}

func TestLogServiceRequiresRecipient(t *testing.T) {
	svc := NewLogService(logger.Nop())
	assert.ErrorIs(t, svc.Send(context.Background(), Message{}), ErrNoRecipient)
	assert.NoError(t, svc.Send(context.Background(), Message{To: "a@b.c", Subject: "hi"}))
}
