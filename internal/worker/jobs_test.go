package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/model"
)

func TestNewRunners(t *testing.T) {
	f := newFixture(t)
	dispatch := config.DispatchConfig{
		BatchSize:            10,
		AlertPollInterval:    time.Millisecond,
		ReminderPollInterval: time.Millisecond,
		ReminderDelay:        time.Minute,
		RetryAttempts:        1,
		RetryDelay:           time.Millisecond,
	}

	assert.Len(t, NewRunners(f.deps, dispatch, config.RetentionConfig{}), 2)
	assert.Len(t, NewRunners(f.deps, dispatch, config.RetentionConfig{Days: 30, Interval: time.Hour}), 3)
}

func TestStartAllDeliversAndStops(t *testing.T) {
	f := newFixture(t)
	alice := f.member(t, "Alice")
	n := f.record(t, alice, model.ReasonMentioned, 0)
	f.mailer.On("Send", mock.Anything, to(alice.Email)).Return(nil)

	dispatch := config.DispatchConfig{
		BatchSize:            10,
		AlertPollInterval:    time.Millisecond,
		ReminderPollInterval: time.Hour,
		ReminderDelay:        time.Minute,
		RetryAttempts:        1,
		RetryDelay:           time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := StartAll(ctx, NewRunners(f.deps, dispatch, config.RetentionConfig{}))

	assert.Eventually(t, func() bool {
		return f.reload(t, n).MailAlertSent
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	f.mailer.AssertNumberOfCalls(t, "Send", 1)
}
