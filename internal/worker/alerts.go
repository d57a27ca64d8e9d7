package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/notification-ledger/internal/email"
	"github.com/jwalitptl/notification-ledger/internal/model"
)

// AlertDispatcher mails immediate alerts. Reasons that do not warrant an
// immediate mail are flagged as handled without sending anything.
type AlertDispatcher struct {
	dispatcher
}

func NewAlertDispatcher(deps Deps, config DispatcherConfig) *AlertDispatcher {
	return &AlertDispatcher{dispatcher: newDispatcher(deps, model.ChannelMailAlert, config)}
}

func (d *AlertDispatcher) Name() string { return "mail_alert_dispatcher" }

func (d *AlertDispatcher) RunOnce(ctx context.Context) error {
	timer := prometheus.NewTimer(d.Metrics.DispatchLatency.WithLabelValues(string(d.channel)))
	defer timer.ObserveDuration()

	batch, err := d.claim(ctx, time.Time{})
	if err != nil {
		return err
	}
	ns := batch.Notifications()
	if len(ns) == 0 {
		return d.finish(batch)
	}

	l, err := d.load(ctx, ns)
	if err != nil {
		_ = batch.Rollback()
		return err
	}

	var sent, skipped, failed int
	for _, n := range ns {
		mailed, err := d.deliver(ctx, n, l)
		if errors.Is(err, errSkip) {
			skipped++
			d.Logger.Warn("Alert left queued", "notification_id", n.ID.String(), "error", err.Error())
			continue
		}
		if err != nil {
			failed++
			d.Logger.Error(err, "Failed to send alert", "notification_id", n.ID.String())
			continue
		}

		if err := d.mark(ctx, batch, n); err != nil {
			_ = batch.Rollback()
			return err
		}
		if mailed {
			sent++
		}
	}

	if err := d.finish(batch); err != nil {
		return err
	}
	d.Logger.Info("Alert batch dispatched",
		"claimed", len(ns),
		"sent", sent,
		"skipped", skipped,
		"failed", failed)
	return nil
}

// deliver mails one alert when its reason calls for it. It reports whether a
// mail went out; a nil error with mailed == false means the record is
// consumed silently.
func (d *AlertDispatcher) deliver(ctx context.Context, n *model.Notification, l loaded) (mailed bool, err error) {
	if !n.Reason.WantsImmediateMail() {
		return false, nil
	}

	to := l.users[n.RecipientID]
	if !d.reachable(to) {
		return false, nil
	}

	item, err := d.prepare(ctx, n, l)
	if err != nil || item == nil {
		return false, err
	}

	err = d.send(ctx, d.Composer.Alert(to, *item))
	if errors.Is(err, email.ErrNoRecipient) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
