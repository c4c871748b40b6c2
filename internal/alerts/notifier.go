package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/sender/email"
	"github.com/schoolguard/device-guardian/internal/sender/retry"
	"github.com/schoolguard/device-guardian/pkg/metrics"
)

// RecipientStore reads admin addresses and records delivery outcomes.
type RecipientStore interface {
	AdminEmails(ctx context.Context, schoolID int64) ([]string, error)
	RecordDelivery(ctx context.Context, d *database.AlertDelivery) error
}

// Notifier emails every admin of the alert's school. Each recipient is sent
// to concurrently and retried on its own; one failing mailbox never blocks
// the others.
type Notifier struct {
	store   RecipientStore
	sender  email.Sender
	appName string
	retry   retry.Config
	metrics *metrics.Collector
}

// NewNotifier creates the email fan-out dispatcher.
func NewNotifier(store RecipientStore, sender email.Sender, appName string, retryCfg retry.Config, collector *metrics.Collector) *Notifier {
	return &Notifier{
		store:   store,
		sender:  sender,
		appName: appName,
		retry:   retryCfg,
		metrics: collector,
	}
}

// Dispatch sends the alert to every admin and records one delivery row per
// recipient. It returns an error summarising any failures.
func (n *Notifier) Dispatch(ctx context.Context, alert *database.Alert) error {
	recipients, err := n.store.AdminEmails(ctx, alert.SchoolID)
	if err != nil {
		return fmt.Errorf("failed to load admin emails: %w", err)
	}
	if len(recipients) == 0 {
		slog.Info("No admins to notify", "alert_id", alert.ID, "school_id", alert.SchoolID)
		return nil
	}

	subject := email.Subject(alert.Severity, n.appName, alert.AlertType)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, to := range recipients {
		wg.Add(1)
		go func(to string) {
			defer wg.Done()
			if !n.deliver(ctx, alert, to, subject) {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(to)
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d notifications failed", failed, len(recipients))
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, alert *database.Alert, to, subject string) bool {
	attempts, err := retry.Do(ctx, n.retry, "send_alert_email", func(ctx context.Context) error {
		return n.sender.Send(ctx, to, subject, alert.Message)
	})

	d := &database.AlertDelivery{
		AlertID:   alert.ID,
		Recipient: to,
		Status:    database.DeliverySent,
		Attempts:  attempts,
	}
	if err != nil {
		d.Status = database.DeliveryFailed
		d.Error = err.Error()
		slog.Warn("Notification failed",
			"alert_id", alert.ID,
			"recipient", to,
			"attempts", attempts,
			"error", err,
		)
	} else {
		slog.Debug("Notification sent", "alert_id", alert.ID, "recipient", to, "attempts", attempts)
	}
	n.metrics.RecordNotification(err == nil)

	// The outcome is recorded even if the caller's context has gone away.
	if recErr := n.store.RecordDelivery(context.WithoutCancel(ctx), d); recErr != nil {
		slog.Error("Failed to record delivery", "alert_id", alert.ID, "recipient", to, "error", recErr)
	}
	return err == nil
}
