package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/notify"
	"github.com/schoolguard/device-guardian/pkg/metrics"
)

const workerCount = 10

// messageSource is the Kafka side of the loop.
type messageSource interface {
	ReadMessage(ctx context.Context) (*notify.AlertCreated, *kafka.Message, error)
	CommitMessage(ctx context.Context, msg *kafka.Message) error
}

// alertStore loads alerts and their delivery history.
type alertStore interface {
	GetAlert(ctx context.Context, alertID int64) (*database.Alert, error)
	ListDeliveries(ctx context.Context, alertID int64) ([]*database.AlertDelivery, error)
}

// alertNotifier fans an alert out to its recipients.
type alertNotifier interface {
	Dispatch(ctx context.Context, alert *database.Alert) error
}

// work represents a unit of work for the worker pool.
type work struct {
	created *notify.AlertCreated
	msg     *kafka.Message
}

// processorDeps holds all dependencies needed for alert processing.
type processorDeps struct {
	consumer messageSource
	store    alertStore
	notifier alertNotifier
	metrics  *metrics.Collector
}

// processAlerts reads alert-created messages and processes them concurrently
// until ctx is cancelled.
func processAlerts(ctx context.Context, deps *processorDeps) {
	slog.Info("Starting alert processing loop", "workers", workerCount)

	jobs := make(chan work, workerCount*2)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go runWorker(ctx, deps, jobs, &wg)
	}

	dispatchMessages(ctx, deps, jobs)

	close(jobs)
	wg.Wait()
	slog.Info("Alert processing loop stopped")
}

// runWorker processes jobs from the channel until it's closed.
func runWorker(ctx context.Context, deps *processorDeps, jobs <-chan work, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		processOne(ctx, deps, job.created, job.msg)
	}
}

// dispatchMessages reads messages from Kafka and hands them to workers.
// Undecodable messages are committed past so they cannot block the partition.
func dispatchMessages(ctx context.Context, deps *processorDeps, jobs chan<- work) {
	for {
		created, msg, err := deps.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if msg != nil {
				slog.Error("Dropping undecodable alert message",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
				deps.metrics.RecordEventRejected()
				commitOffset(ctx, deps.consumer, msg)
				continue
			}
			slog.Error("Failed to read alert message", "error", err)
			deps.metrics.RecordError()
			continue
		}
		deps.metrics.RecordEventReceived()

		select {
		case jobs <- work{created: created, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

// processOne handles a single alert: fetch, skip if already notified, fan out, commit.
func processOne(ctx context.Context, deps *processorDeps, created *notify.AlertCreated, msg *kafka.Message) {
	startTime := time.Now()

	alert, err := deps.store.GetAlert(ctx, created.AlertID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			// Deleted together with its device.
			slog.Warn("Alert no longer exists, skipping", "alert_id", created.AlertID)
			commitOffset(ctx, deps.consumer, msg)
			return
		}
		logAndRecordError(deps.metrics, "Failed to fetch alert",
			"alert_id", created.AlertID, "error", err)
		return
	}

	deliveries, err := deps.store.ListDeliveries(ctx, alert.ID)
	if err != nil {
		logAndRecordError(deps.metrics, "Failed to fetch deliveries",
			"alert_id", alert.ID, "error", err)
		return
	}
	if len(deliveries) > 0 {
		slog.Debug("Alert already notified, skipping",
			"alert_id", alert.ID,
			"deliveries", len(deliveries),
		)
		deps.metrics.IncrementCustom("alerts_skipped")
		commitOffset(ctx, deps.consumer, msg)
		return
	}

	// Per-recipient outcomes are recorded by the notifier, so the offset is
	// committed even when some sends failed.
	if err := deps.notifier.Dispatch(ctx, alert); err != nil {
		slog.Warn("Alert notified with failures",
			"alert_id", alert.ID,
			"school_id", alert.SchoolID,
			"message_id", created.MessageID,
			"error", err,
		)
	} else {
		slog.Info("Successfully notified alert",
			"alert_id", alert.ID,
			"school_id", alert.SchoolID,
			"message_id", created.MessageID,
		)
	}
	deps.metrics.RecordEventStored(time.Since(startTime))
	commitOffset(ctx, deps.consumer, msg)
}

// commitOffset commits the Kafka offset for the given message.
func commitOffset(ctx context.Context, c messageSource, msg *kafka.Message) {
	if err := c.CommitMessage(ctx, msg); err != nil {
		slog.Error("Failed to commit offset", "error", err)
	}
}

// logAndRecordError logs an error and records it in metrics.
func logAndRecordError(m *metrics.Collector, msg string, args ...any) {
	slog.Error(msg, args...)
	m.RecordError()
}
