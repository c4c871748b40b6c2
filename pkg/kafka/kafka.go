// Package kafka provides shared Kafka utilities for the guardian binaries.
package kafka

import "time"

// Timeouts shared by the alert producer and the notifier consumer.
const (
	// WriteTimeout bounds a single synchronous produce.
	WriteTimeout = 10 * time.Second
	// ReadTimeout bounds a single fetch in the consumer loop.
	ReadTimeout = 10 * time.Second
	// MaxPollWait is how long the broker may hold a fetch waiting for data.
	MaxPollWait = 500 * time.Millisecond
	// CommitInterval is zero so offsets are committed explicitly after each
	// alert has been fanned out.
	CommitInterval = 0
)

// AlertsCreatedTopic is the default topic carrying persisted alerts to the notifier.
const AlertsCreatedTopic = "alerts.created"
