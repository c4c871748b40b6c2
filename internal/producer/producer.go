// Package producer publishes AlertCreated messages to Kafka.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/notify"
	kafkautil "github.com/schoolguard/device-guardian/pkg/kafka"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a Kafka writer for the alerts topic.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a synchronous, at-least-once producer keyed by school.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}
	brokerList := kafkautil.ParseBrokers(brokers)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkautil.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	slog.Info("Kafka producer configured",
		"brokers", brokerList,
		"topic", topic,
		"required_acks", "RequireOne",
		"partition_key", "school_id",
	)

	return &Producer{writer: writer, topic: topic}, nil
}

// buildMessage encodes msg and keys it by school id so one school's alerts stay ordered.
func buildMessage(msg *notify.AlertCreated) (kafka.Message, error) {
	payload, err := notify.Encode(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.SchoolID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "schema_version", Value: []byte(strconv.Itoa(msg.SchemaVersion))},
			{Key: "message_id", Value: []byte(msg.MessageID)},
			{Key: "alert_id", Value: []byte(strconv.FormatInt(msg.AlertID, 10))},
		},
		Time: time.Now(),
	}, nil
}

// Dispatch publishes a persisted alert for the notifier.
func (p *Producer) Dispatch(ctx context.Context, alert *database.Alert) error {
	msg := notify.FromAlert(alert, uuid.NewString())
	kmsg, err := buildMessage(msg)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	slog.Info("Published alert for notification",
		"alert_id", alert.ID,
		"school_id", alert.SchoolID,
		"message_id", msg.MessageID,
		"topic", p.topic,
	)
	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	return p.writer.Close()
}
