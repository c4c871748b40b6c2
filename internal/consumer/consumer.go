// Package consumer reads AlertCreated messages from Kafka for the notifier.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/schoolguard/device-guardian/internal/notify"
	kafkautil "github.com/schoolguard/device-guardian/pkg/kafka"
)

// Consumer wraps a Kafka reader. Offsets are committed only through CommitMessage.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a consumer in groupID for topic.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}
	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)
	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))
	kafkautil.LogReaderConfig()

	return &Consumer{reader: reader, topic: topic}, nil
}

// ReadMessage fetches the next message without committing it. When decoding
// fails the raw message is still returned so the caller can commit past it.
func (c *Consumer) ReadMessage(ctx context.Context) (*notify.AlertCreated, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	alert, err := notify.Decode(msg.Value)
	if err != nil {
		return nil, &msg, err
	}
	return alert, &msg, nil
}

// CommitMessage commits the offset for msg.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	return c.reader.Close()
}
