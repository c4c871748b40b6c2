package consumer

import (
	"testing"
)

func TestNewConsumer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		topic   string
		groupID string
		wantErr bool
	}{
		{name: "valid", brokers: "localhost:9092", topic: "alerts.created", groupID: "notifier-group"},
		{name: "missing brokers", topic: "alerts.created", groupID: "notifier-group", wantErr: true},
		{name: "missing topic", brokers: "localhost:9092", groupID: "notifier-group", wantErr: true},
		{name: "missing group", brokers: "localhost:9092", topic: "alerts.created", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConsumer(tt.brokers, tt.topic, tt.groupID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewConsumer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if c != nil {
				if err := c.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			}
		})
	}
}
