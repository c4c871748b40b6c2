// Package telemetry bridges device heartbeats published over MQTT into the
// device monitor.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/schoolguard/device-guardian/internal/events"
	"github.com/schoolguard/device-guardian/internal/monitor"
	"github.com/schoolguard/device-guardian/pkg/metrics"
)

// HeartbeatTopic is the subscription filter. The wildcard segment is the school id.
const HeartbeatTopic = "schools/+/devices/heartbeat"

const connectTimeout = 10 * time.Second

// ErrBadTopic is returned for topics that do not carry a school id.
var ErrBadTopic = errors.New("malformed heartbeat topic")

// Recorder applies one heartbeat.
type Recorder interface {
	RecordTelemetry(ctx context.Context, schoolID int64, t events.Telemetry) (*monitor.TelemetryResult, error)
}

// Bridge subscribes to heartbeat topics and forwards each message to a Recorder.
// Broker ACLs scope which school a device may publish for; messages carry no API key.
type Bridge struct {
	client    mqtt.Client
	recorder  Recorder
	collector *metrics.Collector
	qos       byte
	subscribe func(topic string, qos byte, cb mqtt.MessageHandler) error

	mu  sync.Mutex
	ctx context.Context // set by Start; nil until then
}

// NewBridge connects to the broker. collector may be nil.
func NewBridge(broker, clientID, username, password string, recorder Recorder, collector *metrics.Collector) (*Bridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "broker", broker, "error", err)
	})

	b := &Bridge{recorder: recorder, collector: collector, qos: 1}
	// A clean session drops subscriptions on disconnect, so every
	// (re)connect subscribes again once Start has run.
	opts.SetOnConnectHandler(func(mqtt.Client) {
		b.onConnect()
	})

	client := mqtt.NewClient(opts)
	b.client = client
	b.subscribe = func(topic string, qos byte, cb mqtt.MessageHandler) error {
		token := client.Subscribe(topic, qos, cb)
		token.Wait()
		return token.Error()
	}

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}

	slog.Info("Connected to MQTT broker", "broker", broker, "client_id", clientID)
	return b, nil
}

// Start subscribes to HeartbeatTopic. Messages are handled with ctx until Close,
// and the subscription is restored after every reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.subscribeHeartbeats(ctx); err != nil {
		return err
	}
	slog.Info("Subscribed to heartbeats", "topic", HeartbeatTopic)
	return nil
}

func (b *Bridge) onConnect() {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		return
	}

	if err := b.subscribeHeartbeats(ctx); err != nil {
		b.count("mqtt_resubscribe_failed")
		slog.Error("Failed to restore heartbeat subscription", "topic", HeartbeatTopic, "error", err)
		return
	}
	slog.Info("Restored heartbeat subscription", "topic", HeartbeatTopic)
}

func (b *Bridge) subscribeHeartbeats(ctx context.Context) error {
	err := b.subscribe(HeartbeatTopic, b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := b.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
			slog.Warn("Dropped heartbeat", "topic", msg.Topic(), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", HeartbeatTopic, err)
	}
	return nil
}

// Handle decodes one heartbeat and records it.
func (b *Bridge) Handle(ctx context.Context, topic string, payload []byte) error {
	schoolID, err := SchoolFromTopic(topic)
	if err != nil {
		b.count("mqtt_rejected")
		return err
	}

	var t events.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		b.count("mqtt_rejected")
		return fmt.Errorf("%w: invalid JSON: %v", monitor.ErrInvalidTelemetry, err)
	}

	res, err := b.recorder.RecordTelemetry(ctx, schoolID, t)
	if err != nil {
		b.count("mqtt_failed")
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	b.count("mqtt_heartbeats")
	slog.Debug("Recorded heartbeat", "school_id", schoolID, "device_id", res.Device.ID)
	return nil
}

func (b *Bridge) count(name string) {
	if b.collector != nil {
		b.collector.IncrementCustom(name)
	}
}

// Close unsubscribes and disconnects.
func (b *Bridge) Close() {
	if b.client == nil {
		return
	}
	b.client.Unsubscribe(HeartbeatTopic).WaitTimeout(time.Second)
	b.client.Disconnect(250)
}

// SchoolFromTopic extracts the school id from schools/<id>/devices/heartbeat.
func SchoolFromTopic(topic string) (int64, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "schools" || parts[2] != "devices" || parts[3] != "heartbeat" {
		return 0, fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	return id, nil
}
