// Package metrics provides the guardian's counters. Each binary keeps a
// Collector that periodically writes a JSON snapshot to Redis and mirrors every
// increment into Prometheus counters served at /metrics.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for service metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

var (
	promEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guardian",
		Name:      "events_total",
		Help:      "Ingested events by service and outcome.",
	}, []string{"service", "outcome"})
	promAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guardian",
		Name:      "alerts_raised_total",
		Help:      "Alerts persisted by the alert manager.",
	}, []string{"service"})
	promNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guardian",
		Name:      "notifications_total",
		Help:      "Notification attempts by status.",
	}, []string{"service", "status"})
	promCustom = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guardian",
		Name:      "custom_total",
		Help:      "Service-specific counters.",
	}, []string{"service", "name"})
	promLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "guardian",
		Name:      "processing_seconds",
		Help:      "Time spent processing one inbound event.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})
)

func init() {
	_ = prometheus.Register(promEvents)
	_ = prometheus.Register(promAlerts)
	_ = prometheus.Register(promNotifications)
	_ = prometheus.Register(promCustom)
	_ = prometheus.Register(promLatency)
}

// ServiceMetrics holds the snapshot of a single binary.
type ServiceMetrics struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	EventsReceived    uint64 `json:"events_received"`
	EventsStored      uint64 `json:"events_stored"`
	EventsRejected    uint64 `json:"events_rejected"`
	AlertsRaised      uint64 `json:"alerts_raised"`
	NotificationsSent uint64 `json:"notifications_sent"`
	NotificationsFail uint64 `json:"notifications_failed"`
	ProcessingErrors  uint64 `json:"processing_errors"`

	EventsPerSecond        float64 `json:"events_per_second"`
	AvgProcessingLatencyNs float64 `json:"avg_processing_latency_ns"`

	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for a binary.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived    atomic.Uint64
	eventsStored      atomic.Uint64
	eventsRejected    atomic.Uint64
	alertsRaised      atomic.Uint64
	notificationsSent atomic.Uint64
	notificationsFail atomic.Uint64
	processingErrors  atomic.Uint64

	rateMu          sync.Mutex
	lastReportTime  time.Time
	lastStoredCount uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a metrics collector. redisClient may be nil, in which
// case snapshots are only available in-process and through Prometheus.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	now := time.Now().UTC()
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      now,
		reportInterval: DefaultReportInterval,
		lastReportTime: now,
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeMetrics(context.Background())
				return
			case <-c.stopCh:
				c.writeMetrics(context.Background())
				return
			case <-ticker.C:
				c.writeMetrics(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordEventReceived counts an inbound event or syslog line.
func (c *Collector) RecordEventReceived() {
	c.eventsReceived.Add(1)
	promEvents.WithLabelValues(c.serviceName, "received").Inc()
}

// RecordEventStored counts a persisted event along with its processing latency.
func (c *Collector) RecordEventStored(latency time.Duration) {
	c.eventsStored.Add(1)
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
	promEvents.WithLabelValues(c.serviceName, "stored").Inc()
	promLatency.WithLabelValues(c.serviceName).Observe(latency.Seconds())
}

// RecordEventRejected counts input dropped as malformed or not relevant.
func (c *Collector) RecordEventRejected() {
	c.eventsRejected.Add(1)
	promEvents.WithLabelValues(c.serviceName, "rejected").Inc()
}

// RecordAlertRaised counts a persisted alert.
func (c *Collector) RecordAlertRaised() {
	c.alertsRaised.Add(1)
	promAlerts.WithLabelValues(c.serviceName).Inc()
}

// RecordNotification counts one delivery outcome.
func (c *Collector) RecordNotification(sent bool) {
	if sent {
		c.notificationsSent.Add(1)
		promNotifications.WithLabelValues(c.serviceName, "sent").Inc()
		return
	}
	c.notificationsFail.Add(1)
	promNotifications.WithLabelValues(c.serviceName, "failed").Inc()
}

// RecordError increments the processing errors counter.
func (c *Collector) RecordError() {
	c.processingErrors.Add(1)
	promEvents.WithLabelValues(c.serviceName, "error").Inc()
}

// IncrementCustom increments a custom counter by name.
func (c *Collector) IncrementCustom(name string) {
	c.AddCustom(name, 1)
}

// AddCustom adds a value to a custom counter.
func (c *Collector) AddCustom(name string, value uint64) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(value)
	promCustom.WithLabelValues(c.serviceName, name).Add(float64(value))
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *ServiceMetrics {
	now := time.Now().UTC()
	stored := c.eventsStored.Load()

	c.rateMu.Lock()
	elapsed := now.Sub(c.lastReportTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(stored-c.lastStoredCount) / elapsed
	}
	c.rateMu.Unlock()

	var avgLatencyNs float64
	if n := c.latencyCount.Load(); n > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(n)
	}

	c.customMu.RLock()
	customCounters := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		customCounters[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &ServiceMetrics{
		ServiceName:            c.serviceName,
		StartedAt:              c.startedAt,
		LastUpdated:            now,
		Status:                 "healthy",
		EventsReceived:         c.eventsReceived.Load(),
		EventsStored:           stored,
		EventsRejected:         c.eventsRejected.Load(),
		AlertsRaised:           c.alertsRaised.Load(),
		NotificationsSent:      c.notificationsSent.Load(),
		NotificationsFail:      c.notificationsFail.Load(),
		ProcessingErrors:       c.processingErrors.Load(),
		EventsPerSecond:        rate,
		AvgProcessingLatencyNs: avgLatencyNs,
		CustomCounters:         customCounters,
	}
}

func (c *Collector) writeMetrics(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot := c.GetSnapshot()

	c.rateMu.Lock()
	c.lastReportTime = snapshot.LastUpdated
	c.lastStoredCount = snapshot.EventsStored
	c.rateMu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}
