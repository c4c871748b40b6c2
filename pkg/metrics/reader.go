package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ServiceNames lists the binaries that publish snapshots.
var ServiceNames = []string{
	"guardian-api",
	"notifier",
}

// Reader reads service snapshots back from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetServiceMetrics retrieves the snapshot for a single binary.
// Snapshots older than MetricsTTL are reported as unhealthy.
func (r *Reader) GetServiceMetrics(ctx context.Context, serviceName string) (*ServiceMetrics, error) {
	data, err := r.redis.Get(ctx, MetricsKeyPrefix+serviceName).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var m ServiceMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if time.Since(m.LastUpdated) > MetricsTTL {
		m.Status = "unhealthy"
	}
	return &m, nil
}

// GetAllServiceMetrics retrieves snapshots for every known binary, skipping
// those that have not reported.
func (r *Reader) GetAllServiceMetrics(ctx context.Context) (map[string]*ServiceMetrics, error) {
	result := make(map[string]*ServiceMetrics, len(ServiceNames))
	for _, name := range ServiceNames {
		m, err := r.GetServiceMetrics(ctx, name)
		if err != nil {
			continue
		}
		result[name] = m
	}
	return result, nil
}
