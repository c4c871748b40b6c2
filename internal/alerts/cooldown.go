package alerts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownKeyPrefix prefixes every cool-down key in Redis.
const CooldownKeyPrefix = "alerts:cooldown:"

// Cooldown suppresses identical alerts raised within a time window. The
// first request in a window claims the key with SET NX PX.
type Cooldown struct {
	rdb    *redis.Client
	window time.Duration
}

// NewCooldown creates a cool-down over rdb.
func NewCooldown(rdb *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{rdb: rdb, window: window}
}

// Allow reports whether req is the first of its kind in the current window.
func (c *Cooldown) Allow(ctx context.Context, req AlertRequest) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, CooldownKey(req), time.Now().UTC().Format(time.RFC3339), c.window).Result()
	if err != nil {
		return false, fmt.Errorf("cool-down check failed: %w", err)
	}
	return ok, nil
}

// CooldownKey identifies "the same alert": school, device, type and message.
func CooldownKey(req AlertRequest) string {
	device := "-"
	if req.DeviceID != nil {
		device = fmt.Sprintf("%d", *req.DeviceID)
	}
	sum := sha1.Sum([]byte(req.Message))
	return fmt.Sprintf("%s%d:%s:%s:%s", CooldownKeyPrefix, req.SchoolID, device, req.AlertType, hex.EncodeToString(sum[:8]))
}
