package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritahealth/clinic-platform/pkg/logging"
)

// AvailabilityCache is an opt-in redis snapshot of computed day
// availability. It exists so a hot staff calendar survives multi
// instance deployment without any in-process state; it is never
// consulted by the booking conflict guard, whose only source of truth
// is the storage uniqueness constraint.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewAvailabilityCache returns nil (caching disabled) unless both a
// client and a positive TTL are supplied.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration, logger *logging.Logger) *AvailabilityCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(req AvailabilityRequest) string {
	hours := "default"
	if req.Hours != nil {
		hours = fmt.Sprintf("%d-%d", req.Hours.StartMinutes, req.Hours.EndMinutes)
	}
	return fmt.Sprintf("availability:%s:%s:%s:%s:%d:%s",
		req.ClinicID, req.StaffID,
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"),
		req.SlotDuration, hours)
}

// Get returns a cached snapshot. Any redis or decode failure is a miss.
func (c *AvailabilityCache) Get(ctx context.Context, req AvailabilityRequest) ([]DayAvailability, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKey(req)).Bytes()
	if err != nil {
		return nil, false
	}
	var days []DayAvailability
	if err := json.Unmarshal(raw, &days); err != nil {
		c.logger.Warn("availability cache decode failed", "error", err)
		return nil, false
	}
	return days, true
}

// Set stores a snapshot with the configured TTL. Failures are logged
// and swallowed; the cache is advisory.
func (c *AvailabilityCache) Set(ctx context.Context, req AvailabilityRequest, days []DayAvailability) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(days)
	if err != nil {
		c.logger.Warn("availability cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(req), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "error", err)
	}
}
