package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"versechat/internal/redis"
)

// Gate meters sends against a daily message budget kept in redis. With no
// redis client the gate is wide open; metering never blocks the assistant
// on infrastructure trouble.
type Gate struct {
	client *redis.Client
	limit  int
}

func NewGate(client *redis.Client, dailyLimit int) *Gate {
	return &Gate{client: client, limit: dailyLimit}
}

// CanSendMessage reports whether today's budget still has room.
func (g *Gate) CanSendMessage(ctx context.Context) (bool, error) {
	if g == nil || g.client == nil || g.limit <= 0 {
		return true, nil
	}
	val, err := g.client.Get(ctx, dayKey())
	if err != nil {
		if err == redis.ErrCacheMiss {
			return true, nil
		}
		return false, fmt.Errorf("read usage counter: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return false, fmt.Errorf("decode usage counter: %w", err)
	}
	return count < g.limit, nil
}

// RecordUsage counts one sent message against today's budget.
func (g *Gate) RecordUsage(ctx context.Context) error {
	if g == nil || g.client == nil || g.limit <= 0 {
		return nil
	}
	key := dayKey()
	count, err := g.client.Incr(ctx, key)
	if err != nil {
		return fmt.Errorf("increment usage counter: %w", err)
	}
	if count == 1 {
		if err := g.client.Expire(ctx, key, untilMidnight()); err != nil {
			return fmt.Errorf("expire usage counter: %w", err)
		}
	}
	return nil
}

func dayKey() string {
	return fmt.Sprintf("quota:messages:%s", time.Now().UTC().Format("2006-01-02"))
}

func untilMidnight() time.Duration {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(now)
}
