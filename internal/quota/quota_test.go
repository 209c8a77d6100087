package quota

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"versechat/internal/config"
	"versechat/internal/redis"
)

func TestGateWithoutRedisIsOpen(t *testing.T) {
	ctx := context.Background()
	for _, gate := range []*Gate{nil, NewGate(nil, 50), NewGate(nil, 0)} {
		ok, err := gate.CanSendMessage(ctx)
		if err != nil || !ok {
			t.Fatalf("unbacked gate must allow sends: ok=%v err=%v", ok, err)
		}
		if err := gate.RecordUsage(ctx); err != nil {
			t.Fatalf("unbacked RecordUsage: %v", err)
		}
	}
}

func TestDayKeyIsDateScoped(t *testing.T) {
	key := dayKey()
	if !strings.HasPrefix(key, "quota:messages:") {
		t.Fatalf("unexpected key shape: %q", key)
	}
	if !strings.Contains(key, time.Now().UTC().Format("2006-01-02")) {
		t.Fatalf("key not scoped to today: %q", key)
	}
}

func TestUntilMidnightIsWithinADay(t *testing.T) {
	d := untilMidnight()
	if d <= 0 || d > 24*time.Hour {
		t.Fatalf("untilMidnight = %s", d)
	}
}

func TestGateCountsAgainstDailyLimit(t *testing.T) {
	client, cleanup := newRedisTestClient(t)
	defer cleanup()
	ctx := context.Background()

	gate := NewGate(client, 2)
	for i := 0; i < 2; i++ {
		ok, err := gate.CanSendMessage(ctx)
		if err != nil || !ok {
			t.Fatalf("send %d: ok=%v err=%v", i, ok, err)
		}
		if err := gate.RecordUsage(ctx); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	ok, err := gate.CanSendMessage(ctx)
	if err != nil {
		t.Fatalf("CanSendMessage after limit: %v", err)
	}
	if ok {
		t.Fatalf("gate still open after the daily limit")
	}

	// the counter must expire by end of day
	ttl, err := client.Raw().TTL(ctx, dayKey()).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > 24*time.Hour {
		t.Fatalf("counter ttl = %s", ttl)
	}
}

func newRedisTestClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed quota tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{Host: host, Port: port, DB: db},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if raw := client.Raw(); raw != nil {
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	return client, func() { client.Close() }
}
