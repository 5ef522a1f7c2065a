package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"fastpos/backend/internal/domain"
)

const DefaultKeyPrefix = "fastpos"

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	// KeyPrefix namespaces every key so several registers can share one Redis.
	KeyPrefix string
}

// RedisMetricsCache stores snapshots as JSON under
// <prefix>:metrics:<day>:<window>. Short timeouts keep a slow Redis from
// holding up the dashboard, which recomputes on any cache error.
type RedisMetricsCache struct {
	client *redis.Client
	prefix string
}

func NewRedisMetricsCache(opts RedisOptions) *RedisMetricsCache {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	prefix := strings.Trim(strings.TrimSpace(opts.KeyPrefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisMetricsCache{client: client, prefix: prefix}
}

func (c *RedisMetricsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisMetricsCache) Close() error {
	return c.client.Close()
}

func (c *RedisMetricsCache) Get(ctx context.Context, key SnapshotKey) (*domain.MetricsSnapshot, bool, error) {
	redisKey := c.redisKey(key)
	val, err := c.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", redisKey, err)
	}

	snapshot, err := decodeSnapshot(val, key)
	if err != nil {
		// Unreadable or mismatched entries are dropped and treated as a miss.
		_ = c.client.Del(ctx, redisKey).Err()
		return nil, false, nil
	}
	return &snapshot, true, nil
}

func (c *RedisMetricsCache) Set(ctx context.Context, key SnapshotKey, value *domain.MetricsSnapshot, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	redisKey := c.redisKey(key)
	if err := c.client.Set(ctx, redisKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", redisKey, err)
	}
	return nil
}

func (c *RedisMetricsCache) redisKey(key SnapshotKey) string {
	return fmt.Sprintf("%s:metrics:%s:%d", c.prefix, key.Day, key.WindowDays)
}

// decodeSnapshot strictly decodes a cached snapshot and checks that it is
// the one the key names, so a snapshot from another day or window is never
// served.
func decodeSnapshot(raw []byte, key SnapshotKey) (domain.MetricsSnapshot, error) {
	snapshot, err := domain.DecodeMetricsSnapshot(raw)
	if err != nil {
		return domain.MetricsSnapshot{}, err
	}
	if day := snapshot.WindowEnd.AddDate(0, 0, -1).Format("2006-01-02"); day != key.Day {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: snapshot for %s, want %s", domain.ErrMalformedRecord, day, key.Day)
	}
	if days := calendarDays(snapshot.WindowStart, snapshot.WindowEnd); days != key.WindowDays {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: window of %d days, want %d", domain.ErrMalformedRecord, days, key.WindowDays)
	}
	return snapshot, nil
}

func calendarDays(from time.Time, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	start := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	end := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}
