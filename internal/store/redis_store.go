package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"wisefido-power/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	fieldValue     = "value"
	fieldWrittenAt = "written_at"
)

// RedisReadingStore keeps the latest value in a Redis hash so producers on
// other hosts can write it. Hash fields: value (raw text), written_at (epoch ms).
type RedisReadingStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisReadingStore e.g. key "power:instant:latest"
func NewRedisReadingStore(client *redis.Client, key string) *RedisReadingStore {
	return &RedisReadingStore{client: client, key: key, now: time.Now}
}

// Write replaces both fields in one HSET
func (s *RedisReadingStore) Write(ctx context.Context, raw string) error {
	err := s.client.HSet(ctx, s.key,
		fieldValue, raw,
		fieldWrittenAt, strconv.FormatInt(s.now().UnixMilli(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write reading to redis: %w", err)
	}
	return nil
}

// Read a hash without written_at (set by hand) is stamped with the read time
func (s *RedisReadingStore) Read(ctx context.Context) (models.Reading, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return models.Reading{}, false, fmt.Errorf("failed to read reading from redis: %w", err)
	}

	raw, ok := vals[fieldValue]
	if !ok {
		return models.Reading{}, false, nil
	}

	writtenAt := s.now()
	if ms, err := strconv.ParseInt(vals[fieldWrittenAt], 10, 64); err == nil {
		writtenAt = time.UnixMilli(ms)
	}

	r, ok := models.NewReading(raw, writtenAt)
	return r, ok, nil
}
