package telemetry

import (
	"context"
	"encoding/json"
	"testing"

	rediscommon "wisefido-power/internal/common/redis"
	"wisefido-power/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisMirror_PublishAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mirror := NewRedisMirror(client, "", zap.NewNop())
	mirror.Publish(event(1500))
	mirror.Publish(event(6500))

	msgs, err := rediscommon.ReadRange(context.Background(), client, DefaultMirrorStream, "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var ev models.LiveEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[1].Values["data"].(string)), &ev))
	assert.Equal(t, int64(6500), ev.Power)
	assert.Equal(t, models.BandCritical, ev.Band)
	assert.Equal(t, 100, ev.GaugePercent)
}

func TestRedisMirror_RedisDownDoesNotPanic(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	mirror := NewRedisMirror(client, "power:test", zap.NewNop())
	assert.NotPanics(t, func() { mirror.Publish(event(10)) })
}
