package telemetry

import (
	"context"
	"time"

	rediscommon "wisefido-power/internal/common/redis"
	"wisefido-power/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	DefaultMirrorStream = "power:live:stream"
	mirrorMaxLen        = 86400 // one day at 1 Hz
	mirrorTimeout       = 500 * time.Millisecond
)

// RedisMirror copies every live event onto a Redis stream for consumers
// outside this process. Failures are logged; the live path never waits on them.
type RedisMirror struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewRedisMirror(client *redis.Client, stream string, logger *zap.Logger) *RedisMirror {
	if stream == "" {
		stream = DefaultMirrorStream
	}
	return &RedisMirror{client: client, stream: stream, logger: logger}
}

func (m *RedisMirror) Publish(ev models.LiveEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if _, err := rediscommon.PublishJSONToStream(ctx, m.client, m.stream, mirrorMaxLen, ev); err != nil {
		m.logger.Warn("Failed to mirror live event to redis",
			zap.String("stream", m.stream),
			zap.Int64("power_watts", ev.Power),
			zap.Error(err),
		)
	}
}
