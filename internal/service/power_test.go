package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wisefido-power/internal/config"
	"wisefido-power/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Reading.Backend = config.BackendFile
	cfg.Reading.Path = filepath.Join(dir, "curr_pow.txt")
	cfg.History.Backend = config.BackendFile
	cfg.History.Path = filepath.Join(dir, "pow_history.csv")
	cfg.Sampler.Interval = 10 * time.Millisecond
	cfg.Sampler.MaxScale = 6000
	cfg.Live.BufferSize = 64
	cfg.Live.WriteTimeout = time.Second
	return cfg
}

func TestPowerService_EndToEnd(t *testing.T) {
	svc, err := NewPowerService(testConfig(t), zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	sub := svc.Hub().Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))

	require.NoError(t, svc.Store().Write(ctx, "1500"))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, int64(1500), ev.Power)
		assert.Equal(t, models.BandNormal, ev.Band)
		assert.Equal(t, 25, ev.GaugePercent)
	case <-time.After(2 * time.Second):
		t.Fatal("no live event received")
	}

	require.Eventually(t, func() bool {
		pairs, err := svc.Queries().Query(ctx, "", "")
		return err == nil && len(pairs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	latest, ok := svc.Sampler().Latest()
	require.True(t, ok)
	assert.Equal(t, int64(1500), latest.Power)

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, svc.Stop(stopCtx))
	assert.False(t, sub.Connected())
}

func TestPowerService_RedisBackendsAndMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Reading.Backend = config.BackendRedis
	cfg.Reading.RedisKey = "power:instant:latest"
	cfg.Live.Mirror.Enabled = true
	cfg.Live.Mirror.Stream = "power:live:stream"

	svc, err := NewPowerService(cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Store().Write(ctx, "4200"))

	require.Eventually(t, func() bool {
		stream, err := mr.Stream("power:live:stream")
		return err == nil && len(stream) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, svc.Stop(context.Background()))
}

func TestPowerService_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reading.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := NewPowerService(cfg, zap.NewNop(), prometheus.NewRegistry())
	assert.Error(t, err)
}
