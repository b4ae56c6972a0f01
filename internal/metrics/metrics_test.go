package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SampleTaken(1500)
	m.SampleTaken(6500)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.samples))
	assert.Equal(t, 6500.0, testutil.ToFloat64(m.lastWatts))

	m.TickSkipped()
	m.AppendFailed()
	m.SubscriberDropped()
	m.SetSubscribers(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.appendFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedViewers))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.liveSubscribers))

	m.ObserveHistoryQuery(0.02)
	assert.Equal(t, 1, testutil.CollectAndCount(m.historyQueryTime))

	n, err := testutil.GatherAndCount(reg, "power_samples_total", "power_live_subscribers")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SampleTaken(1)
		m.TickSkipped()
		m.AppendFailed()
		m.SubscriberDropped()
		m.SetSubscribers(1)
		m.ObserveHistoryQuery(1)
	})
}
