package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics power monitor counters and gauges. A nil *Metrics is a no-op.
type Metrics struct {
	samples          prometheus.Counter
	ticksSkipped     prometheus.Counter
	appendFailures   prometheus.Counter
	droppedViewers   prometheus.Counter
	liveSubscribers  prometheus.Gauge
	lastWatts        prometheus.Gauge
	historyQueryTime prometheus.Histogram
}

// New registers every collector on reg (prometheus.DefaultRegisterer in main,
// a fresh registry in tests).
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_samples_total",
			Help: "Readings sampled and published to the live channel.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_ticks_skipped_total",
			Help: "Sampler ticks skipped because no valid reading was available.",
		}),
		appendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_history_append_failures_total",
			Help: "History appends that failed or were rejected.",
		}),
		droppedViewers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "power_live_dropped_subscribers_total",
			Help: "Live viewers removed because they could not keep up.",
		}),
		liveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "power_live_subscribers",
			Help: "Currently connected live viewers.",
		}),
		lastWatts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "power_last_watts",
			Help: "Most recently sampled power in watts.",
		}),
		historyQueryTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "power_history_query_seconds",
			Help:    "History range query latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.samples, m.ticksSkipped, m.appendFailures, m.droppedViewers,
		m.liveSubscribers, m.lastWatts, m.historyQueryTime,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SampleTaken(watts int64) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.lastWatts.Set(float64(watts))
}

func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.ticksSkipped.Inc()
}

func (m *Metrics) AppendFailed() {
	if m == nil {
		return
	}
	m.appendFailures.Inc()
}

func (m *Metrics) SubscriberDropped() {
	if m == nil {
		return
	}
	m.droppedViewers.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.liveSubscribers.Set(float64(n))
}

func (m *Metrics) ObserveHistoryQuery(seconds float64) {
	if m == nil {
		return
	}
	m.historyQueryTime.Observe(seconds)
}
