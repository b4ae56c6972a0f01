package sampler

import (
	"context"
	"sync"
	"time"

	"wisefido-power/internal/metrics"
	"wisefido-power/internal/models"

	"go.uber.org/zap"
)

const DefaultInterval = time.Second

// ReadingSource latest instantaneous reading, ok=false when none is available
type ReadingSource interface {
	Read(ctx context.Context) (models.Reading, bool, error)
}

// Publisher receives every sampled event (live hub, redis mirror)
type Publisher interface {
	Publish(ev models.LiveEvent)
}

type HistoryAppender interface {
	Append(ctx context.Context, p models.HistoryPoint) error
}

type Config struct {
	Interval time.Duration
	MaxScale int64
	// MaxReadingAge readings older than this are skipped; 0 disables the check
	MaxReadingAge time.Duration
}

// Sampler is the only publisher to the live channel and the only writer of
// the history log.
type Sampler struct {
	cfg        Config
	source     ReadingSource
	publishers []Publisher
	history    HistoryAppender
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	latest models.LiveEvent
	has    bool
}

func NewSampler(cfg Config, source ReadingSource, history HistoryAppender, logger *zap.Logger, m *metrics.Metrics, publishers ...Publisher) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxScale <= 0 {
		cfg.MaxScale = models.DefaultMaxScale
	}
	return &Sampler{
		cfg:        cfg,
		source:     source,
		publishers: publishers,
		history:    history,
		logger:     logger,
		metrics:    m,
	}
}

// Run ticks until ctx is cancelled
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Sampler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int64("max_scale", s.cfg.MaxScale),
		zap.Duration("max_reading_age", s.cfg.MaxReadingAge),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sampler stopped")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick samples once at now. It reports whether an event was published.
func (s *Sampler) Tick(ctx context.Context, now time.Time) bool {
	now = now.Truncate(time.Millisecond)

	r, ok, err := s.source.Read(ctx)
	if err != nil {
		s.metrics.TickSkipped()
		s.logger.Warn("Failed to read instantaneous power", zap.Error(err))
		return false
	}
	if !ok {
		s.metrics.TickSkipped()
		s.logger.Debug("No reading available, skipping tick")
		return false
	}
	if s.cfg.MaxReadingAge > 0 && now.Sub(r.Timestamp) > s.cfg.MaxReadingAge {
		s.metrics.TickSkipped()
		s.logger.Debug("Reading is stale, skipping tick",
			zap.Time("written_at", r.Timestamp),
			zap.Duration("max_age", s.cfg.MaxReadingAge),
		)
		return false
	}

	ev := models.NewLiveEvent(r, now, s.cfg.MaxScale)

	s.mu.Lock()
	s.latest, s.has = ev, true
	s.mu.Unlock()

	for _, p := range s.publishers {
		p.Publish(ev)
	}
	s.metrics.SampleTaken(ev.Power)

	if err := s.history.Append(ctx, ev.HistoryPoint()); err != nil {
		s.metrics.AppendFailed()
		s.logger.Error("Failed to append history point",
			zap.Time("timestamp", now),
			zap.Int64("power_watts", ev.Power),
			zap.Error(err),
		)
	}
	return true
}

// Latest most recently published event
func (s *Sampler) Latest() (models.LiveEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}
