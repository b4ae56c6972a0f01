package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wisefido-power/internal/metrics"
	"wisefido-power/internal/models"
	"wisefido-power/internal/repository"

	"go.uber.org/zap"
)

var ErrMalformedRange = errors.New("malformed query range")

// HistoryQueryService answers chart range queries against the history log
type HistoryQueryService struct {
	history repository.HistoryLog
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHistoryQueryService(history repository.HistoryLog, logger *zap.Logger, m *metrics.Metrics) *HistoryQueryService {
	return &HistoryQueryService{history: history, logger: logger, metrics: m}
}

// Query returns [epoch_ms, watts] pairs for from <= t <= to, ascending.
// Empty bounds are open.
func (s *HistoryQueryService) Query(ctx context.Context, fromRaw, toRaw string) ([][2]int64, error) {
	series, err := s.QuerySeries(ctx, fromRaw, toRaw)
	if err != nil {
		return nil, err
	}
	return series.ChartPairs(), nil
}

func (s *HistoryQueryService) QuerySeries(ctx context.Context, fromRaw, toRaw string) (models.HistorySeries, error) {
	r, err := ParseTimeRange(fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	series, err := s.history.Query(ctx, r)
	s.metrics.ObserveHistoryQuery(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("History query failed",
			zap.String("from", fromRaw),
			zap.String("to", toRaw),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	s.logger.Debug("History query",
		zap.String("from", fromRaw),
		zap.String("to", toRaw),
		zap.Int("points", len(series)),
	)
	return series, nil
}

// ParseTimeRange bounds are epoch milliseconds or RFC3339
func ParseTimeRange(fromRaw, toRaw string) (models.TimeRange, error) {
	from, err := parseBound(fromRaw)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: from: %v", ErrMalformedRange, err)
	}
	to, err := parseBound(toRaw)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: to: %v", ErrMalformedRange, err)
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return models.TimeRange{}, fmt.Errorf("%w: from is after to", ErrMalformedRange)
	}
	return models.TimeRange{From: from, To: to}, nil
}

func parseBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms < 0 {
			return time.Time{}, fmt.Errorf("negative timestamp %d", ms)
		}
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
	}
	return t, nil
}
