package repository

import (
	"context"
	"errors"
	"time"

	"wisefido-power/internal/models"
)

var (
	// ErrOutOfOrder append with a timestamp not strictly after the last one
	ErrOutOfOrder = errors.New("history point out of order")
	// ErrStorage history storage could not complete the operation
	ErrStorage = errors.New("history storage fault")
)

// HistoryLog append-only, strictly time-ordered record of power readings.
//
// Append rejects points that are not strictly after the last appended point
// (ErrOutOfOrder) and leaves the log unchanged. Query returns every point with
// From <= t <= To in ascending order; an all-open range returns the whole log.
// A query never observes a partially appended point.
type HistoryLog interface {
	Append(ctx context.Context, p models.HistoryPoint) error
	Query(ctx context.Context, r models.TimeRange) (models.HistorySeries, error)
}

// timestamps are persisted with millisecond precision
func normalize(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}

// legacySecondsCutoff timestamps below this are epoch seconds, not milliseconds
// (1e11 ms is March 1973; 1e11 s is far in the future).
const legacySecondsCutoff = 100_000_000_000

func fromEpoch(v int64) time.Time {
	if v < legacySecondsCutoff {
		return time.Unix(v, 0)
	}
	return time.UnixMilli(v)
}
