package models

import (
	"strconv"
	"strings"
	"time"
)

// Reading one instantaneous power measurement (immutable once created)
type Reading struct {
	Timestamp  time.Time // instant the raw value was written to the store
	PowerWatts int64     // always >= 0
}

// ParseRawPower parses the producer's raw textual value.
// Empty, non-numeric and negative input is "no reading" (ok=false), never 0.
func ParseRawPower(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	watts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || watts < 0 {
		return 0, false
	}
	return watts, true
}

// NewReading builds a Reading from raw input written at the given instant
func NewReading(raw string, writtenAt time.Time) (Reading, bool) {
	watts, ok := ParseRawPower(raw)
	if !ok {
		return Reading{}, false
	}
	return Reading{Timestamp: writtenAt, PowerWatts: watts}, true
}

// HistoryPoint unit stored in the history log
type HistoryPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	PowerWatts int64     `json:"power_watts"`
}

// HistorySeries ascending by Timestamp, built fresh per query
type HistorySeries []HistoryPoint

// ChartPairs converts the series to [epoch_ms, watts] pairs for time-series charts.
// The result is never nil so it encodes as [] rather than null.
func (s HistorySeries) ChartPairs() [][2]int64 {
	pairs := make([][2]int64, 0, len(s))
	for _, p := range s {
		pairs = append(pairs, [2]int64{p.Timestamp.UnixMilli(), p.PowerWatts})
	}
	return pairs
}

// TimeRange inclusive query bounds; a zero bound is open
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the range
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// IsAll reports whether both bounds are open
func (r TimeRange) IsAll() bool {
	return r.From.IsZero() && r.To.IsZero()
}
