package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DefaultMaxScale full-scale value of the gauge in watts
const DefaultMaxScale = 6000

// AlertBand classification of a reading's magnitude
type AlertBand int

const (
	BandNormal AlertBand = iota
	BandWarning
	BandCritical
)

// bandThresholds upper bounds (exclusive) per band, ascending; the last band is unbounded
var bandThresholds = []struct {
	Below int64
	Band  AlertBand
}{
	{Below: 2000, Band: BandNormal},
	{Below: 4000, Band: BandWarning},
}

// Classify maps watts onto exactly one band
func Classify(watts int64) AlertBand {
	for _, t := range bandThresholds {
		if watts < t.Below {
			return t.Band
		}
	}
	return BandCritical
}

func (b AlertBand) String() string {
	switch b {
	case BandNormal:
		return "normal"
	case BandWarning:
		return "warning"
	case BandCritical:
		return "critical"
	default:
		return fmt.Sprintf("AlertBand(%d)", int(b))
	}
}

// MarshalJSON encodes the band by name
func (b AlertBand) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON
func (b *AlertBand) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "normal":
		*b = BandNormal
	case "warning":
		*b = BandWarning
	case "critical":
		*b = BandCritical
	default:
		return fmt.Errorf("unknown alert band %q", s)
	}
	return nil
}

// GaugePercent round(watts / maxScale * 100) clamped to [0,100]
func GaugePercent(watts, maxScale int64) int {
	if watts <= 0 {
		return 0
	}
	if maxScale <= 0 {
		return 100
	}
	pct := math.Round(float64(watts) / float64(maxScale) * 100)
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// LiveEvent payload pushed to live viewers
type LiveEvent struct {
	Time         int64     `json:"time"`  // epoch seconds of the sample
	Power        int64     `json:"power"` // watts
	Band         AlertBand `json:"band"`
	GaugePercent int       `json:"gauge_percent"`

	SampledAt time.Time `json:"-"`
}

// NewLiveEvent derives band and gauge for a reading sampled at sampledAt
func NewLiveEvent(r Reading, sampledAt time.Time, maxScale int64) LiveEvent {
	return LiveEvent{
		Time:         sampledAt.Unix(),
		Power:        r.PowerWatts,
		Band:         Classify(r.PowerWatts),
		GaugePercent: GaugePercent(r.PowerWatts, maxScale),
		SampledAt:    sampledAt,
	}
}

// HistoryPoint the log entry for this event
func (e LiveEvent) HistoryPoint() HistoryPoint {
	return HistoryPoint{Timestamp: e.SampledAt, PowerWatts: e.Power}
}
