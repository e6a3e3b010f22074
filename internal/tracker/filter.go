package tracker

import "backend-runtracker/internal/shared/geo"

// Rejection reasons, also used as metric labels.
const (
	ReasonLowAccuracy = "low_accuracy"
	ReasonOutOfOrder  = "out_of_order"
)

// Reading is the filter's verdict on one fix.
type Reading struct {
	Accepted         bool
	Reason           string
	TimeDeltaSeconds float64
	SpeedMps         float64
	// Gap marks a delta too large to integrate; the fix still becomes lastFix.
	Gap   bool
	Point GeoPoint
}

type Filter struct {
	cfg Config
}

func NewFilter(cfg Config) Filter {
	return Filter{cfg: cfg}
}

// Evaluate derives the real-world speed of fix relative to last (nil when
// there is no previous accepted fix).
func (f Filter) Evaluate(fix Fix, last *GeoPoint) Reading {
	if fix.AccuracyM > f.cfg.MaxAccuracyM {
		return Reading{Reason: ReasonLowAccuracy}
	}
	if last != nil && fix.TimestampMs < last.TimestampMs {
		return Reading{Reason: ReasonOutOfOrder}
	}

	r := Reading{Accepted: true, Point: fix.point()}
	if last != nil {
		r.TimeDeltaSeconds = float64(fix.TimestampMs-last.TimestampMs) / 1000
	}

	switch {
	case fix.Speed != nil && *fix.Speed >= 0:
		r.SpeedMps = *fix.Speed
	case last != nil && r.TimeDeltaSeconds > 0:
		km := geo.HaversineKm(last.Lat, last.Lng, fix.Lat, fix.Lng)
		r.SpeedMps = km * 1000 / r.TimeDeltaSeconds
	}

	if r.SpeedMps < f.cfg.StopSpeedMps {
		r.SpeedMps = 0
	}
	r.Gap = r.TimeDeltaSeconds >= f.cfg.MaxGapSeconds
	return r
}
