package tracker

import (
	"fmt"
	"math"
)

// METForSpeed returns the metabolic equivalent for a speed in km/h.
func METForSpeed(kph float64) float64 {
	switch {
	case kph < 4:
		return 3.5 // walk
	case kph < 8:
		return 7.0 // jog
	case kph < 11:
		return 9.8 // run
	case kph < 14:
		return 11.5 // fast run
	default:
		return 13.5 // sprint
	}
}

// Increment describes what one accepted fix added to the session.
type Increment struct {
	DistanceKm   float64
	CaloriesKcal float64
	// SplitKm is the kilometer boundary crossed by this fix, 0 if none.
	SplitKm int
	// SplitPace is the rounded average pace (min/km) at the split.
	SplitPace int
}

// SplitCue is the spoken text for a kilometer split.
func (i Increment) SplitCue() string {
	return fmt.Sprintf("Distance %d kilometers. Pace %d.", i.SplitKm, i.SplitPace)
}

// Integrator accumulates distance, calories and path. Both totals are driven
// by the same speed and time delta so they cannot drift apart.
type Integrator struct {
	maxGap   float64
	weightKg float64

	distanceKm   float64
	caloriesKcal float64
	path         []GeoPoint
	lastWholeKm  int
}

func NewIntegrator(cfg Config, weightKg float64) Integrator {
	in := Integrator{maxGap: cfg.MaxGapSeconds}
	in.Reset(weightKg, cfg.DefaultWeightKg)
	return in
}

// Reset clears all totals. A non-positive weight falls back to defaultKg.
func (in *Integrator) Reset(weightKg, defaultKg float64) {
	if weightKg <= 0 {
		weightKg = defaultKg
	}
	in.weightKg = weightKg
	in.distanceKm = 0
	in.caloriesKcal = 0
	in.path = nil
	in.lastWholeKm = 0
}

// Apply integrates one fix. It is a no-op unless speed > 0 and
// 0 < timeDelta < maxGap; elapsedSeconds only feeds the split pace.
func (in *Integrator) Apply(speedMps, timeDeltaSeconds float64, p GeoPoint, elapsedSeconds int) (Increment, bool) {
	if speedMps <= 0 || timeDeltaSeconds <= 0 || timeDeltaSeconds >= in.maxGap {
		return Increment{}, false
	}

	inc := Increment{DistanceKm: speedMps * timeDeltaSeconds / 1000}
	in.distanceKm += inc.DistanceKm

	if whole := int(math.Floor(in.distanceKm)); whole > in.lastWholeKm {
		in.lastWholeKm = whole
		inc.SplitKm = whole
		if elapsedSeconds > 0 {
			inc.SplitPace = int(math.Round(float64(elapsedSeconds) / 60 / in.distanceKm))
		}
	}

	met := METForSpeed(speedMps * 3.6)
	inc.CaloriesKcal = met * in.weightKg * (timeDeltaSeconds / 3600)
	in.caloriesKcal += inc.CaloriesKcal

	in.path = append(in.path, p)
	return inc, true
}

func (in *Integrator) DistanceKm() float64   { return in.distanceKm }
func (in *Integrator) CaloriesKcal() float64 { return in.caloriesKcal }
func (in *Integrator) LastWholeKm() int      { return in.lastWholeKm }
func (in *Integrator) WeightKg() float64     { return in.weightKg }
func (in *Integrator) PathLen() int          { return len(in.path) }

// Path returns a copy of the recorded points.
func (in *Integrator) Path() []GeoPoint {
	out := make([]GeoPoint, len(in.path))
	copy(out, in.path)
	return out
}

// LiveCalories is the display shortcut used before any MET data exists.
func LiveCalories(distanceKm, perKm float64) float64 {
	return distanceKm * perKm
}
