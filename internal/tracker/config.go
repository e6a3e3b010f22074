package tracker

import "time"

// Config holds the engine thresholds.
type Config struct {
	MaxAccuracyM   float64 // meters - fixes less accurate than this are dropped
	StopSpeedMps   float64 // m/s - below this the runner is treated as standing
	MovingSpeedMps float64 // m/s - minimum speed that produces a pace
	MaxGapSeconds  float64 // seconds - larger fix gaps (tunnels) add no distance

	PaceMinMinPerKm float64
	PaceMaxMinPerKm float64
	SmoothingAlpha  float64 // EMA weight of the newest pace sample

	DefaultWeightKg   float64
	LiveCaloriesPerKm float64 // display-only estimate before MET data exists

	CountdownStep time.Duration
	TickInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAccuracyM:      25,
		StopSpeedMps:      0.8, // ~2.9 km/h
		MovingSpeedMps:    0.1,
		MaxGapSeconds:     30,
		PaceMinMinPerKm:   2,
		PaceMaxMinPerKm:   30,
		SmoothingAlpha:    0.3,
		DefaultWeightKg:   70,
		LiveCaloriesPerKm: 60,
		CountdownStep:     time.Second,
		TickInterval:      time.Second,
	}
}
