package tracker

import "time"

type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
)

// GeoPoint is a recorded position. Points are never mutated once appended to a path.
type GeoPoint struct {
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	TimestampMs int64    `json:"timestamp"`
	AccuracyM   *float64 `json:"accuracy,omitempty"`
}

// Fix is a raw sample from the GPS source. Speed is the device (Doppler) speed
// in m/s; nil or negative means the device did not report one.
type Fix struct {
	Lat         float64
	Lng         float64
	Altitude    *float64
	Speed       *float64
	AccuracyM   float64
	TimestampMs int64
}

func (f Fix) point() GeoPoint {
	acc := f.AccuracyM
	return GeoPoint{Lat: f.Lat, Lng: f.Lng, TimestampMs: f.TimestampMs, AccuracyM: &acc}
}

type GhostSettings struct {
	TargetPaceMinPerKm float64 `json:"target_pace_min_per_km"`
}

type StartOptions struct {
	// GhostPace in minutes per km; zero disables the ghost.
	GhostPace float64
}

// Snapshot is an immutable copy of the session handed to readers.
type Snapshot struct {
	Status           Status         `json:"status"`
	ElapsedSeconds   int            `json:"elapsed_seconds"`
	DistanceKm       float64        `json:"distance_km"`
	CaloriesKcal     float64        `json:"calories_kcal"`
	LiveCaloriesKcal float64        `json:"live_calories_kcal"`
	SmoothedPace     float64        `json:"smoothed_pace"`
	LastWholeKm      int            `json:"last_whole_km"`
	Path             []GeoPoint     `json:"path"`
	PathPoints       int            `json:"path_points"`
	LastFix          *GeoPoint      `json:"last_fix,omitempty"`
	Ghost            *GhostSettings `json:"ghost,omitempty"`
}

// FinishedRun is the payload handed to the run store when a session stops.
type FinishedRun struct {
	ClientID string     `json:"client_id"`
	Time     int        `json:"time"`
	Distance float64    `json:"distance"`
	Pace     string     `json:"pace"`
	Calories int        `json:"calories"`
	Path     []GeoPoint `json:"path"`
	Date     time.Time  `json:"date"`
}
