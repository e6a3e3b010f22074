package tracker

import "backend-runtracker/internal/shared/geo"

// GhostPosition is where a virtual pacer at the target pace would be along
// the runner's own recorded path.
type GhostPosition struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	GhostDistanceKm float64 `json:"ghost_distance_km"`
	// DeltaKm is runner distance minus ghost distance; positive means ahead.
	DeltaKm float64 `json:"delta_km"`
	Ahead   bool    `json:"ahead"`
	// Clamped is set when the ghost is beyond the recorded path and is pinned
	// to its last point instead of being extrapolated.
	Clamped bool `json:"clamped"`
}

// ProjectGhost needs a positive target pace and at least two path points.
func ProjectGhost(targetPaceMinPerKm float64, elapsedSeconds int, distanceKm float64, path []GeoPoint) (GhostPosition, bool) {
	if targetPaceMinPerKm <= 0 || len(path) < 2 {
		return GhostPosition{}, false
	}

	ghostKm := float64(elapsedSeconds) / 60 / targetPaceMinPerKm
	pos := GhostPosition{
		GhostDistanceKm: ghostKm,
		DeltaKm:         distanceKm - ghostKm,
	}
	pos.Ahead = pos.DeltaKm >= 0

	if ghostKm <= 0 {
		pos.Lat, pos.Lng = path[0].Lat, path[0].Lng
		return pos, true
	}

	covered := 0.0
	for i := 0; i < len(path)-1; i++ {
		p1, p2 := path[i], path[i+1]
		seg := geo.HaversineKm(p1.Lat, p1.Lng, p2.Lat, p2.Lng)
		if covered+seg >= ghostKm {
			ratio := 0.0
			if seg > 0 {
				ratio = (ghostKm - covered) / seg
			}
			pos.Lat, pos.Lng = geo.Interpolate(p1.Lat, p1.Lng, p2.Lat, p2.Lng, ratio)
			return pos, true
		}
		covered += seg
	}

	last := path[len(path)-1]
	pos.Lat, pos.Lng = last.Lat, last.Lng
	pos.Clamped = true
	return pos, true
}
