package tracker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatPace renders the average pace for a total time and distance as "M:SS"
// minutes per km. Zero time or distance yields "0:00".
func FormatPace(seconds int, distanceKm float64) string {
	if seconds <= 0 || distanceKm <= 0 {
		return "0:00"
	}
	total := float64(seconds) / 60 / distanceKm
	mins := int(math.Floor(total))
	secs := int(math.Round((total - float64(mins)) * 60))
	if secs == 60 {
		mins++
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// ParsePace converts "M:SS" back to seconds per km.
func ParsePace(pace string) (int, error) {
	mins, secs, ok := strings.Cut(strings.TrimSpace(pace), ":")
	if !ok {
		return 0, fmt.Errorf("pace %q: expected M:SS", pace)
	}
	m, err := strconv.Atoi(mins)
	if err != nil || m < 0 {
		return 0, fmt.Errorf("pace %q: bad minutes", pace)
	}
	s, err := strconv.Atoi(secs)
	if err != nil || s < 0 || s > 59 {
		return 0, fmt.Errorf("pace %q: bad seconds", pace)
	}
	return m*60 + s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
