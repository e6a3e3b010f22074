package live

import (
	"bytes"
	"encoding/json"
	"errors"

	"backend-runtracker/internal/tracker"
)

// FixPayload is the geolocation wire format:
// {"coords":{"latitude":..,"longitude":..,"altitude":..,"speed":..,"accuracy":..},"timestamp":..}
type FixPayload struct {
	Coords struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Altitude  *float64 `json:"altitude"`
		Speed     *float64 `json:"speed"`
		Accuracy  *float64 `json:"accuracy"`
	} `json:"coords"`
	// Timestamp is epoch milliseconds; some browsers report a fractional part.
	Timestamp float64 `json:"timestamp"`
}

var ErrNoFixes = errors.New("no fixes in payload")

func (p FixPayload) Fix() (tracker.Fix, error) {
	if p.Coords.Latitude == nil || p.Coords.Longitude == nil {
		return tracker.Fix{}, errors.New("fix without coordinates")
	}
	fix := tracker.Fix{
		Lat:         *p.Coords.Latitude,
		Lng:         *p.Coords.Longitude,
		Altitude:    p.Coords.Altitude,
		Speed:       p.Coords.Speed,
		TimestampMs: int64(p.Timestamp),
	}
	if p.Coords.Accuracy != nil {
		fix.AccuracyM = *p.Coords.Accuracy
	}
	return fix, nil
}

// ParseFixes accepts a single fix object or an array of them.
func ParseFixes(body []byte) ([]tracker.Fix, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrNoFixes
	}

	var payloads []FixPayload
	if body[0] == '[' {
		if err := json.Unmarshal(body, &payloads); err != nil {
			return nil, err
		}
	} else {
		var one FixPayload
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, err
		}
		payloads = append(payloads, one)
	}
	if len(payloads) == 0 {
		return nil, ErrNoFixes
	}

	fixes := make([]tracker.Fix, 0, len(payloads))
	for _, p := range payloads {
		fix, err := p.Fix()
		if err != nil {
			return nil, err
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}
