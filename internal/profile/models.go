package profile

import "time"

// Defaults for users that never filled in their profile.
const (
	DefaultWeightKg = 70.0
	DefaultHeightCm = 175.0
	DefaultDOB      = "2000-01-01"
	DefaultGender   = "Prefer not to say"
	DefaultTargetKm = 800.0
)

type Profile struct {
	UserID   string  `json:"user_id"`
	WeightKg float64 `json:"weight"`
	HeightCm float64 `json:"height"`
	DOB      string  `json:"dob"`
	Gender   string  `json:"gender"`
}

// UpdateRequest only touches the fields that are present.
type UpdateRequest struct {
	Weight *float64 `json:"weight" validate:"omitempty,gt=0,lte=400"`
	Height *float64 `json:"height" validate:"omitempty,gt=0,lte=300"`
	DOB    *string  `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Gender *string  `json:"gender" validate:"omitempty,max=32"`
}

type Shoe struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	DistanceKm float64   `json:"distance"`
	TargetKm   float64   `json:"target"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Worn reports whether the shoe has run past its mileage target.
func (s Shoe) Worn() bool {
	return s.DistanceKm > s.TargetKm
}

type CreateShoeRequest struct {
	Name     string  `json:"name" validate:"required,max=80"`
	TargetKm float64 `json:"target" validate:"omitempty,gt=0"`
}
