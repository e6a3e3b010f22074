package runs

import (
	"time"

	"backend-runtracker/internal/tracker"
)

type Run struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	ClientID    string             `json:"client_id,omitempty"`
	Date        time.Time          `json:"date"`
	Time        int                `json:"time"`
	Distance    float64            `json:"distance"`
	Pace        string             `json:"pace"`
	PaceSeconds int                `json:"pace_seconds"`
	Calories    int                `json:"calories"`
	Path        []tracker.GeoPoint `json:"path"`
	Deleted     bool               `json:"deleted"`
	Caption     string             `json:"caption"`
	IsPosted    bool               `json:"is_posted"`
	CreatedAt   time.Time          `json:"created_at"`

	// Inserted is false when a repeated client_id matched an existing row.
	Inserted bool `json:"-"`
}

// CreateRunRequest is the save payload. Numeric fields are pointers so a
// missing value can be told apart from zero.
type CreateRunRequest struct {
	ClientID string             `json:"client_id" validate:"omitempty,max=64"`
	Time     *int               `json:"time" validate:"required,min=0"`
	Distance *float64           `json:"distance" validate:"required,min=0"`
	Pace     string             `json:"pace" validate:"required"`
	Calories *float64           `json:"calories" validate:"required,min=0"`
	Path     []tracker.GeoPoint `json:"path"`
	Date     *time.Time         `json:"date"`
}

type PostRequest struct {
	Caption string `json:"caption"`
}

// FieldError mirrors one entry of the {errors: [...]} validation payload.
type FieldError struct {
	Msg   string `json:"msg"`
	Param string `json:"param"`
	Value any    `json:"value,omitempty"`
}

type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	return v.Errors[0].Param + ": " + v.Errors[0].Msg
}
