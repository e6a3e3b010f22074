package tracker

import "math"

// PaceSmoother turns instantaneous speed into a clamped, exponentially smoothed
// pace in minutes per km. A displayed pace of 0 means stopped.
type PaceSmoother struct {
	alpha    float64
	min, max float64
	moving   float64

	ema    float64
	seeded bool
}

func NewPaceSmoother(cfg Config) PaceSmoother {
	return PaceSmoother{
		alpha:  cfg.SmoothingAlpha,
		min:    cfg.PaceMinMinPerKm,
		max:    cfg.PaceMaxMinPerKm,
		moving: cfg.MovingSpeedMps,
	}
}

// Update feeds one speed sample and returns the pace to display. Stationary
// samples return 0 and leave the EMA untouched so smoothing resumes cleanly.
func (p *PaceSmoother) Update(speedMps float64) float64 {
	if speedMps <= p.moving {
		return 0
	}
	raw := 1000 / speedMps / 60
	clamped := math.Min(math.Max(raw, p.min), p.max)

	if !p.seeded {
		p.ema = clamped
		p.seeded = true
		return p.ema
	}
	p.ema = p.alpha*clamped + (1-p.alpha)*p.ema
	return p.ema
}

// Value is the current EMA state, 0 before the first moving sample.
func (p *PaceSmoother) Value() float64 {
	return p.ema
}

func (p *PaceSmoother) Reset() {
	p.ema = 0
	p.seeded = false
}
