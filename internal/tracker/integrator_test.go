package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMETForSpeed(t *testing.T) {
	cases := []struct {
		kph  float64
		want float64
	}{
		{0, 3.5},
		{3.9, 3.5},
		{4, 7.0},
		{7.99, 7.0},
		{8, 9.8},
		{11, 11.5},
		{13.9, 11.5},
		{14, 13.5},
		{25, 13.5},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, METForSpeed(c.kph), "kph=%v", c.kph)
	}
}

func TestIntegratorGuards(t *testing.T) {
	in := NewIntegrator(DefaultConfig(), 70)
	p := GeoPoint{Lat: 1, Lng: 1}

	_, ok := in.Apply(0, 1, p, 1)
	assert.False(t, ok, "zero speed")
	_, ok = in.Apply(3, 0, p, 1)
	assert.False(t, ok, "zero delta")
	_, ok = in.Apply(3, -2, p, 1)
	assert.False(t, ok, "negative delta")
	_, ok = in.Apply(3, 30, p, 1)
	assert.False(t, ok, "gap")

	assert.Zero(t, in.DistanceKm())
	assert.Zero(t, in.CaloriesKcal())
	assert.Empty(t, in.Path())

	_, ok = in.Apply(3, 29, p, 1)
	assert.True(t, ok)
}

func TestIntegratorDistanceAndCalories(t *testing.T) {
	in := NewIntegrator(DefaultConfig(), 70)

	inc, ok := in.Apply(3, 10, GeoPoint{Lat: 1, Lng: 2}, 10)
	require.True(t, ok)

	assert.InDelta(t, 0.03, inc.DistanceKm, 1e-12)
	// 3 m/s is 10.8 km/h, MET 9.8.
	assert.InDelta(t, 9.8*70*10/3600, inc.CaloriesKcal, 1e-9)
	assert.InDelta(t, 0.03, in.DistanceKm(), 1e-12)
	assert.Equal(t, inc.CaloriesKcal, in.CaloriesKcal())
	assert.Zero(t, inc.SplitKm)
	assert.Len(t, in.Path(), 1)
}

func TestIntegratorSplitOncePerKilometer(t *testing.T) {
	in := NewIntegrator(DefaultConfig(), 70)
	p := GeoPoint{}

	var splits []Increment
	for i := 1; i <= 9; i++ {
		inc, ok := in.Apply(10, 25, p, i*25)
		require.True(t, ok)
		if inc.SplitKm > 0 {
			splits = append(splits, inc)
		}
	}

	require.Len(t, splits, 2)
	assert.Equal(t, 1, splits[0].SplitKm)
	assert.Equal(t, 2, splits[0].SplitPace)
	assert.Equal(t, "Distance 1 kilometers. Pace 2.", splits[0].SplitCue())
	assert.Equal(t, 2, splits[1].SplitKm)
	assert.Equal(t, 2, in.LastWholeKm())
}

func TestIntegratorWeightFallback(t *testing.T) {
	in := NewIntegrator(DefaultConfig(), 0)
	assert.Equal(t, 70.0, in.WeightKg())

	in.Reset(82, 70)
	assert.Equal(t, 82.0, in.WeightKg())
}

func TestIntegratorPathIsCopied(t *testing.T) {
	in := NewIntegrator(DefaultConfig(), 70)
	in.Apply(3, 1, GeoPoint{Lat: 1}, 1)

	path := in.Path()
	path[0].Lat = 99
	assert.Equal(t, 1.0, in.Path()[0].Lat)
}

func TestLiveCalories(t *testing.T) {
	assert.InDelta(t, 30.0, LiveCalories(0.5, 60), 1e-9)
	assert.Zero(t, LiveCalories(0, 60))
}
