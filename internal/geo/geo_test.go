package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationBearingRoundTrip(t *testing.T) {
	origins := []Point{
		{Lat: 22.3193, Lng: 114.1694},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 51.5, Lng: -0.12},
		{Lat: 0, Lng: 179.999},
		{Lat: 60.1, Lng: -179.99},
	}
	for _, o := range origins {
		for bearing := 0.0; bearing < 360; bearing += 15 {
			for _, dist := range []float64{10, 100, 1000, 2500, 5000} {
				dest := DestinationPoint(o, bearing, dist)
				got := CalcBearing(o, dest)
				assert.InDelta(t, 0, AngleDiff(got, bearing), 1e-6,
					"origin=%v bearing=%v dist=%v got=%v", o, bearing, dist, got)
				assert.InDelta(t, dist, Distance(o, dest), 1e-3)
			}
		}
	}
}

func TestDestinationPointZeroDistance(t *testing.T) {
	o := Point{Lat: 22.3193, Lng: 114.1694}
	d := DestinationPoint(o, 123, 0)
	assert.InDelta(t, o.Lat, d.Lat, 1e-12)
	assert.InDelta(t, o.Lng, d.Lng, 1e-12)
}

func TestDestinationPointWrapsLongitude(t *testing.T) {
	d := DestinationPoint(Point{Lat: 0, Lng: 179.9999}, 90, 1000)
	assert.GreaterOrEqual(t, d.Lng, -180.0)
	assert.Less(t, d.Lng, 180.0)
	assert.Less(t, d.Lng, 0.0)
}

func TestDestinationPointIsDeterministic(t *testing.T) {
	o := Point{Lat: 22.3193, Lng: 114.1694}
	a := DestinationPoint(o, 310, 100)
	b := DestinationPoint(o, 310, 100)
	require.Equal(t, a, b)
}

func TestCalcBearingCardinal(t *testing.T) {
	o := Point{Lat: 10, Lng: 10}
	assert.InDelta(t, 0, CalcBearing(o, Point{Lat: 11, Lng: 10}), 1e-9)
	assert.InDelta(t, 180, CalcBearing(o, Point{Lat: 9, Lng: 10}), 1e-9)
	assert.InDelta(t, 90, CalcBearing(Point{}, Point{Lat: 0, Lng: 1}), 1e-9)
	assert.InDelta(t, 270, CalcBearing(Point{}, Point{Lat: 0, Lng: -1}), 1e-9)
}

func TestMidpointIsEquidistant(t *testing.T) {
	a := Point{Lat: 22.3193, Lng: 114.1694}
	b := DestinationPoint(a, 310, 100)
	m := Midpoint(a, b)
	assert.InDelta(t, Distance(a, m), Distance(m, b), 1e-6)
	assert.InDelta(t, 50, Distance(a, m), 1e-3)
}

func TestNormalizeBearing(t *testing.T) {
	cases := map[float64]float64{0: 0, 360: 0, -90: 270, 720 + 45: 45, 359.5: 359.5, -360: 0}
	for in, want := range cases {
		assert.InDelta(t, want, NormalizeBearing(in), 1e-12, "in=%v", in)
	}
}

func TestAngleDiff(t *testing.T) {
	assert.InDelta(t, 2, AngleDiff(359, 1), 1e-12)
	assert.InDelta(t, 180, AngleDiff(0, 180), 1e-12)
	assert.InDelta(t, 10, AngleDiff(40, 30), 1e-12)
}

func TestValid(t *testing.T) {
	assert.True(t, Point{Lat: 1, Lng: 2}.Valid())
	assert.False(t, Point{Lat: math.NaN(), Lng: 2}.Valid())
	assert.False(t, Point{Lat: 1, Lng: math.Inf(1)}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
}
