package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroundDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Point
		expected float64
		tol      float64
	}{
		{"same point", Point{Latitude: 48.17, Longitude: 17.21}, Point{Latitude: 48.17, Longitude: 17.21}, 0, 0.001},
		// One degree of latitude is ~111.2 km on the sphere we use.
		{"one degree latitude", Point{Latitude: 48, Longitude: 17}, Point{Latitude: 49, Longitude: 17}, 111194.9, 100},
		// 0.001 deg latitude ~ 111.2 m, a typical PAPI approach distance.
		{"short hop", Point{Latitude: 48.1700, Longitude: 17.2100}, Point{Latitude: 48.1710, Longitude: 17.2100}, 111.19, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, GroundDistance(tt.a, tt.b), tt.tol)
		})
	}
}

func TestVerticalAngle(t *testing.T) {
	ref := Point{Latitude: 48.17, Longitude: 17.21, ElevationM: 130}

	// Same altitude at nonzero ground distance reads exactly 0.
	drone := Point{Latitude: 48.171, Longitude: 17.21, ElevationM: 130}
	assert.Equal(t, 0.0, VerticalAngle(drone, ref))

	// Drone above the reference reads positive, below negative.
	drone.ElevationM = 180
	assert.Greater(t, VerticalAngle(drone, ref), 0.0)
	drone.ElevationM = 80
	assert.Less(t, VerticalAngle(drone, ref), 0.0)

	// Directly overhead saturates at +/-90.
	overhead := Point{Latitude: 48.17, Longitude: 17.21, ElevationM: 250}
	assert.Equal(t, 90.0, VerticalAngle(overhead, ref))
	below := Point{Latitude: 48.17, Longitude: 17.21, ElevationM: 10}
	assert.Equal(t, -90.0, VerticalAngle(below, ref))

	// A 3 degree glide slope: height = tan(3deg) * ground.
	ground := GroundDistance(Point{Latitude: 48.1710, Longitude: 17.21}, ref)
	drone = Point{Latitude: 48.1710, Longitude: 17.21, ElevationM: ref.ElevationM + math.Tan(deg2rad(3))*ground}
	assert.InDelta(t, 3.0, VerticalAngle(drone, ref), 0.01)
}

func TestHorizontalAngle(t *testing.T) {
	ref := Point{Latitude: 48.17, Longitude: 17.21, ElevationM: 130}

	// Drone due north of the reference with a north-pointing runway: on the
	// centerline, deviation 0.
	north := Point{Latitude: 48.18, Longitude: 17.21}
	assert.Equal(t, 0.0, HorizontalAngle(north, ref, 0))

	// Same geometry but the runway heading given as the reciprocal: still 0
	// because the centerline is bidirectional.
	assert.Equal(t, 0.0, HorizontalAngle(north, ref, 180))

	// Mirrored bearings give antisymmetric deviations.
	east := Point{Latitude: 48.17, Longitude: 17.22}
	west := Point{Latitude: 48.17, Longitude: 17.20}
	assert.InDelta(t, HorizontalAngle(east, ref, 0), -HorizontalAngle(west, ref, 0), 1e-9)

	// Due east of the reference on a north runway folds to +/-90.
	assert.InDelta(t, 90.0, math.Abs(HorizontalAngle(east, ref, 0)), 0.01)
}

func TestDirectDistance(t *testing.T) {
	ref := Point{Latitude: 48.17, Longitude: 17.21, ElevationM: 0}
	drone := Point{Latitude: 48.17, Longitude: 17.21, ElevationM: 120}
	assert.InDelta(t, 120.0, DirectDistance(drone, ref), 0.001)

	// 3-4-5 triangle: ~300 m ground, 400 m up -> 500 m direct.
	ground := Point{Latitude: 48.17270, Longitude: 17.21, ElevationM: 0}
	g := GroundDistance(ground, ref)
	drone = Point{Latitude: 48.17270, Longitude: 17.21, ElevationM: g * 4 / 3}
	assert.InDelta(t, g*5/3, DirectDistance(drone, ref), 0.01)
}

func TestHeadingHelpers(t *testing.T) {
	assert.Equal(t, 350.0, NormalizeHeading(-10))
	assert.Equal(t, 10.0, NormalizeHeading(370))
	assert.Equal(t, 0.0, NormalizeHeading(720))

	assert.Equal(t, 20.0, HeadingDifference(10, 350))
	assert.Equal(t, -20.0, HeadingDifference(350, 10))
	assert.Equal(t, 180.0, HeadingDifference(180, 0))
}

func TestInterpolateHeading(t *testing.T) {
	// Crossing north takes the short way round: 350 -> 10 via 0, never via 180.
	assert.InDelta(t, 0.0, InterpolateHeading(350, 10, 0.5), 1e-9)
	assert.InDelta(t, 355.0, InterpolateHeading(350, 10, 0.25), 1e-9)
	assert.InDelta(t, 5.0, InterpolateHeading(350, 10, 0.75), 1e-9)

	// No wrap case stays linear.
	assert.InDelta(t, 45.0, InterpolateHeading(40, 50, 0.5), 1e-9)
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 1.234, Round3(1.23449))
	assert.Equal(t, 1.235, Round3(1.23450))
	assert.Equal(t, -2.5, Round3(-2.4999999))
}
