// Package geodesy holds the pure angle/distance math between the drone and
// surveyed reference points. Everything here is a stateless function of its
// arguments so the numbers can be verified independently of the rest of the
// pipeline.
package geodesy

import "math"

// EarthRadiusM is the mean earth radius used by the haversine formula.
const EarthRadiusM = 6371000.0

// Point is a geodetic position with elevation in meters above sea level.
type Point struct {
	Latitude   float64
	Longitude  float64
	ElevationM float64
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// Round3 rounds to 3 decimal places. All published angles go through this so
// downstream comparisons between runs are stable.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// GroundDistance returns the great-circle distance in meters between two
// points, ignoring elevation.
func GroundDistance(a, b Point) float64 {
	lat1 := deg2rad(a.Latitude)
	lat2 := deg2rad(b.Latitude)
	dLat := deg2rad(b.Latitude - a.Latitude)
	dLon := deg2rad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// DirectDistance returns the 3-D straight-line distance in meters: the
// hypotenuse of the ground distance and the elevation difference.
func DirectDistance(a, b Point) float64 {
	ground := GroundDistance(a, b)
	dh := a.ElevationM - b.ElevationM
	return math.Sqrt(ground*ground + dh*dh)
}

// InitialBearing returns the initial great-circle bearing from a to b in
// degrees [0, 360).
func InitialBearing(a, b Point) float64 {
	lat1 := deg2rad(a.Latitude)
	lat2 := deg2rad(b.Latitude)
	dLon := deg2rad(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeHeading(rad2deg(math.Atan2(y, x)))
}

// VerticalAngle returns the elevation angle in degrees from the reference
// point up to the drone, rounded to 3 decimals. Positive means the drone is
// above the reference. At zero ground distance the angle saturates at ±90.
func VerticalAngle(drone, ref Point) float64 {
	dh := drone.ElevationM - ref.ElevationM
	ground := GroundDistance(drone, ref)
	if ground == 0 {
		if dh > 0 {
			return 90
		}
		if dh < 0 {
			return -90
		}
		return 0
	}
	return Round3(rad2deg(math.Atan2(dh, ground)))
}

// HorizontalAngle returns the signed deviation in degrees of the
// reference-to-drone bearing from the runway centerline heading, rounded to
// 3 decimals. The centerline is bidirectional, so the result is folded into
// [-90, +90]: a drone sitting anywhere on the extended centerline reads 0.
func HorizontalAngle(drone, ref Point, runwayHeadingDeg float64) float64 {
	bearing := InitialBearing(ref, drone)
	dev := HeadingDifference(bearing, runwayHeadingDeg)

	// Fold the reciprocal half onto the forward half.
	if dev > 90 {
		dev -= 180
	} else if dev < -90 {
		dev += 180
	}
	return Round3(dev)
}

// NormalizeHeading wraps a heading into [0, 360).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// HeadingDifference returns the signed shortest-arc difference a-b in
// degrees, in (-180, 180].
func HeadingDifference(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// InterpolateHeading interpolates between two headings along the shortest
// arc. t is the interpolation fraction in [0, 1].
func InterpolateHeading(from, to, t float64) float64 {
	return NormalizeHeading(from + HeadingDifference(to, from)*t)
}
