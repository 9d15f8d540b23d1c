package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeSamples() []PositionSample {
	return []PositionSample{
		{TimeOffsetMS: 0, FrameIndex: -1, Latitude: 48.1700, Longitude: 17.2100, AltitudeM: 130},
		{TimeOffsetMS: 1000, FrameIndex: -1, Latitude: 48.1710, Longitude: 17.2110, AltitudeM: 140},
		{TimeOffsetMS: 2000, FrameIndex: -1, Latitude: 48.1720, Longitude: 17.2120, AltitudeM: 150},
	}
}

func TestInterpolatorSingleSample(t *testing.T) {
	it, err := NewInterpolator([]PositionSample{{Latitude: 48.17, Longitude: 17.21, AltitudeM: 132, FrameIndex: -1}}, 30)
	require.NoError(t, err)

	for _, frame := range []int{0, 1, 100, 100000} {
		pos := it.At(frame)
		assert.Equal(t, ModeSingleSample, pos.Mode)
		assert.Equal(t, frame, pos.TargetFrame)
		assert.Equal(t, 48.17, pos.Latitude)
		assert.Equal(t, 132.0, pos.AltitudeM)
	}
}

func TestInterpolatorEmpty(t *testing.T) {
	_, err := NewInterpolator(nil, 30)
	assert.ErrorIs(t, err, ErrNoPositionData)
}

func TestInterpolatorBadFPS(t *testing.T) {
	_, err := NewInterpolator(timeSamples(), 0)
	assert.Error(t, err)
}

func TestInterpolatorByTimestamp(t *testing.T) {
	it, err := NewInterpolator(timeSamples(), 30)
	require.NoError(t, err)
	assert.False(t, it.ByFrameIndex())

	// Frame 15 at 30fps is t=500ms, halfway between the first two samples.
	pos := it.At(15)
	assert.Equal(t, ModeInterpolated, pos.Mode)
	assert.InDelta(t, 48.1705, pos.Latitude, 1e-9)
	assert.InDelta(t, 17.2105, pos.Longitude, 1e-9)
	assert.InDelta(t, 135.0, pos.AltitudeM, 1e-9)
}

func TestInterpolatorChordProperty(t *testing.T) {
	// Any in-range frame lies on the chord between its bounding samples.
	samples := timeSamples()
	it, err := NewInterpolator(samples, 30)
	require.NoError(t, err)

	for frame := 0; frame <= 60; frame++ {
		pos := it.At(frame)
		lo, hi := samples[0], samples[2]
		assert.GreaterOrEqual(t, pos.Latitude, lo.Latitude)
		assert.LessOrEqual(t, pos.Latitude, hi.Latitude)

		// Collinearity: lat and lon advance proportionally.
		latFrac := (pos.Latitude - lo.Latitude) / (hi.Latitude - lo.Latitude)
		lonFrac := (pos.Longitude - lo.Longitude) / (hi.Longitude - lo.Longitude)
		assert.InDelta(t, latFrac, lonFrac, 1e-9)
	}
}

func TestInterpolatorClamping(t *testing.T) {
	it, err := NewInterpolator(timeSamples(), 30)
	require.NoError(t, err)

	// 30fps: frame 90 is t=3000ms, past the last sample at 2000ms.
	after := it.At(90)
	assert.Equal(t, ModeClamped, after.Mode)
	assert.Equal(t, 48.1720, after.Latitude)

	// Negative frame index clamps to the first sample.
	before := it.At(-5)
	assert.Equal(t, ModeClamped, before.Mode)
	assert.Equal(t, 48.1700, before.Latitude)
}

func TestInterpolatorByFrameIndex(t *testing.T) {
	samples := []PositionSample{
		{FrameIndex: 10, TimeOffsetMS: 0, Latitude: 48.1700, Longitude: 17.2100, AltitudeM: 100},
		{FrameIndex: 20, TimeOffsetMS: 5000, Latitude: 48.1710, Longitude: 17.2110, AltitudeM: 110},
	}
	it, err := NewInterpolator(samples, 30)
	require.NoError(t, err)
	assert.True(t, it.ByFrameIndex())

	// Native index 10 is an exact hit regardless of timestamps.
	exact := it.At(10)
	assert.Equal(t, ModeExact, exact.Mode)
	assert.Equal(t, 48.1700, exact.Latitude)

	// Frame 15 interpolates by frame distance, not by the misleading
	// 5-second timestamp gap.
	mid := it.At(15)
	assert.Equal(t, ModeInterpolated, mid.Mode)
	assert.InDelta(t, 48.1705, mid.Latitude, 1e-9)
	assert.InDelta(t, 105.0, mid.AltitudeM, 1e-9)
}

func TestInterpolatorHeadingShortestArc(t *testing.T) {
	samples := []PositionSample{
		{TimeOffsetMS: 0, FrameIndex: -1, Latitude: 48.17, Longitude: 17.21, HeadingDeg: 350, HasHeading: true},
		{TimeOffsetMS: 1000, FrameIndex: -1, Latitude: 48.18, Longitude: 17.22, HeadingDeg: 10, HasHeading: true},
	}
	it, err := NewInterpolator(samples, 30)
	require.NoError(t, err)

	// Heading crosses north the short way: every interpolated value is
	// within 20 degrees of both endpoints (never near 180).
	for frame := 1; frame < 30; frame++ {
		pos := it.At(frame)
		require.True(t, pos.HasHeading)
		d1 := math.Abs(angleDiff(pos.HeadingDeg, 350))
		d2 := math.Abs(angleDiff(pos.HeadingDeg, 10))
		assert.LessOrEqual(t, d1, 20.0, "frame %d heading %.1f", frame, pos.HeadingDeg)
		assert.LessOrEqual(t, d2, 20.0, "frame %d heading %.1f", frame, pos.HeadingDeg)
	}

	mid := it.At(15)
	assert.InDelta(t, 0.0, math.Abs(angleDiff(mid.HeadingDeg, 0)), 1.0)
}

func TestInterpolatorGimbal(t *testing.T) {
	samples := []PositionSample{
		{FrameIndex: 0, Latitude: 48.17, Longitude: 17.21, GimbalYawDeg: -170, GimbalPitchDeg: -10, HasGimbal: true},
		{FrameIndex: 10, Latitude: 48.18, Longitude: 17.22, GimbalYawDeg: 170, GimbalPitchDeg: -20, HasGimbal: true},
	}
	it, err := NewInterpolator(samples, 30)
	require.NoError(t, err)

	mid := it.At(5)
	require.True(t, mid.HasGimbal)
	// -170 to +170 crosses the +/-180 seam, not zero.
	assert.InDelta(t, 180.0, math.Abs(mid.GimbalYawDeg), 1e-6)
	assert.InDelta(t, -15.0, mid.GimbalPitchDeg, 1e-9)
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}
