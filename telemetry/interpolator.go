package telemetry

import (
	"fmt"
	"sort"

	"airlights/geodesy"
)

// Interpolator resolves the parsed sample sequence to exact frame indexes.
// Construct one per video; it sorts and indexes the samples once.
type Interpolator struct {
	samples []PositionSample
	fps     float64
	byFrame bool // samples carry native frame indexes
}

// NewInterpolator builds an interpolator over samples at the given video
// frame rate. At least one sample is required.
func NewInterpolator(samples []PositionSample, fps float64) (*Interpolator, error) {
	if len(samples) == 0 {
		return nil, ErrNoPositionData
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid fps %.3f", fps)
	}

	// Frame-index alignment is only usable when every sample has one.
	byFrame := true
	for _, s := range samples {
		if s.FrameIndex < 0 {
			byFrame = false
			break
		}
	}

	sorted := make([]PositionSample, len(samples))
	copy(sorted, samples)
	if byFrame {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].FrameIndex < sorted[j].FrameIndex })
	} else {
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimeOffsetMS < sorted[j].TimeOffsetMS })
	}

	return &Interpolator{samples: sorted, fps: fps, byFrame: byFrame}, nil
}

// SampleCount returns the number of samples backing the interpolator.
func (it *Interpolator) SampleCount() int { return len(it.samples) }

// ByFrameIndex reports whether the source encoding carried native per-frame
// indexes (exact alignment instead of timestamp interpolation).
func (it *Interpolator) ByFrameIndex() bool { return it.byFrame }

// At resolves the position for one frame index.
//
// A single-sample sequence returns that sample verbatim for every frame,
// tagged ModeSingleSample. Frames before the first or after the last sample
// hold the nearest endpoint (ModeClamped) rather than erroring, since drone
// recordings routinely start before the GPS track does.
func (it *Interpolator) At(frameIndex int) InterpolatedPosition {
	if len(it.samples) == 1 {
		return InterpolatedPosition{
			PositionSample: it.samples[0],
			TargetFrame:    frameIndex,
			Mode:           ModeSingleSample,
		}
	}

	// Position of the target on the sample axis: native frame index when
	// available, otherwise the frame's timestamp in milliseconds.
	var target float64
	axis := func(s PositionSample) float64 {
		if it.byFrame {
			return float64(s.FrameIndex)
		}
		return float64(s.TimeOffsetMS)
	}
	if it.byFrame {
		target = float64(frameIndex)
	} else {
		target = float64(frameIndex) / it.fps * 1000
	}

	first, last := it.samples[0], it.samples[len(it.samples)-1]
	if target <= axis(first) {
		mode := ModeClamped
		if target == axis(first) {
			mode = ModeExact
		}
		return InterpolatedPosition{PositionSample: first, TargetFrame: frameIndex, Mode: mode}
	}
	if target >= axis(last) {
		mode := ModeClamped
		if target == axis(last) {
			mode = ModeExact
		}
		return InterpolatedPosition{PositionSample: last, TargetFrame: frameIndex, Mode: mode}
	}

	// Binary search for the first sample at or past the target.
	hi := sort.Search(len(it.samples), func(i int) bool { return axis(it.samples[i]) >= target })
	b := it.samples[hi]
	if axis(b) == target {
		return InterpolatedPosition{PositionSample: b, TargetFrame: frameIndex, Mode: ModeExact}
	}
	a := it.samples[hi-1]

	span := axis(b) - axis(a)
	t := (target - axis(a)) / span

	out := InterpolatedPosition{TargetFrame: frameIndex, Mode: ModeInterpolated}
	out.FrameIndex = frameIndex
	out.TimeOffsetMS = lerpI64(a.TimeOffsetMS, b.TimeOffsetMS, t)
	out.Latitude = lerp(a.Latitude, b.Latitude, t)
	out.Longitude = lerp(a.Longitude, b.Longitude, t)
	out.AltitudeM = lerp(a.AltitudeM, b.AltitudeM, t)
	out.Satellites = minInt(a.Satellites, b.Satellites)

	if a.HasSpeed && b.HasSpeed {
		out.SpeedMS = lerp(a.SpeedMS, b.SpeedMS, t)
		out.HasSpeed = true
	}
	// Headings and gimbal angles interpolate along the shortest arc so a
	// 350->10 degree crossing never swings through 180.
	if a.HasHeading && b.HasHeading {
		out.HeadingDeg = geodesy.InterpolateHeading(a.HeadingDeg, b.HeadingDeg, t)
		out.HasHeading = true
	}
	if a.HasGimbal && b.HasGimbal {
		out.GimbalYawDeg = interpolateAngle(a.GimbalYawDeg, b.GimbalYawDeg, t)
		out.GimbalPitchDeg = interpolateAngle(a.GimbalPitchDeg, b.GimbalPitchDeg, t)
		out.GimbalRollDeg = interpolateAngle(a.GimbalRollDeg, b.GimbalRollDeg, t)
		out.HasGimbal = true
	}

	return out
}

// interpolateAngle interpolates a signed angle along the shortest arc,
// keeping the (-180, 180] convention gimbal angles are reported in.
func interpolateAngle(from, to, t float64) float64 {
	v := geodesy.InterpolateHeading(from, to, t)
	if v > 180 {
		v -= 360
	}
	return v
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerpI64(a, b int64, t float64) int64 {
	return a + int64(float64(b-a)*t)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
