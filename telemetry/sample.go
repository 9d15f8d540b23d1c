// Package telemetry recovers the drone's geodetic position for every video
// frame. It parses one of three GPS metadata encodings found in or alongside
// drone recordings into an ordered sample sequence, then interpolates that
// sequence to exact frame indexes.
package telemetry

import "errors"

// ErrNoPositionData is returned when none of the supported metadata
// encodings yields any samples. The pipeline treats this as fatal: frames
// without a resolvable position would corrupt the output series.
var ErrNoPositionData = errors.New("no GPS position metadata found in video")

// PositionSample is one parsed position fix. Immutable once parsed; a
// sequence is ordered by FrameIndex when the encoding carries per-frame
// indexes, otherwise by TimeOffsetMS.
type PositionSample struct {
	TimeOffsetMS int64 // media-relative milliseconds
	FrameIndex   int   // source frame index, -1 when the encoding has none

	Latitude  float64
	Longitude float64
	AltitudeM float64

	SpeedMS    float64
	HasSpeed   bool
	HeadingDeg float64
	HasHeading bool

	Satellites int     // 0 when unknown
	AccuracyM  float64 // 0 when unknown

	GimbalYawDeg   float64
	GimbalPitchDeg float64
	GimbalRollDeg  float64
	HasGimbal      bool
}

// Mode tags how an InterpolatedPosition was produced, so downstream
// confidence display can distinguish an exact per-frame fix from a held
// endpoint or a single-sample sequence.
type Mode string

const (
	// ModeExact means the source carried a sample for exactly this frame.
	ModeExact Mode = "exact"
	// ModeInterpolated means the position lies between two bounding samples.
	ModeInterpolated Mode = "interpolated"
	// ModeClamped means the frame is outside the sample range and the
	// nearest endpoint was held.
	ModeClamped Mode = "clamped"
	// ModeSingleSample means only one sample exists for the whole video.
	ModeSingleSample Mode = "single-sample"
)

// InterpolatedPosition is a PositionSample resolved for one target frame.
// Produced on demand, never persisted.
type InterpolatedPosition struct {
	PositionSample
	TargetFrame int
	Mode        Mode
}
