// Package pipeline drives a full measurement run: decode frames, detect
// light blobs, track the named lights, join drone position, and emit one
// measurement record per frame.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"airlights/geodesy"
	"airlights/telemetry"
	"airlights/tracking"
)

// LightStatus is the operational color state of one light in one frame.
type LightStatus string

const (
	StatusRed        LightStatus = "red"
	StatusWhite      LightStatus = "white"
	StatusTransition LightStatus = "transition"
	StatusDark       LightStatus = "dark"
	StatusUnknown    LightStatus = "unknown"
)

// classifyStatus maps a track's observed color to its operational status.
// Tracks running on prediction alone carry no usable color.
func classifyStatus(r, g, b, confidence float64, state tracking.State) LightStatus {
	if state == tracking.StateLost || confidence < 0.2 {
		return StatusUnknown
	}
	intensity := 0.299*r + 0.587*g + 0.114*b
	if intensity < 40 {
		return StatusDark
	}

	sum := r + g + b
	if sum <= 0 {
		return StatusDark
	}
	rn := r / sum
	gn := g / sum
	bn := b / sum

	switch {
	case rn > 0.45 && rn > 1.4*gn && rn > 1.4*bn:
		return StatusRed
	case rn > 0.38 && rn > 1.15*gn:
		// Reddish but not saturated: the beam transition band.
		return StatusTransition
	case intensity > 120:
		return StatusWhite
	default:
		return StatusUnknown
	}
}

// LightMeasurement is one light's record within a frame.
type LightMeasurement struct {
	Status     LightStatus    `json:"status" msgpack:"status"`
	TrackState tracking.State `json:"track_state" msgpack:"track_state"`

	CenterX float64 `json:"center_x" msgpack:"center_x"`
	CenterY float64 `json:"center_y" msgpack:"center_y"`
	AreaPx  float64 `json:"area_px" msgpack:"area_px"`

	R         float64 `json:"r" msgpack:"r"`
	G         float64 `json:"g" msgpack:"g"`
	B         float64 `json:"b" msgpack:"b"`
	Intensity float64 `json:"intensity" msgpack:"intensity"`

	VerticalAngleDeg   float64 `json:"vertical_angle_deg" msgpack:"vertical_angle_deg"`
	HorizontalAngleDeg float64 `json:"horizontal_angle_deg,omitempty" msgpack:"horizontal_angle_deg"`
	GroundDistanceM    float64 `json:"ground_distance_m" msgpack:"ground_distance_m"`
	DirectDistanceM    float64 `json:"direct_distance_m" msgpack:"direct_distance_m"`

	Confidence float64 `json:"confidence" msgpack:"confidence"`
}

// TouchPointMeasurement is the geometry toward the runway touch point. The
// touch point is a surveyed position, not a tracked light, so it carries no
// optical fields.
type TouchPointMeasurement struct {
	VerticalAngleDeg   float64 `json:"vertical_angle_deg" msgpack:"vertical_angle_deg"`
	HorizontalAngleDeg float64 `json:"horizontal_angle_deg,omitempty" msgpack:"horizontal_angle_deg"`
	GroundDistanceM    float64 `json:"ground_distance_m" msgpack:"ground_distance_m"`
	DirectDistanceM    float64 `json:"direct_distance_m" msgpack:"direct_distance_m"`
}

// FrameMeasurement is the full record for one video frame.
type FrameMeasurement struct {
	FrameIndex  int   `json:"frame_index" msgpack:"frame_index"`
	TimestampMS int64 `json:"timestamp_ms" msgpack:"timestamp_ms"`

	Latitude     float64        `json:"latitude" msgpack:"latitude"`
	Longitude    float64        `json:"longitude" msgpack:"longitude"`
	ElevationM   float64        `json:"elevation_m" msgpack:"elevation_m"`
	PositionMode telemetry.Mode `json:"position_mode" msgpack:"position_mode"`

	GimbalYawDeg   float64 `json:"gimbal_yaw_deg,omitempty" msgpack:"gimbal_yaw_deg"`
	GimbalPitchDeg float64 `json:"gimbal_pitch_deg,omitempty" msgpack:"gimbal_pitch_deg"`
	GimbalRollDeg  float64 `json:"gimbal_roll_deg,omitempty" msgpack:"gimbal_roll_deg"`

	Lights     map[string]LightMeasurement `json:"lights" msgpack:"lights"`
	TouchPoint *TouchPointMeasurement      `json:"touch_point,omitempty" msgpack:"touch_point"`
}

// Series is the ordered measurement output of one processing run.
type Series struct {
	SessionID  string    `json:"session_id" msgpack:"session_id"`
	VideoPath  string    `json:"video_path" msgpack:"video_path"`
	FPS        float64   `json:"fps" msgpack:"fps"`
	FrameCount int       `json:"frame_count" msgpack:"frame_count"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`

	Frames []FrameMeasurement `json:"frames" msgpack:"frames"`
}

// Append adds a frame record, enforcing frame order.
func (s *Series) Append(fm FrameMeasurement) error {
	if n := len(s.Frames); n > 0 && fm.FrameIndex <= s.Frames[n-1].FrameIndex {
		return fmt.Errorf("frame %d out of order (last was %d)", fm.FrameIndex, s.Frames[n-1].FrameIndex)
	}
	s.Frames = append(s.Frames, fm)
	return nil
}

// WriteFile serializes the series as JSON, zstd-compressed when the path
// ends in .zst.
func (s *Series) WriteFile(path string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode measurements: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadSeries loads a series written by WriteFile.
func ReadSeries(path string) (*Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		data, err = dec.DecodeAll(data, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", path, err)
		}
	}

	var s Series
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &s, nil
}

// measureGeometry computes the angles and distances from the drone to a
// surveyed reference point.
func measureGeometry(drone geodesy.Point, ref geodesy.Point, runwayHeading float64, hasHeading bool) (vert, horiz, ground, direct float64) {
	ground = geodesy.GroundDistance(drone, ref)
	direct = geodesy.DirectDistance(drone, ref)
	vert = geodesy.VerticalAngle(drone, ref)
	if hasHeading {
		horiz = geodesy.HorizontalAngle(drone, ref, runwayHeading)
	}
	return vert, horiz, geodesy.Round3(ground), geodesy.Round3(direct)
}
