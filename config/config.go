// Package config loads and validates the per-video session configuration:
// reference-point coordinates, runway heading, initial light seed positions
// and the tuning knobs of the processing pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// Light unit names, ordered left to right as seen from the approach. A PAPI
// array has 4 units; extended arrays up to 8 are accepted.
var LightNames = []string{"PAPI_A", "PAPI_B", "PAPI_C", "PAPI_D", "PAPI_E", "PAPI_F", "PAPI_G", "PAPI_H"}

// TouchPointName is the reference-point key for the runway touch point.
const TouchPointName = "TOUCH_POINT"

// ReferencePoint is a surveyed geodetic position for one PAPI unit or the
// runway touch point. Supplied externally and read-only for the pipeline.
type ReferencePoint struct {
	Name            string  `json:"name"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	ElevationM      float64 `json:"elevation_m"`
	NominalAngleDeg float64 `json:"nominal_angle_deg,omitempty"`
	ToleranceDeg    float64 `json:"tolerance_deg,omitempty"` // 0 means unset
}

// LightSeed is the manually confirmed or auto-detected initial position of
// one light, in percent of frame dimensions so it survives resolution
// changes between the preview and the processed video.
type LightSeed struct {
	XPct       float64 `json:"x_pct"`
	YPct       float64 `json:"y_pct"`
	WidthPct   float64 `json:"width_pct"`
	HeightPct  float64 `json:"height_pct"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ToPixels converts the seed to pixel coordinates for the given frame size.
func (s LightSeed) ToPixels(frameWidth, frameHeight int) (x, y, w, h float64) {
	x = s.XPct / 100 * float64(frameWidth)
	y = s.YPct / 100 * float64(frameHeight)
	w = s.WidthPct / 100 * float64(frameWidth)
	h = s.HeightPct / 100 * float64(frameHeight)
	return
}

// SeedFromPixels converts pixel coordinates back to a percent seed.
func SeedFromPixels(x, y, w, h float64, frameWidth, frameHeight int) LightSeed {
	return LightSeed{
		XPct:      x / float64(frameWidth) * 100,
		YPct:      y / float64(frameHeight) * 100,
		WidthPct:  w / float64(frameWidth) * 100,
		HeightPct: h / float64(frameHeight) * 100,
	}
}

// Tuning collects the numeric knobs of detection and tracking. Zero values
// are replaced by defaults in ApplyDefaults so a minimal session file works.
type Tuning struct {
	// Detection
	BrightnessThreshold float64 `json:"brightness_threshold,omitempty"` // 0-255 gray threshold
	SaturatedThreshold  float64 `json:"saturated_threshold,omitempty"`  // stricter near-white threshold
	MinBlobArea         float64 `json:"min_blob_area,omitempty"`        // px^2
	MaxBlobArea         float64 `json:"max_blob_area,omitempty"`        // px^2

	// Tracking
	MaxGapFrames   int     `json:"max_gap_frames,omitempty"`   // missed frames before a track is lost
	MatchCeilingPx float64 `json:"match_ceiling_px,omitempty"` // max detection-to-prediction distance
	VelocityWindow int     `json:"velocity_window,omitempty"`  // history frames for own-velocity estimate

	// Pipeline
	Workers          int `json:"workers,omitempty"`            // detection worker count
	ProgressEveryN   int `json:"progress_every_n,omitempty"`   // frames between progress reports
	CheckpointEveryN int `json:"checkpoint_every_n,omitempty"` // frames between checkpoints, 0 disables
}

// Session is the complete configuration for processing one video.
type Session struct {
	VideoPath        string                    `json:"video_path"`
	RunwayHeadingDeg float64                   `json:"runway_heading_deg"`
	HasRunwayHeading bool                      `json:"has_runway_heading"`
	ReferencePoints  map[string]ReferencePoint `json:"reference_points"`
	Seeds            map[string]LightSeed      `json:"seeds"`
	Tuning           Tuning                    `json:"tuning"`
}

// Load reads a session file and applies defaults. Validation is separate so
// the detect/probe commands can run with partial configs.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session config: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session config %s: %w", path, err)
	}

	s.ApplyDefaults()
	return &s, nil
}

// ApplyDefaults fills zero-valued tuning knobs with working defaults.
func (s *Session) ApplyDefaults() {
	t := &s.Tuning
	if t.BrightnessThreshold == 0 {
		t.BrightnessThreshold = 200
	}
	if t.SaturatedThreshold == 0 {
		t.SaturatedThreshold = 240
	}
	if t.MinBlobArea == 0 {
		t.MinBlobArea = 4
	}
	if t.MaxBlobArea == 0 {
		t.MaxBlobArea = 5000
	}
	if t.MaxGapFrames == 0 {
		t.MaxGapFrames = 30
	}
	if t.MatchCeilingPx == 0 {
		t.MatchCeilingPx = 80
	}
	if t.VelocityWindow == 0 {
		t.VelocityWindow = 5
	}
	if t.Workers == 0 {
		t.Workers = 4
	}
	if t.ProgressEveryN == 0 {
		t.ProgressEveryN = 30
	}
}

// TrackedNames returns the seeded light names in canonical left-to-right
// order (PAPI_A first).
func (s *Session) TrackedNames() []string {
	var names []string
	for name := range s.Seeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate front-loads the fatal-input checks so a bad session fails before
// any frame is decoded: every seeded light needs a reference point, the
// touch point must be present, and the runway heading is required because
// horizontal angles cannot be computed without it.
func (s *Session) Validate() error {
	if s.VideoPath == "" {
		return fmt.Errorf("session config: video_path is required")
	}
	if len(s.Seeds) == 0 {
		return fmt.Errorf("session config: at least one light seed is required")
	}
	if !s.HasRunwayHeading {
		return fmt.Errorf("session config: runway_heading_deg is required for horizontal angle computation")
	}
	if s.RunwayHeadingDeg < 0 || s.RunwayHeadingDeg >= 360 {
		return fmt.Errorf("session config: runway heading %.1f out of range [0, 360)", s.RunwayHeadingDeg)
	}

	var missing []string
	for name := range s.Seeds {
		if _, ok := s.ReferencePoints[name]; !ok {
			missing = append(missing, name)
		}
	}
	if _, ok := s.ReferencePoints[TouchPointName]; !ok {
		missing = append(missing, TouchPointName)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("session config: missing reference points for %s", strings.Join(missing, ", "))
	}

	for name, seed := range s.Seeds {
		if seed.XPct < 0 || seed.XPct > 100 || seed.YPct < 0 || seed.YPct > 100 {
			return fmt.Errorf("session config: seed %s position %.1f%%,%.1f%% outside frame", name, seed.XPct, seed.YPct)
		}
	}

	for name, rp := range s.ReferencePoints {
		if math.Abs(rp.Latitude) > 90 || math.Abs(rp.Longitude) > 180 {
			return fmt.Errorf("session config: reference point %s has invalid coordinates %.6f,%.6f", name, rp.Latitude, rp.Longitude)
		}
	}

	return nil
}
