package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSession() *Session {
	s := &Session{
		VideoPath:        "flight.mp4",
		RunwayHeadingDeg: 221.5,
		HasRunwayHeading: true,
		ReferencePoints: map[string]ReferencePoint{
			"PAPI_A":       {Name: "PAPI_A", Latitude: 48.17, Longitude: 17.21, ElevationM: 133.2, NominalAngleDeg: 3.5},
			"PAPI_B":       {Name: "PAPI_B", Latitude: 48.17001, Longitude: 17.21012, ElevationM: 133.1, NominalAngleDeg: 3.17},
			"PAPI_C":       {Name: "PAPI_C", Latitude: 48.17002, Longitude: 17.21024, ElevationM: 133.1, NominalAngleDeg: 2.83},
			"PAPI_D":       {Name: "PAPI_D", Latitude: 48.17003, Longitude: 17.21036, ElevationM: 133.0, NominalAngleDeg: 2.5},
			TouchPointName: {Name: TouchPointName, Latitude: 48.1705, Longitude: 17.2110, ElevationM: 132.8},
		},
		Seeds: map[string]LightSeed{
			"PAPI_A": {XPct: 42.1, YPct: 51.0, WidthPct: 1.2, HeightPct: 1.0},
			"PAPI_B": {XPct: 45.3, YPct: 51.1, WidthPct: 1.2, HeightPct: 1.0},
			"PAPI_C": {XPct: 48.5, YPct: 51.0, WidthPct: 1.2, HeightPct: 1.0},
			"PAPI_D": {XPct: 51.7, YPct: 51.2, WidthPct: 1.2, HeightPct: 1.0},
		},
	}
	s.ApplyDefaults()
	return s
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"video_path": "flight.mp4",
		"runway_heading_deg": 221.5,
		"has_runway_heading": true,
		"seeds": {"PAPI_A": {"x_pct": 40, "y_pct": 50, "width_pct": 1, "height_pct": 1}}
	}`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "flight.mp4", s.VideoPath)
	assert.Equal(t, 221.5, s.RunwayHeadingDeg)
	// Defaults applied
	assert.Equal(t, 200.0, s.Tuning.BrightnessThreshold)
	assert.Equal(t, 30, s.Tuning.MaxGapFrames)
	assert.Equal(t, 4, s.Tuning.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validSession().Validate())
}

func TestValidateMissingReference(t *testing.T) {
	s := validSession()
	delete(s.ReferencePoints, "PAPI_C")
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAPI_C")
}

func TestValidateMissingTouchPoint(t *testing.T) {
	s := validSession()
	delete(s.ReferencePoints, TouchPointName)
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), TouchPointName)
}

func TestValidateMissingHeading(t *testing.T) {
	s := validSession()
	s.HasRunwayHeading = false
	assert.Error(t, s.Validate())
}

func TestValidateSeedOutsideFrame(t *testing.T) {
	s := validSession()
	s.Seeds["PAPI_A"] = LightSeed{XPct: 120, YPct: 50}
	assert.Error(t, s.Validate())
}

func TestTrackedNamesOrdered(t *testing.T) {
	s := validSession()
	assert.Equal(t, []string{"PAPI_A", "PAPI_B", "PAPI_C", "PAPI_D"}, s.TrackedNames())
}

func TestSeedPixelRoundTrip(t *testing.T) {
	// Pixel -> percent -> pixel reproduces the original within 1 pixel for
	// arbitrary positions and frame sizes.
	frames := []struct{ w, h int }{{1920, 1080}, {3840, 2160}, {1280, 720}}
	positions := []struct{ x, y, w, h float64 }{
		{0, 0, 10, 10},
		{959.5, 539.5, 24, 18},
		{1919, 1079, 3, 3},
		{123.4, 987.6, 17.3, 11.9},
	}
	for _, f := range frames {
		for _, p := range positions {
			if p.x >= float64(f.w) || p.y >= float64(f.h) {
				continue
			}
			seed := SeedFromPixels(p.x, p.y, p.w, p.h, f.w, f.h)
			x, y, w, h := seed.ToPixels(f.w, f.h)
			assert.LessOrEqual(t, math.Abs(x-p.x), 1.0)
			assert.LessOrEqual(t, math.Abs(y-p.y), 1.0)
			assert.LessOrEqual(t, math.Abs(w-p.w), 1.0)
			assert.LessOrEqual(t, math.Abs(h-p.h), 1.0)
		}
	}
}
