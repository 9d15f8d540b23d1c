package pipeline

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airlights/config"
	"airlights/detection"
	"airlights/telemetry"
	"airlights/tracking"
)

// One degree of latitude on the working sphere.
const metersPerLatDeg = 111194.93

var papiNames = []string{"PAPI_A", "PAPI_B", "PAPI_C", "PAPI_D"}

func approachConfig() *config.Session {
	refs := map[string]config.ReferencePoint{
		config.TouchPointName: {
			Name:     config.TouchPointName,
			Latitude: 48.0 + 200/metersPerLatDeg, Longitude: 17.0, ElevationM: 130,
		},
	}
	// Four units in a row beside the runway, 9 m apart, PAPI_A on the
	// extended centerline.
	for i, name := range papiNames {
		refs[name] = config.ReferencePoint{
			Name:     name,
			Latitude: 48.0, Longitude: 17.0 + float64(i)*9/83000, ElevationM: 130,
		}
	}
	return &config.Session{
		VideoPath:        "testdata/approach.mp4",
		RunwayHeadingDeg: 0,
		HasRunwayHeading: true,
		ReferencePoints:  refs,
	}
}

// approachSession wires a session by hand: no video decoding, no detection
// provider, just the sequential stages under test.
func approachSession(t *testing.T, cfg *config.Session) *Session {
	t.Helper()

	// Drone 500 m south of the light at frame 0, 140 m south at frame 9,
	// constant 30 m above it. Position samples only at the endpoints.
	samples := []telemetry.PositionSample{
		{FrameIndex: 0, TimeOffsetMS: 0, Latitude: 48.0 - 500/metersPerLatDeg, Longitude: 17.0, AltitudeM: 160},
		{FrameIndex: 9, TimeOffsetMS: 300, Latitude: 48.0 - 140/metersPerLatDeg, Longitude: 17.0, AltitudeM: 160},
	}
	interp, err := telemetry.NewInterpolator(samples, 30)
	require.NoError(t, err)

	trk := tracking.NewTracker(tracking.Config{MaxGapFrames: 5, MatchCeilingPx: 60, VelocityWindow: 3}, nil, nil)
	for i, name := range papiNames {
		trk.Seed(name, 0, 700+float64(i)*80, 540, 10, 10, 0.9)
	}

	return &Session{ID: "test-session", Cfg: cfg, Tracker: trk, Positions: interp}
}

func redLightAt(x, y float64) detection.Light {
	return detection.Light{
		CenterX: x, CenterY: y,
		Width: 10, Height: 10,
		MeanR: 230, MeanG: 40, MeanB: 35,
		PeakBrightness: 250,
		Intensity:      detection.Luma(230, 40, 35),
		Class:          detection.ClassRed,
	}
}

// papiRow is the full detector output for one frame: four static red units
// drifting together with the slow camera pan.
func papiRow(frame int) []detection.Light {
	drift := 2 * float64(frame)
	row := make([]detection.Light, 0, len(papiNames))
	for i := range papiNames {
		row = append(row, redLightAt(700+float64(i)*80+drift, 540))
	}
	return row
}

func TestPipelineApproachRun(t *testing.T) {
	cfg := approachConfig()
	p := New(approachSession(t, cfg), Options{})
	series := &Series{SessionID: "test-session", FPS: 30, FrameCount: 10}

	for i := 0; i < 10; i++ {
		require.NoError(t, p.processFrame(frameResult{index: i, lights: papiRow(i)}, series))
	}
	require.Len(t, series.Frames, 10)

	for i, fm := range series.Frames {
		require.NotNil(t, fm.TouchPoint, "frame %d", i)

		for _, name := range papiNames {
			lm, ok := fm.Lights[name]
			require.True(t, ok, "frame %d has no %s measurement", i, name)

			// Constant red input keeps the status stable all run.
			assert.Equal(t, StatusRed, lm.Status, "frame %d %s", i, name)
			assert.Equal(t, tracking.StateTracked, lm.TrackState, "frame %d %s", i, name)

			// The touch point sits 200 m beyond the array.
			assert.Greater(t, fm.TouchPoint.GroundDistanceM, lm.GroundDistanceM, "frame %d %s", i, name)

			// 30 m above the lights: always looking down at them.
			assert.Greater(t, lm.VerticalAngleDeg, 0.0, "frame %d %s", i, name)
			assert.Less(t, lm.VerticalAngleDeg, 90.0, "frame %d %s", i, name)

			if i > 0 {
				prev := series.Frames[i-1].Lights[name]
				assert.Less(t, lm.GroundDistanceM, prev.GroundDistanceM, "approach should close distance at frame %d for %s", i, name)
				assert.Greater(t, lm.VerticalAngleDeg, prev.VerticalAngleDeg, "angle should steepen at frame %d for %s", i, name)
			}
		}

		// PAPI_A sits on the extended centerline; a due-south approach on a
		// north-facing runway reads zero deviation there.
		assert.InDelta(t, 0, fm.Lights["PAPI_A"].HorizontalAngleDeg, 0.01, "frame %d", i)
	}

	// Endpoint frames match samples exactly; the middle is interpolated.
	assert.Equal(t, telemetry.ModeExact, series.Frames[0].PositionMode)
	assert.Equal(t, telemetry.ModeInterpolated, series.Frames[5].PositionMode)
	assert.Equal(t, telemetry.ModeExact, series.Frames[9].PositionMode)

	assert.InDelta(t, 500, series.Frames[0].Lights["PAPI_A"].GroundDistanceM, 0.5)
	assert.InDelta(t, 140, series.Frames[9].Lights["PAPI_A"].GroundDistanceM, 0.5)
}

func TestSequencerReleasesInFrameOrder(t *testing.T) {
	seq := newSequencer(0)
	var released []int
	for _, idx := range []int{3, 1, 0, 2, 5, 4} {
		for _, r := range seq.add(frameResult{index: idx}) {
			released = append(released, r.index)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, released)
	assert.Empty(t, seq.drain())
}

func TestSequencerDrainReturnsBuffered(t *testing.T) {
	seq := newSequencer(0)
	assert.Empty(t, seq.add(frameResult{index: 2}))
	assert.Empty(t, seq.add(frameResult{index: 4}))
	assert.Len(t, seq.drain(), 2)
	assert.Empty(t, seq.drain())
}

func TestPipelineReassemblesOutOfOrderCompletions(t *testing.T) {
	cfg := approachConfig()
	p := New(approachSession(t, cfg), Options{})
	series := &Series{SessionID: "test-session", FPS: 30, FrameCount: 5}

	// Workers finish in whatever order the scheduler picks; the sequential
	// stages must still see frames 0..4 in order.
	seq := newSequencer(0)
	for _, idx := range []int{2, 0, 1, 4, 3} {
		for _, r := range seq.add(frameResult{index: idx, lights: papiRow(idx)}) {
			require.NoError(t, p.processFrame(r, series))
		}
	}

	require.Len(t, series.Frames, 5)
	for i, fm := range series.Frames {
		assert.Equal(t, i, fm.FrameIndex)
		assert.Equal(t, tracking.StateTracked, fm.Lights["PAPI_A"].TrackState)
	}
}

func TestPipelineMissingReferenceIsFatal(t *testing.T) {
	cfg := approachConfig()
	delete(cfg.ReferencePoints, "PAPI_A")
	p := New(approachSession(t, cfg), Options{})
	series := &Series{FPS: 30}

	err := p.processFrame(frameResult{index: 0, lights: []detection.Light{redLightAt(800, 540)}}, series)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingReference))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b    float64
		confidence float64
		state      tracking.State
		want       LightStatus
	}{
		{"saturated red", 230, 40, 35, 0.9, tracking.StateTracked, StatusRed},
		{"bright white", 220, 215, 200, 0.9, tracking.StateTracked, StatusWhite},
		{"transition band", 120, 95, 70, 0.9, tracking.StateTracked, StatusTransition},
		{"unlit", 10, 12, 11, 0.9, tracking.StateTracked, StatusDark},
		{"lost track", 230, 40, 35, 0.9, tracking.StateLost, StatusUnknown},
		{"low confidence", 230, 40, 35, 0.1, tracking.StatePredicted, StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStatus(tt.r, tt.g, tt.b, tt.confidence, tt.state))
		})
	}
}

func TestSeriesAppendRejectsOutOfOrder(t *testing.T) {
	s := &Series{}
	require.NoError(t, s.Append(FrameMeasurement{FrameIndex: 0}))
	require.NoError(t, s.Append(FrameMeasurement{FrameIndex: 1}))
	assert.Error(t, s.Append(FrameMeasurement{FrameIndex: 1}))
	assert.Error(t, s.Append(FrameMeasurement{FrameIndex: 0}))
}

func TestSeriesFileRoundTrip(t *testing.T) {
	s := &Series{
		SessionID: "rt", FPS: 30, FrameCount: 2,
		Frames: []FrameMeasurement{
			{FrameIndex: 0, Latitude: 48.1, Longitude: 17.2, PositionMode: telemetry.ModeExact,
				Lights: map[string]LightMeasurement{"PAPI_A": {Status: StatusRed, GroundDistanceM: 312.5}}},
			{FrameIndex: 1, Latitude: 48.1001, Longitude: 17.2, PositionMode: telemetry.ModeInterpolated,
				Lights: map[string]LightMeasurement{"PAPI_A": {Status: StatusTransition, GroundDistanceM: 310.1}}},
		},
	}

	for _, name := range []string{"out.json", "out.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, s.WriteFile(path))

			got, err := ReadSeries(path)
			require.NoError(t, err)
			assert.Equal(t, s.SessionID, got.SessionID)
			require.Len(t, got.Frames, 2)
			assert.Equal(t, StatusRed, got.Frames[0].Lights["PAPI_A"].Status)
			assert.Equal(t, 310.1, got.Frames[1].Lights["PAPI_A"].GroundDistanceM)
		})
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := approachConfig()
	sess := approachSession(t, cfg)
	series := &Series{SessionID: sess.ID, FPS: 30, FrameCount: 10}

	p := New(sess, Options{})
	for i := 0; i < 5; i++ {
		require.NoError(t, p.processFrame(frameResult{index: i, lights: papiRow(i)}, series))
	}

	path := filepath.Join(t.TempDir(), "run.checkpoint")
	require.NoError(t, SaveCheckpoint(path, NewCheckpoint(sess, series, 5)))

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cp.NextFrame)
	assert.Equal(t, sess.ID, cp.SessionID)

	// A fresh tracker and series pick up where the run stopped.
	trk := tracking.NewTracker(tracking.Config{MaxGapFrames: 5, MatchCeilingPx: 60, VelocityWindow: 3}, nil, nil)
	restored := &Series{SessionID: sess.ID, FPS: 30, FrameCount: 10}
	require.NoError(t, cp.Apply(trk, restored))
	require.Len(t, restored.Frames, 5)
	assert.Equal(t, papiNames, trk.Lights())
	if diff := cmp.Diff(series.Frames, restored.Frames); diff != "" {
		t.Errorf("restored frames differ (-want +got):\n%s", diff)
	}

	// The restored tracker continues at frame 5 and refuses replays.
	_, err = trk.Update(4, nil)
	assert.Error(t, err)
	snaps, err := trk.Update(5, papiRow(5))
	require.NoError(t, err)
	for _, name := range papiNames {
		assert.Equal(t, tracking.StateTracked, snaps[name].State, name)
	}
}
