package tracking

import (
	"fmt"
	"math"
	"sort"

	"airlights/detection"
	"airlights/pkg/logging"
)

// Config tunes the tracker.
type Config struct {
	// MaxGapFrames is how many consecutive missed frames a track survives
	// in the predicted state before transitioning to lost.
	MaxGapFrames int
	// MatchCeilingPx is the maximum distance between prediction and
	// detection for a match to be accepted.
	MatchCeilingPx float64
	// VelocityWindow is how many recent observations feed the own-velocity
	// estimate.
	VelocityWindow int
	// HistoryLimit caps per-track history length; 0 keeps everything.
	HistoryLimit int
}

// TrackedLight is the state of one named light across the video. Owned
// exclusively by one Tracker; mutated only by that tracker, once per frame,
// in frame order.
type TrackedLight struct {
	Name  string
	State State

	X, Y          float64
	Width, Height float64
	R, G, B       float64
	Confidence    float64

	MissedFrames int
	History      []Observation

	kf *KalmanFilter
}

// LastObservation returns the most recent history entry.
func (tl *TrackedLight) LastObservation() (Observation, bool) {
	if len(tl.History) == 0 {
		return Observation{}, false
	}
	return tl.History[len(tl.History)-1], true
}

// Tracker tracks all seeded lights through one video.
type Tracker struct {
	cfg    Config
	scorer MatchScorer
	lg     *logging.Logger

	lights map[string]*TrackedLight
	names  []string // stable iteration order

	prevDetections []detection.Light
	lastFrame      int
	started        bool
}

// NewTracker creates a tracker. scorer may be nil to use the default blend;
// lg may be nil.
func NewTracker(cfg Config, scorer MatchScorer, lg *logging.Logger) *Tracker {
	if scorer == nil {
		scorer = DefaultScoreWeights().Scorer()
	}
	if cfg.MaxGapFrames <= 0 {
		cfg.MaxGapFrames = 30
	}
	if cfg.MatchCeilingPx <= 0 {
		cfg.MatchCeilingPx = 80
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = 5
	}
	return &Tracker{
		cfg:    cfg,
		scorer: scorer,
		lg:     lg,
		lights: make(map[string]*TrackedLight),
	}
}

// Seed registers a light at its confirmed starting position. frameIndex is
// the frame the seed applies to (normally the first processed frame).
func (t *Tracker) Seed(name string, frameIndex int, x, y, w, h, confidence float64) {
	if confidence <= 0 {
		confidence = 0.5
	}
	tl := &TrackedLight{
		Name:       name,
		State:      StateSeeded,
		X:          x,
		Y:          y,
		Width:      w,
		Height:     h,
		Confidence: confidence,
		kf:         NewKalmanFilter(),
	}
	tl.History = append(tl.History, Observation{
		FrameIndex: frameIndex,
		X:          x,
		Y:          y,
		Width:      w,
		Height:     h,
		Confidence: confidence,
	})
	tl.kf.Update(x, y, 1)

	if _, exists := t.lights[name]; !exists {
		t.names = append(t.names, name)
		sort.Strings(t.names)
	}
	t.lights[name] = tl
	t.lg.Debugf("[TRACK] seeded %s at %.1f,%.1f", name, x, y)
}

// Reseed revives a lost (or drifted) track at a confirmed position. Unlike
// the silent continuation the lost state forbids, this is an explicit
// operator action and restarts the history.
func (t *Tracker) Reseed(name string, frameIndex int, x, y, w, h, confidence float64) error {
	if _, ok := t.lights[name]; !ok {
		return fmt.Errorf("unknown light %q", name)
	}
	t.Seed(name, frameIndex, x, y, w, h, confidence)
	return nil
}

// Lights returns the tracked light names in stable order.
func (t *Tracker) Lights() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Light returns the track for a name, or nil.
func (t *Tracker) Light(name string) *TrackedLight { return t.lights[name] }

// Update advances all tracks by one frame and returns the per-light
// snapshots. Frames must arrive in strictly increasing order.
func (t *Tracker) Update(frameIndex int, detections []detection.Light) (map[string]Snapshot, error) {
	if t.started && frameIndex <= t.lastFrame {
		return nil, fmt.Errorf("frame %d out of order (last was %d)", frameIndex, t.lastFrame)
	}
	dt := 1.0
	if t.started {
		dt = float64(frameIndex - t.lastFrame)
	}
	t.lastFrame = frameIndex
	t.started = true

	// (1) Global camera motion from the full detector outputs.
	gdx, gdy := EstimateGlobalMotion(t.prevDetections, detections)
	t.prevDetections = detections

	// (3) Greedy association in stable name order; a claimed detection is
	// unavailable to later tracks so two lights can't share one blob.
	used := make(map[int]bool)
	snapshots := make(map[string]Snapshot, len(t.names))

	for _, name := range t.names {
		tl := t.lights[name]

		// (2) Prediction: own short-window velocity plus the global-motion
		// correction.
		vx, vy := t.ownVelocity(tl)
		predX := tl.X + vx*dt + gdx
		predY := tl.Y + vy*dt + gdy

		if tl.State == StateLost {
			// Lost tracks drift with global motion only, at floor
			// confidence, and their history stays frozen. Recovery
			// requires an explicit Reseed.
			tl.X += gdx
			tl.Y += gdy
			tl.Confidence = 0.05
			snapshots[name] = t.snapshot(tl)
			continue
		}

		bestIdx := -1
		bestCost := math.MaxFloat64
		last, _ := tl.LastObservation()
		for i, cand := range detections {
			if used[i] {
				continue
			}
			if math.Hypot(cand.CenterX-predX, cand.CenterY-predY) > t.cfg.MatchCeilingPx {
				continue
			}
			cost := t.scorer(predX, predY, last, cand)
			if cost < bestCost {
				bestCost = cost
				bestIdx = i
			}
		}

		if bestIdx >= 0 {
			used[bestIdx] = true
			t.acceptMatch(tl, frameIndex, detections[bestIdx], dt)
		} else {
			t.acceptMiss(tl, frameIndex, predX, predY, dt)
		}

		snapshots[name] = t.snapshot(tl)
	}

	return snapshots, nil
}

// acceptMatch folds a matched detection into the track.
func (t *Tracker) acceptMatch(tl *TrackedLight, frameIndex int, cand detection.Light, dt float64) {
	fx, fy, _, _ := tl.kf.Update(cand.CenterX, cand.CenterY, dt)

	tl.X = fx
	tl.Y = fy
	tl.Width = cand.Width
	tl.Height = cand.Height
	tl.R = cand.MeanR
	tl.G = cand.MeanG
	tl.B = cand.MeanB
	tl.MissedFrames = 0
	tl.State = StateTracked
	tl.Confidence = math.Min(1, tl.Confidence+0.1)

	t.appendObservation(tl, Observation{
		FrameIndex: frameIndex,
		X:          tl.X,
		Y:          tl.Y,
		Width:      tl.Width,
		Height:     tl.Height,
		R:          tl.R,
		G:          tl.G,
		B:          tl.B,
		Confidence: tl.Confidence,
	})
}

// acceptMiss advances a track without a detection: short gaps extrapolate
// at reduced confidence, gaps past MaxGapFrames transition to lost.
func (t *Tracker) acceptMiss(tl *TrackedLight, frameIndex int, predX, predY float64, dt float64) {
	tl.MissedFrames += int(dt)

	if tl.MissedFrames > t.cfg.MaxGapFrames {
		tl.State = StateLost
		tl.Confidence = 0.05
		t.lg.Debugf("[TRACK] %s lost after %d missed frames", tl.Name, tl.MissedFrames)
		// History freezes here: no observation is appended for a lost
		// track, so the gap invariant is visible in the data.
		return
	}

	tl.X = predX
	tl.Y = predY
	tl.State = StatePredicted
	tl.Confidence = math.Max(0.1, tl.Confidence*0.8)

	t.appendObservation(tl, Observation{
		FrameIndex: frameIndex,
		X:          tl.X,
		Y:          tl.Y,
		Width:      tl.Width,
		Height:     tl.Height,
		R:          tl.R,
		G:          tl.G,
		B:          tl.B,
		Confidence: tl.Confidence,
		Predicted:  true,
	})
}

// ownVelocity estimates a track's pixel velocity per frame from its recent
// history window.
func (t *Tracker) ownVelocity(tl *TrackedLight) (float64, float64) {
	n := len(tl.History)
	if n < 2 {
		return 0, 0
	}
	w := t.cfg.VelocityWindow
	if w > n {
		w = n
	}
	first := tl.History[n-w]
	last := tl.History[n-1]
	frames := float64(last.FrameIndex - first.FrameIndex)
	if frames <= 0 {
		return 0, 0
	}
	return (last.X - first.X) / frames, (last.Y - first.Y) / frames
}

func (t *Tracker) appendObservation(tl *TrackedLight, obs Observation) {
	// A seed and the first update routinely land on the same frame; the
	// measured observation replaces the seed entry so history frame
	// indexes stay strictly increasing.
	if n := len(tl.History); n > 0 && tl.History[n-1].FrameIndex == obs.FrameIndex {
		tl.History[n-1] = obs
		return
	}
	tl.History = append(tl.History, obs)
	if t.cfg.HistoryLimit > 0 && len(tl.History) > t.cfg.HistoryLimit {
		tl.History = tl.History[len(tl.History)-t.cfg.HistoryLimit:]
	}
}

func (t *Tracker) snapshot(tl *TrackedLight) Snapshot {
	return Snapshot{
		Name:       tl.Name,
		State:      tl.State,
		X:          tl.X,
		Y:          tl.Y,
		Width:      tl.Width,
		Height:     tl.Height,
		R:          tl.R,
		G:          tl.G,
		B:          tl.B,
		Confidence: tl.Confidence,
	}
}
