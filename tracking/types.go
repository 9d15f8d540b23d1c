// Package tracking maintains per-light position tracks across a video. One
// Tracker is constructed per video session and owns its track state
// exclusively; it must observe frames in strictly increasing order because
// each update's prediction step depends on the previous frame.
package tracking

// State is the lifecycle state of one tracked light.
type State string

const (
	// StateSeeded: has a manual or auto-detected start, no match yet.
	StateSeeded State = "seeded"
	// StateTracked: matched a detection this frame.
	StateTracked State = "tracked"
	// StatePredicted: no match this frame, position extrapolated.
	StatePredicted State = "predicted"
	// StateLost: gap exceeded the configured maximum. History is frozen
	// and the position drifts with global camera motion only until the
	// track is explicitly re-seeded.
	StateLost State = "lost"
)

// Observation is one entry in a track's history. Frame indexes are strictly
// increasing within a history; Predicted marks entries that came from
// extrapolation rather than a detection match.
type Observation struct {
	FrameIndex int
	X, Y       float64
	Width      float64
	Height     float64
	R, G, B    float64
	Confidence float64
	Predicted  bool
}

// Snapshot is the per-frame output for one light.
type Snapshot struct {
	Name       string
	State      State
	X, Y       float64
	Width      float64
	Height     float64
	R, G, B    float64
	Confidence float64
}
