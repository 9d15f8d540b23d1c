package tracking

import (
	"fmt"
	"sort"
)

// PersistedTrack is the serializable subset of a track's state. Filter
// internals are not persisted; Restore rebuilds them from the recorded
// history.
type PersistedTrack struct {
	Name         string        `msgpack:"name"`
	State        State         `msgpack:"state"`
	X            float64       `msgpack:"x"`
	Y            float64       `msgpack:"y"`
	Width        float64       `msgpack:"width"`
	Height       float64       `msgpack:"height"`
	R            float64       `msgpack:"r"`
	G            float64       `msgpack:"g"`
	B            float64       `msgpack:"b"`
	Confidence   float64       `msgpack:"confidence"`
	MissedFrames int           `msgpack:"missed_frames"`
	History      []Observation `msgpack:"history"`
}

// Export captures every track for checkpointing. Tracks are returned in
// name order.
func (t *Tracker) Export() []PersistedTrack {
	out := make([]PersistedTrack, 0, len(t.names))
	for _, name := range t.names {
		tl := t.lights[name]
		p := PersistedTrack{
			Name:         name,
			State:        tl.State,
			X:            tl.X,
			Y:            tl.Y,
			Width:        tl.Width,
			Height:       tl.Height,
			R:            tl.R,
			G:            tl.G,
			B:            tl.B,
			Confidence:   tl.Confidence,
			MissedFrames: tl.MissedFrames,
		}
		p.History = append(p.History, tl.History...)
		out = append(out, p)
	}
	return out
}

// Restore replaces the tracker's state with a previously exported set of
// tracks and resumes at lastFrame. Filters are re-seeded from the last
// recorded observations so velocity estimates survive the round trip.
func (t *Tracker) Restore(tracks []PersistedTrack, lastFrame int) error {
	lights := make(map[string]*TrackedLight, len(tracks))
	names := make([]string, 0, len(tracks))

	for _, p := range tracks {
		if p.Name == "" {
			return fmt.Errorf("persisted track with empty name")
		}
		if _, dup := lights[p.Name]; dup {
			return fmt.Errorf("duplicate persisted track %q", p.Name)
		}
		tl := &TrackedLight{
			Name:         p.Name,
			State:        p.State,
			X:            p.X,
			Y:            p.Y,
			Width:        p.Width,
			Height:       p.Height,
			R:            p.R,
			G:            p.G,
			B:            p.B,
			Confidence:   p.Confidence,
			MissedFrames: p.MissedFrames,
			kf:           NewKalmanFilter(),
		}
		tl.History = append(tl.History, p.History...)

		// Replay the last few observations so the filter's velocity state
		// matches the track's recent motion.
		replay := tl.History
		if len(replay) > t.cfg.VelocityWindow+1 {
			replay = replay[len(replay)-t.cfg.VelocityWindow-1:]
		}
		for i, obs := range replay {
			dt := 1.0
			if i > 0 {
				dt = float64(obs.FrameIndex - replay[i-1].FrameIndex)
			}
			tl.kf.Update(obs.X, obs.Y, dt)
		}

		lights[p.Name] = tl
		names = append(names, p.Name)
	}

	sort.Strings(names)
	t.lights = lights
	t.names = names
	t.lastFrame = lastFrame
	t.started = true
	t.prevDetections = nil
	return nil
}
