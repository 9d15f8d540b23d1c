package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"airlights/config"
	"airlights/detection"
	"airlights/geodesy"
	"airlights/tracking"
)

// ErrMissingReference aborts a run when a tracked light has no surveyed
// reference point. Angles and distances would be meaningless, so this is
// fatal rather than skippable.
var ErrMissingReference = errors.New("tracked light has no reference point")

// Progress reports how far a run has gotten.
type Progress struct {
	FramesProcessed int
	TotalFrames     int
	Elapsed         time.Duration
}

// FrameHook receives each processed frame with its measurement and track
// snapshots. The Mat is only valid during the call. Used for overlay
// rendering; nil disables frame retention entirely.
type FrameHook func(frame *gocv.Mat, fm FrameMeasurement, snaps map[string]tracking.Snapshot)

// Options control one Run invocation.
type Options struct {
	Workers        int
	ProgressEveryN int
	OnProgress     func(Progress)
	OnFrame        FrameHook

	// CheckpointPath enables periodic checkpointing when non-empty.
	CheckpointPath   string
	CheckpointEveryN int
	// Resume loads CheckpointPath before processing and continues from
	// the recorded frame.
	Resume bool
}

// Pipeline executes the measurement run for one session.
type Pipeline struct {
	sess *Session
	opts Options
}

// New creates a pipeline. Zero option fields fall back to the session's
// tuning values.
func New(sess *Session, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = sess.Cfg.Tuning.Workers
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ProgressEveryN <= 0 {
		opts.ProgressEveryN = sess.Cfg.Tuning.ProgressEveryN
	}
	if opts.ProgressEveryN <= 0 {
		opts.ProgressEveryN = 30
	}
	if opts.CheckpointEveryN <= 0 {
		opts.CheckpointEveryN = sess.Cfg.Tuning.CheckpointEveryN
	}
	return &Pipeline{sess: sess, opts: opts}
}

type frameJob struct {
	index int
	mat   gocv.Mat
}

// sequencer buffers out-of-order worker results and releases them in strict
// frame order, the only order the tracker accepts.
type sequencer struct {
	pending map[int]frameResult
	next    int
}

func newSequencer(start int) *sequencer {
	return &sequencer{pending: make(map[int]frameResult), next: start}
}

// add buffers one result and returns the consecutive run of results that is
// now ready, in frame order. Results for frames already released are
// impossible by construction (each frame is decoded once).
func (s *sequencer) add(r frameResult) []frameResult {
	s.pending[r.index] = r
	var ready []frameResult
	for {
		nr, ok := s.pending[s.next]
		if !ok {
			return ready
		}
		delete(s.pending, s.next)
		ready = append(ready, nr)
		s.next++
	}
}

// drain returns everything still buffered, for cleanup on an aborted run.
func (s *sequencer) drain() []frameResult {
	out := make([]frameResult, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	s.pending = make(map[int]frameResult)
	return out
}

type frameResult struct {
	index  int
	lights []detection.Light
	mat    gocv.Mat
	hasMat bool
}

// Run processes the whole video and returns the measurement series.
// Decoding is sequential, detection fans out across workers, and results
// are reassembled in frame order before the tracker sees them: the tracker
// is strictly sequential by design.
//
// Any error — decode failure, detection failure, missing reference point —
// aborts the entire run. Cancellation via ctx is honored between frames.
func (p *Pipeline) Run(ctx context.Context) (*Series, error) {
	sess := p.sess
	lg := sess.lg

	series := &Series{
		SessionID:  sess.ID,
		VideoPath:  sess.Cfg.VideoPath,
		FPS:        sess.Source.FPS(),
		FrameCount: sess.Source.FrameCount(),
		CreatedAt:  time.Now().UTC(),
	}
	startFrame := 0

	if p.opts.Resume && p.opts.CheckpointPath != "" {
		cp, err := LoadCheckpoint(p.opts.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resume: %w", err)
		}
		if err := cp.Apply(sess.Tracker, series); err != nil {
			return nil, fmt.Errorf("failed to resume: %w", err)
		}
		startFrame = cp.NextFrame
		lg.Infof("[PIPELINE] resuming %s at frame %d", sess.ID, startFrame)
		if err := sess.Source.Seek(startFrame); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan frameJob, p.opts.Workers)
	results := make(chan frameResult, p.opts.Workers)
	keepMat := p.opts.OnFrame != nil

	// Decoder: sequential reads, one job per frame.
	g.Go(func() error {
		defer close(jobs)
		for {
			frame, idx, err := sess.Source.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- frameJob{index: idx, mat: frame}:
			case <-gctx.Done():
				frame.Close()
				return gctx.Err()
			}
		}
	})

	// Detection workers.
	var workers sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for job := range jobs {
				lights, err := sess.Detector.Detect(job.mat)
				if err != nil {
					job.mat.Close()
					return fmt.Errorf("detection failed on frame %d: %w", job.index, err)
				}
				res := frameResult{index: job.index, lights: lights}
				if keepMat {
					res.mat = job.mat
					res.hasMat = true
				} else {
					job.mat.Close()
				}
				select {
				case results <- res:
				case <-gctx.Done():
					if res.hasMat {
						res.mat.Close()
					}
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// Reassemble in frame order and run the sequential stages.
	started := time.Now()
	seq := newSequencer(startFrame)
	var runErr error

	for res := range results {
		if runErr != nil {
			if res.hasMat {
				res.mat.Close()
			}
			continue
		}
		for _, r := range seq.add(res) {
			err := p.processFrame(r, series)
			if r.hasMat {
				r.mat.Close()
			}
			if err != nil {
				runErr = err
				cancel()
				break
			}

			done := r.index + 1 - startFrame
			if p.opts.OnProgress != nil && done%p.opts.ProgressEveryN == 0 {
				p.opts.OnProgress(Progress{
					FramesProcessed: done,
					TotalFrames:     series.FrameCount - startFrame,
					Elapsed:         time.Since(started),
				})
			}
			if p.opts.CheckpointPath != "" && p.opts.CheckpointEveryN > 0 && done%p.opts.CheckpointEveryN == 0 {
				if err := SaveCheckpoint(p.opts.CheckpointPath, NewCheckpoint(sess, series, r.index+1)); err != nil {
					lg.Warnf("[PIPELINE] checkpoint failed at frame %d: %v", r.index+1, err)
				}
			}
		}
	}
	for _, r := range seq.drain() {
		if r.hasMat {
			r.mat.Close()
		}
	}

	err := g.Wait()

	// On an abort the workers exit early; frames the decoder already
	// buffered must still be released.
	for job := range jobs {
		job.mat.Close()
	}

	if runErr == nil && err != nil && !errors.Is(err, context.Canceled) {
		runErr = err
	}
	if runErr == nil {
		if err := ctx.Err(); err != nil {
			runErr = err
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	lg.Infof("[PIPELINE] %s: processed %d frames in %s", sess.ID, len(series.Frames), time.Since(started).Round(time.Millisecond))
	return series, nil
}

// processFrame runs the sequential stages for one frame: tracking, position
// lookup, geometry, record assembly.
func (p *Pipeline) processFrame(r frameResult, series *Series) error {
	sess := p.sess
	cfg := sess.Cfg

	snaps, err := sess.Tracker.Update(r.index, r.lights)
	if err != nil {
		return err
	}

	pos := sess.Positions.At(r.index)
	drone := geodesy.Point{
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		ElevationM: pos.AltitudeM,
	}

	fm := FrameMeasurement{
		FrameIndex:   r.index,
		TimestampMS:  int64(float64(r.index) / series.FPS * 1000),
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
		ElevationM:   pos.AltitudeM,
		PositionMode: pos.Mode,
		Lights:       make(map[string]LightMeasurement, len(snaps)),
	}
	if pos.HasGimbal {
		fm.GimbalYawDeg = pos.GimbalYawDeg
		fm.GimbalPitchDeg = pos.GimbalPitchDeg
		fm.GimbalRollDeg = pos.GimbalRollDeg
	}

	for name, snap := range snaps {
		ref, ok := cfg.ReferencePoints[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingReference, name)
		}
		vert, horiz, ground, direct := measureGeometry(drone, geodesy.Point{
			Latitude:   ref.Latitude,
			Longitude:  ref.Longitude,
			ElevationM: ref.ElevationM,
		}, cfg.RunwayHeadingDeg, cfg.HasRunwayHeading)

		fm.Lights[name] = LightMeasurement{
			Status:             classifyStatus(snap.R, snap.G, snap.B, snap.Confidence, snap.State),
			TrackState:         snap.State,
			CenterX:            snap.X,
			CenterY:            snap.Y,
			AreaPx:             snap.Width * snap.Height,
			R:                  snap.R,
			G:                  snap.G,
			B:                  snap.B,
			Intensity:          detection.Luma(snap.R, snap.G, snap.B),
			VerticalAngleDeg:   vert,
			HorizontalAngleDeg: horiz,
			GroundDistanceM:    ground,
			DirectDistanceM:    direct,
			Confidence:         snap.Confidence,
		}
	}

	if tp, ok := cfg.ReferencePoints[config.TouchPointName]; ok {
		vert, horiz, ground, direct := measureGeometry(drone, geodesy.Point{
			Latitude:   tp.Latitude,
			Longitude:  tp.Longitude,
			ElevationM: tp.ElevationM,
		}, cfg.RunwayHeadingDeg, cfg.HasRunwayHeading)
		fm.TouchPoint = &TouchPointMeasurement{
			VerticalAngleDeg:   vert,
			HorizontalAngleDeg: horiz,
			GroundDistanceM:    ground,
			DirectDistanceM:    direct,
		}
	}

	if err := series.Append(fm); err != nil {
		return err
	}

	if p.opts.OnFrame != nil && r.hasMat {
		p.opts.OnFrame(&r.mat, fm, snaps)
	}
	return nil
}
