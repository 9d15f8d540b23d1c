package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"airlights/config"
	"airlights/detection"
	"airlights/pkg/logging"
	"airlights/telemetry"
	"airlights/tracking"
	"airlights/video"
)

// Session binds everything one processing run needs: the decoded video, the
// detection provider, a tracker seeded from the session config and the
// interpolated drone position track.
type Session struct {
	ID  string
	Cfg *config.Session

	Source    *video.Source
	Providers *detection.ProviderManager
	Detector  *detection.Detector
	Tracker   *tracking.Tracker
	Positions *telemetry.Interpolator
	Encoding  telemetry.Encoding

	lg *logging.Logger
}

// NewSession validates the config and assembles a ready-to-run session.
// Every fatal precondition is checked here, before any frame is decoded:
// an unreadable video, missing position data or missing reference points
// abort the run up front rather than partway through.
func NewSession(cfg *config.Session, forceCPU bool, lg *logging.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	src, err := video.Open(cfg.VideoPath)
	if err != nil {
		return nil, err
	}

	samples, encoding, err := telemetry.NewExtractor(lg).Extract(cfg.VideoPath)
	if err != nil {
		src.Close()
		return nil, err
	}
	interp, err := telemetry.NewInterpolator(samples, src.FPS())
	if err != nil {
		src.Close()
		return nil, err
	}

	pm := detection.NewProviderManager(lg)
	if err := pm.Initialize(forceCPU); err != nil {
		src.Close()
		return nil, err
	}

	det := detection.NewDetector(pm.Provider(), detection.Params{
		MaskParams: detection.MaskParams{
			BrightnessThreshold: cfg.Tuning.BrightnessThreshold,
			SaturatedThreshold:  cfg.Tuning.SaturatedThreshold,
		},
		MinBlobArea: cfg.Tuning.MinBlobArea,
		MaxBlobArea: cfg.Tuning.MaxBlobArea,
	}, lg)

	trk := tracking.NewTracker(tracking.Config{
		MaxGapFrames:   cfg.Tuning.MaxGapFrames,
		MatchCeilingPx: cfg.Tuning.MatchCeilingPx,
		VelocityWindow: cfg.Tuning.VelocityWindow,
	}, nil, lg)
	for _, name := range cfg.TrackedNames() {
		seed := cfg.Seeds[name]
		x, y, w, h := seed.ToPixels(src.Width(), src.Height())
		trk.Seed(name, 0, x, y, w, h, seed.Confidence)
	}

	s := &Session{
		ID:        uuid.New().String(),
		Cfg:       cfg,
		Source:    src,
		Providers: pm,
		Detector:  det,
		Tracker:   trk,
		Positions: interp,
		Encoding:  encoding,
		lg:        lg,
	}

	lg.Infof("[SESSION] %s: %s %dx%d @ %.2f fps, %d frames, position source %s (%d samples)",
		s.ID, cfg.VideoPath, src.Width(), src.Height(), src.FPS(), src.FrameCount(),
		encoding, interp.SampleCount())

	return s, nil
}

// Close releases the session's video and detection resources.
func (s *Session) Close() error {
	err := s.Source.Close()
	if cerr := s.Providers.Close(); err == nil {
		err = cerr
	}
	return err
}
