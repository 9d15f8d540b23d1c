// Package video wraps OpenCV video decoding behind a small Source type:
// sequential reads for the processing loop plus cached random access for
// preview and resume.
package video

import (
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gocv.io/x/gocv"
)

// Source decodes one video file. Sequential Read is the hot path; ReadAt
// seeks and is backed by an LRU cache of cloned frames because container
// seeks are expensive and preview tools revisit the same frames.
type Source struct {
	mu sync.Mutex

	vc   *gocv.VideoCapture
	path string

	fps        float64
	frameCount int
	width      int
	height     int

	pos   int // next frame index Read will return
	cache *lru.Cache[int, gocv.Mat]
}

// Open opens a video file for decoding.
func Open(path string) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}

	s := &Source{
		vc:         vc,
		path:       path,
		fps:        vc.Get(gocv.VideoCaptureFPS),
		frameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if s.fps <= 0 || s.width <= 0 || s.height <= 0 {
		vc.Close()
		return nil, fmt.Errorf("video %s is not decodable (fps=%.2f size=%dx%d)", path, s.fps, s.width, s.height)
	}

	// Evicted cache entries own their Mats and must release them.
	cache, err := lru.NewWithEvict[int, gocv.Mat](64, func(_ int, m gocv.Mat) {
		m.Close()
	})
	if err != nil {
		vc.Close()
		return nil, err
	}
	s.cache = cache

	return s, nil
}

func (s *Source) Path() string    { return s.path }
func (s *Source) FPS() float64    { return s.fps }
func (s *Source) FrameCount() int { return s.frameCount }
func (s *Source) Width() int      { return s.width }
func (s *Source) Height() int     { return s.height }

// Read decodes the next frame and returns it with its index. The caller
// owns the returned Mat. Returns io.EOF at end of stream.
func (s *Source) Read() (gocv.Mat, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := gocv.NewMat()
	if ok := s.vc.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return gocv.Mat{}, 0, io.EOF
	}
	idx := s.pos
	s.pos++
	return frame, idx, nil
}

// Seek positions the next Read at the given frame index.
func (s *Source) Seek(frame int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame < 0 || (s.frameCount > 0 && frame >= s.frameCount) {
		return fmt.Errorf("seek to frame %d outside video (%d frames)", frame, s.frameCount)
	}
	s.vc.Set(gocv.VideoCapturePosFrames, float64(frame))
	s.pos = frame
	return nil
}

// ReadAt returns a copy of an arbitrary frame, using the cache when
// possible. The caller owns the returned Mat. Sequential position is
// preserved across the call.
func (s *Source) ReadAt(frame int) (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache.Get(frame); ok {
		return cached.Clone(), nil
	}

	resume := s.pos
	s.vc.Set(gocv.VideoCapturePosFrames, float64(frame))

	m := gocv.NewMat()
	if ok := s.vc.Read(&m); !ok || m.Empty() {
		m.Close()
		s.vc.Set(gocv.VideoCapturePosFrames, float64(resume))
		return gocv.Mat{}, fmt.Errorf("failed to decode frame %d", frame)
	}

	s.cache.Add(frame, m.Clone())
	s.vc.Set(gocv.VideoCapturePosFrames, float64(resume))
	return m, nil
}

// Close releases the decoder and all cached frames.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Purge()
	return s.vc.Close()
}
