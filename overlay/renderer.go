// Package overlay renders diagnostic annotations onto processed frames:
// per-light boxes colored by track state, status labels and a telemetry
// block. Purely cosmetic; nothing here feeds back into measurement.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"gocv.io/x/gocv"

	"airlights/pipeline"
	"airlights/tracking"
)

// Track-state colors, BGR order as OpenCV expects.
var stateColors = map[tracking.State]color.RGBA{
	tracking.StateSeeded:    {B: 255, G: 200, R: 0, A: 0},
	tracking.StateTracked:   {B: 0, G: 220, R: 0, A: 0},
	tracking.StatePredicted: {B: 0, G: 200, R: 255, A: 0},
	tracking.StateLost:      {B: 0, G: 0, R: 220, A: 0},
}

var (
	textColor   = color.RGBA{B: 235, G: 235, R: 235, A: 0}
	shadowColor = color.RGBA{B: 20, G: 20, R: 20, A: 0}
)

// Renderer draws annotations in place on BGR frames.
type Renderer struct {
	fontScale float64
	thickness int
}

// NewRenderer creates a renderer with sizing suitable for 1080p-4K frames.
func NewRenderer() *Renderer {
	return &Renderer{fontScale: 0.5, thickness: 1}
}

// Draw annotates one frame with its measurement and track snapshots.
func (r *Renderer) Draw(frame *gocv.Mat, fm pipeline.FrameMeasurement, snaps map[string]tracking.Snapshot) {
	names := make([]string, 0, len(snaps))
	for name := range snaps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r.drawLight(frame, name, snaps[name], fm.Lights[name])
	}
	r.drawTelemetry(frame, fm)
}

func (r *Renderer) drawLight(frame *gocv.Mat, name string, snap tracking.Snapshot, lm pipeline.LightMeasurement) {
	col, ok := stateColors[snap.State]
	if !ok {
		col = stateColors[tracking.StateLost]
	}

	halfW := int(snap.Width / 2)
	halfH := int(snap.Height / 2)
	if halfW < 6 {
		halfW = 6
	}
	if halfH < 6 {
		halfH = 6
	}
	rect := image.Rect(int(snap.X)-halfW, int(snap.Y)-halfH, int(snap.X)+halfW, int(snap.Y)+halfH)
	gocv.Rectangle(frame, rect, col, r.thickness+1)

	label := fmt.Sprintf("%s %s %.2f", name, lm.Status, snap.Confidence)
	r.putText(frame, label, image.Pt(rect.Min.X, rect.Min.Y-8), col)

	detail := fmt.Sprintf("v%.2f d%.0fm", lm.VerticalAngleDeg, lm.GroundDistanceM)
	r.putText(frame, detail, image.Pt(rect.Min.X, rect.Max.Y+16), textColor)

	// Observed color chip next to the box, the fastest way to sanity-check
	// classification against the raw footage.
	chip := image.Rect(rect.Max.X+4, rect.Min.Y, rect.Max.X+18, rect.Min.Y+14)
	gocv.RectangleWithParams(frame, chip, color.RGBA{B: uint8(snap.B), G: uint8(snap.G), R: uint8(snap.R), A: 0}, -1, gocv.LineAA, 0)
}

func (r *Renderer) drawTelemetry(frame *gocv.Mat, fm pipeline.FrameMeasurement) {
	lines := []string{
		fmt.Sprintf("frame %d  t=%.2fs", fm.FrameIndex, float64(fm.TimestampMS)/1000),
		fmt.Sprintf("pos %.6f,%.6f  alt %.1fm  [%s]", fm.Latitude, fm.Longitude, fm.ElevationM, fm.PositionMode),
	}
	if fm.TouchPoint != nil {
		lines = append(lines, fmt.Sprintf("touch point %.0fm  v%.2f", fm.TouchPoint.GroundDistanceM, fm.TouchPoint.VerticalAngleDeg))
	}

	y := 24
	for _, line := range lines {
		r.putText(frame, line, image.Pt(12, y), textColor)
		y += 20
	}
}

// putText draws text with a one-pixel shadow so it stays readable over both
// bright sky and dark ground.
func (r *Renderer) putText(frame *gocv.Mat, text string, at image.Point, col color.RGBA) {
	gocv.PutText(frame, text, image.Pt(at.X+1, at.Y+1), gocv.FontHersheySimplex, r.fontScale, shadowColor, r.thickness)
	gocv.PutText(frame, text, at, gocv.FontHersheySimplex, r.fontScale, col, r.thickness)
}

// Writer couples a renderer with a video encoder for annotated output.
type Writer struct {
	renderer *Renderer
	vw       *gocv.VideoWriter
}

// NewWriter opens an mp4 encoder matching the source geometry.
func NewWriter(path string, fps float64, width, height int) (*Writer, error) {
	vw, err := gocv.VideoWriterFile(path, "avc1", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open overlay output %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("encoder rejected overlay output %s", path)
	}
	return &Writer{renderer: NewRenderer(), vw: vw}, nil
}

// WriteFrame annotates the frame in place and encodes it.
func (w *Writer) WriteFrame(frame *gocv.Mat, fm pipeline.FrameMeasurement, snaps map[string]tracking.Snapshot) error {
	w.renderer.Draw(frame, fm, snaps)
	return w.vw.Write(*frame)
}

// Close finalizes the output file.
func (w *Writer) Close() error {
	return w.vw.Close()
}
