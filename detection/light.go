// Package detection finds candidate light blobs in video frames and
// identifies the PAPI unit array among them. The mask-building step runs on
// either a CPU or CUDA provider behind one interface; contour measurement
// and color classification are shared so the algorithm stays single-sourced.
package detection

// Class is the coarse color/brightness classification of a detected blob.
type Class string

const (
	ClassRed           Class = "red"
	ClassWhite         Class = "white"
	ClassGreen         Class = "green"
	ClassBlue          Class = "blue"
	ClassHighIntensity Class = "high-intensity"
	ClassUnclassified  Class = "unclassified"
)

// Light is one detected bright blob. Transient: recomputed every frame.
type Light struct {
	CenterX float64 // pixel centroid
	CenterY float64
	Width   float64 // bounding box, pixels
	Height  float64

	MeanR float64 // mean color inside the contour mask
	MeanG float64
	MeanB float64

	PeakBrightness float64 // brightest gray value in the bounding box
	Intensity      float64 // mean luma inside the contour

	Class Class
}

// AreaPx returns the bounding-box area in pixels.
func (l Light) AreaPx() float64 { return l.Width * l.Height }

// Luma computes perceptual brightness from RGB using the BT.601 weights.
func Luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// Classify assigns a coarse class from mean RGB and peak brightness.
// PAPI optics only ever show red or white, but stray airfield lights
// (threshold greens, taxiway blues) show up in frames too and classifying
// them keeps the line identifier from picking them.
func Classify(r, g, b, peak float64) Class {
	intensity := Luma(r, g, b)
	sum := r + g + b
	if sum < 1 {
		return ClassUnclassified
	}

	// Normalized channel shares are robust against exposure changes.
	rn, gn, bn := r/sum, g/sum, b/sum

	switch {
	case rn > 0.45 && rn > gn*1.4 && rn > bn*1.4:
		return ClassRed
	case rn > 0.28 && gn > 0.28 && bn > 0.20 && intensity > 160:
		// Balanced channels at high intensity: white light. A slightly
		// warm white still passes because only rough balance is required.
		return ClassWhite
	case gn > 0.45 && gn > rn*1.4:
		return ClassGreen
	case bn > 0.45 && bn > gn*1.2:
		return ClassBlue
	case peak > 240 && intensity > 140:
		// Saturated blob with no dominant hue, typically an overexposed
		// light at distance.
		return ClassHighIntensity
	default:
		return ClassUnclassified
	}
}

// IsPAPIColor reports whether the class is one a PAPI unit can show.
func (c Class) IsPAPIColor() bool {
	return c == ClassRed || c == ClassWhite || c == ClassHighIntensity
}
