package detection

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"airlights/pkg/logging"
)

// Params configures a Detector.
type Params struct {
	MaskParams
	MinBlobArea float64 // contour area window, px^2
	MaxBlobArea float64
}

// Detector turns frames into detected lights. The provider builds the
// candidate mask; contour extraction and measurement happen here so both
// providers share one implementation.
type Detector struct {
	provider Provider
	params   Params
	lg       *logging.Logger
}

// NewDetector creates a detector over the given provider. lg may be nil.
func NewDetector(provider Provider, params Params, lg *logging.Logger) *Detector {
	return &Detector{provider: provider, params: params, lg: lg}
}

// Detect returns all candidate light blobs in a BGR frame, unordered.
func (d *Detector) Detect(frame gocv.Mat) ([]Light, error) {
	mask := gocv.NewMat()
	defer mask.Close()
	if err := d.provider.BuildMask(frame, d.params.MaskParams, &mask); err != nil {
		return nil, fmt.Errorf("mask build failed: %w", err)
	}

	// Close fills single-pixel holes inside a light, open removes speckle
	// the union mask inevitably picks up.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var lights []Light
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < d.params.MinBlobArea || area > d.params.MaxBlobArea {
			continue
		}

		rect := gocv.BoundingRect(contour)
		light, ok := measureBlob(frame, gray, mask, rect)
		if !ok {
			continue
		}
		lights = append(lights, light)
	}

	d.lg.Debugf("[DETECT] %d contours, %d lights in area window", contours.Size(), len(lights))
	return lights, nil
}

// Close releases the underlying provider.
func (d *Detector) Close() error { return d.provider.Close() }

// measureBlob computes centroid, mean color, peak brightness and class for
// one bounding rect of the mask.
func measureBlob(frame, gray, mask gocv.Mat, rect image.Rectangle) (Light, bool) {
	roi := frame.Region(rect)
	defer roi.Close()
	grayROI := gray.Region(rect)
	defer grayROI.Close()
	maskROI := mask.Region(rect)
	defer maskROI.Close()

	// Centroid from the mask moments; falls back to the rect center for a
	// degenerate (all-zero) region.
	m := gocv.Moments(maskROI, true)
	cx := float64(rect.Min.X) + float64(rect.Dx())/2
	cy := float64(rect.Min.Y) + float64(rect.Dy())/2
	if m["m00"] > 0 {
		cx = float64(rect.Min.X) + m["m10"]/m["m00"]
		cy = float64(rect.Min.Y) + m["m01"]/m["m00"]
	}

	mean := roi.MeanWithMask(maskROI)
	b, g, r := mean.Val1, mean.Val2, mean.Val3

	_, maxVal, _, _ := gocv.MinMaxLoc(grayROI)
	peak := float64(maxVal)

	intensity := Luma(r, g, b)
	if intensity <= 0 && peak <= 0 {
		return Light{}, false
	}

	return Light{
		CenterX:        cx,
		CenterY:        cy,
		Width:          float64(rect.Dx()),
		Height:         float64(rect.Dy()),
		MeanR:          r,
		MeanG:          g,
		MeanB:          b,
		PeakBrightness: peak,
		Intensity:      intensity,
		Class:          Classify(r, g, b, peak),
	}, true
}
