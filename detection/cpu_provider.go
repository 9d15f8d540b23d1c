package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// CPUProvider builds candidate masks with plain OpenCV. Safe for concurrent
// BuildMask calls: every call uses its own scratch Mats except the CLAHE
// instance, which is guarded.
type CPUProvider struct {
	clahe   gocv.CLAHE
	claheMu sync.Mutex
}

// Initialize prepares the CPU provider.
func (cp *CPUProvider) Initialize() error {
	// Modest clip limit: the point is to pull faint lights out of haze,
	// not to amplify sensor noise into blobs.
	cp.clahe = gocv.NewCLAHEWithParams(3.0, image.Pt(8, 8))
	return nil
}

// BuildMask writes the union of the three threshold masks into dst.
func (cp *CPUProvider) BuildMask(frame gocv.Mat, params MaskParams, dst *gocv.Mat) error {
	if frame.Empty() {
		return fmt.Errorf("empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	// Mask 1: raw brightness threshold.
	bright := gocv.NewMat()
	defer bright.Close()
	gocv.Threshold(gray, &bright, float32(params.BrightnessThreshold), 255, gocv.ThresholdBinary)

	// Mask 2: stricter "saturated" threshold on the HSV value channel with
	// low saturation, catching blown-out white cores that the color
	// channels disagree about.
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)
	saturated := gocv.NewMat()
	defer saturated.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(0, 0, params.SaturatedThreshold, 0),
		gocv.NewScalar(180, 60, 255, 0),
		&saturated)

	// Mask 3: locally contrast-enhanced threshold for faint lights.
	enhanced := gocv.NewMat()
	defer enhanced.Close()
	cp.claheMu.Lock()
	cp.clahe.Apply(gray, &enhanced)
	cp.claheMu.Unlock()
	faint := gocv.NewMat()
	defer faint.Close()
	gocv.Threshold(enhanced, &faint, float32(params.BrightnessThreshold), 255, gocv.ThresholdBinary)

	gocv.BitwiseOr(bright, saturated, dst)
	gocv.BitwiseOr(*dst, faint, dst)
	return nil
}

// Close releases resources used by the CPU provider.
func (cp *CPUProvider) Close() error {
	return cp.clahe.Close()
}

// Info returns information about the CPU provider.
func (cp *CPUProvider) Info() ProviderInfo {
	return ProviderInfo{
		Type:    "CPU",
		Backend: "OpenCV CPU",
		Device:  "CPU",
	}
}
