package tracking

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"airlights/detection"
)

// EstimateGlobalMotion estimates the frame-to-frame camera motion as the
// per-axis median of nearest-blob displacement vectors between the previous
// and current full detector outputs. The median makes it robust to a few
// per-light mismatches: as long as most blobs are static scenery lights,
// their common displacement is the camera's.
//
// Returns (0, 0) when either frame has no detections.
func EstimateGlobalMotion(prev, cur []detection.Light) (dx, dy float64) {
	if len(prev) == 0 || len(cur) == 0 {
		return 0, 0
	}

	dxs := make([]float64, 0, len(prev))
	dys := make([]float64, 0, len(prev))

	for _, p := range prev {
		best := math.MaxFloat64
		var bx, by float64
		for _, c := range cur {
			ddx := c.CenterX - p.CenterX
			ddy := c.CenterY - p.CenterY
			d2 := ddx*ddx + ddy*ddy
			if d2 < best {
				best = d2
				bx, by = ddx, ddy
			}
		}
		dxs = append(dxs, bx)
		dys = append(dys, by)
	}

	sort.Float64s(dxs)
	sort.Float64s(dys)
	dx = stat.Quantile(0.5, stat.Empirical, dxs, nil)
	dy = stat.Quantile(0.5, stat.Empirical, dys, nil)
	return dx, dy
}
