package detection

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"airlights/pkg/logging"
)

// LineMethod records how the PAPI line positions were produced.
type LineMethod string

const (
	// LineCombination means a 4-combination cleared the acceptance score.
	LineCombination LineMethod = "combination"
	// LineRanked means the fallback top-4 weighted ranking was used.
	LineRanked LineMethod = "ranked"
	// LinePlaceholder means default evenly spaced positions were returned.
	LinePlaceholder LineMethod = "placeholder"
)

// LineResult is the identified PAPI array, ordered left to right.
type LineResult struct {
	Lights []Light
	Method LineMethod
	Score  float64
}

// LineParams tunes the identifier. Defaults come from DefaultLineParams.
type LineParams struct {
	// MidBandFraction is the vertical fraction of the frame, centered,
	// where PAPI arrays are expected. Arrays hugging the frame edge are
	// almost always misdetections.
	MidBandFraction float64
	// AcceptScore is the minimum combination score for LineCombination.
	AcceptScore float64
	// MaxCandidates caps the exhaustive search input; candidates are
	// pre-ranked so the cap drops only the weakest.
	MaxCandidates int
	// MinSpanPx / MaxSpanFraction bound the plausible total line length.
	MinSpanPx       float64
	MaxSpanFraction float64
}

// DefaultLineParams returns the tuning used in production.
func DefaultLineParams() LineParams {
	return LineParams{
		MidBandFraction: 0.6,
		AcceptScore:     0.55,
		MaxCandidates:   14,
		MinSpanPx:       20,
		MaxSpanFraction: 0.8,
	}
}

// LineIdentifier finds the 4-light PAPI array among detected candidates.
type LineIdentifier struct {
	params LineParams
	lg     *logging.Logger
}

// NewLineIdentifier creates an identifier. lg may be nil.
func NewLineIdentifier(params LineParams, lg *logging.Logger) *LineIdentifier {
	return &LineIdentifier{params: params, lg: lg}
}

// Identify selects the best 4-light line from candidates in a frame of the
// given dimensions. It never fails: when no plausible combination exists it
// degrades to a ranked selection and finally to evenly spaced placeholder
// positions, because the operator confirms or adjusts the result manually
// before full processing starts.
func (li *LineIdentifier) Identify(candidates []Light, frameWidth, frameHeight int) LineResult {
	filtered := li.filterCandidates(candidates, frameHeight)

	if len(filtered) >= 4 {
		if best, score, ok := li.bestCombination(filtered, frameWidth); ok {
			li.lg.Debugf("[PAPI_LINE] combination accepted, score %.3f", score)
			return LineResult{Lights: sortByX(best), Method: LineCombination, Score: score}
		}

		// No combination cleared the bar; fall back to the plain weighted
		// ranking over the filtered set.
		ranked := li.rankCandidates(filtered, frameHeight)
		li.lg.Debugf("[PAPI_LINE] no combination above %.2f, using ranked fallback", li.params.AcceptScore)
		return LineResult{Lights: sortByX(ranked[:4]), Method: LineRanked}
	}

	li.lg.Debugf("[PAPI_LINE] only %d plausible candidates, returning placeholder line", len(filtered))
	return LineResult{Lights: li.placeholderLine(frameWidth, frameHeight), Method: LinePlaceholder}
}

// filterCandidates keeps blobs that could plausibly be PAPI members,
// pre-ranked by the weighted membership score and capped for the
// combinatorial search.
func (li *LineIdentifier) filterCandidates(candidates []Light, frameHeight int) []Light {
	type scored struct {
		light Light
		score float64
	}

	var kept []scored
	for _, c := range candidates {
		score := li.membershipScore(c, frameHeight)
		if score <= 0.1 {
			continue
		}
		kept = append(kept, scored{c, score})
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	if len(kept) > li.params.MaxCandidates {
		kept = kept[:li.params.MaxCandidates]
	}

	out := make([]Light, len(kept))
	for i, s := range kept {
		out[i] = s.light
	}
	return out
}

// membershipScore weights absolute intensity, mid-band membership and red
// classification. PAPI arrays conventionally begin red-side, so a red blob
// is a stronger hint than a white one.
func (li *LineIdentifier) membershipScore(c Light, frameHeight int) float64 {
	intensity := math.Min(c.Intensity/255, 1)

	band := li.params.MidBandFraction / 2
	centerDist := math.Abs(c.CenterY/float64(frameHeight) - 0.5)
	midBand := 0.0
	if centerDist <= band {
		midBand = 1 - centerDist/band
	}

	red := 0.0
	if c.Class == ClassRed {
		red = 1.0
	}

	return 0.5*intensity + 0.3*midBand + 0.2*red
}

// bestCombination exhaustively scores every 4-combination of the filtered
// candidates and returns the winner if it clears the acceptance score.
func (li *LineIdentifier) bestCombination(candidates []Light, frameWidth int) ([]Light, float64, bool) {
	n := len(candidates)
	bestScore := -1.0
	var best []Light

	for a := 0; a < n-3; a++ {
		for b := a + 1; b < n-2; b++ {
			for c := b + 1; c < n-1; c++ {
				for d := c + 1; d < n; d++ {
					combo := sortByX([]Light{candidates[a], candidates[b], candidates[c], candidates[d]})
					score := li.scoreCombination(combo, frameWidth)
					if score > bestScore {
						bestScore = score
						best = combo
					}
				}
			}
		}
	}

	if bestScore < li.params.AcceptScore {
		return nil, bestScore, false
	}
	return best, bestScore, true
}

// scoreCombination rates one X-sorted 4-combination in [0, ~1].
func (li *LineIdentifier) scoreCombination(combo []Light, frameWidth int) float64 {
	xs := make([]float64, 4)
	ys := make([]float64, 4)
	sizes := make([]float64, 4)
	intensities := make([]float64, 4)
	for i, l := range combo {
		xs[i] = l.CenterX
		ys[i] = l.CenterY
		sizes[i] = l.AreaPx()
		intensities[i] = l.Intensity
	}

	span := xs[3] - xs[0]
	if span < li.params.MinSpanPx || span > li.params.MaxSpanFraction*float64(frameWidth) {
		return 0
	}

	// Y alignment: variance of centers relative to the line span.
	yVar := stat.Variance(ys, nil)
	alignment := 1 / (1 + yVar/(span*0.05+1))

	// X spacing uniformity: variance of consecutive gaps vs the mean gap.
	gaps := []float64{xs[1] - xs[0], xs[2] - xs[1], xs[3] - xs[2]}
	meanGap := stat.Mean(gaps, nil)
	if meanGap <= 0 {
		return 0
	}
	gapVar := stat.Variance(gaps, nil)
	spacing := 1 / (1 + gapVar/(meanGap*meanGap*0.1))

	// Compactness: a PAPI line is wide and short.
	height := maxF(ys) - minF(ys) + meanF(heights(combo))
	compact := math.Min(span/(height*4+1), 1)

	// Intensity level and uniformity.
	meanInt := stat.Mean(intensities, nil)
	level := math.Min(meanInt/255, 1)
	intVar := stat.Variance(intensities, nil)
	intUniform := 1 / (1 + intVar/(meanInt*meanInt*0.1+1))

	// Size uniformity.
	meanSize := stat.Mean(sizes, nil)
	sizeVar := stat.Variance(sizes, nil)
	sizeUniform := 1 / (1 + sizeVar/(meanSize*meanSize*0.25+1))

	// Small bonus for red members.
	redBonus := 0.0
	for _, l := range combo {
		if l.Class == ClassRed {
			redBonus += 0.025
		}
	}

	return 0.25*alignment + 0.25*spacing + 0.1*compact +
		0.15*level + 0.1*intUniform + 0.15*sizeUniform + redBonus
}

// rankCandidates orders candidates by the simpler fallback weighting:
// intensity 50%, size 30%, mid-band position 15%, red classification 5%.
func (li *LineIdentifier) rankCandidates(candidates []Light, frameHeight int) []Light {
	maxSize := 1.0
	for _, c := range candidates {
		if s := c.AreaPx(); s > maxSize {
			maxSize = s
		}
	}

	scoreOf := func(c Light) float64 {
		intensity := math.Min(c.Intensity/255, 1)
		size := c.AreaPx() / maxSize

		band := li.params.MidBandFraction / 2
		centerDist := math.Abs(c.CenterY/float64(frameHeight) - 0.5)
		midBand := 0.0
		if centerDist <= band {
			midBand = 1 - centerDist/band
		}

		red := 0.0
		if c.Class == ClassRed {
			red = 1.0
		}

		return 0.5*intensity + 0.3*size + 0.15*midBand + 0.05*red
	}

	ranked := make([]Light, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool { return scoreOf(ranked[i]) > scoreOf(ranked[j]) })
	return ranked
}

// placeholderLine returns four evenly spaced default positions across the
// horizontal middle of the frame.
func (li *LineIdentifier) placeholderLine(frameWidth, frameHeight int) []Light {
	w := float64(frameWidth)
	h := float64(frameHeight)
	size := math.Max(w*0.01, 8)

	lights := make([]Light, 4)
	for i := range lights {
		lights[i] = Light{
			CenterX: w * (0.35 + 0.1*float64(i)),
			CenterY: h * 0.5,
			Width:   size,
			Height:  size,
			Class:   ClassUnclassified,
		}
	}
	return lights
}

func sortByX(lights []Light) []Light {
	out := make([]Light, len(lights))
	copy(out, lights)
	sort.Slice(out, func(i, j int) bool { return out[i].CenterX < out[j].CenterX })
	return out
}

func heights(lights []Light) []float64 {
	out := make([]float64, len(lights))
	for i, l := range lights {
		out[i] = l.Height
	}
	return out
}

func minF(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxF(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func meanF(vs []float64) float64 {
	return stat.Mean(vs, nil)
}
