package tracking

import (
	"math"

	"airlights/detection"
)

// MatchScorer rates how well a detection candidate continues a track. Lower
// is better; the tracker accepts the best candidate whose
// distance-to-prediction stays under its ceiling. The scorer is a plain
// function value so the weighting can be tested in isolation from the
// matching loop and swapped without touching the tracker.
type MatchScorer func(predX, predY float64, last Observation, cand detection.Light) float64

// ScoreWeights are the blend factors for the default scorer.
type ScoreWeights struct {
	PredictionDistance float64 // distance from the predicted position
	LastDistance       float64 // distance from the last known position
	BrightnessDelta    float64 // per-unit intensity discontinuity
	JumpPenalty        float64 // extra cost once displacement exceeds JumpThresholdPx
	JumpThresholdPx    float64
}

// DefaultScoreWeights returns the production blend. Prediction distance
// dominates; the last-known term keeps a briefly wrong velocity estimate
// from dragging the match away; brightness continuity breaks ties between
// near-equal candidates.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		PredictionDistance: 1.0,
		LastDistance:       0.4,
		BrightnessDelta:    0.2,
		JumpPenalty:        2.0,
		JumpThresholdPx:    40,
	}
}

// Scorer builds a MatchScorer from the weights.
func (w ScoreWeights) Scorer() MatchScorer {
	return func(predX, predY float64, last Observation, cand detection.Light) float64 {
		predDist := math.Hypot(cand.CenterX-predX, cand.CenterY-predY)
		lastDist := math.Hypot(cand.CenterX-last.X, cand.CenterY-last.Y)

		lastIntensity := detection.Luma(last.R, last.G, last.B)
		brightDelta := math.Abs(cand.Intensity - lastIntensity)

		cost := w.PredictionDistance*predDist +
			w.LastDistance*lastDist +
			w.BrightnessDelta*brightDelta

		// Implausibly large per-frame displacement: almost certainly a
		// different light, penalize proportionally to the excess.
		if lastDist > w.JumpThresholdPx {
			cost += w.JumpPenalty * (lastDist - w.JumpThresholdPx)
		}

		return cost
	}
}
