package usecase

import "math"

// Evaluate converts an engine distance into a percentage similarity score,
// rounded to two decimal places. The inversion assumes the engine's distance
// is bounded in [0,1] and decreases with similarity; that property comes from
// the configured model, this layer does not re-validate it.
func Evaluate(distance float64) float64 {
	return round2((1 - distance) * 100)
}

// Passes reports whether a percentage score clears the threshold percentage.
// The threshold itself passes; anything strictly below fails.
func Passes(score, thresholdPercent float64) bool {
	return score >= thresholdPercent
}

// ScoreComparison maps a comparison outcome to a score. A failed comparison
// (no face found, unreadable file, engine unavailable) scores 0: verification
// proceeds and reports a normal failed outcome instead of a request error.
// This mapping is deliberate policy, not error swallowing.
func ScoreComparison(distance float64, err error) float64 {
	if err != nil {
		return 0
	}
	return Evaluate(distance)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
