package review

import "math"

// DefaultFlagThreshold is the confidence below which a loaded answer is
// flagged for review.
const DefaultFlagThreshold = 0.70

// ConfidenceFunc estimates extraction confidence for an answer that has no
// per-question score from the backend.
type ConfidenceFunc func(answer string) float64

// LengthConfidence grows with answer length in bytes: 0.55 +
// log10(len+1)/10, clamped to [0.45, 0.95]. Only an empty answer scores
// 0.45; whitespace counts toward the length.
func LengthConfidence(answer string) float64 {
	if answer == "" {
		return 0.45
	}
	return clamp(0.55+math.Log10(float64(len(answer))+1)/10, 0.45, 0.95)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
