package insight

import (
	"math"

	"github.com/bluerp/bluecore/internal/services/forecast"
	"github.com/bluerp/bluecore/internal/services/vector"
)

// Heterogeneous signals are merged on one [0,1] scale, higher = stronger.
// The mappings below are monotone, so relative order within a source is
// preserved; only the cross-source calibration is a modeling choice.

// similarityScore converts a distance to a similarity in [0,1].
// Cosine distance lives in [0,2], so the linear map 1-d/2 spans the scale
// exactly; euclidean distance is unbounded, so it decays as 1/(1+d).
func similarityScore(metric vector.Metric, distance float64) float64 {
	switch metric {
	case vector.Euclidean:
		return clamp01(1 / (1 + distance))
	default:
		return clamp01(1 - distance/2)
	}
}

// confidenceScore converts forecast interval width to a confidence in [0,1]:
// tight intervals relative to the point estimates score high.
func confidenceScore(points []forecast.Point) float64 {
	if len(points) == 0 {
		return 0
	}
	var total float64
	for _, p := range points {
		scale := math.Max(math.Abs(p.Value), 1)
		total += (p.Upper - p.Lower) / scale
	}
	return clamp01(1 / (1 + total/float64(len(points))))
}

// anomalyScore converts the strongest z-score into [0,1], saturating at 2x
// the detection threshold.
func anomalyScore(anomalies []forecast.Anomaly) float64 {
	var max float64
	for _, a := range anomalies {
		if a.Score > max {
			max = a.Score
		}
	}
	return clamp01(max / 4)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
