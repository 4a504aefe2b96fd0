package forecast

import (
	"errors"
	"math"
)

// errModelFit marks a primary-model convergence failure. It never escapes
// the service: the caller falls back to the baseline estimator and flags the
// result degraded.
var errModelFit = errors.New("model fit failed")

// holtModel is Holt's linear (double exponential) smoothing fitted to a
// series: a smoothed level plus a smoothed trend, with the residual standard
// deviation kept for confidence intervals.
type holtModel struct {
	level float64
	trend float64
	sigma float64
}

// fitHolt fits the model with fixed smoothing constants. It fails when the
// input contains non-finite values or the recursion diverges.
func fitHolt(values []float64, alpha, beta float64) (*holtModel, error) {
	if len(values) < 3 {
		return nil, errModelFit
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errModelFit
		}
	}

	level := values[0]
	trend := values[1] - values[0]
	var sse float64
	for i := 1; i < len(values); i++ {
		predicted := level + trend
		residual := values[i] - predicted
		sse += residual * residual

		prevLevel := level
		level = alpha*values[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	sigma := math.Sqrt(sse / float64(len(values)-2))
	if math.IsNaN(level) || math.IsInf(level, 0) ||
		math.IsNaN(trend) || math.IsInf(trend, 0) ||
		math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, errModelFit
	}
	return &holtModel{level: level, trend: trend, sigma: sigma}, nil
}

// point returns the h-step-ahead point estimate, h >= 1.
func (m *holtModel) point(h int) float64 {
	return m.level + float64(h)*m.trend
}

// fitBaseline is the fallback estimator: the mean of the trailing window as
// a flat forecast, with the full-series standard deviation as spread.
func fitBaseline(values []float64, window int) *holtModel {
	if window <= 0 || window > len(values) {
		window = len(values)
	}
	var sum float64
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	mean := sum / float64(window)

	_, sd := meanStd(values)
	return &holtModel{level: mean, trend: 0, sigma: sd}
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}
