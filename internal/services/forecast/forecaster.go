// Package forecast runs statistical forecasting over historical numeric
// series. Forecasts are recomputed per request; any caching belongs to
// layers above this contract.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bluerp/bluecore/internal/entities"
)

var (
	// ErrInsufficientHistory means the series has fewer samples than the
	// model family requires.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrTimeout means the caller's deadline expired before the forecast
	// finished. A timed-out call never returns a partial or stale answer.
	ErrTimeout = errors.New("forecast timed out")
)

const (
	// DefaultMinHistory is the minimum sample count for Holt smoothing.
	DefaultMinHistory = 5

	// zScore95 is the normal quantile for 95% confidence intervals.
	zScore95 = 1.96

	// anomalyThreshold is the z-score beyond which a sample is anomalous.
	anomalyThreshold = 2.0
)

// SeriesSource supplies historical series. Defined here so the service does
// not depend on a concrete repository; repositories.SeriesRepository
// satisfies it.
type SeriesSource interface {
	Series(ctx context.Context, seriesID string) (*entities.ForecastSeries, error)
}

// Point is one forecast step: a point estimate with its confidence interval.
type Point struct {
	Timestamp time.Time
	Value     float64
	Lower     float64
	Upper     float64
}

// Result is a completed forecast. Degraded marks results produced by the
// baseline estimator after the primary model failed to fit.
type Result struct {
	SeriesID string
	Model    string
	Degraded bool
	Points   []Point
}

// Anomaly is a sample lying outside the series' normal band.
type Anomaly struct {
	Timestamp time.Time
	Value     float64
	Score     float64 // |z-score| of the sample
}

// Config tunes the service.
type Config struct {
	MinHistory int     // minimum samples required; 0 = DefaultMinHistory
	Workers    int     // concurrent forecast computations; 0 = 4
	Alpha      float64 // level smoothing constant; 0 = 0.5
	Beta       float64 // trend smoothing constant; 0 = 0.3
}

// Service computes forecasts and anomaly scans. Computations run on a
// bounded worker pool so one expensive series cannot starve unrelated
// requests; callers bound waiting with their context deadline.
type Service struct {
	source     SeriesSource
	minHistory int
	alpha      float64
	beta       float64
	sem        chan struct{}
	logger     *slog.Logger

	// computeFn runs the actual model fit; tests substitute it to control
	// how long a computation holds its worker slot.
	computeFn func(series *entities.ForecastSeries, horizon int) *Result
}

// NewService creates a forecasting service.
func NewService(source SeriesSource, cfg Config, logger *slog.Logger) *Service {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = DefaultMinHistory
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg.Alpha = 0.5
	}
	if cfg.Beta <= 0 || cfg.Beta >= 1 {
		cfg.Beta = 0.3
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		source:     source,
		minHistory: cfg.MinHistory,
		alpha:      cfg.Alpha,
		beta:       cfg.Beta,
		sem:        make(chan struct{}, cfg.Workers),
		logger:     logger,
	}
	s.computeFn = s.compute
	return s
}

// Forecast produces exactly horizon points for the series. The primary model
// is Holt double exponential smoothing; if it cannot fit, the service falls
// back to a trailing-mean baseline and marks the result degraded instead of
// failing.
func (s *Service) Forecast(ctx context.Context, seriesID string, horizon int) (*Result, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	series, err := s.load(ctx, seriesID)
	if err != nil {
		release()
		return nil, err
	}

	// Run the fit off the calling goroutine so a deadline can cut the wait.
	// The worker slot is released by the computation itself, not the caller:
	// an abandoned fit still counts against the Workers bound until it
	// actually finishes.
	done := make(chan *Result, 1)
	go func() {
		defer release()
		done <- s.computeFn(series, horizon)
	}()

	select {
	case <-ctx.Done():
		return nil, mapContextErr(ctx.Err())
	case result := <-done:
		return result, nil
	}
}

// DetectAnomalies returns the samples whose z-score against the series mean
// exceeds the anomaly threshold.
func (s *Service) DetectAnomalies(ctx context.Context, seriesID string) ([]Anomaly, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	series, err := s.load(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	mean, sd := meanStd(series.Values())
	if sd == 0 {
		return nil, nil // a flat series has no outliers
	}

	var anomalies []Anomaly
	for _, sample := range series.Samples {
		z := math.Abs(sample.Value-mean) / sd
		if z > anomalyThreshold {
			anomalies = append(anomalies, Anomaly{
				Timestamp: sample.Timestamp,
				Value:     sample.Value,
				Score:     z,
			})
		}
	}
	return anomalies, nil
}

func (s *Service) compute(series *entities.ForecastSeries, horizon int) *Result {
	values := series.Values()

	model, err := fitHolt(values, s.alpha, s.beta)
	degraded := false
	name := "holt"
	if err != nil {
		s.logger.Warn("primary forecast model failed, using baseline",
			"series", series.ID, "error", err)
		model = fitBaseline(values, s.minHistory)
		degraded = true
		name = "moving-average"
	}

	interval := series.Interval()
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	last := series.Samples[len(series.Samples)-1].Timestamp

	points := make([]Point, horizon)
	for h := 1; h <= horizon; h++ {
		estimate := model.point(h)
		spread := zScore95 * model.sigma * math.Sqrt(float64(h))
		points[h-1] = Point{
			Timestamp: last.Add(time.Duration(h) * interval),
			Value:     estimate,
			Lower:     estimate - spread,
			Upper:     estimate + spread,
		}
	}
	return &Result{SeriesID: series.ID, Model: name, Degraded: degraded, Points: points}
}

// load fetches and gate-checks a series. Deadline expiry during the load is
// reported as a timeout, not hidden inside a load failure.
func (s *Service) load(ctx context.Context, seriesID string) (*entities.ForecastSeries, error) {
	series, err := s.source.Series(ctx, seriesID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, mapContextErr(err)
		}
		return nil, fmt.Errorf("failed to load series %s: %w", seriesID, err)
	}
	if series.Len() < s.minHistory {
		return nil, fmt.Errorf("%w: series %s has %d samples, need %d",
			ErrInsufficientHistory, seriesID, series.Len(), s.minHistory)
	}
	return series, nil
}

// acquire takes a worker slot, or gives up when the context ends first.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, mapContextErr(ctx.Err())
	}
}

func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
