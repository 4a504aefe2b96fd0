package repositories

import (
	"context"
	"errors"

	"github.com/bluerp/bluecore/internal/entities"
)

// ErrSeriesNotFound is returned when a series has no samples at all.
var ErrSeriesNotFound = errors.New("series not found")

// SeriesRepository reads and appends timestamped numeric series. Samples are
// append-only; existing samples are never mutated in place.
type SeriesRepository interface {
	// Series returns the full series ordered ascending by timestamp.
	// Returns ErrSeriesNotFound if no samples exist for the ID.
	Series(ctx context.Context, seriesID string) (*entities.ForecastSeries, error)

	// Append adds samples to the series.
	Append(ctx context.Context, seriesID string, samples ...entities.Sample) error

	// ListSeries returns the IDs of every known series.
	ListSeries(ctx context.Context) ([]string, error)
}
