package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
	"github.com/lib/pq"
)

// PostgresSeriesRepository implements SeriesRepository using PostgreSQL
type PostgresSeriesRepository struct {
	db *sql.DB
}

// NewPostgresSeriesRepository creates a new PostgreSQL series repository
func NewPostgresSeriesRepository(db *sql.DB) repositories.SeriesRepository {
	return &PostgresSeriesRepository{db: db}
}

// Series returns the full series ordered ascending by timestamp.
func (r *PostgresSeriesRepository) Series(ctx context.Context, seriesID string) (*entities.ForecastSeries, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT observed_at, value
		FROM series_samples
		WHERE series_id = $1
		ORDER BY observed_at
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to query series %s: %w", seriesID, err)
	}
	defer rows.Close()

	series := &entities.ForecastSeries{ID: seriesID}
	for rows.Next() {
		var sample entities.Sample
		if err := rows.Scan(&sample.Timestamp, &sample.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		series.Samples = append(series.Samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	if len(series.Samples) == 0 {
		return nil, repositories.ErrSeriesNotFound
	}
	return series, nil
}

// Append adds samples to the series using a bulk COPY.
func (r *PostgresSeriesRepository) Append(ctx context.Context, seriesID string, samples ...entities.Sample) error {
	if seriesID == "" {
		return fmt.Errorf("series ID is required")
	}
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("series_samples", "series_id", "observed_at", "value"))
	if err != nil {
		return fmt.Errorf("failed to prepare bulk insert: %w", err)
	}
	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx, seriesID, sample.Timestamp, sample.Value); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to buffer sample: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush samples: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close bulk insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSeries returns the IDs of every known series.
func (r *PostgresSeriesRepository) ListSeries(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT series_id
		FROM series_samples
		ORDER BY series_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query series IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan series ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate series IDs: %w", err)
	}
	return ids, nil
}
