package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
)

func TestSeriesRepository_AppendAndRead(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresSeriesRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	samples := []entities.Sample{
		{Timestamp: base, Value: 100},
		{Timestamp: base.AddDate(0, 0, 1), Value: 110},
		{Timestamp: base.AddDate(0, 0, 2), Value: 120},
	}
	if err := repo.Append(ctx, "daily_sales", samples...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	series, err := repo.Series(ctx, "daily_sales")
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("series length = %d, want 3", series.Len())
	}
	for i := 1; i < series.Len(); i++ {
		if !series.Samples[i].Timestamp.After(series.Samples[i-1].Timestamp) {
			t.Errorf("samples not ordered ascending at %d", i)
		}
	}
	if series.Samples[2].Value != 120 {
		t.Errorf("last value = %f, want 120", series.Samples[2].Value)
	}

	// Later Append extends the series without touching existing samples.
	if err := repo.Append(ctx, "daily_sales", entities.Sample{
		Timestamp: base.AddDate(0, 0, 3), Value: 130,
	}); err != nil {
		t.Fatalf("Append() extend error = %v", err)
	}
	series, err = repo.Series(ctx, "daily_sales")
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if series.Len() != 4 {
		t.Errorf("series length after extend = %d, want 4", series.Len())
	}
}

func TestSeriesRepository_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresSeriesRepository(db)
	_, err := repo.Series(context.Background(), "no_such_series")
	if !errors.Is(err, repositories.ErrSeriesNotFound) {
		t.Errorf("Series() error = %v, want ErrSeriesNotFound", err)
	}
}

func TestSeriesRepository_ListSeries(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresSeriesRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := repo.Append(ctx, "b_series", entities.Sample{Timestamp: now, Value: 1}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := repo.Append(ctx, "a_series", entities.Sample{Timestamp: now, Value: 2}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	ids, err := repo.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "a_series" || ids[1] != "b_series" {
		t.Errorf("ListSeries() = %v, want [a_series b_series]", ids)
	}
}
