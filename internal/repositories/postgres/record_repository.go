package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bluerp/bluecore/internal/entities"
	"github.com/bluerp/bluecore/internal/repositories"
)

// PostgresRecordRepository implements RecordRepository using PostgreSQL
type PostgresRecordRepository struct {
	db *sql.DB
}

// NewPostgresRecordRepository creates a new PostgreSQL record repository
func NewPostgresRecordRepository(db *sql.DB) repositories.RecordRepository {
	return &PostgresRecordRepository{db: db}
}

// Save inserts the record, or replaces its attributes if the ID already exists.
func (r *PostgresRecordRepository) Save(ctx context.Context, record *entities.BusinessRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	attrs, err := json.Marshal(record.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes for %s: %w", record.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO business_records (record_id, attributes, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (record_id) DO UPDATE
		SET attributes = EXCLUDED.attributes, updated_at = NOW()
	`, record.ID, attrs)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", record.ID, err)
	}
	return nil
}

// Delete removes the record.
func (r *PostgresRecordRepository) Delete(ctx context.Context, recordID string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM business_records WHERE record_id = $1
	`, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", recordID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete of record %s: %w", recordID, err)
	}
	if affected == 0 {
		return repositories.ErrRecordNotFound
	}
	return nil
}

// List returns every stored record ordered by ID.
func (r *PostgresRecordRepository) List(ctx context.Context) ([]*entities.BusinessRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record_id, attributes
		FROM business_records
		ORDER BY record_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*entities.BusinessRecord
	for rows.Next() {
		var (
			record entities.BusinessRecord
			attrs  []byte
		)
		if err := rows.Scan(&record.ID, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(attrs, &record.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes for %s: %w", record.ID, err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}
