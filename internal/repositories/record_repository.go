package repositories

import (
	"context"
	"errors"

	"github.com/bluerp/bluecore/internal/entities"
)

// ErrRecordNotFound is returned when no record exists for the ID.
var ErrRecordNotFound = errors.New("record not found")

// RecordRepository persists ingested business records so the embedding
// index can be rebuilt after a restart.
type RecordRepository interface {
	// Save inserts the record, or replaces its attributes if the ID
	// already exists.
	Save(ctx context.Context, record *entities.BusinessRecord) error

	// Delete removes the record. Returns ErrRecordNotFound if the ID
	// is unknown.
	Delete(ctx context.Context, recordID string) error

	// List returns every stored record ordered by ID.
	List(ctx context.Context) ([]*entities.BusinessRecord, error)
}
