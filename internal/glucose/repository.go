package glucose

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repository lookups for ids that do not exist.
var ErrNotFound = errors.New("glucose record not found")

// ListParams describes a filtered, sorted, paginated query for one user's
// records. Start and End are inclusive bounds on the measurement timestamp;
// nil means unbounded.
type ListParams struct {
	UserID    uuid.UUID
	Start     *time.Time
	End       *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Repository is the persistence boundary for glucose records.
// Implementations own all persisted record state; callers only ever see
// in-memory copies.
type Repository interface {
	// GetByID returns the record with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// ListByUser returns one page of a user's records plus the total count
	// of records matching the filter (before pagination).
	ListByUser(ctx context.Context, params ListParams) ([]Record, int, error)

	// Create persists a new record.
	Create(ctx context.Context, rec *Record) error

	// CreateMany persists a batch of new records atomically: either every
	// record is inserted or none are.
	CreateMany(ctx context.Context, recs []Record) error

	// Update replaces a record's mutable fields, or returns ErrNotFound.
	Update(ctx context.Context, rec *Record) error

	// Delete removes the record with the given id, or returns ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
}
