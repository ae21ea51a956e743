// Package glucose contains the domain model, repository contract, and
// application services for glucose level measurements: CRUD orchestration,
// CSV import from device exports, and CSV/JSON/Excel export.
package glucose

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one glucose measurement taken by a monitoring device.
//
// RecordType and Notes are optional; a nil pointer means the value is
// absent and is rendered as null in JSON output.
type Record struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Timestamp    time.Time `json:"timestamp"`
	GlucoseValue float64   `json:"glucose_value"`
	DeviceType   string    `json:"device_type"`
	DeviceID     string    `json:"device_id"`
	RecordType   *string   `json:"record_type"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ErrInvalidRecord is wrapped by all Validate failures.
var ErrInvalidRecord = errors.New("invalid glucose record")

// Validate checks the invariants that must hold for every record,
// whether it arrives via the API or the CSV importer.
func (r *Record) Validate() error {
	if r.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRecord)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidRecord)
	}
	if r.GlucoseValue <= 0 {
		return fmt.Errorf("%w: glucose_value must be greater than 0", ErrInvalidRecord)
	}
	return nil
}

// Sortable fields for list queries. Anything else falls back to the
// default rather than producing an error.
const (
	DefaultSortBy    = "timestamp"
	DefaultSortOrder = "desc"
)

var sortableFields = map[string]bool{
	"id":            true,
	"timestamp":     true,
	"glucose_value": true,
	"created_at":    true,
	"updated_at":    true,
}

// NormalizeSort maps arbitrary sort parameters onto the supported
// field/order sets, substituting defaults for unknown values.
func NormalizeSort(sortBy, sortOrder string) (string, string) {
	sortBy = strings.ToLower(strings.TrimSpace(sortBy))
	if !sortableFields[sortBy] {
		sortBy = DefaultSortBy
	}

	sortOrder = strings.ToLower(strings.TrimSpace(sortOrder))
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = DefaultSortOrder
	}

	return sortBy, sortOrder
}
