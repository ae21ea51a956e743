package glucose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates repository access for the API and the import CLI.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a Service backed by the given repository.
// A nil logger falls back to slog.Default.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Page is one page of records plus pagination metadata.
type Page struct {
	Items      []Record `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// Get returns a single record by id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of a user's records. Sort parameters are normalized
// to the supported sets; pagination bounds are assumed pre-clamped by the
// caller. TotalPages is ceil(total / page_size).
func (s *Service) List(ctx context.Context, params ListParams) (*Page, error) {
	params.SortBy, params.SortOrder = NormalizeSort(params.SortBy, params.SortOrder)

	items, total, err := s.repo.ListByUser(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	if items == nil {
		items = []Record{}
	}

	return &Page{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: (total + params.PageSize - 1) / params.PageSize,
	}, nil
}

// CreateInput carries the caller-supplied fields for a new record.
type CreateInput struct {
	UserID       uuid.UUID
	Timestamp    time.Time
	GlucoseValue float64
	DeviceType   string
	DeviceID     string
	RecordType   *string
	Notes        *string
}

// Create validates the input, assigns a fresh id and server timestamps,
// and persists the record.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Record, error) {
	now := time.Now().UTC()
	rec := &Record{
		ID:           uuid.New(),
		UserID:       in.UserID,
		Timestamp:    in.Timestamp,
		GlucoseValue: in.GlucoseValue,
		DeviceType:   in.DeviceType,
		DeviceID:     in.DeviceID,
		RecordType:   in.RecordType,
		Notes:        in.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}
	return rec, nil
}

// Update replaces the mutable fields of an existing record and refreshes
// updated_at. The id, user association, and created_at are immutable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in CreateInput) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.Timestamp = in.Timestamp
	rec.GlucoseValue = in.GlucoseValue
	rec.DeviceType = in.DeviceType
	rec.DeviceID = in.DeviceID
	rec.RecordType = in.RecordType
	rec.Notes = in.Notes
	rec.UpdatedAt = time.Now().UTC()

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record by id, or returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
