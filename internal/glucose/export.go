package glucose

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// exportPageSize is effectively unbounded: exports always fetch the full
// filtered range in a single repository call, no pagination.
const exportPageSize = 1_000_000

// ExportSheetName is the worksheet name used for Excel exports.
const ExportSheetName = "Glucose Levels"

var exportHeader = []string{
	"ID", "User ID", "Timestamp", "Glucose Value (mg/dL)",
	"Device Type", "Device ID", "Record Type", "Notes",
}

const exportTimeLayout = "2006-01-02 15:04:05"

// exportRecords fetches every record in the inclusive range, oldest first.
func (s *Service) exportRecords(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]Record, error) {
	items, _, err := s.repo.ListByUser(ctx, ListParams{
		UserID:    userID,
		Start:     start,
		End:       end,
		Page:      1,
		PageSize:  exportPageSize,
		SortBy:    "timestamp",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("loading records for export: %w", err)
	}
	return items, nil
}

// ExportCSV writes the user's records as CSV with a fixed column order.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, userID uuid.UUID, start, end *time.Time) error {
	items, err := s.exportRecords(ctx, userID, start, end)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i := range items {
		rec := &items[i]
		row := []string{
			rec.ID.String(),
			rec.UserID.String(),
			rec.Timestamp.Format(exportTimeLayout),
			strconv.FormatFloat(rec.GlucoseValue, 'f', -1, 64),
			rec.DeviceType,
			rec.DeviceID,
			deref(rec.RecordType),
			deref(rec.Notes),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON returns the user's records as a JSON array of flat objects.
// Absent optional fields are rendered as null.
func (s *Service) ExportJSON(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]byte, error) {
	items, err := s.exportRecords(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Record{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding export json: %w", err)
	}
	return data, nil
}

// ExportExcel returns the user's records as a single-sheet XLSX workbook.
// Timestamps are written as native date-time cells; ids as strings.
func (s *Service) ExportExcel(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]byte, error) {
	items, err := s.exportRecords(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheetName); err != nil {
		return nil, fmt.Errorf("naming export sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(ExportSheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing excel header: %w", err)
	}

	for i := range items {
		rec := &items[i]
		row := []interface{}{
			rec.ID.String(),
			rec.UserID.String(),
			rec.Timestamp,
			rec.GlucoseValue,
			rec.DeviceType,
			rec.DeviceID,
			deref(rec.RecordType),
			deref(rec.Notes),
		}
		axis, err := excelize.JoinCellName("A", i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ExportSheetName, axis, &row); err != nil {
			return nil, fmt.Errorf("writing excel row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serializing excel workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
