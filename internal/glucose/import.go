package glucose

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Vendor column names as produced by the FreeStyle LibreLink export
// (German locale). Matching is exact on the trimmed header cell.
const (
	colDeviceType = "Gerät"
	colDeviceID   = "Seriennummer"
	colTimestamp  = "Gerätezeitstempel"
	colRecordType = "Aufzeichnungstyp"
	colGlucose    = "Glukosewert-Verlauf mg/dL"
	colNotes      = "Notizen"
)

// importColumn maps one vendor header to its handling policy. The table is
// validated once when the header row is located; per-row code only looks
// up positions.
type importColumn struct {
	name     string
	required bool   // column must exist in the header
	fallback string // substituted for missing or blank cells
}

var importSchema = []importColumn{
	{name: colDeviceType, required: true},
	{name: colDeviceID},
	{name: colTimestamp, required: true},
	{name: colRecordType, fallback: "0"},
	{name: colGlucose, required: true},
	{name: colNotes},
}

var importColumnByName = func() map[string]importColumn {
	m := make(map[string]importColumn, len(importSchema))
	for _, col := range importSchema {
		m[col.name] = col
	}
	return m
}()

// Device timestamp layouts, tried in order. The first successful parse wins.
var importTimeLayouts = []string{
	"02-01-2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// metadataRows is the number of leading non-data rows in a standard
// LibreLink export before the header row.
const metadataRows = 2

// ImportCSV reads a vendor CSV export and stores every parsable row as a
// record for the given user. Malformed rows are skipped and logged, never
// fatal to the batch. A file that cannot be parsed at all, or that lacks
// the glucose value column, yields zero imported records without an error.
//
// All parsed rows are written in one atomic batch; a repository failure
// rolls the whole batch back and is returned as a single error.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader, userID uuid.UUID) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading import data: %w", err)
	}

	header, rows, ok := findImportTable(data)
	if !ok {
		s.logger.Warn("import aborted: no usable header row",
			"user_id", userID,
			"reason", "missing required column "+strconv.Quote(colGlucose),
		)
		return 0, nil
	}

	cols := indexColumns(header)

	now := time.Now().UTC()
	records := make([]Record, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		rec, reason := parseImportRow(row, cols, userID, now)
		if rec == nil {
			skipped++
			s.logger.Debug("import row skipped", "row", i+1, "reason", reason)
			continue
		}
		records = append(records, *rec)
	}

	if len(records) == 0 {
		s.logger.Info("import finished with no valid rows",
			"user_id", userID,
			"rows", len(rows),
			"skipped", skipped,
		)
		return 0, nil
	}

	if err := s.repo.CreateMany(ctx, records); err != nil {
		return 0, fmt.Errorf("saving %d imported records: %w", len(records), err)
	}

	s.logger.Info("import finished",
		"user_id", userID,
		"imported", len(records),
		"skipped", skipped,
	)
	return len(records), nil
}

// findImportTable locates the header row and data rows in the raw CSV.
// The standard layout (two metadata rows, then the header) is tried first;
// a header-only layout is the fallback. A layout is accepted only when its
// candidate header satisfies the schema's required columns.
func findImportTable(data []byte) (header []string, rows [][]string, ok bool) {
	records, err := readLenientCSV(data)
	if err != nil || len(records) == 0 {
		return nil, nil, false
	}

	if len(records) > metadataRows && headerMatches(records[metadataRows]) {
		return records[metadataRows], records[metadataRows+1:], true
	}
	if headerMatches(records[0]) {
		return records[0], records[1:], true
	}
	return nil, nil, false
}

// readLenientCSV parses the whole input, tolerating ragged row lengths and
// stray quotes. Metadata rows in vendor exports rarely share the header's
// column count.
func readLenientCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, row)
	}
	return records, nil
}

// headerMatches reports whether every required schema column is present in
// the candidate header row.
func headerMatches(candidate []string) bool {
	idx := indexColumns(candidate)
	for _, col := range importSchema {
		if !col.required {
			continue
		}
		if _, ok := idx[col.name]; !ok {
			return false
		}
	}
	return true
}

// indexColumns maps trimmed header names to their positions. Computed once
// per file, reused for every row. A UTF-8 BOM on the first cell is dropped.
func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		idx[h] = i
	}
	return idx
}

// cell returns the trimmed value of the named column, or the schema
// fallback when the column is absent from this row or blank.
func cell(row []string, cols map[string]int, col importColumn) string {
	pos, ok := cols[col.name]
	if !ok || pos >= len(row) {
		return col.fallback
	}
	v := strings.TrimSpace(row[pos])
	if v == "" {
		return col.fallback
	}
	return v
}

// parseImportRow converts one data row into a Record. A nil record means
// the row was skipped; the second return value carries the reason.
func parseImportRow(row []string, cols map[string]int, userID uuid.UUID, now time.Time) (*Record, string) {
	schema := importColumnByName

	rawGlucose := cell(row, cols, schema[colGlucose])
	if rawGlucose == "" {
		return nil, "empty glucose value"
	}
	glucose, err := strconv.ParseFloat(rawGlucose, 64)
	if err != nil {
		return nil, fmt.Sprintf("unparsable glucose value %q", rawGlucose)
	}

	rawTimestamp := cell(row, cols, schema[colTimestamp])
	timestamp, ok := parseDeviceTimestamp(rawTimestamp)
	if !ok {
		return nil, fmt.Sprintf("unparsable timestamp %q", rawTimestamp)
	}

	rec := &Record{
		ID:           uuid.New(),
		UserID:       userID,
		Timestamp:    timestamp,
		GlucoseValue: glucose,
		DeviceType:   cell(row, cols, schema[colDeviceType]),
		DeviceID:     cell(row, cols, schema[colDeviceID]),
		RecordType:   ptr(cell(row, cols, schema[colRecordType])),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if notes := cell(row, cols, schema[colNotes]); notes != "" {
		rec.Notes = &notes
	}

	if err := rec.Validate(); err != nil {
		return nil, err.Error()
	}
	return rec, ""
}

// parseDeviceTimestamp tries each supported layout in order.
func parseDeviceTimestamp(s string) (time.Time, bool) {
	for _, layout := range importTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func ptr(s string) *string {
	return &s
}
