package web

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/glucose"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// memRepo is a minimal in-memory glucose.Repository for handler tests.
type memRepo struct {
	records map[uuid.UUID]glucose.Record
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[uuid.UUID]glucose.Record)}
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*glucose.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, glucose.ErrNotFound
	}
	return &rec, nil
}

func (m *memRepo) ListByUser(_ context.Context, params glucose.ListParams) ([]glucose.Record, int, error) {
	var matched []glucose.Record
	for _, rec := range m.records {
		if rec.UserID != params.UserID {
			continue
		}
		if params.Start != nil && rec.Timestamp.Before(*params.Start) {
			continue
		}
		if params.End != nil && rec.Timestamp.After(*params.End) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if params.SortOrder == "asc" {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})

	total := len(matched)
	offset := (params.Page - 1) * params.PageSize
	if offset > total {
		offset = total
	}
	end := offset + params.PageSize
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memRepo) Create(_ context.Context, rec *glucose.Record) error {
	m.records[rec.ID] = *rec
	return nil
}

func (m *memRepo) CreateMany(_ context.Context, recs []glucose.Record) error {
	for _, rec := range recs {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *memRepo) Update(_ context.Context, rec *glucose.Record) error {
	if _, ok := m.records[rec.ID]; !ok {
		return glucose.ErrNotFound
	}
	m.records[rec.ID] = *rec
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return glucose.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func testServer(repo glucose.Repository) *Server {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Import.Timeout = time.Minute
	cfg.Rate.Enabled = false

	return NewServer(glucose.NewService(repo, nil), cfg)
}

func TestHealth(t *testing.T) {
	srv := testServer(newMemRepo())

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "healthy") {
		t.Errorf("body = %q, want healthy status", rr.Body.String())
	}
}

func TestListLevels_RequiresUserID(t *testing.T) {
	srv := testServer(newMemRepo())

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/levels/", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestListLevels_BadDateParam(t *testing.T) {
	srv := testServer(newMemRepo())

	url := "/api/v1/levels/?user_id=" + uuid.NewString() + "&start=18.02.2021"
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid date format") {
		t.Errorf("body = %q, want descriptive date error", rr.Body.String())
	}
}

func createLevel(t *testing.T, srv *Server, userID uuid.UUID, value float64) glucose.Record {
	t.Helper()

	body := fmt.Sprintf(`{
		"user_id": %q,
		"timestamp": "2021-02-18T10:57:00Z",
		"glucose_value": %v,
		"device_type": "FreeStyle LibreLink",
		"device_id": "1D48A10E"
	}`, userID, value)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/levels/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var rec glucose.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	return rec
}

func TestCreateAndGetLevel(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()

	rec := createLevel(t, srv, userID, 77)
	if rec.ID == uuid.Nil {
		t.Fatal("created record has no id")
	}

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/levels/"+rec.ID.String(), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rr.Code)
	}
	var got glucose.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding get response: %v", err)
	}
	if got.GlucoseValue != 77 {
		t.Errorf("GlucoseValue = %v, want 77", got.GlucoseValue)
	}
}

func TestCreateLevel_RejectsInvalidBody(t *testing.T) {
	srv := testServer(newMemRepo())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"zero glucose", fmt.Sprintf(`{"user_id": %q, "timestamp": "2021-02-18T10:57:00Z", "glucose_value": 0, "device_type": "x", "device_id": "y"}`, uuid.New())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/levels/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			srv.Router().ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestGetLevel_NotFound(t *testing.T) {
	srv := testServer(newMemRepo())

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/levels/"+uuid.NewString(), nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestDeleteLevel(t *testing.T) {
	srv := testServer(newMemRepo())
	rec := createLevel(t, srv, uuid.New(), 80)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/levels/"+rec.ID.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/levels/"+rec.ID.String(), nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}
}

func TestUpdateLevel(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()
	rec := createLevel(t, srv, userID, 80)

	body := fmt.Sprintf(`{
		"user_id": %q,
		"timestamp": "2021-02-18T11:30:00Z",
		"glucose_value": 95,
		"device_type": "FreeStyle LibreLink",
		"device_id": "1D48A10E",
		"notes": "after meal"
	}`, userID)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/levels/"+rec.ID.String(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var updated glucose.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding update response: %v", err)
	}
	if updated.GlucoseValue != 95 {
		t.Errorf("GlucoseValue = %v, want 95", updated.GlucoseValue)
	}
	if updated.Notes == nil || *updated.Notes != "after meal" {
		t.Errorf("Notes = %v, want \"after meal\"", updated.Notes)
	}
}

func TestListLevels_PaginationMetadata(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()
	for i := 0; i < 5; i++ {
		createLevel(t, srv, userID, float64(70+i))
	}

	url := "/api/v1/levels/?user_id=" + userID.String() + "&page=2&page_size=2"
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var page glucose.Page
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("Total = %d, want 5", page.Total)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if len(page.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(page.Items))
	}
	if page.Page != 2 || page.PageSize != 2 {
		t.Errorf("Page/PageSize = %d/%d, want 2/2", page.Page, page.PageSize)
	}
}

func TestImport_Multipart(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()

	csvData := "Glukose-Werte,Erstellt am,18-02-2021 12:00 UTC,Erstellt von,LibreView\n" +
		"Patientenbericht,,,,,\n" +
		"Gerät,Seriennummer,Gerätezeitstempel,Aufzeichnungstyp,Glukosewert-Verlauf mg/dL,Notizen\n" +
		"FreeStyle LibreLink,1D48A10E,18-02-2021 10:57,0,77,\n" +
		"FreeStyle LibreLink,1D48A10E,18-02-2021 11:12,0,78,\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("user_id", userID.String()); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "export.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(csvData)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/levels/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			ImportedCount int `json:"imported_count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding import response: %v", err)
	}
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if resp.Data.ImportedCount != 2 {
		t.Errorf("ImportedCount = %d, want 2", resp.Data.ImportedCount)
	}
}

func TestImport_RejectsBadUserID(t *testing.T) {
	srv := testServer(newMemRepo())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("user_id", "not-a-uuid")
	fw, _ := mw.CreateFormFile("file", "export.csv")
	fw.Write([]byte("x"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/levels/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestExportCSV_Endpoint(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()
	createLevel(t, srv, userID, 77)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/api/v1/levels/export/csv?user_id="+userID.String(), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, userID.String()) {
		t.Errorf("Content-Disposition = %q, want filename with user id", cd)
	}

	lines := strings.Split(strings.TrimRight(rr.Body.String(), "\n"), "\n")
	wantHeader := "ID,User ID,Timestamp,Glucose Value (mg/dL),Device Type,Device ID,Record Type,Notes"
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}
	if len(lines) != 2 || !strings.Contains(lines[1], "77") {
		t.Errorf("data lines = %v, want one row containing 77", lines[1:])
	}
}

func TestExportJSON_Endpoint(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()
	createLevel(t, srv, userID, 77)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/api/v1/levels/export/json?user_id="+userID.String(), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var decoded []glucose.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if len(decoded) != 1 || decoded[0].GlucoseValue != 77 {
		t.Errorf("export = %+v, want one record with value 77", decoded)
	}
}

func TestExportExcel_Endpoint(t *testing.T) {
	srv := testServer(newMemRepo())
	userID := uuid.New()
	createLevel(t, srv, userID, 77)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet,
		"/api/v1/levels/export/excel?user_id="+userID.String(), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	want := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if ct := rr.Header().Get("Content-Type"); ct != want {
		t.Errorf("Content-Type = %q, want %q", ct, want)
	}
	if rr.Body.Len() == 0 {
		t.Error("empty workbook body")
	}
}
