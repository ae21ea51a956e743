package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/glucolog/glucolog/internal/glucose"
	"github.com/glucolog/glucolog/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// levelRequest is the JSON body for create and update operations.
type levelRequest struct {
	UserID       uuid.UUID `json:"user_id"`
	Timestamp    time.Time `json:"timestamp"`
	GlucoseValue float64   `json:"glucose_value"`
	DeviceType   string    `json:"device_type"`
	DeviceID     string    `json:"device_id"`
	RecordType   *string   `json:"record_type"`
	Notes        *string   `json:"notes"`
}

func (req *levelRequest) toInput() glucose.CreateInput {
	return glucose.CreateInput{
		UserID:       req.UserID,
		Timestamp:    req.Timestamp,
		GlucoseValue: req.GlucoseValue,
		DeviceType:   req.DeviceType,
		DeviceID:     req.DeviceID,
		RecordType:   req.RecordType,
		Notes:        req.Notes,
	}
}

// handleListLevels returns a paginated, filtered, sorted list of a user's
// glucose levels.
func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(w, r)
	if !ok {
		return
	}

	start, end, err := timeRangeParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	page, pageSize := clampPagination(
		intQuery(r, "page", 1),
		intQuery(r, "page_size", defaultPageSize),
	)

	result, err := s.service.List(r.Context(), glucose.ListParams{
		UserID:    userID,
		Start:     start,
		End:       end,
		Page:      page,
		PageSize:  pageSize,
		SortBy:    r.URL.Query().Get("sort_by"),
		SortOrder: r.URL.Query().Get("sort_order"),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetLevel returns a single glucose level by id.
func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	rec, err := s.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleCreateLevel creates a new glucose level from a JSON body.
func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.service.Create(r.Context(), req.toInput())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateLevel replaces the mutable fields of an existing level.
func (s *Server) handleUpdateLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req levelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.service.Update(r.Context(), id, req.toInput())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteLevel removes a glucose level by id.
func (s *Server) handleDeleteLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleImport ingests a vendor CSV export uploaded as multipart form data
// and stores the parsed rows for the given user.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	userID, err := uuid.Parse(r.FormValue("user_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "user_id must be a valid UUID")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	logger := logging.WithFields(ctx, "user_id", userID, "file", header.Filename)
	logger.Info("import started", "size", header.Size)

	count, err := s.service.ImportCSV(ctx, file, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully imported %d glucose level records", count),
		Data:    map[string]int{"imported_count": count},
	})
}

// handleExportCSV streams the user's records as a CSV download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(w, r)
	if !ok {
		return
	}
	start, end, err := timeRangeParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="glucose_levels_%s.csv"`, userID))

	if err := s.service.ExportCSV(r.Context(), w, userID, start, end); err != nil {
		// Headers may already be sent; log instead of rewriting the status.
		logging.FromContext(r.Context()).Error("csv export failed", "error", err)
	}
}

// handleExportJSON returns the user's records as a JSON array.
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(w, r)
	if !ok {
		return
	}
	start, end, err := timeRangeParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.service.ExportJSON(r.Context(), userID, start, end)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleExportExcel returns the user's records as an XLSX download.
func (s *Server) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDQuery(w, r)
	if !ok {
		return
	}
	start, end, err := timeRangeParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.service.ExportExcel(r.Context(), userID, start, end)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="glucose_levels_%s.xlsx"`, userID))
	w.Write(data)
}

// userIDQuery extracts the required user_id query parameter.
// Writes a 400 response and returns false when missing or malformed.
func userIDQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "user_id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// idParam extracts the {id} path parameter.
// Writes a 400 response and returns false when malformed.
func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
