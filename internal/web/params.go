package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Pagination bounds. Out-of-range values are clamped, not rejected.
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// clampPagination normalizes page and page_size to valid bounds:
// page < 1 becomes 1; page_size < 1 becomes the default; page_size above
// the maximum is capped.
func clampPagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// intQuery reads an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// Accepted layouts for start/stop query parameters, tried in order.
var queryTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimeParam parses an optional timestamp query parameter.
// An empty value yields nil without error.
func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date format: %q, expected ISO format (e.g. 2021-02-18T10:57:00)", raw)
}

// timeRangeParams parses the optional start/stop query parameters shared
// by the list and export endpoints.
func timeRangeParams(r *http.Request) (start, end *time.Time, err error) {
	start, err = parseTimeParam(r.URL.Query().Get("start"))
	if err != nil {
		return nil, nil, err
	}
	end, err = parseTimeParam(r.URL.Query().Get("stop"))
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
