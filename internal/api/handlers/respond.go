package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// dateParam parses a YYYY-MM-DD query parameter; missing returns the zero time
func dateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := contracts.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return d, nil
}

// windowParams reads the required start/end pair
func windowParams(r *http.Request) (time.Time, time.Time, error) {
	start, err := dateParam(r, "start")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := dateParam(r, "end")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("start and end are required")
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be <= end")
	}
	return start, end, nil
}
