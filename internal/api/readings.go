package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/powerwatch/internal/history"
	"github.com/nerrad567/powerwatch/internal/reading"
	"github.com/nerrad567/powerwatch/internal/topic"
)

// ReadingView is the JSON shape of one latest reading.
type ReadingView struct {
	Apartment  string         `json:"apartment"`
	HasData    bool           `json:"has_data"`
	Voltage    float64        `json:"voltage"`
	Current    float64        `json:"current"`
	Power      float64        `json:"power"`
	Floor      string         `json:"floor,omitempty"`
	ArrivedAt  string         `json:"arrived_at"`
	ReportedAt string         `json:"reported_at,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// noDataView is returned for an apartment with nothing stored yet.
type noDataView struct {
	Apartment string `json:"apartment"`
	HasData   bool   `json:"has_data"`
}

func newReadingView(key string, r reading.Reading) ReadingView {
	return ReadingView{
		Apartment:  key,
		HasData:    true,
		Voltage:    r.Voltage,
		Current:    r.Current,
		Power:      r.Power,
		Floor:      r.Floor,
		ArrivedAt:  r.ArrivedAt.UTC().Format(time.RFC3339Nano),
		ReportedAt: r.ReportedAt,
		Extra:      r.Extra,
	}
}

// handleListReadings returns the latest reading of every apartment.
func (s *Server) handleListReadings(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	keys := s.store.Keys()

	views := make([]ReadingView, 0, len(keys))
	for _, key := range keys {
		r, ok := snap[key]
		if !ok {
			// Written between Snapshot and Keys; it shows up next time.
			continue
		}
		views = append(views, newReadingView(key, r))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readings": views,
		"count":    len(views),
	})
}

// handleGetReading returns one latest reading. An apartment with no data
// yet is not an error: the body says has_data=false.
func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	key, ok := apartmentParam(w, r)
	if !ok {
		return
	}

	rd, found := s.store.Get(key)
	if !found {
		writeJSON(w, http.StatusOK, noDataView{Apartment: key, HasData: false})
		return
	}
	writeJSON(w, http.StatusOK, newReadingView(key, rd))
}

// handleSnapshot persists the current reading of an apartment to history.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	key, ok := apartmentParam(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeUnavailable(w, "reading history unavailable")
		return
	}

	rec, err := s.history.PersistSnapshot(r.Context(), key)
	if errors.Is(err, history.ErrNoData) {
		writeError(w, http.StatusConflict, ErrCodeNoData, "no reading received yet for apartment "+key)
		return
	}
	if err != nil {
		s.logger.Error("persisting snapshot failed", "apartment", key, "error", err)
		writeInternalError(w, "failed to save reading")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleHistory returns the most recent snapshots of an apartment.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := apartmentParam(w, r)
	if !ok {
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeUnavailable(w, "reading history unavailable")
		return
	}

	records, err := s.history.Repository().Recent(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("loading history failed", "apartment", key, "error", err)
		writeInternalError(w, "failed to load reading history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"apartment": key,
		"history":   records,
		"count":     len(records),
	})
}

// apartmentParam extracts and validates the {apartment} URL parameter,
// writing a 400 when it cannot be a meter key.
func apartmentParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "apartment")
	if err := topic.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return "", false
	}
	return key, true
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > history.MaxLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", history.MaxLimit)
	}
	return limit, nil
}
