package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/powerwatch/internal/apartment"
)

// registerRequest is the body of POST /api/v1/apartments.
type registerRequest struct {
	Apartment string `json:"apartment"`
	Floor     string `json:"floor"`
	Label     string `json:"label"`
}

// handleListApartments returns every registered apartment.
func (s *Server) handleListApartments(w http.ResponseWriter, _ *http.Request) {
	if s.apartments == nil {
		writeUnavailable(w, "apartment registry unavailable")
		return
	}

	list := s.apartments.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"apartments": list,
		"count":      len(list),
	})
}

// handleRegisterApartment registers an apartment and subscribes to its
// dedicated topic. When the broker is unreachable the apartment is stored
// and 202 is returned; the subscription follows on reconnect.
func (s *Server) handleRegisterApartment(w http.ResponseWriter, r *http.Request) {
	if s.apartments == nil {
		writeUnavailable(w, "apartment registry unavailable")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	a := &apartment.Apartment{
		Number: req.Apartment,
		Floor:  req.Floor,
		Label:  req.Label,
	}

	err := s.apartments.Register(r.Context(), a)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, a)
	case errors.Is(err, apartment.ErrSubscribePending):
		s.logger.Warn("apartment registered, subscription pending", "apartment", a.Number, "error", err)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"apartment":    a,
			"subscription": "pending",
		})
	case errors.Is(err, apartment.ErrInvalidNumber), errors.Is(err, apartment.ErrInvalidLabel):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, apartment.ErrExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "apartment "+a.Number+" already registered")
	default:
		s.logger.Error("registering apartment failed", "apartment", a.Number, "error", err)
		writeInternalError(w, "failed to register apartment")
	}
}
