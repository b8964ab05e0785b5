package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

type geofenceRequest struct {
	Name         string            `json:"name"`
	Points       []domain.Position `json:"points"`
	EnterMessage string            `json:"enter_message,omitempty"`
	ExitMessage  string            `json:"exit_message,omitempty"`
}

func (s *Server) handleListGeofences(w http.ResponseWriter, r *http.Request) {
	fences, err := s.state.Geofences(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "geofence query failed")
		return
	}
	if fences == nil {
		fences = []*domain.Geofence{}
	}
	writeJSON(w, http.StatusOK, fences)
}

func (s *Server) handleCreateGeofence(w http.ResponseWriter, r *http.Request) {
	fence, ok := s.decodeGeofence(w, r, "")
	if !ok {
		return
	}
	if _, err := s.state.GeofenceByName(r.Context(), fence.Name); err == nil {
		writeError(w, http.StatusConflict, "geofence already exists")
		return
	}
	if err := s.state.SaveGeofence(r.Context(), fence); err != nil {
		writeError(w, http.StatusInternalServerError, "geofence save failed")
		return
	}
	writeJSON(w, http.StatusCreated, fence)
}

func (s *Server) handleUpdateGeofence(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	existing, err := s.state.GeofenceByName(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "geofence not found")
		return
	}

	fence, ok := s.decodeGeofence(w, r, name)
	if !ok {
		return
	}
	// An update keeps the derived inside flag; the polygon change will be
	// reconciled on the next GPS fix.
	fence.Inside = existing.Inside
	if err := s.state.SaveGeofence(r.Context(), fence); err != nil {
		writeError(w, http.StatusInternalServerError, "geofence save failed")
		return
	}
	writeJSON(w, http.StatusOK, fence)
}

func (s *Server) handleDeleteGeofence(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := s.state.GeofenceByName(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, "geofence not found")
		return
	}
	if err := s.state.DeleteGeofence(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, "geofence delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// decodeGeofence parses and validates the request body. When pathName is set
// it overrides the body's name, matching the PUT route.
func (s *Server) decodeGeofence(w http.ResponseWriter, r *http.Request, pathName string) (*domain.Geofence, bool) {
	var req geofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return nil, false
	}
	name := req.Name
	if pathName != "" {
		name = pathName
	}

	fence, err := domain.NewGeofence(name, req.Points)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyGeofenceName),
			errors.Is(err, domain.ErrUnsafeGeofenceName),
			errors.Is(err, domain.ErrDegeneratePolygon):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "geofence validation failed")
		}
		return nil, false
	}
	fence.EnterMessage = req.EnterMessage
	fence.ExitMessage = req.ExitMessage
	return fence, true
}
