package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/fleet"
	"github.com/vantagesign/signdeck/internal/manifest"
)

// maxUploadBytes bounds request bodies on the upload endpoint; the
// publisher applies the configured per-logo cap on top.
const maxUploadBytes = 8 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	m, sha, err := s.publisher.FetchManifest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"manifest": m, "sha": sha})
}

// handleUploadLogo accepts the logo as the raw request body with the
// file name in the ?name= query parameter.
func (s *Server) handleUploadLogo(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, r, errors.NewValidation("missing_name", "name query parameter is required"))
		return
	}

	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, errors.NewValidation("body_too_large", "upload body too large"))
		return
	}

	logo, err := s.publisher.UploadLogo(r.Context(), name, content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, logo)
}

func (s *Server) handleRemoveLogo(w http.ResponseWriter, r *http.Request) {
	if err := s.publisher.RemoveLogo(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// settingsPatch is a partial settings update; nil fields are left
// untouched.
type settingsPatch struct {
	RotationSeconds *int               `json:"rotation_seconds"`
	Brightness      *int               `json:"brightness"`
	Theme           *string            `json:"theme"`
	Schedule        *manifest.Schedule `json:"schedule"`
}

func (p settingsPatch) apply(s *manifest.Settings) error {
	if p.RotationSeconds != nil {
		if *p.RotationSeconds < 1 {
			return errors.NewValidation("bad_rotation", "rotation_seconds must be at least 1")
		}
		s.RotationSeconds = *p.RotationSeconds
	}
	if p.Brightness != nil {
		if *p.Brightness < 0 || *p.Brightness > 100 {
			return errors.NewValidation("bad_brightness", "brightness must be 0-100")
		}
		s.Brightness = *p.Brightness
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.Schedule != nil {
		s.Schedule = *p.Schedule
	}
	return nil
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, r, errors.NewValidation("bad_json", "undecodable settings body"))
		return
	}

	m, err := s.publisher.UpdateSettings(r.Context(), patch.apply)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Settings)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": s.fleet.Devices()})
}

type dispatchRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, errors.NewValidation("bad_json", "undecodable command body"))
		return
	}

	cmdType, err := fleet.ParseCommandType(req.Type)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cmds, err := s.fleet.Dispatch(r.Context(), r.PathValue("id"), cmdType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"commands": cmds})
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": s.fleet.Commands()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, errors.NewConfig("history_disabled", "command history store is disabled"))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, r, errors.NewValidation("bad_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	cmds, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds})
}

// Preference values are opaque strings; the frontend keeps its UI state
// here instead of browser localStorage so it survives across machines.
const maxPreferenceBytes = 64 << 10

func (s *Server) handleListPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		s.writeError(w, r, errors.NewConfig("preferences_disabled", "preference store is disabled"))
		return
	}
	all, err := s.prefs.All(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": all})
}

func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		s.writeError(w, r, errors.NewConfig("preferences_disabled", "preference store is disabled"))
		return
	}
	value, err := s.prefs.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		s.writeError(w, r, errors.NewConfig("preferences_disabled", "preference store is disabled"))
		return
	}
	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPreferenceBytes))
	if err != nil {
		s.writeError(w, r, errors.NewValidation("value_too_large", "preference value too large"))
		return
	}
	if err := s.prefs.Set(r.Context(), r.PathValue("key"), string(value)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePreference(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		s.writeError(w, r, errors.NewConfig("preferences_disabled", "preference store is disabled"))
		return
	}
	if err := s.prefs.Delete(r.Context(), r.PathValue("key")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrOffline):
		status = http.StatusConflict
	default:
		switch errors.TypeOf(err) {
		case errors.TypeValidation:
			status = http.StatusBadRequest
		case errors.TypeConflict:
			status = http.StatusConflict
		case errors.TypeAuth, errors.TypeNetwork, errors.TypePublish:
			status = http.StatusBadGateway
		case errors.TypeConfig:
			status = http.StatusNotImplemented
		}
	}

	if status >= 500 {
		s.log.Error(r.Context(), err, "request failed", "path", r.URL.Path)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
