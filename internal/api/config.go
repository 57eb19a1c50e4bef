package api

import (
	"errors"
	"net/http"

	"github.com/graaaaa/scr-multilauncher/internal/app"
)

const maxConfigBody = 64 << 10

// GET /api/v1/config
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.cfg.GetConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PUT /api/v1/config. Fields left out of the body keep their value.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req app.ConfigUpdateRequest
	if err := decodeStrict(w, r, maxConfigBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	res, err := s.cfg.UpdateConfig(r.Context(), req)
	if errors.Is(err, app.ErrInvalidConfig) {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save config", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
