package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/app"
	"github.com/graaaaa/scr-multilauncher/internal/config"
	"github.com/graaaaa/scr-multilauncher/internal/engine"
	"github.com/graaaaa/scr-multilauncher/internal/store"
	"github.com/graaaaa/scr-multilauncher/internal/sysapi"
)

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleProcesses handles GET /api/v1/processes.
func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	result, err := s.processes.List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLogs handles GET /api/v1/logs.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	result, err := s.logs.Current(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLogHistory handles GET /api/v1/logs/history.
//
// Query parameters:
//   - since: RFC3339 timestamp, lines ingested at or after it
//   - contains: substring filter
//   - limit: page size (default 100, max 500)
//   - cursor: next_cursor from a previous page
func (s *Server) handleLogHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLineFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := s.logs.History(r.Context(), filter)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, app.ErrHistoryDisabled):
		writeError(w, http.StatusNotFound, "history is disabled", nil)
	case errors.Is(err, store.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "invalid cursor", nil)
	default:
		writeError(w, http.StatusInternalServerError, "", err)
	}
}

func parseLineFilter(r *http.Request) (store.LineFilter, error) {
	q := r.URL.Query()
	var f store.LineFilter

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid since: expected RFC3339")
		}
		f.Since = &t
	}
	if v := q.Get("contains"); v != "" {
		f.Contains = &v
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}
	if v := q.Get("cursor"); v != "" {
		f.Cursor = &v
	}
	return f, nil
}

// handleStats handles GET /api/v1/stats[?day=YYYY-MM-DD].
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if v := r.URL.Query().Get("day"); v != "" {
		d, err := time.ParseInLocation(app.DayLayout, v, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD", nil)
			return
		}
		day = d
	}
	result, err := s.stats.Stats(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleKillAll handles POST /api/v1/kill-all.
func (s *Server) handleKillAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.control.KillAll(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLaunch handles POST /api/v1/launch?arch=32|64.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	arch := r.URL.Query().Get("arch")
	if arch == "" {
		arch = "64"
	}

	result, err := s.control.Launch(r.Context(), arch)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, config.ErrUnknownArch):
		writeError(w, http.StatusBadRequest, "arch must be 32 or 64", nil)
	case errors.Is(err, sysapi.ErrNoExecutable):
		writeError(w, http.StatusConflict, "no executable configured for "+arch+"-bit", nil)
	default:
		writeEngineError(w, err)
	}
}

// handleSaveLogs handles POST /api/v1/logs/save.
func (s *Server) handleSaveLogs(w http.ResponseWriter, r *http.Request) {
	result, err := s.control.SaveLogs(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleClearLogs handles DELETE /api/v1/logs.
func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.control.ClearLogs(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeEngineError maps engine lifecycle errors to 503 and everything else
// to 500.
func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, "engine stopped", nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "", err)
}
