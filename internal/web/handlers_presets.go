package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/go-chi/chi/v5"
)

// handleTemplate downloads the blank import template as CSV (default) or
// XLSX.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="policy-import-template.csv"`)
		if err := core.TemplateCSV(w); err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="policy-import-template.xlsx"`)
		if err := core.TemplateXLSX(w); err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
		}
	default:
		s.respondError(w, r, fmt.Errorf("unsupported file format %q", format), http.StatusBadRequest)
	}
}

// presetStore returns the preset store or writes a not-found error when
// presets are disabled.
func (s *Server) presetStore(w http.ResponseWriter, r *http.Request) (*core.PresetStore, bool) {
	if s.presets == nil {
		s.respondError(w, r, core.ErrPresetNotFound, 0)
		return nil, false
	}
	return s.presets, true
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	store, ok := s.presetStore(w, r)
	if !ok {
		return
	}
	presets, err := store.List()
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if presets == nil {
		presets = []core.MappingPreset{}
	}
	writeJSON(w, presets)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	store, ok := s.presetStore(w, r)
	if !ok {
		return
	}

	var preset core.MappingPreset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		s.respondError(w, r, fmt.Errorf("decode preset: %w", err), http.StatusBadRequest)
		return
	}

	saved, err := store.Save(preset)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusCreated, saved)
}

// handleMatchPresets scores saved presets against ?headers=a,b,c.
func (s *Server) handleMatchPresets(w http.ResponseWriter, r *http.Request) {
	store, ok := s.presetStore(w, r)
	if !ok {
		return
	}

	var headers []string
	for _, h := range strings.Split(r.URL.Query().Get("headers"), ",") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}

	matches, err := store.Match(headers)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if matches == nil {
		matches = []core.PresetMatch{}
	}
	writeJSON(w, matches)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	store, ok := s.presetStore(w, r)
	if !ok {
		return
	}
	if err := store.Delete(chi.URLParam(r, "name")); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
