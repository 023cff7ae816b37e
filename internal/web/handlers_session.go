package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/logging"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is held in memory while parsing an upload form; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// session loads the session named in the URL or writes the error.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.ImportSession, bool) {
	session, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return nil, false
	}
	return session, true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := s.sessions.Create()
	writeJSONStatus(w, http.StatusCreated, session.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, session.Snapshot())
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Continue(); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, session.Snapshot())
}

// uploadResponse is returned after a file is parsed.
type uploadResponse struct {
	SessionID        string             `json:"sessionId"`
	FileName         string             `json:"fileName"`
	Format           core.Format        `json:"format"`
	Headers          []string           `json:"headers"`
	RowCount         int                `json:"rowCount"`
	RowLimitExceeded bool               `json:"rowLimitExceeded"`
	SuggestedMapping core.ColumnMapping `json:"suggestedMapping"`
	UnmappedRequired []core.TargetField `json:"unmappedRequired"`
	PresetMatches    []core.PresetMatch `json:"presetMatches,omitempty"`
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	// Leave room for the multipart envelope; the file itself is checked below.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize), 0)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrNoFile, err), 0)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.ErrNoFile, 0)
		return
	}
	defer file.Close()

	data, err := core.ReadLimited(file, maxSize)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	log := logging.ForSession(r.Context(), session.ID())
	log.Info("file received", "file", header.Filename, "size", len(data))

	table, err := session.Upload(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	snap := session.Snapshot()
	resp := uploadResponse{
		SessionID:        session.ID(),
		FileName:         header.Filename,
		Format:           table.Format,
		Headers:          table.Headers,
		RowCount:         table.RowCount(),
		RowLimitExceeded: snap.RowLimitExceeded,
		SuggestedMapping: session.SuggestedMapping(),
		UnmappedRequired: snap.UnmappedRequired,
	}
	if s.presets != nil {
		matches, err := s.presets.Match(table.Headers)
		if err != nil {
			log.Warn("preset match failed", "error", err)
		}
		resp.PresetMatches = matches
	}
	writeJSON(w, resp)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Back(); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, session.Snapshot())
}

// mappingRequest confirms either an explicit mapping or a saved preset.
type mappingRequest struct {
	Mapping core.ColumnMapping `json:"mapping"`
	Preset  string             `json:"preset,omitempty"`
}

func (s *Server) handleConfirmMapping(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req mappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("decode mapping: %w", err), http.StatusBadRequest)
		return
	}

	mapping := req.Mapping
	if req.Preset != "" {
		if s.presets == nil {
			s.respondError(w, r, core.ErrPresetNotFound, 0)
			return
		}
		preset, err := s.presets.Get(req.Preset)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		var headers []string
		if t := session.Table(); t != nil {
			headers = t.Headers
		}
		mapping = preset.MappingFor(headers)
	}

	if _, err := session.ConfirmMapping(mapping); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	page, err := session.Review(core.ReviewAll, 1, s.cfg.Import.ReviewPageSize)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, page.Summary)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	filter := core.ReviewFilter(r.URL.Query().Get("status"))
	switch filter {
	case core.ReviewAll, core.ReviewValid, core.ReviewInvalid:
	default:
		s.respondError(w, r, fmt.Errorf("invalid review filter %q", filter), http.StatusBadRequest)
		return
	}

	page, err := session.Review(filter, parseIntParam(r, "page", 1), s.cfg.Import.ReviewPageSize)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, page)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := session.Restart(); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, session.Snapshot())
}

// handleCancelSession cancels and removes a session. An import in progress
// is only cancelled with ?confirm=true; the response then carries the report.
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	report, err := s.sessions.Cancel(r.Context(), id, confirm)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if report == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, report)
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
