package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/logging"
	"github.com/JonMunkholm/policyimport/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleStartImport starts the commit loop. It returns immediately; clients
// follow the progress stream.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.StartImport(chi.URLParam(r, "sessionID"), s.store)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	logging.ForSession(r.Context(), session.ID()).Info("import started")
	writeJSONStatus(w, http.StatusAccepted, session.CurrentProgress())
}

// handleProgress streams progress as Server-Sent Events. Event ids are the
// progress sequence numbers; a reconnecting client passes the last one it
// saw as Last-Event-ID (or ?lastEventId) and receives only newer events.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	lastEventID := int64(-1)
	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("lastEventId")
	}
	if lastID != "" {
		if id, err := strconv.ParseInt(lastID, 10, 64); err == nil {
			lastEventID = id
		}
	}

	rc := http.NewResponseController(w)

	progressCh, unsubscribe := session.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case p, ok := <-progressCh:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}
			// Skip events delivered before a reconnect. The final one is
			// always sent.
			if p.Seq <= lastEventID && !p.Done {
				continue
			}
			data, err := json.Marshal(p)
			if err != nil {
				logging.FromContext(r.Context()).Error("encode progress", "error", err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.Seq, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// completedReport returns the report of a completed session.
func (s *Server) completedReport(w http.ResponseWriter, r *http.Request) (*core.ImportSession, *core.ImportReport, bool) {
	session, ok := s.session(w, r)
	if !ok {
		return nil, nil, false
	}
	if st := session.Stage(); st != core.StageComplete {
		s.respondError(w, r, &core.SessionStateError{Op: "Report", Stage: st}, 0)
		return nil, nil, false
	}
	report := core.Summarize(session)
	return session, &report, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	_, report, ok := s.completedReport(w, r)
	if !ok {
		return
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := templates.Report(*report).Render(r.Context(), w); err != nil {
			logging.FromContext(r.Context()).Error("render report", "error", err)
		}
		return
	}
	writeJSON(w, report)
}

// handleInvalidRowsCSV downloads the rejected rows in their original layout
// with an extra column explaining each rejection.
func (s *Server) handleInvalidRowsCSV(w http.ResponseWriter, r *http.Request) {
	session, report, ok := s.completedReport(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "rejected-rows-"+session.ID()+".csv"))
	if err := core.WriteFailedRowsCSV(w, session.Table(), *report); err != nil {
		logging.FromContext(r.Context()).Error("write rejected rows", "error", err)
	}
}
