package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/opsec-worker/internal/api/middleware"
	"github.com/yourorg/opsec-worker/internal/db"
	"github.com/yourorg/opsec-worker/internal/model"
	"github.com/yourorg/opsec-worker/internal/scoring"
)

const scansPrefix = "/api/v1/scans/"

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	switch r.Method {
	case http.MethodGet:
		limit := 50
		if q := r.URL.Query().Get("limit"); q != "" {
			if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		scans, err := s.cfg.Scans.ListScans(r.Context(), owner, limit)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, scans)
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req model.ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		scan, err := s.cfg.Scans.CreateScan(r.Context(), owner, req)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		queued := s.cfg.Orchestrator.Submit(scan.ID)
		s.requestLogger(r).Info("scan created", zap.String("scan_id", scan.ID), zap.Bool("queued", queued))
		writeJSON(w, http.StatusAccepted, scan)
	default:
		s.methodNotAllowed(w, r)
	}
}

// handleScanByID serves GET /api/v1/scans/{id} and
// POST /api/v1/scans/{id}/force-complete.
func (s *Server) handleScanByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, scansPrefix), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}

	scan, err := s.cfg.Scans.GetScan(r.Context(), id)
	if err == nil && !ownedBy(scan, middleware.GetOwnerID(r.Context())) {
		err = db.ErrNotFound
	}
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getReport(w, r, scan)
	case action == "force-complete" && r.Method == http.MethodPost:
		s.forceComplete(w, r, scan)
	case action == "" || action == "force-complete":
		s.methodNotAllowed(w, r)
	default:
		s.writeError(w, r, http.StatusNotFound, errors.New("not found"))
	}
}

func ownedBy(scan *model.ScanRecord, owner string) bool {
	return owner == "" || scan.OwnerID == owner
}

// getReport returns the scan with findings ordered by impact and the
// recommendations derived from them.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request, scan *model.ScanRecord) {
	findings, err := s.cfg.Scans.ListFindings(r.Context(), scan.ID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	report := scoring.NewReport(*scan, scoring.ByImpact(findings))
	if events, err := s.cfg.Scans.ListEvents(r.Context(), scan.ID); err == nil {
		report.Events = events
	} else {
		s.requestLogger(r).Warn("list events", zap.String("scan_id", scan.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) forceComplete(w http.ResponseWriter, r *http.Request, scan *model.ScanRecord) {
	updated, err := s.cfg.Orchestrator.ForceComplete(r.Context(), scan.ID)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"score":   updated.Score,
		"scan":    updated,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	stats, err := s.cfg.Scans.Stats(r.Context(), middleware.GetOwnerID(r.Context()))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
