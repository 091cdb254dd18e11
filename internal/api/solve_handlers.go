package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/geofix-app/geofix/internal/export"
	"github.com/geofix-app/geofix/internal/httputil"
	"github.com/geofix-app/geofix/internal/monitoring"
	"github.com/geofix-app/geofix/internal/report"
	"github.com/geofix-app/geofix/internal/solver"
)

// solverErrorResponse is the structured body for solve failures the
// caller can act on: the kind distinguishes bad input from scenes the
// solver cannot crack.
type solverErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeSolverError maps solver error kinds onto HTTP statuses: invalid
// input is the caller's fault (400), solvable-input failures such as no
// consensus or degenerate geometry are 422, anything unrecognized is 500.
func writeSolverError(w http.ResponseWriter, err error) {
	kind := solver.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case solver.KindInvalidInput:
		status = http.StatusBadRequest
	case solver.KindInsufficientCorrespondences,
		solver.KindDegenerateGeometry,
		solver.KindNoConsensus:
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, solverErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solver.SolveRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.cfg.ApplyDefaults(&req)

	resp, err := solver.Solve(&req)
	if err != nil {
		writeSolverError(w, err)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// reprojectRequest maps world points through an already-solved camera.
type reprojectRequest struct {
	Pose        solver.Pose         `json:"pose"`
	Intrinsics  solver.Intrinsics   `json:"intrinsics"`
	WorldPoints []solver.WorldPoint `json:"worldPoints"`
}

type reprojectResponse struct {
	Points []solver.ReprojectedPoint `json:"points"`
}

func (s *Server) handleReproject(w http.ResponseWriter, r *http.Request) {
	var req reprojectRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	points, err := solver.ReprojectPoints(req.Pose, req.Intrinsics, req.WorldPoints)
	if err != nil {
		writeSolverError(w, err)
		return
	}
	httputil.WriteJSONOK(w, reprojectResponse{Points: points})
}

// exportRequest pairs a solve result with the correspondences it was
// produced from, as required for residual annotation.
type exportRequest struct {
	Response        *solver.SolveResponse   `json:"response"`
	Correspondences []solver.Correspondence `json:"correspondences"`
}

func (s *Server) handleExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	fc, err := export.GeoJSON(req.Response, req.Correspondences)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode feature collection: %v", err))
		return
	}
}

// projectReport renders the diagnostics page for a project's most recent
// solve. The page is self-contained HTML, so it can be saved straight from
// the browser.
func (s *Server) projectReport(w http.ResponseWriter, r *http.Request) {
	solves, err := s.db.Solves(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if len(solves) == 0 {
		httputil.NotFound(w, "no solves recorded for project")
		return
	}

	var req solver.SolveRequest
	if err := json.Unmarshal(solves[0].Request, &req); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to decode stored request: %v", err))
		return
	}
	var resp solver.SolveResponse
	if err := json.Unmarshal(solves[0].Response, &resp); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to decode stored response: %v", err))
		return
	}

	rep, err := report.New(&req, &resp)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := rep.WriteHTML(w); err != nil {
		// Headers are already out; all we can do is log.
		monitoring.Logf("failed to render report for project %s: %v", r.PathValue("id"), err)
	}
}
