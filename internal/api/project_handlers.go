package api

import (
	"errors"
	"net/http"

	"github.com/geofix-app/geofix/internal/httputil"
	"github.com/geofix-app/geofix/internal/solver"
	"github.com/geofix-app/geofix/internal/store"
)

// createProjectRequest is the payload for registering a camera project.
// ID is optional; the store generates one when it is empty.
type createProjectRequest struct {
	ID    string           `json:"id,omitempty"`
	Name  string           `json:"name"`
	Image solver.ImageSize `json:"image"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	p, err := s.db.CreateProject(req.ID, req.Name, req.Image)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.db.ListProjects()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"projects": projects})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.db.GetProject(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, p)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	p, err := s.db.UpdateProject(r.PathValue("id"), req.Name, req.Image)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.db.DeleteProject(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCorrespondences(w http.ResponseWriter, r *http.Request) {
	corrs, err := s.db.Correspondences(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"correspondences": corrs})
}

// putCorrespondencesRequest replaces the full correspondence set for a
// project. Partial updates are deliberately unsupported; clients send
// the list they want persisted.
type putCorrespondencesRequest struct {
	Correspondences []solver.Correspondence `json:"correspondences"`
}

func (s *Server) putCorrespondences(w http.ResponseWriter, r *http.Request) {
	var req putCorrespondencesRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	projectID := r.PathValue("id")
	if err := s.db.ReplaceCorrespondences(projectID, req.Correspondences); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}

	corrs, err := s.db.Correspondences(projectID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"correspondences": corrs})
}

// solveProject runs the solver against a stored project. The request
// body is an ordinary solve request; an empty correspondence list or
// zero image size falls back to what the project has on file, so a bare
// "{}" body solves the project as stored.
func (s *Server) solveProject(w http.ResponseWriter, r *http.Request) {
	var req solver.SolveRequest
	if err := httputil.DecodeJSON(w, r, s.cfg.GetMaxRequestBytes(), &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	projectID := r.PathValue("id")
	project, err := s.db.GetProject(projectID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if req.Image.Width == 0 && req.Image.Height == 0 {
		req.Image = project.Image
	}
	if len(req.Correspondences) == 0 {
		corrs, err := s.db.Correspondences(projectID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		req.Correspondences = corrs
	}

	s.cfg.ApplyDefaults(&req)

	resp, err := solver.Solve(&req)
	if err != nil {
		writeSolverError(w, err)
		return
	}

	record, err := s.db.RecordSolve(projectID, &req, resp)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (s *Server) listSolves(w http.ResponseWriter, r *http.Request) {
	solves, err := s.db.Solves(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"solves": solves})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}
