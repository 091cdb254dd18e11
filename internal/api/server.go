// Package api exposes the camera solver over HTTP: one-shot solve,
// reprojection, and GeoJSON export endpoints, plus CRUD for stored
// projects and their solve history.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/geofix-app/geofix/internal/config"
	"github.com/geofix-app/geofix/internal/httputil"
	"github.com/geofix-app/geofix/internal/monitoring"
	"github.com/geofix-app/geofix/internal/store"
	"github.com/geofix-app/geofix/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db  *store.DB
	cfg *config.TuningConfig
}

func NewServer(db *store.DB, cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		db:  db,
		cfg: cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux routes the API. Patterns carry the method and path wildcards,
// so handlers read path parameters with Request.PathValue.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/solve", s.handleSolve)
	mux.HandleFunc("POST /api/reproject", s.handleReproject)
	mux.HandleFunc("POST /api/export/geojson", s.handleExportGeoJSON)

	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("POST /api/projects", s.createProject)
	mux.HandleFunc("GET /api/projects/{id}", s.getProject)
	mux.HandleFunc("PUT /api/projects/{id}", s.updateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.deleteProject)
	mux.HandleFunc("GET /api/projects/{id}/correspondences", s.getCorrespondences)
	mux.HandleFunc("PUT /api/projects/{id}/correspondences", s.putCorrespondences)
	mux.HandleFunc("POST /api/projects/{id}/solves", s.solveProject)
	mux.HandleFunc("GET /api/projects/{id}/solves", s.listSolves)
	mux.HandleFunc("GET /api/projects/{id}/report", s.projectReport)

	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /api/config", s.showConfig)

	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":   version.Version,
		"gitSha":    version.GitSHA,
		"buildTime": version.BuildTime,
	})
}

// showConfig reports the effective tuning the solve endpoints run with,
// defaults filled in.
func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"ransacMaxIters":   s.cfg.GetRansacMaxIters(),
		"ransacInlierPx":   s.cfg.GetRansacInlierPx(),
		"ransacTargetProb": s.cfg.GetRansacTargetProb(),
		"refineMaxIters":   s.cfg.GetRefineMaxIters(),
		"refineLoss":       s.cfg.GetRefineLoss(),
		"refineHuberDelta": s.cfg.GetRefineHuberDelta(),
		"sigmaPx":          s.cfg.GetSigmaPx(),
		"sigmaM":           s.cfg.GetSigmaM(),
		"bootstrapSamples": s.cfg.GetBootstrapSamples(),
		"requestTimeout":   s.cfg.GetRequestTimeout().String(),
		"maxRequestBytes":  s.cfg.GetMaxRequestBytes(),
	})
}
