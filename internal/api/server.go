// Package api exposes the run index and the ablation launcher over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/subliminal-labs/roleprobe/internal/ablation"
	"github.com/subliminal-labs/roleprobe/internal/model"
	"github.com/subliminal-labs/roleprobe/internal/store"
)

// Launcher starts an ablation run in the background and returns its run ID.
type Launcher interface {
	Launch(cfg ablation.Config) (string, error)
}

// Server serves the HTTP API.
type Server struct {
	store    store.Store
	launcher Launcher
	router   *chi.Mux
	logger   *zap.Logger
}

// NewServer wires routes and middleware. launcher may be nil, in which case
// POST /api/ablate responds 503.
func NewServer(st store.Store, launcher Launcher) *Server {
	s := &Server{
		store:    st,
		launcher: launcher,
		router:   chi.NewRouter(),
		logger:   zap.L().Named("api"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/runs", s.handleListRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Post("/api/ablate", s.handleAblate)

	return s
}

// Handler returns the routed handler for mounting in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, eris.Wrap(err, "api: store unavailable"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status:  model.RunStatus(r.URL.Query().Get("status")),
		Concept: r.URL.Query().Get("concept"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, eris.Errorf("api: bad limit %q", v))
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.writeError(w, http.StatusBadRequest, eris.Errorf("api: bad offset %q", v))
			return
		}
		filter.Offset = offset
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if eris.Is(err, store.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, eris.Errorf("api: run %s not found", id))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// AblateRequest carries grid overrides for an asynchronous run.
type AblateRequest struct {
	Records    string   `json:"records"`
	Modes      []string `json:"modes,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	TurnCounts []int    `json:"turns,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Seed       *int64   `json:"seed,omitempty"`
	ResultsDir string   `json:"results_dir,omitempty"`
}

func (s *Server) handleAblate(w http.ResponseWriter, r *http.Request) {
	if s.launcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, eris.New("api: ablation launcher not configured"))
		return
	}

	var req AblateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, eris.Wrap(err, "api: decode request"))
		return
	}
	if req.Records == "" {
		s.writeError(w, http.StatusBadRequest, eris.New("api: records file required"))
		return
	}

	cfg, err := gridFromRequest(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	runID, err := s.launcher.Launch(cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("ablation accepted", zap.String("run_id", runID), zap.String("records", req.Records))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// gridFromRequest translates request overrides into a partial grid config.
// Fields left zero are filled in by the launcher from the server config.
func gridFromRequest(req AblateRequest) (ablation.Config, error) {
	cfg := ablation.Config{
		RecordsFile: req.Records,
		SampleLimit: req.Limit,
		ResultsDir:  req.ResultsDir,
	}
	if len(req.Modes) > 0 {
		modes, err := model.ParseModes(req.Modes)
		if err != nil {
			return ablation.Config{}, err
		}
		cfg.Modes = modes
	}
	if len(req.Conditions) > 0 {
		conds, err := model.ParseConditions(req.Conditions)
		if err != nil {
			return ablation.Config{}, err
		}
		cfg.Conditions = conds
	}
	cfg.TurnCounts = req.TurnCounts
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	return cfg, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
