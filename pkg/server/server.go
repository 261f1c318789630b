// Package server exposes the research pipeline and the verification
// protocol over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verascope-ai/verascope/pkg/config"
	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/models"
)

// Server is the Verascope HTTP API.
type Server struct {
	cfg     *config.Config
	manager *RunManager
	router  chi.Router
}

// New creates a Server wired with its run manager.
func New(cfg *config.Config, manager *RunManager) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		router:  chi.NewRouter(),
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Get("/status", s.handleStatus)
		r.Get("/results", s.handleResults)
		r.Post("/verify/{id}", s.handleVerify)
		r.Get("/audit", s.handleAudit)
		r.Get("/health", s.handleHealth)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the API server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("verascope API listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// StartRequest is the body of POST /api/start.
type StartRequest struct {
	Topic         string `json:"topic"`
	Seed          *int   `json:"seed,omitempty"`
	NumHypotheses int    `json:"num_hypotheses,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeJSONError(w, http.StatusBadRequest, "topic is required")
		return
	}

	params := s.cfg.Params
	if req.Seed != nil {
		params.Seed = *req.Seed
	}

	// The run outlives this request; it is bounded by the server context,
	// not the client connection.
	runID, err := s.manager.Start(context.Background(), req.Topic, params)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "started",
		"run_id": runID,
		"topic":  req.Topic,
		"seed":   params.Seed,
		"model":  params.Model,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	report, ok := s.manager.Report()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no results yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	eng, ok := s.manager.Engine()
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "no run has been started")
		return
	}

	id := chi.URLParam(r, "id")
	result, err := eng.Verify(r.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		// A provider failure during replay is reported, not retried.
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	// A mismatch is a valid verification outcome, never an error status.
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	records := []models.CallRecord{}
	if eng, ok := s.manager.Engine(); ok {
		records = eng.ExportFull()
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_log": records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, ready := s.manager.Engine()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"agent_ready": ready,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`, message, code)
}
