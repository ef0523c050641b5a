package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/session"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/rs/zerolog"
)

// Server exposes the evaluation and session operations over HTTP.
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)

	evaluator *policy.Evaluator
	sessions  *session.Manager
}

// NewServer creates the API server.
func NewServer(addr string, evaluator *policy.Evaluator, sessions *session.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		logger:    logger.With().Str("component", "api").Logger(),
		evaluator: evaluator,
		sessions:  sessions,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/segments/{id}/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("POST /v1/sessions/{id}/stop", s.handleStopSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop stops the API server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Close()
}

// Handler returns the underlying handler (for tests).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	segmentID := r.PathValue("id")

	var at time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid at parameter: "+err.Error())
			return
		}
		at = parsed
	}

	permit := policy.PermitContext{
		Kind:      policy.PermitKind(r.URL.Query().Get("permit_kind")),
		ZoneCode:  r.URL.Query().Get("permit_zone"),
		VehicleID: r.URL.Query().Get("vehicle_id"),
	}
	if permit.Kind == "" {
		permit.Kind = policy.PermitNone
	}

	ev, err := s.evaluator.EvaluateSegment(r.Context(), segmentID, at, permit)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}

type startSessionRequest struct {
	VehicleID    string               `json:"vehicle_id"`
	SegmentID    string               `json:"segment_id"`
	PlannedEndAt time.Time            `json:"planned_end_at"`
	Permit       policy.PermitContext `json:"permit"`
}

type startSessionResponse struct {
	Session    *storage.ParkingSession `json:"session"`
	Evaluation *policy.Evaluation      `json:"evaluation"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Permit.Kind == "" {
		req.Permit.Kind = policy.PermitNone
	}

	sess, ev, err := s.sessions.Start(r.Context(), session.StartRequest{
		VehicleID:    req.VehicleID,
		SegmentID:    req.SegmentID,
		PlannedEndAt: req.PlannedEndAt,
		Permit:       req.Permit,
	})
	if errors.Is(err, session.ErrParkingRestricted) {
		s.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      err.Error(),
			"evaluation": ev,
		})
		return
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "segment not found")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, startSessionResponse{Session: sess, Evaluation: ev})
}

type stopSessionResponse struct {
	Session    *storage.ParkingSession `json:"session"`
	Settlement *session.Settlement     `json:"settlement"`
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, settlement, err := s.sessions.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stopSessionResponse{Session: sess, Settlement: settlement})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error().Err(err).Msg("Request failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
