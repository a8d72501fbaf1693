package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	electionengine "electsys/contexts/enrollment/election-engine"
	electiondomainerrors "electsys/contexts/enrollment/election-engine/domain/errors"
	"electsys/contexts/enrollment/election-engine/ports"
	electionhttp "electsys/contexts/enrollment/election-engine/transport/http"
	"electsys/internal/platform/phase"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "electsys/internal/platform/httpserver/docs"
)

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	election electionengine.Module
	gate     ports.PhaseGate
}

func New(
	election electionengine.Module,
	gate ports.PhaseGate,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	if gate == nil {
		gate = phase.NewGate(true)
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		election: election,
		gate:     gate,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/elections", s.handleEnroll)
	s.mux.HandleFunc("PATCH /v1/elections/{course_id}", s.handleEditWillingpoint)
	s.mux.HandleFunc("POST /v1/elections/{course_id}/withdraw", s.handleWithdraw)
	s.mux.HandleFunc("POST /v1/elections/{course_id}/drop", s.handleDrop)
	s.mux.HandleFunc("GET /v1/students/{student_id}/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /v1/students/{student_id}/messages", s.handleMessages)
	s.mux.HandleFunc("GET /v1/courses/{course_id}/demand", s.handleCourseDemand)
	s.mux.HandleFunc("POST /v1/ballot/run", s.handleBallotRun)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	studentID := resolveStudentID(r)
	if studentID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	if !s.phaseAllows(w, r) {
		return
	}

	var req electionhttp.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	if err := s.election.Handler.EnrollHandler(r.Context(), studentID, req); err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "pending"})
}

func (s *Server) handleEditWillingpoint(w http.ResponseWriter, r *http.Request) {
	studentID := resolveStudentID(r)
	if studentID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	if !s.phaseAllows(w, r) {
		return
	}

	var req electionhttp.EditWillingpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	courseID := r.PathValue("course_id")
	if err := s.election.Handler.EditWillingpointHandler(r.Context(), studentID, courseID, req); err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	studentID := resolveStudentID(r)
	if studentID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	if !s.phaseAllows(w, r) {
		return
	}

	courseID := r.PathValue("course_id")
	if err := s.election.Handler.WithdrawPendingHandler(r.Context(), studentID, courseID); err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	studentID := resolveStudentID(r)
	if studentID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}
	if !s.phaseAllows(w, r) {
		return
	}

	courseID := r.PathValue("course_id")
	if err := s.election.Handler.DropHandler(r.Context(), studentID, courseID); err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student_id")
	resp, err := s.election.Handler.ScheduleHandler(r.Context(), studentID)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student_id")
	resp, err := s.election.Handler.MessagesHandler(r.Context(), studentID)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCourseDemand(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("course_id")
	resp, err := s.election.Handler.CourseDemandHandler(r.Context(), courseID)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBallotRun closes the election gate before resolving so no mutation
// can interleave with finalization. The gate stays closed afterwards. The
// batch runs under a detached context: a client disconnect must not cancel
// repository calls mid-run and strand records in transient statuses.
func (s *Server) handleBallotRun(w http.ResponseWriter, _ *http.Request) {
	ctx := context.Background()
	if err := s.gate.ClosePhase(ctx); err != nil {
		writeElectionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	if err := s.election.Ballot.RunOnce(ctx); err != nil {
		writeElectionError(w, http.StatusInternalServerError, "ballot_failed", "ballot run failed")
		return
	}
	writeJSON(w, http.StatusOK, electionhttp.BallotRunResponse{Started: true})
}

// phaseAllows writes the rejection response itself when the election phase is
// closed or unreadable.
func (s *Server) phaseAllows(w http.ResponseWriter, r *http.Request) bool {
	open, err := s.gate.PhaseOpen(r.Context())
	if err != nil {
		writeElectionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return false
	}
	if !open {
		writeElectionDomainError(w, electiondomainerrors.ErrElectionPhaseClosed)
		return false
	}
	return true
}

func writeElectionDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, electiondomainerrors.ErrInvalidElectionInput):
		writeElectionError(w, http.StatusBadRequest, "invalid_election_input", err.Error())
	case errors.Is(err, electiondomainerrors.ErrWillingpointExceeded):
		writeElectionError(w, http.StatusBadRequest, "willingpoint_exceeded", err.Error())
	case errors.Is(err, electiondomainerrors.ErrTimeConflict):
		writeElectionError(w, http.StatusBadRequest, "time_conflict", err.Error())
	case errors.Is(err, electiondomainerrors.ErrCreditLimitExceeded):
		writeElectionError(w, http.StatusBadRequest, "credit_limit_exceeded", err.Error())
	case errors.Is(err, electiondomainerrors.ErrWrongElectionStatus):
		writeElectionError(w, http.StatusBadRequest, "wrong_election_status", err.Error())
	case errors.Is(err, electiondomainerrors.ErrCourseNotFound):
		writeElectionError(w, http.StatusNotFound, "course_not_found", err.Error())
	case errors.Is(err, electiondomainerrors.ErrElectionNotFound):
		writeElectionError(w, http.StatusNotFound, "election_not_found", err.Error())
	case errors.Is(err, electiondomainerrors.ErrStudentNotFound):
		writeElectionError(w, http.StatusNotFound, "student_not_found", err.Error())
	case errors.Is(err, electiondomainerrors.ErrDuplicateElection):
		writeElectionError(w, http.StatusConflict, "duplicate_election", err.Error())
	case errors.Is(err, electiondomainerrors.ErrConflict):
		writeElectionError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, electiondomainerrors.ErrElectionPhaseClosed):
		writeElectionError(w, http.StatusForbidden, "election_phase_closed", err.Error())
	default:
		writeElectionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeElectionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, electionhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveStudentID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}
