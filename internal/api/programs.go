package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// maxQueryParamLen caps the length of path and query parameters.
const maxQueryParamLen = 100

// handleListPrograms returns every program in the catalogue, sorted by name.
func (s *Server) handleListPrograms(w http.ResponseWriter, _ *http.Request) {
	programs := s.catalogue.List()
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs, "count": len(programs)})
}

// handleGetProgram returns a single program by name.
func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid program name")
		return
	}

	p, err := s.catalogue.Get(name)
	if err != nil {
		if errors.Is(err, program.ErrProgramNotFound) {
			writeNotFound(w, "program not found")
			return
		}
		writeInternalError(w, "failed to get program")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleCreateProgram adds a program to the catalogue.
//
// Device names are checked for shape only. A program naming a device that
// is not bound yet is accepted and reported in "unbound"; running it fails
// until the device is created.
func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var p program.Program
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.catalogue.Add(&p); err != nil {
		switch {
		case errors.Is(err, program.ErrProgramExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		case isProgramValidationError(err):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, "failed to add program")
		}
		return
	}

	stored, err := s.catalogue.Get(p.Name)
	if err != nil {
		writeInternalError(w, "failed to read back program")
		return
	}

	unbound := []string{}
	for _, g := range stored.Groups {
		for _, c := range g.Commands {
			if _, resolveErr := s.directory.Resolve(c.Device); resolveErr != nil {
				unbound = append(unbound, c.Device)
			}
		}
	}

	s.logger.Info("program added", "program", stored.Name, "groups", len(stored.Groups))
	writeJSON(w, http.StatusCreated, map[string]any{"program": stored, "unbound": unbound})
}

// runResponse is the body of POST /programs/{name}/run.
type runResponse struct {
	Execution *program.Execution `json:"execution"`
	Error     string             `json:"error,omitempty"`
}

// handleRunProgram runs a program to completion and returns its execution.
//
// The run is detached from the request context so a client disconnect does
// not abort devices half way through a group; the runner's own timeout
// still applies. A failed or cancelled run still returns the execution.
func (s *Server) handleRunProgram(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid program name")
		return
	}

	exec, err := s.runner.Run(context.WithoutCancel(r.Context()), name, "api")
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, runResponse{Execution: exec})
	case errors.Is(err, program.ErrProgramNotFound):
		writeNotFound(w, "program not found")
	case errors.Is(err, program.ErrDeviceNotBound), errors.Is(err, device.ErrUnknownCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, program.ErrProgramFailed) && exec != nil:
		status := http.StatusBadGateway
		if exec.Status == program.StatusCancelled {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, runResponse{Execution: exec, Error: err.Error()})
	default:
		writeInternalError(w, "failed to run program")
	}
}

// handleListExecutions returns the most recent runs of a program.
//
// Query parameters:
//   - limit: number of executions (1-100, default 10)
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history not configured")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxQueryParamLen {
		writeBadRequest(w, "invalid program name")
		return
	}

	p, err := s.catalogue.Get(name)
	if err != nil {
		if errors.Is(err, program.ErrProgramNotFound) {
			writeNotFound(w, "program not found")
			return
		}
		writeInternalError(w, "failed to get program")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	executions, err := s.executions.ListExecutions(r.Context(), p.Name, limit)
	if err != nil {
		writeInternalError(w, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": executions, "count": len(executions)})
}

// isProgramValidationError checks whether err came from program validation.
func isProgramValidationError(err error) bool {
	return errors.Is(err, program.ErrInvalidProgram) ||
		errors.Is(err, program.ErrInvalidName) ||
		errors.Is(err, program.ErrInvalidGroup) ||
		errors.Is(err, program.ErrInvalidCommand) ||
		errors.Is(err, program.ErrNoGroups)
}
