// Package webapi exposes the evaluation engine over a small REST surface.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/webbench/benchd/internal/catalog"
	"github.com/webbench/benchd/internal/models"
	"github.com/webbench/benchd/internal/orchestration"
	"github.com/webbench/benchd/internal/statistics"
	"github.com/webbench/benchd/internal/stepcontrol"
	"github.com/webbench/benchd/internal/store"
)

// Service is the orchestration surface the API needs.
// orchestration.Runner satisfies it.
type Service interface {
	Start(ctx context.Context, req orchestration.StartRequest) (string, error)
	Cancel(ctx context.Context, evaluationID string) error
	Status(ctx context.Context, evaluationID string) (models.StatusSnapshot, error)
	Statistics(ctx context.Context, now time.Time) (statistics.Summary, error)
}

// StepReader exposes live step-control sessions.
// stepcontrol.Controller satisfies it.
type StepReader interface {
	Status(taskID string) (stepcontrol.StepStatus, bool)
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	service Service
	steps   StepReader
}

// NewHandlers creates a new Handlers.
func NewHandlers(service Service, steps StepReader) *Handlers {
	return &Handlers{service: service, steps: steps}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleStartEvaluation creates and launches an evaluation. The evaluation
// runs asynchronously; the response only acknowledges acceptance.
func (h *Handlers) HandleStartEvaluation(w http.ResponseWriter, r *http.Request) {
	var req orchestration.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" || req.Benchmark == "" {
		writeError(w, http.StatusBadRequest, "model and benchmark are required")
		return
	}

	id, err := h.service.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, catalog.ErrBenchmarkNotFound) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, StartResponse{EvaluationID: id})
}

// HandleCancelEvaluation requests cancellation of an evaluation.
func (h *Handlers) HandleCancelEvaluation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "evaluation id is required")
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrEvaluationNotFound) {
			writeError(w, http.StatusNotFound, "evaluation not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvaluationStatus returns the evaluation's current progress snapshot.
func (h *Handlers) HandleEvaluationStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "evaluation id is required")
		return
	}

	snapshot, err := h.service.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrEvaluationNotFound) {
			writeError(w, http.StatusNotFound, "evaluation not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleStatistics returns the operational rollup across all evaluations.
func (h *Handlers) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Statistics(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleTaskSteps returns the live step-control session for a task. Only
// tasks currently executing have one.
func (h *Handlers) HandleTaskSteps(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task id is required")
		return
	}

	status, ok := h.steps.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no active step session for task")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, service Service, steps StepReader) {
	h := NewHandlers(service, steps)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("POST /api/evaluations", h.HandleStartEvaluation)
	mux.HandleFunc("POST /api/evaluations/{id}/cancel", h.HandleCancelEvaluation)
	mux.HandleFunc("GET /api/evaluations/{id}/status", h.HandleEvaluationStatus)
	mux.HandleFunc("GET /api/statistics", h.HandleStatistics)
	mux.HandleFunc("GET /api/tasks/{id}/steps", h.HandleTaskSteps)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
