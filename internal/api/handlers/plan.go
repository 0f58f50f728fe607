// Package handlers binds SPEC_FULL.md §6's client- and worker-facing RPCs
// onto HTTP, grounded on the teacher's internal/api/handlers/task.go and
// admin.go (decode request, call the domain facade, respond JSON).
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jobctl/jobmaster/internal/jobmaster"
	"github.com/jobctl/jobmaster/internal/logger"
)

// PlanHandler binds the client-facing plan RPCs: run, cancel, list_all,
// get_job_status, get_job_service_summary.
type PlanHandler struct {
	master *jobmaster.Master
}

// NewPlanHandler creates a new plan handler.
func NewPlanHandler(m *jobmaster.Master) *PlanHandler {
	return &PlanHandler{master: m}
}

// RunRequest is the wire shape of a run() call.
type RunRequest struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// RunResponse is the wire shape of a run() reply.
type RunResponse struct {
	PlanID int64 `json:"plan_id"`
}

// Run handles POST /api/v1/plans.
func (h *PlanHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	planID, err := h.master.Run(r.Context(), req.Name, req.Config)
	if err != nil {
		switch {
		case errors.Is(err, jobmaster.ErrUnknownPlan):
			respondError(w, http.StatusBadRequest, "unknown plan: "+req.Name)
		case errors.Is(err, jobmaster.ErrCapacityExceeded):
			respondError(w, http.StatusServiceUnavailable, "job master at capacity")
		default:
			logger.Error().Err(err).Str("plan_name", req.Name).Msg("failed to run plan")
			respondError(w, http.StatusInternalServerError, "failed to run plan")
		}
		return
	}

	logger.Info().Int64("plan_id", planID).Str("plan_name", req.Name).Msg("plan admitted")
	respondJSON(w, http.StatusCreated, RunResponse{PlanID: planID})
}

// Cancel handles DELETE /api/v1/plans/{planID}.
func (h *PlanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parsePlanID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	if err := h.master.Cancel(id); err != nil {
		if errors.Is(err, jobmaster.ErrNotFound) {
			respondError(w, http.StatusNotFound, "plan not found")
			return
		}
		logger.Error().Err(err).Int64("plan_id", id).Msg("failed to cancel plan")
		respondError(w, http.StatusInternalServerError, "failed to cancel plan")
		return
	}

	logger.Info().Int64("plan_id", id).Msg("plan cancel requested")
	respondJSON(w, http.StatusOK, map[string]interface{}{"plan_id": id, "canceled": true})
}

// List handles GET /api/v1/plans.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.master.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plan_ids": ids,
		"count":    len(ids),
	})
}

// Get handles GET /api/v1/plans/{planID}.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parsePlanID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid plan id")
		return
	}

	status, err := h.master.GetStatus(id)
	if err != nil {
		if errors.Is(err, jobmaster.ErrNotFound) {
			respondError(w, http.StatusNotFound, "plan not found")
			return
		}
		logger.Error().Err(err).Int64("plan_id", id).Msg("failed to get plan status")
		respondError(w, http.StatusInternalServerError, "failed to get plan status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// Summary handles GET /api/v1/summary.
func (h *PlanHandler) Summary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.master.GetSummary())
}

func parsePlanID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "planID")
	return strconv.ParseInt(raw, 10, 64)
}
