package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/jobmaster"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/logger"
	"github.com/jobctl/jobmaster/internal/metrics"
	"github.com/jobctl/jobmaster/internal/workerset"
)

// WorkerHandler binds the worker-facing RPCs: register, heartbeat.
type WorkerHandler struct {
	master *jobmaster.Master
}

// NewWorkerHandler creates a new worker handler.
func NewWorkerHandler(m *jobmaster.Master) *WorkerHandler {
	return &WorkerHandler{master: m}
}

// RegisterRequest is the wire shape of a register() call.
type RegisterRequest struct {
	Host         string `json:"host"`
	RPCPort      int    `json:"rpc_port"`
	DataPort     int    `json:"data_port"`
	WebPort      int    `json:"web_port"`
	DomainSocket string `json:"domain_socket,omitempty"`
}

// RegisterResponse is the wire shape of a register() reply.
type RegisterResponse struct {
	WorkerID int64 `json:"worker_id"`
}

// Register handles POST /api/v1/workers/register.
func (h *WorkerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Host == "" {
		respondError(w, http.StatusBadRequest, "host is required")
		return
	}

	addr := workerset.Address{
		Host:         req.Host,
		RPCPort:      req.RPCPort,
		DataPort:     req.DataPort,
		WebPort:      req.WebPort,
		DomainSocket: req.DomainSocket,
	}

	id := h.master.RegisterWorker(addr)
	metrics.RecordWorkerRegistered()
	metrics.SetActiveWorkers(float64(h.master.Workers().Size()))

	logger.Info().Int64("worker_id", id).Str("host", req.Host).Msg("worker registered")
	respondJSON(w, http.StatusCreated, RegisterResponse{WorkerID: id})
}

// TaskReportWire is one worker-reported task status update.
type TaskReportWire struct {
	PlanID       int64           `json:"plan_id"`
	TaskID       int64           `json:"task_id"`
	State        jobstate.State  `json:"state"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// HeartbeatRequest is the wire shape of a heartbeat() call.
type HeartbeatRequest struct {
	Reports []TaskReportWire `json:"reports"`
}

// CommandWire is one outbound instruction to a worker.
type CommandWire struct {
	Kind    string          `json:"kind"`
	PlanID  int64           `json:"plan_id,omitempty"`
	TaskID  int64           `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HeartbeatResponse is the wire shape of a heartbeat() reply.
type HeartbeatResponse struct {
	Commands []CommandWire `json:"commands"`
}

// Heartbeat handles POST /api/v1/workers/{workerID}/heartbeat.
func (h *WorkerHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	workerID, err := strconv.ParseInt(chi.URLParam(r, "workerID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid worker id")
		return
	}

	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reports := make([]jobmaster.PlanTaskReport, len(req.Reports))
	for i, rep := range req.Reports {
		reports[i] = jobmaster.PlanTaskReport{
			PlanID:       rep.PlanID,
			TaskID:       rep.TaskID,
			State:        rep.State,
			ErrorMessage: rep.ErrorMessage,
			Result:       rep.Result,
		}
	}

	commands := h.master.WorkerHeartbeat(r.Context(), workerID, reports)
	wire := make([]CommandWire, len(commands))
	for i, c := range commands {
		wire[i] = CommandWire{
			Kind:    c.Kind.String(),
			PlanID:  c.PlanID,
			TaskID:  c.TaskID,
			Payload: c.Payload,
		}
		metrics.RecordCommandDrained(commandKindName(c.Kind))
	}

	respondJSON(w, http.StatusOK, HeartbeatResponse{Commands: wire})
}

func commandKindName(k command.Kind) string {
	return k.String()
}

// HealthCheck handles GET /health.
func (h *WorkerHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"live_plans":   len(h.master.List()),
		"active_workers": h.master.Workers().Size(),
	})
}
