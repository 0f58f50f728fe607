// Package jobmaster is the facade components A-J are wired behind
// (SPEC_FULL.md component H): admission, worker registration, heartbeat
// handling, and status queries. Grounded on the teacher's
// internal/api/routes.go Server struct as "the thing that owns every other
// component and exposes operations," generalized from HTTP-route wiring to
// RPC-method wiring.
package jobmaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jobctl/jobmaster/internal/clock"
	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/coordinator"
	"github.com/jobctl/jobmaster/internal/idgen"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/metrics"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/internal/tracker"
	"github.com/jobctl/jobmaster/internal/workerset"
)

// Sentinel errors, matching the taxonomy in SPEC_FULL.md §7. Wrapped with
// %w at every boundary that adds context, per the teacher's
// task.ErrTaskNotFound convention.
var (
	ErrUnknownPlan      = plandef.ErrUnknownPlan
	ErrCapacityExceeded = tracker.ErrCapacityExceeded
	ErrNotFound         = errors.New("jobmaster: not found")
	ErrInvalidArgument  = errors.New("jobmaster: invalid argument")
)

// EventSink receives best-effort lifecycle notifications. A nil sink is
// valid and simply means nothing observes the feed; the kernel's own
// correctness never depends on it (SPEC_FULL.md component O).
type EventSink interface {
	PlanAdmitted(planID int64, name string)
	PlanDenied(name string, reason error)
	PlanStateChanged(planID int64, from, to jobstate.State)
	WorkerRegistered(workerID int64, host string)
	WorkerEvicted(workerID int64, reason string)
	WorkerLost(workerID int64)
	CommandEnqueued(workerID int64, kind string)
}

// noopSink discards every event.
type noopSink struct{}

func (noopSink) PlanAdmitted(int64, string)                   {}
func (noopSink) PlanDenied(string, error)                      {}
func (noopSink) PlanStateChanged(int64, jobstate.State, jobstate.State) {}
func (noopSink) WorkerRegistered(int64, string)                {}
func (noopSink) WorkerEvicted(int64, string)                   {}
func (noopSink) WorkerLost(int64)                              {}
func (noopSink) CommandEnqueued(int64, string)                 {}

// Config bounds the facade's tracker and worker-liveness behavior, mirroring
// the §6 parameter names.
type Config struct {
	JobCapacity          int
	FinishedJobRetention  time.Duration
	FinishedJobPurgeCount int
	FinishedJobHistory    int
	WorkerTimeout         time.Duration
}

// JobServiceSummary groups every live plan's status by rolled-up state.
type JobServiceSummary struct {
	ByState map[string][]jobstate.PlanStatus `json:"by_state"`
	Total   int                              `json:"total"`
}

// Master wires components B-J behind the operations in SPEC_FULL.md §6.
type Master struct {
	clock    clock.Clock
	planIDs  *idgen.Generator
	workerIDs *idgen.Generator
	workers  *workerset.Set
	commands *command.Manager
	plans    *plandef.Registry
	tracker  *tracker.Tracker
	events   EventSink
	cfg      Config
}

// New constructs a Master. If sink is nil, events are discarded.
func New(clk clock.Clock, plans *plandef.Registry, cfg Config, sink EventSink) *Master {
	if sink == nil {
		sink = noopSink{}
	}
	if cfg.FinishedJobPurgeCount == 0 {
		cfg.FinishedJobPurgeCount = -1
	}
	m := &Master{
		clock:     clk,
		planIDs:   idgen.New(clk),
		workerIDs: idgen.New(clk),
		workers:   workerset.New(),
		commands:  command.NewManager(),
		plans:     plans,
		events:    sink,
		cfg:       cfg,
	}
	m.tracker = tracker.New(clk, tracker.Config{
		Capacity:    cfg.JobCapacity,
		RetentionMS: cfg.FinishedJobRetention.Milliseconds(),
		PurgeCount:  cfg.FinishedJobPurgeCount,
		HistorySize: cfg.FinishedJobHistory,
	})
	m.commands.OnEnqueue(func(workerID int64, kind command.Kind) {
		sink.CommandEnqueued(workerID, kind.String())
		metrics.RecordCommandEnqueued(kind.String())
	})
	return m
}

// Commands exposes the command manager for direct inspection; tests use it
// to poll the commands queued for a worker.
func (m *Master) Commands() *command.Manager { return m.commands }

// Workers exposes the worker set for read-only inspection (admin/summary
// endpoints).
func (m *Master) Workers() *workerset.Set { return m.workers }

// Tracker exposes the tracker for read-only inspection.
func (m *Master) Tracker() *tracker.Tracker { return m.tracker }

// NewJobID allocates a fresh plan id (component B).
func (m *Master) NewJobID() int64 { return m.planIDs.Next() }

// Run admits a new plan run. The plan name must be registered in the
// plan-definition registry (ErrUnknownPlan otherwise); admission may fail
// with ErrCapacityExceeded after an attempted purge.
//
// Per SPEC_FULL.md's ambient-request-context design note: expansion may
// issue outbound RPCs whose cancellation must not be tied to the inbound
// caller, so expansion runs under a context detached from ctx's
// cancellation (but carrying its values, e.g. trace ids) rather than ctx
// itself.
func (m *Master) Run(ctx context.Context, planName string, cfg json.RawMessage) (int64, error) {
	metrics.RecordPlanSubmission(planName)

	def, err := m.plans.Resolve(planName)
	if err != nil {
		m.events.PlanDenied(planName, err)
		metrics.RecordPlanDenial(planName, denialReason(err))
		return 0, err
	}

	planID := m.NewJobID()
	var workers []workerset.Worker
	m.workers.Iterate(func(w workerset.Worker) { workers = append(workers, w) })

	expandCtx := context.WithoutCancel(ctx)

	onEvent := func(id int64, from, to jobstate.State) {
		m.events.PlanStateChanged(id, from, to)
	}

	_, err = m.tracker.Run(expandCtx, m.clock, m.commands, def, planID, planName, cfg, workers, onEvent)
	if err != nil {
		m.events.PlanDenied(planName, err)
		metrics.RecordPlanDenial(planName, denialReason(err))
		return 0, err
	}

	m.events.PlanAdmitted(planID, planName)
	metrics.RecordPlanAdmission(planName, len(m.tracker.Coordinators()))
	return planID, nil
}

// denialReason buckets a Run error into a small, bounded label set so the
// denial counter's cardinality stays fixed regardless of error message text.
func denialReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownPlan):
		return "unknown_plan"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	default:
		return "error"
	}
}

// Cancel requests cancellation of a live plan.
func (m *Master) Cancel(id int64) error {
	c := m.tracker.Get(id)
	if c == nil {
		return fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	c.Cancel(m.commands)
	return nil
}

// List returns every known plan id, live first then purged-history.
func (m *Master) List() []int64 {
	return m.tracker.Jobs()
}

// GetStatus returns a plan's current wire status.
func (m *Master) GetStatus(id int64) (jobstate.PlanStatus, error) {
	c := m.tracker.Get(id)
	if c == nil {
		return jobstate.PlanStatus{}, fmt.Errorf("plan %d: %w", id, ErrNotFound)
	}
	return c.Snapshot(), nil
}

// GetSummary groups every live plan by rolled-up state, newest first within
// each group (ties broken by id ascending).
func (m *Master) GetSummary() JobServiceSummary {
	coords := m.tracker.Coordinators()
	summary := JobServiceSummary{ByState: make(map[string][]jobstate.PlanStatus)}

	snaps := make([]jobstate.PlanStatus, 0, len(coords))
	for _, c := range coords {
		snaps = append(snaps, c.Snapshot())
	}

	for _, s := range snaps {
		summary.ByState[s.State.String()] = append(summary.ByState[s.State.String()], s)
	}
	for state, group := range summary.ByState {
		sort.Slice(group, func(i, j int) bool {
			if group[i].LastStatusChangeMS != group[j].LastStatusChangeMS {
				return group[i].LastStatusChangeMS > group[j].LastStatusChangeMS
			}
			return group[i].ID < group[j].ID
		})
		summary.ByState[state] = group
	}
	summary.Total = len(snaps)
	return summary
}

// RegisterWorker records a new worker at addr, allocating a fresh id. If
// addr was already registered, the prior worker's non-terminal tasks are
// failed across every live plan and its id is forgotten before the new one
// is inserted.
func (m *Master) RegisterWorker(addr workerset.Address) int64 {
	if existing := m.workers.FirstByAddr(addr); existing != nil {
		m.evictWorker(existing.ID, "re-registered at same address")
	}

	id := m.workerIDs.Next()
	m.workers.Insert(&workerset.Worker{ID: id, Address: addr, LastHeartbeat: m.clock.NowMS()})
	m.events.WorkerRegistered(id, addr.Host)
	return id
}

func (m *Master) evictWorker(id int64, reason string) {
	m.workers.Remove(id)
	m.commands.Forget(id)
	for _, c := range m.tracker.Coordinators() {
		c.FailTasksForWorker(context.Background(), id, reason)
	}
	m.events.WorkerEvicted(id, reason)
	metrics.RecordWorkerEvicted(reason)
	metrics.SetActiveWorkers(float64(m.workers.Size()))
}

// WorkerHeartbeat applies a worker's task reports, grouped by plan id, to
// each affected coordinator, then returns the worker's pending commands. If
// the worker id is unknown (e.g. the master restarted), the single response
// is a REGISTER command instructing the worker to re-register.
func (m *Master) WorkerHeartbeat(ctx context.Context, workerID int64, reports []PlanTaskReport) []command.Command {
	now := m.clock.NowMS()
	ok, previous := m.workers.TouchHeartbeat(workerID, now)
	if !ok {
		return []command.Command{{Kind: command.Register}}
	}
	if previous > 0 {
		metrics.RecordHeartbeatLatency(float64(now-previous) / 1000)
	}

	byPlan := make(map[int64][]coordinator.TaskReport)
	for _, r := range reports {
		byPlan[r.PlanID] = append(byPlan[r.PlanID], coordinator.TaskReport{
			TaskID:       r.TaskID,
			State:        r.State,
			ErrorMessage: r.ErrorMessage,
			Result:       r.Result,
		})
	}

	for planID, group := range byPlan {
		if c := m.tracker.Get(planID); c != nil {
			c.UpdateTasks(ctx, group)
		}
	}

	return m.commands.PollAll(workerID)
}

// PlanTaskReport is a single worker-reported task update tagged with the
// plan it belongs to, as carried over the wire in a heartbeat request.
type PlanTaskReport struct {
	PlanID       int64
	TaskID       int64
	State        jobstate.State
	ErrorMessage string
	Result       json.RawMessage
}
