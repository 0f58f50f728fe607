// Package coordinator implements the per-plan state owner (SPEC_FULL.md
// component F): expansion, dispatch, roll-up, and cancellation of one
// plan's tasks. Grounded on the teacher's worker/pool.go task-lifecycle
// handling and internal/task/state.go's transition rules, generalized from
// a single task's state machine to a whole plan's roll-up.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jobctl/jobmaster/internal/clock"
	"github.com/jobctl/jobmaster/internal/command"
	"github.com/jobctl/jobmaster/internal/jobstate"
	"github.com/jobctl/jobmaster/internal/metrics"
	"github.com/jobctl/jobmaster/internal/plandef"
	"github.com/jobctl/jobmaster/internal/workerset"
)

// TaskReport is one worker-reported update for a single task, as carried in
// a heartbeat.
type TaskReport struct {
	TaskID       int64
	State        jobstate.State
	ErrorMessage string
	Result       json.RawMessage
}

// EventFunc is called on every roll-up transition, with the coordinator's
// own mutex held, so it must not block and must not call back into the
// Coordinator that invoked it.
type EventFunc func(planID int64, from, to jobstate.State)

// Coordinator owns one plan's state. Mutating operations
// (UpdateTasks/Cancel/FailTasksForWorker/SetAsFailed) are serialized behind
// a single mutex; read-only accessors (IsFinished/Snapshot) take the same
// mutex briefly and return a consistent point-in-time copy.
type Coordinator struct {
	mu sync.Mutex

	id          int64
	name        string
	description string
	clock       clock.Clock
	def         plandef.Definition
	onEvent     EventFunc

	tasks           map[int64]*jobstate.TaskStatus
	taskOrder       []int64
	tasksByWorker   map[int64]map[int64]bool // workerID -> set of taskID

	state              jobstate.State
	errorMessage       string
	result             json.RawMessage
	lastStatusChangeMS int64
	createdAtMS        int64
}

// New constructs and admits a coordinator for one plan. If expansion fails,
// the coordinator is constructed in FAILED state with the error recorded,
// and no tasks; admission still succeeds (the spec requires the tracker to
// always accept the coordinator object itself — only a later run() caller
// sees the failure via get_job_status).
func New(
	ctx context.Context,
	clk clock.Clock,
	cmdMgr *command.Manager,
	def plandef.Definition,
	planID int64,
	name string,
	cfg json.RawMessage,
	workers []workerset.Worker,
	onEvent EventFunc,
) *Coordinator {
	now := clk.NowMS()
	c := &Coordinator{
		id:                 planID,
		name:               name,
		clock:              clk,
		def:                def,
		onEvent:            onEvent,
		tasks:              make(map[int64]*jobstate.TaskStatus),
		tasksByWorker:      make(map[int64]map[int64]bool),
		state:              jobstate.Created,
		lastStatusChangeMS: now,
		createdAtMS:        now,
	}

	descriptors, err := def.Expand(ctx, cfg, workers)
	if err != nil {
		c.state = jobstate.Failed
		c.errorMessage = fmt.Sprintf("plan expansion failed: %v", err)
		c.fireEvent(jobstate.Created, jobstate.Failed)
		return c
	}

	if len(descriptors) == 0 {
		if def.TriviallyComplete() {
			c.state = jobstate.Completed
			if joined, jerr := def.Join(ctx, nil); jerr == nil {
				c.result = joined
			} else {
				c.state = jobstate.Failed
				c.errorMessage = fmt.Sprintf("join failed: %v", jerr)
			}
			c.fireEvent(jobstate.Created, c.state)
		}
		return c
	}

	for _, d := range descriptors {
		c.tasks[d.TaskID] = &jobstate.TaskStatus{
			PlanID:        planID,
			TaskID:        d.TaskID,
			WorkerID:      d.WorkerID,
			WorkerHost:    d.WorkerHost,
			State:         jobstate.Created,
			LastUpdatedMS: now,
		}
		c.taskOrder = append(c.taskOrder, d.TaskID)
		if c.tasksByWorker[d.WorkerID] == nil {
			c.tasksByWorker[d.WorkerID] = make(map[int64]bool)
		}
		c.tasksByWorker[d.WorkerID][d.TaskID] = true
		cmdMgr.SubmitRunTask(d.WorkerID, planID, d.TaskID, d.Payload)
	}
	c.state = jobstate.Running
	c.fireEvent(jobstate.Created, jobstate.Running)
	return c
}

func (c *Coordinator) fireEvent(from, to jobstate.State) {
	if c.onEvent != nil {
		c.onEvent(c.id, from, to)
	}
}

// recomputeLocked recomputes the roll-up state from current task statuses
// and, on a transition, stamps lastStatusChangeMS and fires an event. Must
// be called with mu held. Respects terminal stickiness: once c.state is
// terminal it is never overwritten by a fresh roll-up (guards the case
// where set_job_as_failed or an earlier terminal roll-up already decided).
func (c *Coordinator) recomputeLocked(ctx context.Context) {
	if c.state.IsTerminal() {
		return
	}

	statuses := make([]jobstate.TaskStatus, 0, len(c.tasks))
	for _, id := range c.taskOrder {
		statuses = append(statuses, *c.tasks[id])
	}

	next := jobstate.RollUp(statuses)
	if next == c.state {
		return
	}

	if next == jobstate.Completed {
		results := make([]plandef.TaskResult, 0, len(statuses))
		for _, ts := range statuses {
			results = append(results, plandef.TaskResult{TaskID: ts.TaskID, Result: ts.Result})
		}
		if joined, err := c.def.Join(ctx, results); err == nil {
			c.result = joined
		} else {
			c.errorMessage = fmt.Sprintf("join failed: %v", err)
			next = jobstate.Failed
		}
	}

	prev := c.state
	c.state = next
	c.lastStatusChangeMS = c.clock.NowMS()
	metrics.RecordRollUpTransition(next.String())

	c.fireEvent(prev, next)
}

// UpdateTasks applies a batch of worker-reported task updates atomically
// with respect to roll-up: every report in the batch is applied before the
// roll-up is recomputed once.
func (c *Coordinator) UpdateTasks(ctx context.Context, reports []TaskReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.NowMS()
	for _, r := range reports {
		ts, ok := c.tasks[r.TaskID]
		if !ok {
			continue // report for a task this plan never created
		}
		if ts.State.IsTerminal() {
			continue // terminal stickiness: ignore further reports
		}
		ts.State = r.State
		ts.ErrorMessage = r.ErrorMessage
		ts.Result = r.Result
		ts.LastUpdatedMS = now
	}

	c.recomputeLocked(ctx)
}

// Cancel enqueues a CANCEL command for every non-terminal task's worker. It
// does not synchronously change state; the roll-up reacts once workers
// report the cancellation (or a task races to COMPLETED first, which is
// accepted). No-op if the plan is already terminal.
func (c *Coordinator) Cancel(cmdMgr *command.Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsTerminal() {
		return
	}
	for _, id := range c.taskOrder {
		ts := c.tasks[id]
		if !ts.State.IsTerminal() {
			cmdMgr.SubmitCancelTask(ts.WorkerID, c.id, ts.TaskID)
		}
	}
}

// FailTasksForWorker synthesizes a FAILED report for every non-terminal
// task this plan assigned to workerID, e.g. because the worker was lost or
// evicted by re-registration.
func (c *Coordinator) FailTasksForWorker(ctx context.Context, workerID int64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	taskIDs := c.tasksByWorker[workerID]
	if len(taskIDs) == 0 {
		return
	}

	now := c.clock.NowMS()
	for taskID := range taskIDs {
		ts := c.tasks[taskID]
		if ts.State.IsTerminal() {
			continue
		}
		ts.State = jobstate.Failed
		ts.ErrorMessage = reason
		ts.LastUpdatedMS = now
	}
	c.recomputeLocked(ctx)
}

// SetAsFailed forces every non-terminal task to FAILED with message. It is
// the hook for burying leftover in-flight plans on startup; a fresh tracker
// starts empty, so no startup path or test in this repository calls it.
func (c *Coordinator) SetAsFailed(ctx context.Context, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsTerminal() {
		return
	}
	now := c.clock.NowMS()
	for _, id := range c.taskOrder {
		ts := c.tasks[id]
		if !ts.State.IsTerminal() {
			ts.State = jobstate.Failed
			ts.ErrorMessage = message
			ts.LastUpdatedMS = now
		}
	}
	if len(c.taskOrder) == 0 {
		prev := c.state
		c.state = jobstate.Failed
		c.errorMessage = message
		c.lastStatusChangeMS = now
		c.fireEvent(prev, jobstate.Failed)
		return
	}
	c.recomputeLocked(ctx)
}

// IsFinished reports whether the plan's rolled-up state is terminal.
func (c *Coordinator) IsFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsTerminal()
}

// LastStatusChangeMS returns the last time the rolled-up state changed.
func (c *Coordinator) LastStatusChangeMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatusChangeMS
}

// ID returns the plan id this coordinator owns.
func (c *Coordinator) ID() int64 {
	return c.id
}

// Snapshot returns an independent copy of the plan's current wire status.
func (c *Coordinator) Snapshot() jobstate.PlanStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	children := make([]jobstate.TaskStatus, 0, len(c.tasks))
	for _, id := range c.taskOrder {
		children = append(children, *c.tasks[id])
	}

	return jobstate.PlanStatus{
		ID:                 c.id,
		Name:               c.name,
		Description:        c.description,
		Children:           children,
		State:              c.state,
		ErrorMessage:       c.errorMessage,
		Result:             c.result,
		LastStatusChangeMS: c.lastStatusChangeMS,
		Type:               "PLAN",
	}
}
