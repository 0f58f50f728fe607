// Package command is the job master's per-worker outbound command queue
// (SPEC_FULL.md component D).
package command

import (
	"sync"
)

// Kind tags a Command's variant.
type Kind int

const (
	Register Kind = iota
	Run
	Cancel
	Setup
)

func (k Kind) String() string {
	switch k {
	case Register:
		return "REGISTER"
	case Run:
		return "RUN"
	case Cancel:
		return "CANCEL"
	case Setup:
		return "SETUP"
	default:
		return "UNKNOWN"
	}
}

// Command is one outbound instruction to a worker.
type Command struct {
	Kind    Kind
	PlanID  int64
	TaskID  int64
	Payload []byte // only meaningful for Run
}

// Manager owns one FIFO command queue per worker id. Operations on
// different worker ids never contend; operations on the same worker id are
// serialized by that worker's own mutex, not a global lock.
type Manager struct {
	mu        sync.Mutex // guards the queues map itself (creating/deleting per-worker entries)
	queues    map[int64]*workerQueue
	onEnqueue func(workerID int64, kind Kind)
}

type workerQueue struct {
	mu      sync.Mutex
	pending []Command
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{queues: make(map[int64]*workerQueue)}
}

func (m *Manager) queueFor(workerID int64) *workerQueue {
	m.mu.Lock()
	q, ok := m.queues[workerID]
	if !ok {
		q = &workerQueue{}
		m.queues[workerID] = q
	}
	m.mu.Unlock()
	return q
}

func (m *Manager) submit(workerID int64, c Command) {
	q := m.queueFor(workerID)
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	m.mu.Lock()
	fn := m.onEnqueue
	m.mu.Unlock()
	if fn != nil {
		fn(workerID, c.Kind)
	}
}

// OnEnqueue registers fn to be called once per command, after it is queued,
// naming the worker it was queued for and the command's kind. Replaces any
// previously registered callback. A nil fn disables the callback. Intended
// for metrics/event wiring; fn must not block.
func (m *Manager) OnEnqueue(fn func(workerID int64, kind Kind)) {
	m.mu.Lock()
	m.onEnqueue = fn
	m.mu.Unlock()
}

// SubmitRegister enqueues a REGISTER command instructing the worker to
// re-register before anything else.
func (m *Manager) SubmitRegister(workerID int64) {
	m.submit(workerID, Command{Kind: Register})
}

// SubmitRunTask enqueues a RUN command for the given plan/task.
func (m *Manager) SubmitRunTask(workerID, planID, taskID int64, payload []byte) {
	m.submit(workerID, Command{Kind: Run, PlanID: planID, TaskID: taskID, Payload: payload})
}

// SubmitCancelTask enqueues a CANCEL command for the given plan/task.
func (m *Manager) SubmitCancelTask(workerID, planID, taskID int64) {
	m.submit(workerID, Command{Kind: Cancel, PlanID: planID, TaskID: taskID})
}

// SubmitSetup enqueues a SETUP command.
func (m *Manager) SubmitSetup(workerID int64) {
	m.submit(workerID, Command{Kind: Setup})
}

// PollAll atomically drains and returns the worker's pending commands in
// the order they were submitted. The queue is empty after this call.
func (m *Manager) PollAll(workerID int64) []Command {
	q := m.queueFor(workerID)
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	drained := q.pending
	q.pending = nil
	return drained
}

// Forget drops a worker's queue entirely, e.g. after it is evicted by
// re-registration. Safe to call even if the worker never had a queue.
func (m *Manager) Forget(workerID int64) {
	m.mu.Lock()
	delete(m.queues, workerID)
	m.mu.Unlock()
}
