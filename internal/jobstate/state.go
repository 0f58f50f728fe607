// Package jobstate defines the task and plan status wire shapes and the
// roll-up rules that derive a plan's state from its tasks' states
// (SPEC_FULL.md §3, component E). Modeled on the teacher's task.State enum
// and transition table, generalized from a single task's lifecycle to a
// whole plan's.
package jobstate

import "encoding/json"

// State is a task or plan's lifecycle state.
type State int

const (
	Created State = iota
	Running
	Completed
	Canceled
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Canceled:
		return "CANCELED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s cannot transition further.
func (s State) IsTerminal() bool {
	return s == Completed || s == Canceled || s == Failed
}

// MarshalJSON renders the state as its wire name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the state from its wire name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "CREATED":
		*s = Created
	case "RUNNING":
		*s = Running
	case "COMPLETED":
		*s = Completed
	case "CANCELED":
		*s = Canceled
	case "FAILED":
		*s = Failed
	default:
		*s = Created
	}
	return nil
}

// TaskStatus is the latest known status of one task within a plan.
type TaskStatus struct {
	PlanID        int64           `json:"plan_id"`
	TaskID        int64           `json:"task_id"`
	WorkerID      int64           `json:"worker_id"`
	WorkerHost    string          `json:"worker_host"`
	State         State           `json:"state"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	LastUpdatedMS int64           `json:"last_updated_ms"`
}

// PlanStatus is the rolled-up status of a plan and its constituent tasks.
type PlanStatus struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Children          []TaskStatus    `json:"children"`
	State             State           `json:"state"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	LastStatusChangeMS int64          `json:"last_status_change_ms"`
	Type              string          `json:"type"`
}

// RollUp derives a plan's rolled-up state from its tasks' states, per
// SPEC_FULL.md §3: CANCELED beats FAILED beats COMPLETED beats RUNNING,
// else CREATED.
func RollUp(tasks []TaskStatus) State {
	if len(tasks) == 0 {
		return Created
	}

	anyCanceled := false
	anyFailed := false
	anyRunning := false
	allCompleted := true

	for _, ts := range tasks {
		switch ts.State {
		case Canceled:
			anyCanceled = true
		case Failed:
			anyFailed = true
		case Running:
			anyRunning = true
		}
		if ts.State != Completed {
			allCompleted = false
		}
	}

	switch {
	case anyCanceled:
		return Canceled
	case anyFailed:
		return Failed
	case allCompleted:
		return Completed
	case anyRunning:
		return Running
	default:
		return Created
	}
}
