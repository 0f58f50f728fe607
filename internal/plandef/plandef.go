// Package plandef is the job master's plan-definition registry: the
// external collaborator that knows how to expand a named plan configuration
// into tasks and join their results (SPEC_FULL.md component J). The kernel
// never executes task bodies itself; it only calls through this interface.
package plandef

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jobctl/jobmaster/internal/workerset"
)

// ErrUnknownPlan is returned by Resolve when no Definition is registered
// under the requested name.
var ErrUnknownPlan = errors.New("plandef: unknown plan name")

// TaskDescriptor is one task produced by expanding a plan configuration.
type TaskDescriptor struct {
	TaskID     int64
	WorkerID   int64
	WorkerHost string
	Payload    json.RawMessage
}

// TaskResult is one task's final payload, fed to Join once a plan's roll-up
// reaches COMPLETED.
type TaskResult struct {
	TaskID int64
	Result json.RawMessage
}

// Definition is a plan type's expand/join/trivially-complete strategy. It
// does not declare whether a plan may be retried on worker loss.
type Definition interface {
	// Expand turns cfg into the tasks that make up one run of this plan,
	// given a snapshot of currently registered workers. Expansion happens
	// once, at admission time; workers are a one-shot snapshot, not a
	// live view.
	Expand(ctx context.Context, cfg json.RawMessage, workers []workerset.Worker) ([]TaskDescriptor, error)

	// Join aggregates every task's final result into the plan's overall
	// result, called once when the plan's roll-up reaches COMPLETED.
	Join(ctx context.Context, results []TaskResult) (json.RawMessage, error)

	// TriviallyComplete reports whether a plan that expands to zero tasks
	// should be considered immediately COMPLETED rather than stuck at
	// CREATED forever.
	TriviallyComplete() bool
}

// Registry maps a plan configuration's name to its Definition. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces the Definition for name.
func (r *Registry) Register(name string, def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[name] = def
}

// Resolve looks up the Definition for name.
func (r *Registry) Resolve(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, ErrUnknownPlan
	}
	return def, nil
}

// Names returns every registered plan name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	return names
}
