// Package demoworker is a reference worker process for the job master's
// §6 worker-facing RPCs: it registers, heartbeats, executes RUN commands,
// and reports task results back. Grounded on the teacher's internal/worker
// package (pool.go's concurrency-limited loop, executor.go's panic-recovery
// and timeout classification), generalized from Redis-stream dequeuing to
// HTTP heartbeat polling through pkg/client.
package demoworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jobctl/jobmaster/internal/logger"
)

// Handler processes one task's payload and returns its result. There is no
// per-plan "task type" on the wire (a Command only carries plan/task ids and
// a payload), so a Pool is configured with a single Handler rather than a
// type-keyed map the way the teacher's Executor was.
type Handler func(ctx context.Context, planID, taskID int64, payload json.RawMessage) (json.RawMessage, error)

// EchoHandler returns the payload unchanged, matching the job master's
// builtin Echo and Fanout plan definitions, which expect the worker side to
// hand back whatever it was given.
func EchoHandler(_ context.Context, _, _ int64, payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}

// Executor runs a Handler with panic recovery and timeout/cancellation
// classification, mirroring the teacher's worker.Executor.
type Executor struct {
	handler Handler
}

// NewExecutor constructs an Executor around handler. A nil handler falls
// back to EchoHandler.
func NewExecutor(handler Handler) *Executor {
	if handler == nil {
		handler = EchoHandler
	}
	return &Executor{handler: handler}
}

// Execute runs the handler for one task, recovering from panics and
// classifying context errors the same way the teacher's executor does.
func (e *Executor) Execute(ctx context.Context, planID, taskID int64, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error().
				Int64("plan_id", planID).
				Int64("task_id", taskID).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("task handler panicked")
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	log := logger.Get()
	log.Debug().Int64("plan_id", planID).Int64("task_id", taskID).Msg("executing task")

	start := time.Now()
	result, err = e.handler(ctx, planID, taskID, payload)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return nil, ErrTaskTimeout
		}
		if errors.Is(err, context.Canceled) {
			log.Warn().Dur("duration", duration).Msg("task canceled")
			return nil, ErrTaskCanceled
		}
		log.Error().Err(err).Dur("duration", duration).Msg("task failed")
		return nil, err
	}

	log.Debug().Dur("duration", duration).Msg("task executed successfully")
	return result, nil
}

var (
	ErrTaskTimeout  = errors.New("demoworker: task execution timed out")
	ErrTaskCanceled = errors.New("demoworker: task execution canceled")
)
